package tools

import (
	"context"
	"errors"

	"github.com/teamforge/crewbot/internal/store"
)

// RememberFact stores a fact about the asking user for later recall.
type RememberFact struct {
	Store *store.Memories
}

func (t *RememberFact) Name() string { return "remember_fact" }

func (t *RememberFact) Description() string {
	return "Remember a short fact about the current user for future conversations. Only use when the user explicitly asks you to remember something."
}

func (t *RememberFact) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The fact to remember, phrased in third person.",
			},
		},
		"required": []string{"content"},
	}
}

func (t *RememberFact) Call(ctx context.Context, args map[string]any) Result {
	content := StringArg(args, "content")
	if content == "" {
		return Errf("content is required")
	}
	env := EnvFrom(ctx)
	id, err := t.Store.Add(ctx, env.Message.AuthorID, content)
	if err != nil {
		return Errf("could not save memory: %v", err)
	}
	return OK(map[string]any{"status": "remembered", "memory_id": id})
}

// RecallFacts returns the stored facts about the asking user.
type RecallFacts struct {
	Store *store.Memories
}

func (t *RecallFacts) Name() string { return "recall_facts" }

func (t *RecallFacts) Description() string {
	return "List the facts previously remembered about the current user."
}

func (t *RecallFacts) Parameters() map[string]any { return noParams() }

func (t *RecallFacts) Call(ctx context.Context, args map[string]any) Result {
	env := EnvFrom(ctx)
	mems, err := t.Store.ForUser(ctx, env.Message.AuthorID, 20)
	if err != nil {
		return Errf("could not load memories: %v", err)
	}
	out := make([]map[string]any, 0, len(mems))
	for _, m := range mems {
		out = append(out, map[string]any{"id": m.ID, "content": m.Content, "since": m.CreatedAt})
	}
	return OK(map[string]any{"facts": out, "count": len(out)})
}

// ForgetFact deletes one of the asking user's stored facts.
type ForgetFact struct {
	Store *store.Memories
}

func (t *ForgetFact) Name() string { return "forget_fact" }

func (t *ForgetFact) Description() string {
	return "Delete a previously remembered fact about the current user by its ID. Use recall_facts first to find the ID."
}

func (t *ForgetFact) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"memory_id": map[string]any{
				"type":        "integer",
				"description": "ID of the fact to delete.",
			},
		},
		"required": []string{"memory_id"},
	}
}

func (t *ForgetFact) Call(ctx context.Context, args map[string]any) Result {
	id, ok := IntArg(args, "memory_id")
	if !ok {
		return Errf("memory_id is required")
	}
	env := EnvFrom(ctx)
	err := t.Store.Forget(ctx, env.Message.AuthorID, int64(id))
	if errors.Is(err, store.ErrNotFound) {
		return Errf("no memory %d for this user", id)
	}
	if err != nil {
		return Errf("could not delete memory: %v", err)
	}
	return OK(map[string]any{"status": "forgotten", "memory_id": id})
}
