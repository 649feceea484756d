package tools

import (
	"context"
	"fmt"

	"github.com/teamforge/crewbot/internal/convo"
	"github.com/teamforge/crewbot/internal/discord"
)

// ChannelHistory is the slice of the chat client the history tool needs.
type ChannelHistory interface {
	ChannelMessages(ctx context.Context, channelID, beforeID string, limit int) ([]discord.Message, error)
}

// FetchMessages lets the model pull channel history beyond what the
// transcript builder included, for questions that reference an earlier
// part of the conversation.
type FetchMessages struct {
	History ChannelHistory

	// MaxCount caps a single fetch. Zero means 20.
	MaxCount int
}

func (t *FetchMessages) Name() string { return "fetch_more_messages" }

func (t *FetchMessages) Description() string {
	return "Fetch older messages from the current channel, before the ones already shown. Use when the question refers to earlier conversation you cannot see."
}

func (t *FetchMessages) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{
				"type":        "integer",
				"description": "How many older messages to fetch (default 10, max 20).",
			},
		},
	}
}

func (t *FetchMessages) Call(ctx context.Context, args map[string]any) Result {
	env := EnvFrom(ctx)
	if env.Message.ChannelID == "" {
		return Errf("no channel available in this context")
	}

	maxCount := t.MaxCount
	if maxCount <= 0 {
		maxCount = 20
	}
	count, ok := IntArg(args, "count")
	if !ok || count <= 0 {
		count = 10
	}
	if count > maxCount {
		count = maxCount
	}

	msgs, err := t.History.ChannelMessages(ctx, env.Message.ChannelID, env.Message.ID, count)
	if err != nil {
		return Errf("history fetch failed: %v", err)
	}
	if len(msgs) == 0 {
		return OK(map[string]any{"messages": []any{}, "message": "no earlier messages in this channel"})
	}

	lines := make([]any, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s] %s (@%s): %s",
			m.Time().UTC().Format("2006-01-02 15:04"),
			m.DisplayName(), m.Author.Username, convo.CleanContent(m.Content)))
	}
	return OK(map[string]any{"messages": lines, "count": len(lines)})
}
