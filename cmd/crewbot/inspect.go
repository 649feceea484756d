package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/teamforge/crewbot/internal/store"
)

// runInspect lists recent interactions, or prints the full trace of one
// interaction: every model call and tool dispatch with timings.
func runInspect(ctx context.Context, stdout io.Writer, configPath, id, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	audit := store.NewInteractions(db)

	if id == "" {
		return inspectRecent(ctx, stdout, audit, outputFmt)
	}
	return inspectOne(ctx, stdout, audit, id, outputFmt)
}

func inspectRecent(ctx context.Context, w io.Writer, audit *store.Interactions, outputFmt string) error {
	recent, err := audit.Recent(ctx, 20)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recent)
	}

	if len(recent) == 0 {
		fmt.Fprintln(w, "no interactions recorded")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-5s  %-4s  %-9s  %s\n",
		"ID", "STARTED", "TIER", "ESC", "OUTCOME", "LEN")
	for _, i := range recent {
		esc := ""
		if i.Escalated {
			esc = "yes"
		}
		fmt.Fprintf(w, "%-36s  %-20s  %-5s  %-4s  %-9s  %d\n",
			i.ID, i.StartedAt, i.Tier, esc, i.Outcome, i.ReplyLen)
	}
	return nil
}

func inspectOne(ctx context.Context, w io.Writer, audit *store.Interactions, id, outputFmt string) error {
	interaction, models, toolCalls, err := audit.Get(ctx, id)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"interaction": interaction,
			"model_calls": models,
			"tool_calls":  toolCalls,
		})
	}

	fmt.Fprintf(w, "interaction %s\n", interaction.ID)
	fmt.Fprintf(w, "  message:   %s (channel %s, user %s)\n",
		interaction.MessageID, interaction.ChannelID, interaction.UserID)
	fmt.Fprintf(w, "  started:   %s\n", interaction.StartedAt)
	if interaction.FinishedAt.Valid {
		fmt.Fprintf(w, "  finished:  %s\n", interaction.FinishedAt.String)
	}
	fmt.Fprintf(w, "  tier:      %s (escalated: %v)\n", interaction.Tier, interaction.Escalated)
	fmt.Fprintf(w, "  outcome:   %s (%d chars)\n", interaction.Outcome, interaction.ReplyLen)

	fmt.Fprintf(w, "\nmodel calls (%d):\n", len(models))
	for _, c := range models {
		status := fmt.Sprintf("%d in / %d out tokens, %d tool calls", c.InputTokens, c.OutputTokens, c.ToolCalls)
		if c.Error != "" {
			status = "error: " + c.Error
		}
		fmt.Fprintf(w, "  #%d %s choice=%s %dms  %s\n", c.Seq, c.Model, c.ToolChoice, c.DurationMS, status)
	}

	fmt.Fprintf(w, "\ntool calls (%d):\n", len(toolCalls))
	for _, c := range toolCalls {
		marker := ""
		if c.IsError {
			marker = " [error]"
		}
		fmt.Fprintf(w, "  #%d %s %dms%s\n", c.Seq, c.Tool, c.DurationMS, marker)
		fmt.Fprintf(w, "     args:   %s\n", c.Args)
		fmt.Fprintf(w, "     result: %s\n", truncateLine(c.Result, 200))
	}
	return nil
}

func truncateLine(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
