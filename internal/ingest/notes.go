package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/teamforge/crewbot/internal/store"
)

// RenderMarkdown converts markdown to HTML. The HTML copy is stored
// alongside the source so the team site can embed notes without
// re-rendering.
func RenderMarkdown(md []byte) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(md, &buf); err != nil {
		return "", fmt.Errorf("ingest: render markdown: %w", err)
	}
	return buf.String(), nil
}

// titleFromMarkdown returns the first level-1 heading, or "".
func titleFromMarkdown(md []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(md))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// ImportNotes stores meeting notes for the meeting on the given date,
// creating the schedule entry when none exists yet. An empty title
// falls back to the notes' first heading. Returns the event ID.
func ImportNotes(ctx context.Context, schedules *store.Schedules, date, title string, markdown []byte) (int64, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return 0, fmt.Errorf("ingest: invalid date %q, expected YYYY-MM-DD", date)
	}
	if title == "" {
		title = titleFromMarkdown(markdown)
	}
	if title == "" {
		return 0, fmt.Errorf("ingest: no title given and notes have no heading")
	}

	var eventID int64
	events, err := schedules.OnDate(ctx, date)
	if err != nil {
		return 0, err
	}
	for _, e := range events {
		if strings.EqualFold(e.Title, title) {
			eventID = e.ID
			break
		}
	}
	if eventID == 0 {
		eventID, err = schedules.Add(ctx, store.Event{
			Date: date, Title: title, Kind: "meeting",
		})
		if err != nil {
			return 0, err
		}
	}

	html, err := RenderMarkdown(markdown)
	if err != nil {
		return 0, err
	}
	if err := schedules.SetNotes(ctx, eventID, string(markdown), html); err != nil {
		return 0, err
	}
	return eventID, nil
}
