package tools

import (
	"context"
	"errors"
	"time"

	"github.com/teamforge/crewbot/internal/store"
)

// noParams is the schema for tools that take no arguments.
func noParams() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func eventPayload(e store.Event) map[string]any {
	return map[string]any{
		"id":       e.ID,
		"date":     e.Date,
		"start":    e.StartTime,
		"end":      e.EndTime,
		"title":    e.Title,
		"location": e.Location,
		"kind":     e.Kind,
	}
}

func eventsPayload(events []store.Event) map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, eventPayload(e))
	}
	return map[string]any{"events": out, "count": len(out)}
}

// ScheduleToday returns today's schedule entries.
type ScheduleToday struct {
	Store *store.Schedules
	Now   func() time.Time
}

func (t *ScheduleToday) Name() string { return "get_schedule_today" }

func (t *ScheduleToday) Description() string {
	return "Get all team schedule entries for today."
}

func (t *ScheduleToday) Parameters() map[string]any { return noParams() }

func (t *ScheduleToday) Call(ctx context.Context, args map[string]any) Result {
	events, err := t.Store.OnDate(ctx, store.Today(t.Now()))
	if err != nil {
		return Errf("schedule lookup failed: %v", err)
	}
	return OK(eventsPayload(events))
}

// ScheduleDate returns the schedule for a specific date.
type ScheduleDate struct {
	Store *store.Schedules
}

func (t *ScheduleDate) Name() string { return "get_schedule_date" }

func (t *ScheduleDate) Description() string {
	return "Get all team schedule entries for a specific date."
}

func (t *ScheduleDate) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{
				"type":        "string",
				"description": "Date in YYYY-MM-DD format.",
			},
		},
		"required": []string{"date"},
	}
}

func (t *ScheduleDate) Call(ctx context.Context, args map[string]any) Result {
	date := StringArg(args, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Errf("invalid date %q, expected YYYY-MM-DD", date)
	}
	events, err := t.Store.OnDate(ctx, date)
	if err != nil {
		return Errf("schedule lookup failed: %v", err)
	}
	return OK(eventsPayload(events))
}

// NextMeeting returns the next upcoming meeting.
type NextMeeting struct {
	Store *store.Schedules
	Now   func() time.Time
}

func (t *NextMeeting) Name() string { return "get_next_meeting" }

func (t *NextMeeting) Description() string {
	return "Get the next scheduled team meeting from today onward."
}

func (t *NextMeeting) Parameters() map[string]any { return noParams() }

func (t *NextMeeting) Call(ctx context.Context, args map[string]any) Result {
	e, err := t.Store.NextMeeting(ctx, store.Today(t.Now()))
	if errors.Is(err, store.ErrNotFound) {
		return OK(map[string]any{"meeting": nil, "message": "no upcoming meetings scheduled"})
	}
	if err != nil {
		return Errf("schedule lookup failed: %v", err)
	}
	return OK(map[string]any{"meeting": eventPayload(*e)})
}

// FindMeeting searches schedule entries by title.
type FindMeeting struct {
	Store *store.Schedules
}

func (t *FindMeeting) Name() string { return "find_meeting" }

func (t *FindMeeting) Description() string {
	return "Search schedule entries by title, e.g. to find a past meeting's ID before fetching its notes."
}

func (t *FindMeeting) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Words from the entry title.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *FindMeeting) Call(ctx context.Context, args map[string]any) Result {
	q := StringArg(args, "query")
	if q == "" {
		return Errf("query is required")
	}
	events, err := t.Store.Find(ctx, q, 10)
	if err != nil {
		return Errf("schedule search failed: %v", err)
	}
	return OK(eventsPayload(events))
}

// MeetingNotes returns the stored notes for one schedule entry.
type MeetingNotes struct {
	Store *store.Schedules
}

func (t *MeetingNotes) Name() string { return "get_meeting_notes" }

func (t *MeetingNotes) Description() string {
	return "Get the notes for a meeting by its schedule entry ID. Use find_meeting first if you only know the title."
}

func (t *MeetingNotes) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event_id": map[string]any{
				"type":        "integer",
				"description": "Schedule entry ID.",
			},
		},
		"required": []string{"event_id"},
	}
}

func (t *MeetingNotes) Call(ctx context.Context, args map[string]any) Result {
	id, ok := IntArg(args, "event_id")
	if !ok {
		return Errf("event_id is required")
	}
	notes, err := t.Store.Notes(ctx, int64(id))
	if errors.Is(err, store.ErrNotFound) {
		return Errf("no notes recorded for event %d", id)
	}
	if err != nil {
		return Errf("notes lookup failed: %v", err)
	}
	return OK(map[string]any{"event_id": id, "notes": notes})
}
