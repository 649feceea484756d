package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const scheduleSchema = `
CREATE TABLE IF NOT EXISTS schedule_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	start_time TEXT NOT NULL DEFAULT '',
	end_time TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT 'event',
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_schedule_events_date ON schedule_events(date);
`

const notesSchema = `
CREATE TABLE IF NOT EXISTS meeting_notes (
	event_id INTEGER PRIMARY KEY REFERENCES schedule_events(id),
	markdown TEXT NOT NULL,
	html TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Event is one schedule entry. Dates are stored as YYYY-MM-DD and times
// as HH:MM local strings; the schedule is human-entered and never needs
// timezone math.
type Event struct {
	ID        int64
	Date      string
	StartTime string
	EndTime   string
	Title     string
	Location  string
	Kind      string // "meeting" or "event"
}

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Schedules provides access to the team schedule and meeting notes.
type Schedules struct {
	db *sql.DB
}

// NewSchedules creates a schedule store using the given database.
func NewSchedules(db *sql.DB) *Schedules {
	return &Schedules{db: db}
}

// Add inserts an event and returns its ID.
func (s *Schedules) Add(ctx context.Context, e Event) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_events (date, start_time, end_time, title, location, kind)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Date, e.StartTime, e.EndTime, e.Title, e.Location, e.Kind)
	if err != nil {
		return 0, fmt.Errorf("add event: %w", err)
	}
	return res.LastInsertId()
}

// OnDate returns all events on a YYYY-MM-DD date, ordered by start time.
func (s *Schedules) OnDate(ctx context.Context, date string) ([]Event, error) {
	return s.query(ctx, `
		SELECT id, date, start_time, end_time, title, location, kind
		FROM schedule_events WHERE date = ?
		ORDER BY start_time, id`, date)
}

// NextMeeting returns the first event of kind "meeting" at or after the
// given date, or ErrNotFound.
func (s *Schedules) NextMeeting(ctx context.Context, from string) (*Event, error) {
	events, err := s.query(ctx, `
		SELECT id, date, start_time, end_time, title, location, kind
		FROM schedule_events WHERE kind = 'meeting' AND date >= ?
		ORDER BY date, start_time LIMIT 1`, from)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return &events[0], nil
}

// Find searches event titles case-insensitively, newest first.
func (s *Schedules) Find(ctx context.Context, q string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	return s.query(ctx, `
		SELECT id, date, start_time, end_time, title, location, kind
		FROM schedule_events WHERE lower(title) LIKE ?
		ORDER BY date DESC, start_time DESC LIMIT ?`, pattern, limit)
}

func (s *Schedules) query(ctx context.Context, stmt string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Date, &e.StartTime, &e.EndTime, &e.Title, &e.Location, &e.Kind); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SetNotes stores the notes for an event, replacing any previous notes.
func (s *Schedules) SetNotes(ctx context.Context, eventID int64, markdown, html string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meeting_notes (event_id, markdown, html, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(event_id) DO UPDATE SET
			markdown = excluded.markdown,
			html = excluded.html,
			updated_at = excluded.updated_at`,
		eventID, markdown, html)
	if err != nil {
		return fmt.Errorf("set notes: %w", err)
	}
	return nil
}

// Notes returns the markdown notes for an event, or ErrNotFound.
func (s *Schedules) Notes(ctx context.Context, eventID int64) (string, error) {
	var md string
	err := s.db.QueryRowContext(ctx,
		`SELECT markdown FROM meeting_notes WHERE event_id = ?`, eventID).Scan(&md)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get notes: %w", err)
	}
	return md, nil
}

// Today formats a time as the schedule's date key.
func Today(now time.Time) string {
	return now.Format("2006-01-02")
}
