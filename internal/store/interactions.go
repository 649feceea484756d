package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const interactionsSchema = `
CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	tier TEXT NOT NULL DEFAULT 'lite',
	escalated INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL DEFAULT '',
	reply_len INTEGER NOT NULL DEFAULT 0
);
`

const modelCallsSchema = `
CREATE TABLE IF NOT EXISTS model_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	interaction_id TEXT NOT NULL REFERENCES interactions(id),
	seq INTEGER NOT NULL,
	model TEXT NOT NULL,
	tool_choice TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	tool_calls INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_model_calls_interaction ON model_calls(interaction_id);
`

const toolCallsSchema = `
CREATE TABLE IF NOT EXISTS tool_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	interaction_id TEXT NOT NULL REFERENCES interactions(id),
	seq INTEGER NOT NULL,
	tool TEXT NOT NULL,
	args TEXT NOT NULL DEFAULT '{}',
	result TEXT NOT NULL DEFAULT '',
	is_error INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_interaction ON tool_calls(interaction_id);
`

// Interaction is the audit record of one mention-to-reply run.
type Interaction struct {
	ID         string
	MessageID  string
	ChannelID  string
	UserID     string
	StartedAt  string
	FinishedAt sql.NullString
	Tier       string
	Escalated  bool
	Outcome    string
	ReplyLen   int
}

// ModelCall is the audit record of one model invocation within a run.
type ModelCall struct {
	Seq          int
	Model        string
	ToolChoice   string
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	DurationMS   int64
	Error        string
}

// ToolCallRecord is the audit record of one tool dispatch within a run.
type ToolCallRecord struct {
	Seq        int
	Tool       string
	Args       string
	Result     string
	IsError    bool
	DurationMS int64
}

// Interactions is the audit store. Every run writes its full trace here,
// which is what crewbot inspect reads back.
type Interactions struct {
	db *sql.DB
}

// NewInteractions creates an audit store using the given database.
func NewInteractions(db *sql.DB) *Interactions {
	return &Interactions{db: db}
}

// Begin records the start of a run.
func (s *Interactions) Begin(ctx context.Context, id, messageID, channelID, userID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, message_id, channel_id, user_id, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, messageID, channelID, userID, startedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("begin interaction: %w", err)
	}
	return nil
}

// Finish records the run's final disposition.
func (s *Interactions) Finish(ctx context.Context, id, tier, outcome string, escalated bool, replyLen int, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE interactions
		SET finished_at = ?, tier = ?, outcome = ?, escalated = ?, reply_len = ?
		WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339), tier, outcome, boolToInt(escalated), replyLen, id)
	if err != nil {
		return fmt.Errorf("finish interaction: %w", err)
	}
	return nil
}

// RecordModelCall appends one model invocation to the trace.
func (s *Interactions) RecordModelCall(ctx context.Context, interactionID string, c ModelCall) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_calls (interaction_id, seq, model, tool_choice, input_tokens, output_tokens, tool_calls, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		interactionID, c.Seq, c.Model, c.ToolChoice, c.InputTokens, c.OutputTokens, c.ToolCalls, c.DurationMS, c.Error)
	if err != nil {
		return fmt.Errorf("record model call: %w", err)
	}
	return nil
}

// RecordToolCall appends one tool dispatch to the trace.
func (s *Interactions) RecordToolCall(ctx context.Context, interactionID string, c ToolCallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (interaction_id, seq, tool, args, result, is_error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		interactionID, c.Seq, c.Tool, c.Args, c.Result, boolToInt(c.IsError), c.DurationMS)
	if err != nil {
		return fmt.Errorf("record tool call: %w", err)
	}
	return nil
}

// Recent returns the newest interactions, most recent first.
func (s *Interactions) Recent(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, channel_id, user_id, started_at, finished_at, tier, escalated, outcome, reply_len
		FROM interactions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// Get returns one interaction with its full trace.
func (s *Interactions) Get(ctx context.Context, id string) (*Interaction, []ModelCall, []ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, channel_id, user_id, started_at, finished_at, tier, escalated, outcome, reply_len
		FROM interactions WHERE id = ?`, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get interaction: %w", err)
	}
	ints, err := scanInteractions(rows)
	rows.Close()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(ints) == 0 {
		return nil, nil, nil, ErrNotFound
	}

	mrows, err := s.db.QueryContext(ctx, `
		SELECT seq, model, tool_choice, input_tokens, output_tokens, tool_calls, duration_ms, error
		FROM model_calls WHERE interaction_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get model calls: %w", err)
	}
	var models []ModelCall
	for mrows.Next() {
		var c ModelCall
		if err := mrows.Scan(&c.Seq, &c.Model, &c.ToolChoice, &c.InputTokens, &c.OutputTokens, &c.ToolCalls, &c.DurationMS, &c.Error); err != nil {
			mrows.Close()
			return nil, nil, nil, fmt.Errorf("scan model call: %w", err)
		}
		models = append(models, c)
	}
	mrows.Close()

	trows, err := s.db.QueryContext(ctx, `
		SELECT seq, tool, args, result, is_error, duration_ms
		FROM tool_calls WHERE interaction_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get tool calls: %w", err)
	}
	var toolCalls []ToolCallRecord
	for trows.Next() {
		var c ToolCallRecord
		var isErr int
		if err := trows.Scan(&c.Seq, &c.Tool, &c.Args, &c.Result, &isErr, &c.DurationMS); err != nil {
			trows.Close()
			return nil, nil, nil, fmt.Errorf("scan tool call: %w", err)
		}
		c.IsError = isErr != 0
		toolCalls = append(toolCalls, c)
	}
	trows.Close()

	return &ints[0], models, toolCalls, nil
}

func scanInteractions(rows *sql.Rows) ([]Interaction, error) {
	var out []Interaction
	for rows.Next() {
		var i Interaction
		var escalated int
		if err := rows.Scan(&i.ID, &i.MessageID, &i.ChannelID, &i.UserID, &i.StartedAt,
			&i.FinishedAt, &i.Tier, &escalated, &i.Outcome, &i.ReplyLen); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		i.Escalated = escalated != 0
		out = append(out, i)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
