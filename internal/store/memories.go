package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const memoriesSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
`

// Memory is one remembered fact about a user, written by the model on
// request ("remember that I main the drivetrain").
type Memory struct {
	ID        int64
	UserID    string
	Content   string
	CreatedAt string
}

// Memories provides access to per-user remembered facts.
type Memories struct {
	db *sql.DB
}

// NewMemories creates a memory store using the given database.
func NewMemories(db *sql.DB) *Memories {
	return &Memories{db: db}
}

// Add stores a fact for a user.
func (m *Memories) Add(ctx context.Context, userID, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, fmt.Errorf("add memory: empty content")
	}
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO memories (user_id, content) VALUES (?, ?)`, userID, content)
	if err != nil {
		return 0, fmt.Errorf("add memory: %w", err)
	}
	return res.LastInsertId()
}

// ForUser returns a user's memories, oldest first, capped at limit.
func (m *Memories) ForUser(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, content, created_at FROM memories
		WHERE user_id = ? ORDER BY id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var mem Memory
		if err := rows.Scan(&mem.ID, &mem.UserID, &mem.Content, &mem.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// Forget deletes one memory by ID, scoped to the user so the model cannot
// delete another user's facts.
func (m *Memories) Forget(ctx context.Context, userID string, id int64) error {
	res, err := m.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("forget memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
