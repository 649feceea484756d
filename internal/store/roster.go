package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const rosterSchema = `
CREATE TABLE IF NOT EXISTS students (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	team TEXT NOT NULL DEFAULT ''
);
`

const verifiedSchema = `
CREATE TABLE IF NOT EXISTS verified_users (
	discord_id TEXT PRIMARY KEY,
	student_id INTEGER NOT NULL REFERENCES students(id),
	verified_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_verified_users_student ON verified_users(student_id);
`

// Student is one roster entry, imported from the team's member list.
type Student struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Team      string
}

// Roster provides access to the member list and verification links.
type Roster struct {
	db *sql.DB
}

// NewRoster creates a roster store using the given database.
func NewRoster(db *sql.DB) *Roster {
	return &Roster{db: db}
}

// Upsert inserts or updates a student keyed by email. Returns the row ID.
func (r *Roster) Upsert(ctx context.Context, s Student) (int64, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (first_name, last_name, email, team)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			team = excluded.team`,
		s.FirstName, s.LastName, strings.ToLower(s.Email), s.Team)
	if err != nil {
		return 0, fmt.Errorf("upsert student: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM students WHERE email = ?`, strings.ToLower(s.Email)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert student: %w", err)
	}
	return id, nil
}

// ByName finds students matching a full or partial name, case-insensitive.
func (r *Roster) ByName(ctx context.Context, name string) ([]Student, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(name)) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, email, team FROM students
		WHERE lower(first_name || ' ' || last_name) LIKE ?
		ORDER BY last_name, first_name`, pattern)
	if err != nil {
		return nil, fmt.Errorf("find students: %w", err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Team); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ByEmail finds a student by exact email, or ErrNotFound.
func (r *Roster) ByEmail(ctx context.Context, email string) (*Student, error) {
	var s Student
	err := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, team FROM students
		WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))).
		Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Team)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &s, nil
}

// Verify links a Discord account to a student. Fails if either side is
// already linked, so one student cannot vouch for multiple accounts.
func (r *Roster) Verify(ctx context.Context, discordID string, studentID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verified_users (discord_id, student_id) VALUES (?, ?)`,
		discordID, studentID)
	if err != nil {
		return fmt.Errorf("verify %s: %w", discordID, err)
	}
	return nil
}

// Verified returns the student linked to a Discord account, or ErrNotFound.
func (r *Roster) Verified(ctx context.Context, discordID string) (*Student, error) {
	var s Student
	err := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.first_name, s.last_name, s.email, s.team
		FROM verified_users v JOIN students s ON s.id = v.student_id
		WHERE v.discord_id = ?`, discordID).
		Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Team)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup verified user: %w", err)
	}
	return &s, nil
}

// Count returns the number of roster entries.
func (r *Roster) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}
