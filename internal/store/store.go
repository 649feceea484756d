// Package store persists crewbot's durable state in SQLite: the team
// schedule and meeting notes, the member roster and verification links,
// per-user memories, and the interaction audit trail.
//
// Stores take an injected *sql.DB so production and tests can choose
// their own driver. All writes go through a single connection; SQLite
// serializes them.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates all tables. Idempotent; run at startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		scheduleSchema,
		notesSchema,
		rosterSchema,
		verifiedSchema,
		memoriesSchema,
		interactionsSchema,
		modelCallsSchema,
		toolCallsSchema,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
