// Package ingest imports external data into the store: the member
// roster from CSV exports and meeting notes from markdown files.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/teamforge/crewbot/internal/store"
)

// rosterColumns maps accepted CSV header names to canonical fields.
// Roster exports come from a spreadsheet and the headers drift.
var rosterColumns = map[string]string{
	"first_name": "first", "first name": "first", "first": "first",
	"last_name": "last", "last name": "last", "last": "last", "surname": "last",
	"email": "email", "e-mail": "email", "email address": "email",
	"team": "team", "subteam": "team", "sub-team": "team",
}

// ImportRosterCSV reads a roster export and upserts every row. Returns
// the number of students imported. The first row must be a header with
// at least first/last/email columns; team is optional.
func ImportRosterCSV(ctx context.Context, r io.Reader, roster *store.Roster) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("ingest: read csv header: %w", err)
	}

	idx := map[string]int{}
	for i, col := range header {
		if field, ok := rosterColumns[strings.ToLower(strings.TrimSpace(col))]; ok {
			idx[field] = i
		}
	}
	for _, required := range []string{"first", "last", "email"} {
		if _, ok := idx[required]; !ok {
			return 0, fmt.Errorf("ingest: csv missing %s column (header: %v)", required, header)
		}
	}

	count := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("ingest: csv line %d: %w", line, err)
		}

		s := store.Student{
			FirstName: strings.TrimSpace(row[idx["first"]]),
			LastName:  strings.TrimSpace(row[idx["last"]]),
			Email:     strings.TrimSpace(row[idx["email"]]),
		}
		if ti, ok := idx["team"]; ok && ti < len(row) {
			s.Team = strings.TrimSpace(row[ti])
		}
		if s.Email == "" {
			continue // blank spreadsheet rows
		}

		if _, err := roster.Upsert(ctx, s); err != nil {
			return count, fmt.Errorf("ingest: csv line %d: %w", line, err)
		}
		count++
	}
	return count, nil
}
