package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS athletes (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		display_name  TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS workouts (
		id           UUID PRIMARY KEY,
		athlete_id   UUID NOT NULL REFERENCES athletes(id) ON DELETE CASCADE,
		session_id   TEXT NOT NULL DEFAULT '',
		reps         INTEGER NOT NULL CHECK (reps > 0),
		performed_at TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS workouts_athlete_performed_idx ON workouts (athlete_id, performed_at)`,
}

// Migrate creates the tables the service needs if they are missing.
func Migrate(ctx context.Context, q Querier) error {
	for i, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
