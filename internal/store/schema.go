package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates all tables this package needs, in the teacher's
// plain-sequential-statement style (schema.go's ensureSchema) — no
// migration library is introduced, see DESIGN.md.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executors (
			executor_id       BIGINT PRIMARY KEY,
			name              TEXT NOT NULL UNIQUE,
			api_credentials   TEXT NOT NULL,
			session_blob      TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'disconnected',
			users_total       INT NOT NULL DEFAULT 0,
			active_users      INT NOT NULL DEFAULT 0,
			last_message_ts   TIMESTAMPTZ NOT NULL DEFAULT now(),
			proxy_scheme      TEXT,
			proxy_host        TEXT,
			proxy_port        INT,
			proxy_user        TEXT,
			proxy_password    TEXT,
			UNIQUE (api_credentials, session_blob),
			UNIQUE (proxy_port)
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			user_id           BIGINT PRIMARY KEY,
			executor_id       BIGINT REFERENCES executors(executor_id),
			access_hash       BIGINT,
			username          TEXT,
			phone             TEXT,
			display_name      TEXT NOT NULL DEFAULT '',
			info              TEXT NOT NULL DEFAULT '',
			contact           BOOLEAN NOT NULL DEFAULT FALSE,
			banned            BOOLEAN NOT NULL DEFAULT FALSE,
			crm               BOOLEAN NOT NULL DEFAULT FALSE,
			conversation_id   TEXT NOT NULL DEFAULT '',
			summary           TEXT NOT NULL DEFAULT '',
			last_message_ts   TIMESTAMPTZ NOT NULL DEFAULT now(),
			problems_count    INT NOT NULL DEFAULT 0,
			problem           BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_greet_candidates
			ON users (problems_count ASC, user_id ASC)
			WHERE contact = FALSE AND problem = FALSE AND access_hash IS NOT NULL AND executor_id IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS idx_executors_least_loaded
			ON executors (active_users ASC, executor_id ASC)
			WHERE status = 'active'`,
	}

	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("schema: %w\nstmt: %.80s", err, s)
		}
	}
	return nil
}
