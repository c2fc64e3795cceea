package ingestor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Prospect is one harvested row from the external source database, joined
// with the most-recent non-empty source_link (spec.md §6).
type Prospect struct {
	UserID     int64
	Username   string
	Phone      string
	Name       string
	Info       string
	SourceLink string
}

// Source reads the external prospect database. It is an interface so tests
// can feed rows without a live store.
type Source interface {
	FetchTargets(ctx context.Context) ([]Prospect, error)
}

// PgSource reads the read-only external Postgres store the harvester fills:
// users(user_id, username, telephone, name, info, target) joined with the
// latest messages.source_link per prospect.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) FetchTargets(ctx context.Context) ([]Prospect, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.user_id,
		       COALESCE(u.username, ''),
		       COALESCE(u.telephone, ''),
		       COALESCE(u.name, ''),
		       COALESCE(u.info, ''),
		       COALESCE((
		           SELECT m.source_link
		           FROM messages m
		           WHERE m.user_id = u.user_id
		             AND m.source_link IS NOT NULL
		             AND TRIM(m.source_link) <> ''
		           ORDER BY m.created_at DESC
		           LIMIT 1
		       ), '')
		FROM users u
		WHERE u.target = 1`)
	if err != nil {
		return nil, fmt.Errorf("fetch targets: %w", err)
	}
	defer rows.Close()

	var out []Prospect
	for rows.Next() {
		var p Prospect
		if err := rows.Scan(&p.UserID, &p.Username, &p.Phone, &p.Name, &p.Info, &p.SourceLink); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
