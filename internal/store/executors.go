package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, so the CAS
// primitives below can run standalone or inside a caller's transaction
// (AssignExecutor commits the increment and the FK write atomically).
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Proxy port range, grounded on original_source/db_modules/executors.py's
// PROXY_MIN/PROXY_MAX.
const (
	ProxyPortMin = 10001
	ProxyPortMax = 19999
)

// executorColumns is the schema-checked column set for UpdateParam/GetParam
// (spec.md §4.1: "Column names are validated against the model's column
// set; unknown columns fail with a validation error").
var executorColumns = map[string]bool{
	"name": true, "api_credentials": true, "session_blob": true,
	"status": true, "users_total": true, "active_users": true,
	"last_message_ts": true, "proxy_scheme": true, "proxy_host": true,
	"proxy_port": true, "proxy_user": true, "proxy_password": true,
}

// ExecutorRepo implements the Executor half of the Persistence layer
// (spec.md §4.1), grounded on original_source/db_modules/executors.py and
// the teacher's plain pgxpool-driven query style (users.go).
type ExecutorRepo struct {
	pool *pgxpool.Pool
}

func NewExecutorRepo(pool *pgxpool.Pool) *ExecutorRepo {
	return &ExecutorRepo{pool: pool}
}

const executorSelectColumns = `executor_id, name, api_credentials, session_blob, status,
	users_total, active_users, last_message_ts,
	proxy_scheme, proxy_host, proxy_port, proxy_user, proxy_password`

func scanExecutor(row pgx.Row) (Executor, error) {
	var e Executor
	var scheme, host, user, password *string
	var port *int
	err := row.Scan(
		&e.ExecutorID, &e.Name, &e.APICredentials, &e.SessionBlob, &e.Status,
		&e.UsersTotal, &e.ActiveUsers, &e.LastMessageTS,
		&scheme, &host, &port, &user, &password,
	)
	if err != nil {
		return Executor{}, err
	}
	if scheme != nil && host != nil && port != nil {
		e.Proxy = &Proxy{Scheme: *scheme, Host: *host, Port: *port}
		if user != nil {
			e.Proxy.User = *user
		}
		if password != nil {
			e.Proxy.Password = *password
		}
	}
	return e, nil
}

// GetExecutor returns one Executor by id.
func (r *ExecutorRepo) GetExecutor(ctx context.Context, executorID int64) (Executor, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+executorSelectColumns+` FROM executors WHERE executor_id = $1`, executorID)
	e, err := scanExecutor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Executor{}, ErrNotFound
	}
	return e, err
}

// GetFreePort picks an unused proxy port, falling back to ProxyPortMin if
// the range is exhausted (original_source never errors here either — an
// operator notices via the resulting proxy collision, not via this call).
func (r *ExecutorRepo) GetFreePort(ctx context.Context) (int, error) {
	rows, err := r.pool.Query(ctx, `SELECT proxy_port FROM executors WHERE proxy_port IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("get free port: %w", err)
	}
	defer rows.Close()

	used := make(map[int]bool)
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return 0, err
		}
		used[p] = true
	}

	for p := ProxyPortMin; p <= ProxyPortMax; p++ {
		if !used[p] {
			return p, nil
		}
	}
	return ProxyPortMin, nil
}

// AddExecutor inserts a new Executor row. Duplicate name, duplicate
// (api_credentials, session_blob), or duplicate proxy_port surface as the
// underlying unique-constraint error — the caller treats it as a validation
// failure, not a retryable one.
func (r *ExecutorRepo) AddExecutor(ctx context.Context, e Executor) (int64, error) {
	var scheme, host, puser, ppass *string
	var port *int
	if e.Proxy != nil {
		scheme, host, puser, ppass = &e.Proxy.Scheme, &e.Proxy.Host, &e.Proxy.User, &e.Proxy.Password
		port = &e.Proxy.Port
	}
	if e.Status == "" {
		e.Status = StatusDisconnected
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO executors (executor_id, name, api_credentials, session_blob, status,
			proxy_scheme, proxy_host, proxy_port, proxy_user, proxy_password)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING executor_id`,
		e.ExecutorID, e.Name, e.APICredentials, e.SessionBlob, e.Status,
		scheme, host, port, puser, ppass,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add executor: %w", err)
	}
	return id, nil
}

// DeleteExecutor removes an Executor row. Nothing else is touched: a running
// Client Pool keeps any cached client, drainer and deferred work it holds
// for this executor.
func (r *ExecutorRepo) DeleteExecutor(ctx context.Context, executorID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM executors WHERE executor_id = $1`, executorID)
	return err
}

// GetIDs returns every known executor id, used by the Client Pool's
// activate() to eagerly connect every executor.
func (r *ExecutorRepo) GetIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT executor_id FROM executors ORDER BY executor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PickLeastLoaded returns the active executor with the fewest active_users,
// ties broken by executor_id ascending (spec.md §4.1).
func (r *ExecutorRepo) PickLeastLoaded(ctx context.Context) (Executor, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+executorSelectColumns+` FROM executors
		 WHERE status = $1
		 ORDER BY active_users ASC, executor_id ASC
		 LIMIT 1`, StatusActive)
	e, err := scanExecutor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Executor{}, ErrNotFound
	}
	return e, err
}

// TryIncActive is the CAS primitive: bump active_users and users_total only
// if active_users still equals expectedActive. Returns whether the update
// applied.
func (r *ExecutorRepo) TryIncActive(ctx context.Context, executorID int64, expectedActive int) (bool, error) {
	return tryIncActive(ctx, r.pool, executorID, expectedActive)
}

func tryIncActive(ctx context.Context, db execer, executorID int64, expectedActive int) (bool, error) {
	tag, err := db.Exec(ctx,
		`UPDATE executors SET active_users = active_users + 1, users_total = users_total + 1
		 WHERE executor_id = $1 AND active_users = $2`,
		executorID, expectedActive)
	if err != nil {
		return false, fmt.Errorf("try_inc_active: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DecActive decrements active_users (and users_total) guarded so neither
// goes negative.
func (r *ExecutorRepo) DecActive(ctx context.Context, executorID int64) error {
	return decActive(ctx, r.pool, executorID)
}

func decActive(ctx context.Context, db execer, executorID int64) error {
	_, err := db.Exec(ctx,
		`UPDATE executors SET active_users = active_users - 1, users_total = users_total - 1
		 WHERE executor_id = $1 AND active_users > 0 AND users_total > 0`,
		executorID)
	if err != nil {
		return fmt.Errorf("dec_active: %w", err)
	}
	return nil
}

// UpdateExecutorParam is the schema-checked single-column setter shared by
// the Client Pool and Rate-Limit fabric.
func (r *ExecutorRepo) UpdateExecutorParam(ctx context.Context, executorID int64, column string, value any) error {
	if !executorColumns[column] {
		return fmt.Errorf("update_param: unknown executor column %q", column)
	}
	query := fmt.Sprintf(`UPDATE executors SET %s = $1 WHERE executor_id = $2`, column)
	_, err := r.pool.Exec(ctx, query, value, executorID)
	return err
}

// GetExecutorParam is the schema-checked single-column getter.
func (r *ExecutorRepo) GetExecutorParam(ctx context.Context, executorID int64, column string) (any, error) {
	if !executorColumns[column] {
		return nil, fmt.Errorf("get_param: unknown executor column %q", column)
	}
	query := fmt.Sprintf(`SELECT %s FROM executors WHERE executor_id = $1`, column)
	var v any
	if err := r.pool.QueryRow(ctx, query, executorID).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// ExecutorTimestamp stamps last_message_ts to now.
func (r *ExecutorRepo) ExecutorTimestamp(ctx context.Context, executorID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE executors SET last_message_ts = $1 WHERE executor_id = $2`, time.Now(), executorID)
	return err
}

// GetExecutors returns all executor rows, used by operator tooling.
func (r *ExecutorRepo) GetExecutors(ctx context.Context) ([]Executor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+executorSelectColumns+` FROM executors ORDER BY executor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Executor
	for rows.Next() {
		e, err := scanExecutor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
