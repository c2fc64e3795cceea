package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userColumns is the schema-checked column set for UpdateUserParam/GetUserParam.
var userColumns = map[string]bool{
	"executor_id": true, "access_hash": true, "username": true, "phone": true,
	"display_name": true, "info": true, "contact": true, "banned": true,
	"crm": true, "conversation_id": true, "summary": true,
	"last_message_ts": true, "problems_count": true, "problem": true,
}

// MaxAssignRetries is the CAS loop's default bound (spec.md §4.1: "default 5
// attempts, 0.5s back-off between attempts").
const (
	MaxAssignRetries  = 5
	AssignRetryDelay  = 500 * time.Millisecond
)

const userSelectColumns = `user_id, executor_id, access_hash, username, phone, display_name,
	info, contact, banned, crm, conversation_id, summary, last_message_ts,
	problems_count, problem`

// UserRepo implements the User half of the Persistence layer (spec.md §4.1),
// grounded on original_source/db_modules/users.py and the teacher's
// pgxpool-driven query style.
type UserRepo struct {
	pool        *pgxpool.Pool
	executors   *ExecutorRepo
}

func NewUserRepo(pool *pgxpool.Pool, executors *ExecutorRepo) *UserRepo {
	return &UserRepo{pool: pool, executors: executors}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.UserID, &u.ExecutorID, &u.AccessHash, &u.Username, &u.Phone, &u.DisplayName,
		&u.Info, &u.Contact, &u.Banned, &u.CRM, &u.ConversationID, &u.Summary, &u.LastMessageTS,
		&u.ProblemsCount, &u.Problem,
	)
	return u, err
}

// GetUser returns one User by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userSelectColumns+` FROM users WHERE user_id = $1`, userID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// AddUser inserts a new prospect row with contact=false (spec.md §3
// lifecycle: "inserted by Ingestor with contact=false").
func (r *UserRepo) AddUser(ctx context.Context, u User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (user_id, username, phone, display_name, info)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO NOTHING`,
		u.UserID, u.Username, u.Phone, u.DisplayName, u.Info)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

// AssignExecutor implements spec.md §4.1's assign_executor:
//
//	assign_executor(user_id, explicit_executor?) → executor_id | null
//
// If explicitExecutor is non-nil, a single CAS increment is attempted
// against that executor only (existence verified first). Otherwise a CAS
// loop runs against PickLeastLoaded up to MaxAssignRetries times with
// AssignRetryDelay between attempts. On exhaustion it returns (0, false)
// — the caller must treat this as transient, not fatal.
func (r *UserRepo) AssignExecutor(ctx context.Context, userID int64, explicitExecutor *int64) (int64, bool, error) {
	if explicitExecutor != nil {
		exec, err := r.executors.GetExecutor(ctx, *explicitExecutor)
		if err != nil {
			return 0, false, err
		}
		ok, err := r.assignTx(ctx, userID, exec.ExecutorID, exec.ActiveUsers)
		if err != nil || !ok {
			return 0, false, err
		}
		return exec.ExecutorID, true, nil
	}

	for attempt := 0; attempt < MaxAssignRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, false, ctx.Err()
			case <-time.After(AssignRetryDelay):
			}
		}

		exec, err := r.executors.PickLeastLoaded(ctx)
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}

		ok, err := r.assignTx(ctx, userID, exec.ExecutorID, exec.ActiveUsers)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue // lost the CAS race, retry against a fresh read
		}
		return exec.ExecutorID, true, nil
	}
	return 0, false, nil
}

// assignTx commits the CAS increment and the FK write in one transaction,
// so a crash between the two can't leave active_users incremented on an
// executor with no corresponding assigned prospect. Returns false without
// error when the CAS loses.
func (r *UserRepo) assignTx(ctx context.Context, userID, executorID int64, expectedActive int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("assign_executor: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := tryIncActive(ctx, tx, executorID, expectedActive)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET executor_id = $1 WHERE user_id = $2`, executorID, userID); err != nil {
		return false, fmt.Errorf("assign_executor: set fk: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("assign_executor: commit: %w", err)
	}
	return true, nil
}

// UnassignExecutor reads the prospect's current executor, decrements its
// (active_users, users_total), and clears the FK — all in one transaction.
func (r *UserRepo) UnassignExecutor(ctx context.Context, userID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unassign_executor: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var executorID *int64
	err = tx.QueryRow(ctx, `SELECT executor_id FROM users WHERE user_id = $1`, userID).Scan(&executorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if executorID == nil {
		return nil
	}

	if err := decActive(ctx, tx, *executorID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET executor_id = NULL WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("unassign_executor: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unassign_executor: commit: %w", err)
	}
	return nil
}

// PopUsersToGreet implements spec.md §4.1's pop_users_to_greet: eligible
// prospects ordered by (problems_count ASC, user_id ASC), with at most one
// prospect per executor_id in the returned batch (duplicates filtered
// in-order so callers can fan out concurrently without cross-executor
// contention).
func (r *UserRepo) PopUsersToGreet(ctx context.Context, limit int) ([]GreetCandidate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, executor_id, access_hash FROM users
		 WHERE contact = FALSE AND problem = FALSE
		   AND access_hash IS NOT NULL AND executor_id IS NOT NULL AND banned = FALSE
		 ORDER BY problems_count ASC, user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("pop_users_to_greet: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var out []GreetCandidate
	for rows.Next() {
		var c GreetCandidate
		if err := rows.Scan(&c.UserID, &c.ExecutorID, &c.AccessHash); err != nil {
			return nil, err
		}
		if seen[c.ExecutorID] {
			continue
		}
		seen[c.ExecutorID] = true
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RotateUserDown implements spec.md §4.1/§7: atomic problems_count += 1, and
// sets problem=true once the new value crosses ProblemThreshold. problem
// never flips back automatically once set (spec.md §3 invariant).
func (r *UserRepo) RotateUserDown(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET problems_count = problems_count + 1,
		                   problem = problem OR (problems_count + 1 >= $2)
		 WHERE user_id = $1`, userID, ProblemThreshold)
	if err != nil {
		return fmt.Errorf("rotate_user_down: %w", err)
	}
	return nil
}

// UpdateUserParam is the schema-checked single-column setter shared by the
// Client Pool, Conversation Runtime, and Tools.
func (r *UserRepo) UpdateUserParam(ctx context.Context, userID int64, column string, value any) error {
	if !userColumns[column] {
		return fmt.Errorf("update_param: unknown user column %q", column)
	}
	query := fmt.Sprintf(`UPDATE users SET %s = $1 WHERE user_id = $2`, column)
	_, err := r.pool.Exec(ctx, query, value, userID)
	return err
}

// GetUserParam is the schema-checked single-column getter.
func (r *UserRepo) GetUserParam(ctx context.Context, userID int64, column string) (any, error) {
	if !userColumns[column] {
		return nil, fmt.Errorf("get_param: unknown user column %q", column)
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE user_id = $1`, column)
	var v any
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// UserTimestamp stamps last_message_ts to now.
func (r *UserRepo) UserTimestamp(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_message_ts = $1 WHERE user_id = $2`, time.Now(), userID)
	return err
}

// DeleteUser removes a prospect row, decrementing its executor's
// active_users first (spec.md §3 lifecycle: "on delete, the executor's
// active_users is decremented").
func (r *UserRepo) DeleteUser(ctx context.Context, userID int64) error {
	if err := r.UnassignExecutor(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	return err
}

// ForgetUser resets a prospect for re-onboarding (supplemented from
// original_source/db_modules/users.py's forget_user): contact, banned, crm,
// conversation_id, summary, last_message_ts, and problems_count are reset,
// but problem is deliberately left untouched — it is sticky per spec.md §3.
func (r *UserRepo) ForgetUser(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET contact = FALSE, banned = FALSE, crm = FALSE,
		                   conversation_id = '', summary = '',
		                   last_message_ts = $2, problems_count = 0
		 WHERE user_id = $1`, userID, time.Now())
	if err != nil {
		return fmt.Errorf("forget_user: %w", err)
	}
	return nil
}

// GetInactiveUsers returns prospects whose last_message_ts is older than
// since, supplemented from original_source/db_modules/users.py's
// get_inactive_users — exposed for operator tooling, not wired into any
// automatic action (see SPEC_FULL.md).
func (r *UserRepo) GetInactiveUsers(ctx context.Context, since time.Time) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userSelectColumns+` FROM users WHERE last_message_ts < $1 ORDER BY last_message_ts ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
