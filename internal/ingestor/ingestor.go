// Package ingestor implements the Prospect Ingestor (spec.md §4.6): a
// nighttime-windowed periodic pull from the external prospect database,
// inserting each not-yet-known prospect through the Client Pool's add_user
// path. Per-row failures are logged and skipped; they never terminate the
// loop.
//
// Grounded on the teacher's reminder.go poll-table/publish/mark loop shape,
// with the windowing and row mechanics of original_source/services/parser.py.
package ingestor

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/local/outreach/internal/config"
	"github.com/local/outreach/internal/pool"
	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/telemetry"
)

const daySleep = time.Hour

// Ingestor pulls prospects from the external source during the nighttime
// window.
type Ingestor struct {
	source Source
	users  *store.UserRepo
	pool   *pool.Pool
	cfg    *config.Store
	log    *telemetry.Logger

	// limiter bounds pulls against the external store so a misconfigured
	// UPDATE_BD_PERIOD cannot hammer it.
	limiter *rate.Limiter
}

func New(source Source, users *store.UserRepo, p *pool.Pool, cfg *config.Store, log *telemetry.Logger) *Ingestor {
	return &Ingestor{
		source:  source,
		users:   users,
		pool:    p,
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// Run loops intake cycles until ctx is cancelled. Daytime hours sleep in
// hour-long steps; each nighttime cycle fetches the full target set and
// inserts the rows Persistence doesn't know yet.
func (i *Ingestor) Run(ctx context.Context) error {
	for {
		cfg, err := i.cfg.Get()
		if err != nil {
			i.errorf("parser: config", err)
			cfg = config.Defaults()
		}

		if cfg.InAwakeWindow(time.Now()) {
			if err := sleepCtx(ctx, daySleep); err != nil {
				return err
			}
			continue
		}

		if err := i.limiter.Wait(ctx); err != nil {
			return err
		}

		i.runCycle(ctx)

		period := time.Duration(cfg.UpdateBDPeriod) * time.Second
		if err := sleepCtx(ctx, period); err != nil {
			return err
		}
	}
}

func (i *Ingestor) runCycle(ctx context.Context) {
	prospects, err := i.source.FetchTargets(ctx)
	if err != nil {
		i.errorf("parser: external db read", err)
		return
	}

	for _, p := range prospects {
		if ctx.Err() != nil {
			return
		}

		_, err := i.users.GetUser(ctx, p.UserID)
		if err == nil {
			continue // already present
		}
		if !errors.Is(err, store.ErrNotFound) {
			i.errorf("parser: get_user", err)
			continue
		}

		info := p.Info
		if p.Phone != "" {
			info += "\n\nTG phone NUMBER: " + p.Phone
		}
		_, assigned, err := i.pool.AddUser(ctx, store.User{
			UserID:      p.UserID,
			Username:    p.Username,
			Phone:       p.Phone,
			DisplayName: p.Name,
			Info:        info,
		}, nil, p.SourceLink)
		if err != nil {
			i.errorf("parser: add_user", err)
			continue
		}
		if !assigned && i.log != nil {
			// No active executor won the CAS; the row stays unassigned.
			// Later cycles find it already present and skip it.
			i.log.Error("parser: assign", errors.New("no executor assigned"))
		}
	}
}

func (i *Ingestor) errorf(where string, err error) {
	if i.log != nil && err != nil {
		i.log.Error(where, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
