// Package supervisor wires the engine together (spec.md §4.7): load
// configuration, start Persistence, construct the Pool, register the inbound
// handler, start the Scheduler and Ingestor after a warm-up delay, and tear
// everything down in reverse dependency order on the stop signal.
//
// Construction order grounded on the teacher's main.go (admin pool → schema
// → registries → LLM → tools → agent → signal-context → run).
package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/local/outreach/internal/assistant"
	"github.com/local/outreach/internal/config"
	"github.com/local/outreach/internal/conversation"
	"github.com/local/outreach/internal/crm"
	"github.com/local/outreach/internal/heartbeat"
	"github.com/local/outreach/internal/ingestor"
	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/pool"
	"github.com/local/outreach/internal/scheduler"
	"github.com/local/outreach/internal/session"
	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/telegram"
	"github.com/local/outreach/internal/telemetry"
	"github.com/local/outreach/internal/tools"
)

// warmupDelay holds background services back until the pool has had a chance
// to connect the fleet.
const warmupDelay = 200 * time.Second

// defaultPrompt is used when no prompt file is configured; a deployment
// without real instructions still runs, it just converses blandly.
const defaultPrompt = "Ты — менеджер по продажам. Веди диалог вежливо и по делу. Отвечай строго в формате JSON с полями answer, send, file, wait, reply."

// Run builds and runs the whole engine until ctx is cancelled (the caller
// owns signal handling via signal.NotifyContext). The only process-fatal
// conditions are Persistence schema init and configuration load (spec.md
// §7); everything else degrades per-component.
func Run(ctx context.Context, env config.Env) error {
	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	log := telemetry.New(os.Stdout, env.LogLevel)

	dbPool, err := pgxpool.New(ctx, env.DatabaseURL)
	if err != nil {
		return fmt.Errorf("supervisor: db connect: %w", err)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("supervisor: db ping: %w", err)
	}
	if err := store.EnsureSchema(ctx, dbPool); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	executors := store.NewExecutorRepo(dbPool)
	users := store.NewUserRepo(dbPool, executors)

	factory := func(executorID int64, apiCredentials, sessionBlob string, proxy *messaging.Proxy) messaging.Sender {
		return telegram.New(executorID, apiCredentials, sessionBlob, proxy, env.TelegramAPIURL)
	}
	clientPool := pool.New(executors, users, factory, log.Named("pool"))

	transcripts, err := session.NewStore(env.SessionDir)
	if err != nil {
		log.Error("supervisor: transcripts", err) // transcripts stays nil: recording disabled
	} else {
		defer transcripts.Close()
	}

	links, err := tools.LoadLinks(env.LinksPath)
	if err != nil {
		log.Error("supervisor: links", err)
		links = nil // get_link degrades to not-found replies
	}
	crmClient := crm.New(crm.Config{
		Endpoint: env.CRMEndpoint,
		FormID:   env.CRMFormID,
		Hash:     env.CRMHash,
		Referer:  env.CRMReferer,
		Timezone: mustTimezone(cfg),
	})
	registry := tools.NewRegistry(log.Named("tools"))
	tools.RegisterAll(registry, links, crmClient)

	llm := assistant.New(assistant.Config{
		BaseURL: env.LLMBaseURL,
		APIKey:  env.LLMAPIKey,
		Model:   env.LLMModel,
		Prompt:  loadPrompt(env.PromptPath),
	}, users, registry, transcripts, log.Named("assistant"))

	runtime := conversation.New(clientPool, users, llm, cfg, env.CatalogPath, log.Named("conversation"))
	clientPool.AddHandler(runtime.Handler())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer clientPool.Shutdown()
		return clientPool.Activate(gctx)
	})

	greet := scheduler.New(users, clientPool, llm, cfg, log.Named("greeter"))
	g.Go(func() error {
		if err := sleepCtx(gctx, warmupDelay); err != nil {
			return nil
		}
		if err := greet.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	var externalPool *pgxpool.Pool
	if env.ProspectDBURL != "" {
		if externalPool, err = pgxpool.New(ctx, env.ProspectDBURL); err != nil {
			log.Error("supervisor: prospect db connect", err)
		}
	}
	if externalPool != nil {
		defer externalPool.Close()

		ing := ingestor.New(ingestor.NewPgSource(externalPool), users, clientPool, cfg, log.Named("parser"))
		g.Go(func() error {
			if err := sleepCtx(gctx, warmupDelay); err != nil {
				return nil
			}
			if err := ing.Run(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	if env.HeartbeatGroup != 0 {
		monitor := heartbeat.New(executors, clientPool, env.HeartbeatGroup, log.Named("heartbeat"))
		g.Go(func() error {
			if err := sleepCtx(gctx, warmupDelay); err != nil {
				return nil
			}
			_ = monitor.Run(gctx)
			return nil
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		return nil // clean shutdown on the operator's signal
	}
	return err
}

func loadPrompt(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil || len(raw) == 0 {
		return defaultPrompt
	}
	return string(raw)
}

func mustTimezone(cfg *config.Store) string {
	v, err := cfg.Get()
	if err != nil {
		return config.Defaults().Timezone
	}
	return v.Timezone
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
