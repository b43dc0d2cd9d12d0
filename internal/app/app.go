// Package app builds the import service from a Config.
//
// Both binaries share it: the HTTP server and importctl open the same storage,
// session store and engine so a file previewed from the command line gives
// the same result as one uploaded through the API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"

	"github.com/JonMunkholm/staffimport/internal/config"
	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/JonMunkholm/staffimport/internal/session"
	"github.com/JonMunkholm/staffimport/internal/spreadsheet"
	"github.com/JonMunkholm/staffimport/internal/storage/memory"
	"github.com/JonMunkholm/staffimport/internal/storage/postgres"
	mw "github.com/JonMunkholm/staffimport/internal/web/middleware"
)

// Store is the storage an App runs against.
type Store interface {
	core.Repository
	core.AuditLogger
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Store     Store
	Engine    *core.Engine
	Decoder   *spreadsheet.Decoder
	Sessions  *core.SessionStore
	Service   *core.Service
	RateStore limiter.Store

	postgres *postgres.Repository
	redis    *redis.Client
	sweeper  core.Sweeper
}

// New opens the configured backends and builds the service. Close releases
// what it opened.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if cfg.UsesRedis() {
		if err := a.openRedis(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if err := a.openRateStore(); err != nil {
		a.Close()
		return nil, err
	}
	a.openSessions()

	a.Engine = core.NewEngine(a.Store,
		core.WithDateLayout(cfg.Import.DateLayout),
		core.WithAffirmative(cfg.Import.Affirmative),
	)
	a.Decoder = spreadsheet.NewDecoder(spreadsheet.WithMaxRows(cfg.Upload.MaxRows))
	a.Service = core.NewService(a.Engine, a.Decoder, a.Sessions, a.Store, core.ServiceConfig{
		MaxConcurrentRuns: cfg.Import.MaxConcurrentRuns,
		MaxWaitTime:       cfg.Import.MaxWaitTime,
		RunTimeout:        cfg.Import.RunTimeout,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		repo := memory.New()
		if cfg.Storage.SeedFile != "" {
			f, err := os.Open(cfg.Storage.SeedFile)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			entities, err := repo.LoadSeed(f)
			if err != nil {
				return fmt.Errorf("load seed file %s: %w", cfg.Storage.SeedFile, err)
			}
			for _, e := range entities {
				slog.Info("seeded entity", "id", e.ID, "name", e.Name)
			}
		}
		slog.Warn("using in-memory storage, imported users are lost on restart")
		a.Store = repo
		return nil

	default:
		repo, err := postgres.Open(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				repo.Close()
				return fmt.Errorf("migrate database: %w", err)
			}
			slog.Info("database schema applied")
		}
		a.postgres = repo
		a.Store = repo
		return nil
	}
}

func (a *App) openRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	a.redis = client
	return nil
}

func (a *App) openRateStore() error {
	prefix := a.Config.Redis.Namespace + ":ratelimit"
	if a.Config.Rate.Storage != config.BackendRedis || a.redis == nil {
		a.RateStore = mw.NewMemoryStore(prefix)
		return nil
	}
	store, err := mw.NewRedisStore(a.redis, prefix)
	if err != nil {
		return err
	}
	a.RateStore = store
	return nil
}

func (a *App) openSessions() {
	cfg := a.Config
	if cfg.Session.Backend == config.BackendRedis {
		a.Sessions = core.NewSessionStore(session.NewRedisBackend(a.redis,
			session.WithNamespace(cfg.Redis.Namespace),
			session.WithTTL(cfg.Session.TTL),
		))
		return
	}
	backend := session.NewMemoryBackend()
	a.sweeper = backend
	a.Sessions = core.NewSessionStore(backend)
}

// StartBackground starts maintenance jobs that run until ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	if a.sweeper != nil {
		go core.StartSessionSweeper(ctx, a.sweeper, a.Config.Session.TTL, a.Config.Session.SweepInterval)
	}
}

// Ready reports whether the database and redis are reachable.
func (a *App) Ready(ctx context.Context) error {
	var errs []string
	if a.postgres != nil {
		if err := a.postgres.Ping(ctx); err != nil {
			errs = append(errs, "database: "+err.Error())
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, "redis: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("not ready: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Postgres returns the database repository, or nil with memory storage.
func (a *App) Postgres() *postgres.Repository {
	return a.postgres
}

// Close releases the database pool and redis client.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}
