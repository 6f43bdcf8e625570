package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/database"
	"github.com/DannyMichaels/code-dojo-app/internal/dojo"
	"github.com/DannyMichaels/code-dojo-app/internal/health"
	"github.com/DannyMichaels/code-dojo-app/internal/messagebus"
	"github.com/DannyMichaels/code-dojo-app/internal/orchestrator"
	"github.com/DannyMichaels/code-dojo-app/internal/provider"
	"github.com/DannyMichaels/code-dojo-app/internal/sessionlock"
	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/internal/telemetry"
	"github.com/DannyMichaels/code-dojo-app/internal/tools"
	"github.com/DannyMichaels/code-dojo-app/pkg/config"
)

// app is the wired service plus everything that needs closing.
type app struct {
	svc      *dojo.Service
	watchdog *health.Watchdog
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// openDatabase returns nil for the memory store.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.Database, error) {
	switch cfg.Type {
	case "sqlite":
		return database.NewSQLite(ctx, cfg.Path)
	case "postgres":
		return database.NewPostgres(ctx, cfg.DSN)
	default:
		return nil, nil
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (a *app, err error) {
	a = &app{watchdog: health.NewWatchdog(cfg.Lock.TTL, logger)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var store storage.Store = storage.NewMemory()
	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if db != nil {
		store = db
		a.closers = append(a.closers, db.Close)
		a.watchdog.AddCheck("database", db.Ping)
	}
	logger.Info("store ready", zap.String("type", cfg.Database.Type))

	var locker sessionlock.Locker
	switch cfg.Lock.Backend {
	case "redis":
		rl, err := sessionlock.NewRedisLockerFromURL(ctx, cfg.Lock.RedisURL, cfg.Lock.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, rl.Close)
		a.watchdog.AddCheck("redis", rl.Ping)
		locker = rl
	case "database":
		if db == nil {
			return nil, errors.New("lock backend database needs a sql database")
		}
		locks := db.SessionLocks(cfg.Lock.TTL)
		a.watchdog.AddSweep("session_locks", locks.PurgeExpired)
		locker = locks
	default:
		locker = sessionlock.NewMemoryLocker(cfg.Lock.TTL)
	}
	logger.Info("session locks ready", zap.String("backend", cfg.Lock.Backend), zap.Duration("ttl", cfg.Lock.TTL))

	var publisher messagebus.EventPublisher = messagebus.Noop{}
	if cfg.NATS.Enabled {
		bus, err := messagebus.NewNatsMessageBus(messagebus.Config{
			URL:        cfg.NATS.URL,
			StreamName: cfg.NATS.StreamName,
			Timeout:    cfg.NATS.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		a.closers = append(a.closers, bus.Close)
		a.watchdog.AddCheck("nats", func(context.Context) error { return bus.Health() })
		publisher = bus
	}

	checker := cfg.Checker()
	executor, err := tools.NewExecutor(checker, logger)
	if err != nil {
		return nil, err
	}
	instruments, err := telemetry.NewInstruments()
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	reasoner := provider.NewOpenAIProvider(cfg.Reasoning.Endpoint, cfg.Reasoning.APIKey,
		provider.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
		provider.WithTimeout(cfg.Reasoning.RequestTimeout),
	)

	orch, err := orchestrator.New(store, locker, reasoner, executor, orchestrator.Config{
		Model:           cfg.Reasoning.Model,
		MaxRounds:       cfg.Reasoning.MaxRounds,
		MaxOutputTokens: cfg.Reasoning.MaxOutputTokens,
		Temperature:     cfg.Reasoning.Temperature,
		HistoryLimit:    cfg.Reasoning.HistoryLimit,
	},
		orchestrator.WithPublisher(publisher),
		orchestrator.WithCommunity(dojo.CommunityFunc(store, nil)),
		orchestrator.WithInstruments(instruments),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a.svc = dojo.New(store, checker,
		dojo.WithOrchestrator(orch),
		dojo.WithLocker(locker),
		dojo.WithPublisher(publisher),
		dojo.WithLogger(logger),
	)
	return a, nil
}
