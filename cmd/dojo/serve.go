package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DannyMichaels/code-dojo-app/internal/api"
	"github.com/DannyMichaels/code-dojo-app/internal/auth"
	"github.com/DannyMichaels/code-dojo-app/internal/logging"
	"github.com/DannyMichaels/code-dojo-app/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP port")
	cmd.Flags().String("database", "", "Store type: memory, sqlite, postgres")
	cmd.Flags().String("lock-backend", "", "Session lock backend: memory, redis, database")
	cmd.Flags().Bool("auth", false, "Require bearer tokens or API keys")
	bindFlag(cmd.Flags(), "port", "server.http_port")
	bindFlag(cmd.Flags(), "database", "database.type")
	bindFlag(cmd.Flags(), "lock-backend", "lock.backend")
	bindFlag(cmd.Flags(), "auth", "security.enable_auth")
	return cmd
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logs, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	undo := zap.RedirectStdLog(logger)
	defer undo()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Environment: cfg.Telemetry.Environment,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing resources", zap.Error(err))
		}
	}()

	opts := []api.Option{api.WithLogger(logger), api.WithLogBuffer(logs), api.WithHealthCheck(a.watchdog.Healthy)}
	if cfg.Security.EnableAuth {
		authenticator, err := auth.NewAuthenticator(auth.Config{
			JWTSecret:    cfg.Security.JWTSecret,
			TokenTTL:     cfg.Security.TokenTTL,
			APIKeyHashes: cfg.Security.APIKeyHashes,
		}, logger)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithAuthenticator(authenticator))
	}
	server, err := api.NewServer(a.svc, api.Config{
		EnableAuth:     cfg.Security.EnableAuth,
		AllowedOrigins: cfg.Security.AllowedOrigins,
	}, opts...)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      otelhttp.NewHandler(server.SetupRoutes(), "dojo-http-server"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.watchdog.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("dojo API listening", zap.String("addr", httpSrv.Addr), zap.String("version", version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}
		return shutdownTelemetry(shutdownCtx)
	})
	return g.Wait()
}
