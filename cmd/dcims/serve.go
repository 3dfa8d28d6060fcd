package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphummel/dcims/internal/activity"
	"github.com/tphummel/dcims/internal/config"
	"github.com/tphummel/dcims/internal/db"
	"github.com/tphummel/dcims/internal/handlers"
	"github.com/tphummel/dcims/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the DCIMS HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.LoadServer(envFile)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// service is a fully wired server and the resources it owns.
type service struct {
	srv   *http.Server
	db    *db.DB
	close func()
}

// newService opens the database and wires the handler stack described by cfg.
func newService(cfg *config.Server, logger *slog.Logger) (*service, error) {
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	h := handlers.New(database)
	h.Strict = cfg.StrictFilter
	h.MaxBodyBytes = cfg.MaxBodyBytes
	h.MaxWidgetRows = cfg.MaxWidgetRows
	h.Version = version
	h.Commit = commit
	unsubscribe := activity.NewRecorder(database, h.Clock, logger).Subscribe(h.Bus)

	router := handlers.NewRouter(h, handlers.RouterConfig{
		AnonKey:     cfg.AnonKey,
		JWTSecret:   []byte(cfg.JWTSecret),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
		Metrics:     metrics.Handler(reg),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &service{
		srv: srv,
		db:  database,
		close: func() {
			unsubscribe()
			if err := database.Close(); err != nil {
				logger.Error("database close error", "error", err)
			}
		},
	}, nil
}

// serve runs the API until ctx is cancelled, then shuts down gracefully.
func serve(ctx context.Context, cfg *config.Server, logger *slog.Logger) error {
	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", svc.srv.Addr, "version", version, "strict_filters", cfg.StrictFilter)
		if err := svc.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
