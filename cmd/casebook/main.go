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

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/casebook/internal/adapter/fsm"
	oteladapter "github.com/neomorfeo/casebook/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/casebook/internal/adapter/river"
	"github.com/neomorfeo/casebook/internal/adapter/sqlite"
	"github.com/neomorfeo/casebook/internal/app"
	"github.com/neomorfeo/casebook/internal/config"
	"github.com/neomorfeo/casebook/internal/domain"

	handler "github.com/neomorfeo/casebook/internal/adapter/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("casebook stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	providers, err := oteladapter.Setup(ctx, oteladapter.Config{
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
		Environment:    cfg.OTel.Environment,
		Exporter:       cfg.OTel.Exporter,
		Insecure:       cfg.OTel.Insecure(),
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// --- Lifecycle tables ---
	renderer := fsm.NewRenderer()
	if err := renderer.Verify(ctx, domain.DefaultEngine); err != nil {
		return fmt.Errorf("lifecycle tables disagree: %w", err)
	}

	// --- Adapters (out) ---
	db, err := oteladapter.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	repo := oteladapter.NewTracingRecordRepository(sqlite.NewRecordRepository(db))
	ledger := oteladapter.NewTracingLedger(
		sqlite.NewLedger(db, sqlite.WithReservationTTL(cfg.ReservationTTL)),
	)

	// --- Application ---
	cases := app.NewCaseService(repo, ledger, domain.DefaultEngine,
		app.WithActionTimeout(cfg.DispatchTimeout),
	)

	metrics, err := oteladapter.NewDispatchMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	dispatcher := app.NewDispatcher(ledger, cases,
		app.WithDispatchTimeout(cfg.DispatchTimeout),
		app.WithObserver(metrics),
		app.WithLogger(logger),
	)

	// --- Transport ---
	client, err := riveradapter.Setup(ctx, db, dispatcher, riveradapter.Config{
		WorkersPerTopic: cfg.TopicWorkers,
		MaxAttempts:     cfg.MaxAttempts,
		// The job deadline also covers the ledger calls around the action.
		JobTimeout: 2 * cfg.DispatchTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	publisher := oteladapter.NewTracingPublisher(riveradapter.NewPublisher(client))

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(cfg.OTel.ServiceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig("casebook", cfg.OTel.ServiceVersion))
	handler.Register(api, cases, publisher, renderer)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// River is stopped explicitly during shutdown so in-flight jobs finish.
	if err := client.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("casebook listening", "port", cfg.Port, "docs", "http://localhost:"+cfg.Port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := client.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("river stop: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("stopped")
	return nil
}
