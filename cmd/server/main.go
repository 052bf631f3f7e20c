// Package main is the entry point for the stockpile GRN intake server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"stockpile/internal/config"
	"stockpile/internal/domain/grn"
	v1 "stockpile/internal/infrastructure/http/v1"
	"stockpile/internal/infrastructure/metrics"
	"stockpile/pkg/logger"
)

func main() {
	_, _ = maxprocs.Set()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Infow("starting stockpile server", "env", cfg.Env, "storage", cfg.Storage)

	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open storage", "storage", cfg.Storage, "error", err)
	}
	defer store.Close()

	service := grn.NewService(grn.ServiceConfig{
		Drafts:     store.Drafts,
		History:    store.History,
		References: store.References,
		Journal:    store.Journal,
		TxManager:  store.TxManager,
	})
	registerHooks(service, log)

	routerCfg := v1.RouterConfig{
		GRNService: service,
		Logger:     log,
		Storage:    cfg.Storage,
		DB:         store.DB,
		Debug:      cfg.Development(),
	}
	if cfg.MetricsEnabled {
		m := metrics.New("stockpile")
		m.Register(service.Hooks())
		routerCfg.Metrics = m
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	if store.Pool != nil {
		go reportPoolStats(ctx, store, time.Minute)
	}

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// registerHooks attaches post-commit observers to the intake workflow.
func registerHooks(service *grn.Service, log *logger.Logger) {
	hooks := log.WithComponent("grn-hooks")

	service.Hooks().On(grn.AfterSeal, func(ctx context.Context, d *grn.Draft) error {
		if len(d.Cartons) == 0 {
			return nil
		}
		hooks.WithContext(ctx).Debugw("carton sealed",
			logger.FieldDraftID, d.ID,
			logger.FieldCartonBarcode, d.Cartons[0].Barcode,
			"cartons", len(d.Cartons),
		)
		return nil
	})

	service.Hooks().On(grn.AfterSubmit, func(ctx context.Context, d *grn.Draft) error {
		hooks.WithContext(ctx).Infow("goods receipt ready",
			logger.FieldDraftID, d.ID,
			logger.FieldReceiptNumber, *d.ReceiptNumber,
			"ref_id", d.RefID,
			"pairs", d.PairCount(),
		)
		return nil
	})
}
