package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/admin"
	"github.com/DoyleJ11/prize-draw-backend/internal/config"
	"github.com/DoyleJ11/prize-draw-backend/internal/httpapi"
	"github.com/DoyleJ11/prize-draw-backend/internal/logging"
	"github.com/DoyleJ11/prize-draw-backend/internal/registry"
	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/DoyleJ11/prize-draw-backend/internal/storage"
	"github.com/DoyleJ11/prize-draw-backend/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "prize-draw: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	gate, err := admin.NewGate(cfg.AdminSecret, cfg.CapabilityTTL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Build the registry and inject it into the router
	reg := registry.New(ctx, store, session.Options{
		RevealDelay:         cfg.RevealDelay,
		Gate:                gate,
		Logger:              log.Named("session"),
		TestAccountPrefixes: cfg.TestAccountPrefixes,
	})
	// Runs before store.Close: Shutdown returns only after every session
	// has stopped persisting.
	defer reg.Shutdown()

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Sessions: reg,
		Events:   store,
		Gate:     gate,
		Logger:   log,
		WS: ws.Options{
			OriginPatterns: cfg.AllowedOrigins,
			OutboxSize:     cfg.OutboxSize,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Websocket connections are hijacked and ignored by Shutdown; tie
		// them to the signal context instead.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Duration("reveal_delay", cfg.RevealDelay))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		reg.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory storage")
		return storage.NewMemory(), nil
	}
	store, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info("using postgres storage")
	return store, nil
}
