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

	"github.com/DoyleJ11/tetris-together/internal/config"
	"github.com/DoyleJ11/tetris-together/internal/httpapi"
	"github.com/DoyleJ11/tetris-together/internal/hub"
	"github.com/DoyleJ11/tetris-together/internal/logging"
	"github.com/DoyleJ11/tetris-together/internal/store"
	"github.com/DoyleJ11/tetris-together/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	h := hub.NewHub(hubCtx, st, log, hub.WithJoinTimeout(cfg.JoinTimeout))

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, ws.Options{
		IdleTimeout:    cfg.WSIdleTimeout,
		ReadLimit:      cfg.WSReadLimit,
		OriginPatterns: cfg.OriginPatterns,
	}, log)
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)

		stopHub()
		<-h.Done()
		return multierr.Combine(err, st.Close())
	})
	return g.Wait()
}

func openStore(cfg config.Server, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("no database configured, shared values are kept in memory")
		return store.NewMemory(), nil
	}
	return store.OpenPostgres(cfg.DatabaseURL, log)
}
