// Package server wires the reference REST server: storage backend, record
// service, push hub and HTTP router, with graceful shutdown on signals.
package server

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

	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/server/api"
	"github.com/dmitrijs2005/silosync/internal/server/config"
	"github.com/dmitrijs2005/silosync/internal/server/hub"
	"github.com/dmitrijs2005/silosync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/silosync/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	hub     *hub.Hub
	handler http.Handler
}

// NewApp keeps records in memory when no DSN is configured and in
// PostgreSQL otherwise.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	var repos repomanager.RepositoryManager
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, records are kept in memory")
		repos = repomanager.NewInMemoryRepositoryManager()
	} else {
		m, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		repos = m
	}

	h := hub.New(logger)
	svc := services.NewRecordService(repos, h)
	handler := api.NewRouter(svc, h, logger, api.Options{
		RequireAuth: c.RequireAuth,
		SecretKey:   []byte(c.SecretKey),
	})

	return &App{config: c, logger: logger, repos: repos, hub: h, handler: handler}, nil
}

// Handler is the root HTTP handler.
func (app *App) Handler() http.Handler {
	return app.handler
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.config.ListenAddr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (app *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "Starting HTTP server", "address", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	app.logger.Info(ctx, "Stopping HTTP server...")
	app.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}
	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "failed to close storage", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
