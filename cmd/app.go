package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"house_screens/internal/config"
	"house_screens/internal/events"
	"house_screens/internal/gateway"
	"house_screens/internal/handlers"
	"house_screens/internal/logger"
	"house_screens/internal/models"
	"house_screens/internal/repository"
	"house_screens/internal/repository/db"
	"house_screens/internal/server"
	"house_screens/internal/service"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	// Headroom over the reconcile deadline for writing the response.
	writeTimeoutSlack = 10 * time.Second
)

// app holds everything both subcommands need.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	db       *sql.DB
	bus      *events.Bus
	services *service.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.Get(cfg.Log.Level)

	conn, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.NewHTTPGateway(cfg.Backend.BaseURL,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		gateway.WithCacheTTL(cfg.Backend.CacheTTL),
		gateway.WithRateLimit(cfg.Backend.RatePerSecond, cfg.Backend.Burst),
		gateway.WithSession(models.Session{Token: cfg.Backend.SessionToken}),
		gateway.WithLogger(log.Component("gateway")),
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	bus := events.NewBus()
	services := service.NewService(service.Deps{
		Repos:   repository.NewRepository(conn, cfg.Device.ID),
		Gateway: gw,
		Bus:     bus,
		Config:  cfg,
		Log:     log,
	})

	return &app{cfg: cfg, log: log, db: conn, bus: bus, services: services}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Errorw("failed to close sqlite", "err", err)
	}
	_ = a.log.Sync()
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg config.Config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		path = "app.db"
	}
	return db.InitDB(path)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	// context for background goroutines
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	triggersDone := make(chan struct{})
	go func() {
		defer close(triggersDone)
		a.services.Triggers.Run(ctx)
	}()

	srv := &server.Server{WriteTimeout: a.cfg.Reconcile.Deadline + writeTimeoutSlack}
	apiHandler := handlers.NewHandler(a.services, a.bus, a.log.Component("http"))
	runHTTPServer(srv, a.cfg.Port, apiHandler, a.log)

	waitForShutdown(cancel, srv, a.log)
	<-triggersDone
	return nil
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		log.Infow("http server listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit

	log.Infow("shutting down server...")

	// stop triggers and any in-flight run
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}

func runReconcileOnce(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, runErr := a.services.Reconcile(ctx, forceReconcile)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return runErr
}
