package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/config"
	"github.com/hlebuschek/printer-inventory-django-sub001/common/logger"
	"github.com/hlebuschek/printer-inventory-django-sub001/common/ws"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/poller"
	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

// app holds the long-lived components shared by the HTTP API and the CLI.
type app struct {
	cfg       *Config
	store     storage.Store
	svc       *poller.Service
	hub       *ws.Hub
	scheduler *poller.Scheduler
	logs      *logger.Logger

	// ctx is cancelled by close; background work started by handlers uses it.
	ctx    context.Context
	cancel context.CancelFunc
}

// resolvePaths fills in data-directory defaults for the SQLite file and the
// agent output directory.
func resolvePaths(cfg *Config, isService bool) error {
	needDB := !isPostgres(cfg.Database.EffectiveDriver()) && cfg.Database.Path == ""
	if !needDB && cfg.Poller.OutputDir != "" {
		return nil
	}
	dataDir, err := config.GetDataDirectory(isService)
	if err != nil {
		return err
	}
	if needDB {
		cfg.Database.Path = filepath.Join(dataDir, storage.DefaultSQLiteFile)
	}
	if cfg.Poller.OutputDir == "" {
		cfg.Poller.OutputDir = filepath.Join(dataDir, "inventory_output")
	}
	return nil
}

func isPostgres(driver string) bool {
	switch driver {
	case "postgres", "postgresql", "pgx":
		return true
	}
	return false
}

// newApp opens the store and builds the inventory service. Nothing is
// started; call start for background work.
func newApp(cfg *Config, isService bool) (*app, error) {
	if err := resolvePaths(cfg, isService); err != nil {
		return nil, fmt.Errorf("resolve data paths: %w", err)
	}

	store, err := storage.NewStore(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var p poller.Poller
	if cfg.Poller.GLPIPath != "" {
		agent := poller.NewGLPIAgent(cfg.Poller.GLPIPath, cfg.Poller.OutputDir,
			time.Duration(cfg.Poller.CommandTimeoutSeconds)*time.Second)
		agent.Codepage = cfg.Poller.Codepage
		p = agent
	} else {
		logWarn("No GLPI agent configured; network polls will fail until poller.glpi_path is set")
	}

	svc := poller.NewService(store, p, poller.Config{
		Workers:         cfg.Poller.Workers,
		QueueSize:       cfg.Poller.QueueSize,
		MinAgentVersion: cfg.Poller.MinAgentVersion,
	})
	if cfg.Poller.SNMPPreflight {
		svc.SetProber(poller.NewSNMPProbe(time.Duration(cfg.Poller.SNMPTimeoutSeconds) * time.Second))
	}

	hub := ws.NewHub()
	hub.OnDrop = func(clientID string, msg ws.Message) {
		logDebug("Dropped websocket event for slow client", "client", clientID, "type", msg.Type)
	}
	svc.SetPublisher(hub)

	policy := storage.PrunePolicy{KeepDays: cfg.Retention.KeepDays, ArchiveDays: cfg.Retention.ArchiveDays}
	sched := poller.NewScheduler(svc, time.Duration(cfg.Poller.PollIntervalMinutes)*time.Minute, store, policy)

	ctx, cancel := context.WithCancel(context.Background())
	return &app{
		cfg:       cfg,
		store:     store,
		svc:       svc,
		hub:       hub,
		scheduler: sched,
		logs:      serverLogger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (a *app) start() {
	a.svc.Start()
	a.scheduler.Start()
}

func (a *app) close() {
	a.cancel()
	a.scheduler.Stop()
	a.svc.Stop()
	a.hub.Stop()
	if err := a.store.Close(); err != nil {
		logWarn("Failed to close database", "error", err)
	}
}

// runServer serves the API until ctx is cancelled.
func runServer(ctx context.Context, cfg *Config, isService bool) error {
	a, err := newApp(cfg, isService)
	if err != nil {
		return err
	}
	defer a.close()
	a.start()

	addr := net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.HTTPPort))
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logInfo("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logInfo("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logWarn("HTTP shutdown did not complete", "error", err)
	}
	return nil
}
