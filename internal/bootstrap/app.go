// Package bootstrap wires configuration, storage, the worker, and the
// HTTP server into one application context.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"podcast-transcriber/internal/blob"
	"podcast-transcriber/internal/config"
	"podcast-transcriber/internal/jobs"
	"podcast-transcriber/internal/ledger"
	"podcast-transcriber/internal/pipeline"
	"podcast-transcriber/internal/server"
	"podcast-transcriber/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the service.
type App struct {
	cfg         config.Config
	store       *ledger.Store
	blobs       *blob.Store
	queue       *worker.Queue
	manager     *jobs.Manager
	coordinator *worker.Coordinator
	echo        *echo.Echo
	lookPath    func(string) (string, error)
}

// New constructs the application from configuration. Construction
// opens the ledger; Run starts the worker and the server.
func New(cfg config.Config) (*App, error) {
	store, err := ledger.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	blobs, err := blob.NewStore(filepath.Join(cfg.DataDir, "jobs"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	engine := pipeline.NewExecEngine(cfg.WhisperXBin, pipeline.Settings{
		Device:      cfg.Device,
		ComputeType: cfg.ComputeType,
		Language:    cfg.Language,
		BatchSize:   cfg.BatchSize,
		HFToken:     cfg.HFToken,
	})

	queue := worker.NewQueue(cfg.QueueSize)
	manager := jobs.NewManager(store, blobs, queue)
	coordinator := worker.NewCoordinator(queue, manager, engine, blobs)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	server.New(manager).Register(e)

	return &App{
		cfg:         cfg,
		store:       store,
		blobs:       blobs,
		queue:       queue,
		manager:     manager,
		coordinator: coordinator,
		echo:        e,
		lookPath:    exec.LookPath,
	}, nil
}

// Manager exposes the lifecycle manager, mainly for tests.
func (a *App) Manager() *jobs.Manager {
	return a.manager
}

// Run serves until ctx is cancelled, then shuts down the server,
// stops the worker, and closes the ledger.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.lookPath(a.cfg.WhisperXBin); err != nil {
		log.Printf("warning: whisperx driver %q not found in PATH; jobs will fail until it is installed", a.cfg.WhisperXBin)
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.coordinator.Run(workerCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.echo.Start(a.cfg.Addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}

	stopWorker()
	<-workerDone

	if err := a.store.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close ledger: %w", err)
	}
	return runErr
}

// InitDB creates the database schema and exits without serving.
func InitDB(cfg config.Config) error {
	store, err := ledger.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	return store.Close()
}
