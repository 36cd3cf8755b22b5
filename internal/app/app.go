package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/browser"
	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/handlers"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/scanner"
	"github.com/ternarybob/seoscan/internal/services/events"
	"github.com/ternarybob/seoscan/internal/storage/sqlite"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Scan engine
	EventService     interfaces.TaskEventService
	BrowserWorker    interfaces.BrowserWorker
	Fetcher          *scanner.Fetcher
	Pipeline         *scanner.Pipeline
	Crawler          *scanner.Crawler
	Executor         *scanner.Executor
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	ScanHandler     *handlers.ScanHandler
	ProgressHandler *handlers.ProgressHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Bool("browser_enabled", app.BrowserWorker != nil).
		Int("max_concurrency", cfg.Scheduler.MaxConcurrency).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the sqlite storage layer
func (a *App) initDatabase() error {
	storageManager, err := sqlite.NewManager(a.Logger, a.Config.Storage.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Info().
		Str("database_url", a.Config.Storage.DatabaseURL).
		Msg("Storage initialized")
	return nil
}

// initServices wires the scan engine: event bus, browser worker, page
// pipeline, site crawler, executor and scheduler.
func (a *App) initServices() error {
	a.EventService = events.NewTaskEventService(a.StorageManager.TaskEventStorage(), a.Logger)

	// The browser is optional. A failed launch degrades the service to
	// static fetching instead of refusing to start.
	if a.Config.Scanner.UseBrowser {
		worker, err := browser.NewWorker(a.Config.Browser, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Browser launch failed, falling back to static fetching")
		} else {
			a.BrowserWorker = worker
		}
	}

	a.Fetcher = scanner.NewFetcher(a.Config.Scanner, a.Logger)
	a.Pipeline = scanner.NewPipeline(a.StorageManager, a.Fetcher, a.BrowserWorker, a.Config.Scanner, a.Logger)
	a.Crawler = scanner.NewCrawler(a.Pipeline, a.Fetcher, a.Config.Scanner, a.Logger)
	a.Executor = scanner.NewExecutor(a.StorageManager, a.EventService, a.Pipeline, a.Crawler, a.Config.Scanner, a.Logger)
	a.SchedulerService = scanner.NewScheduler(a.StorageManager, a.EventService, a.Executor, a.Config.Scheduler, a.Logger)

	return nil
}

// initHandlers creates the HTTP handler set
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.ScanHandler = handlers.NewScanHandler(a.StorageManager, a.SchedulerService, a.Logger)
	a.ProgressHandler = handlers.NewProgressHandler(a.EventService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
}

// Start begins background work: queue recovery and draining
func (a *App) Start(ctx context.Context) error {
	if err := a.SchedulerService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close shuts down components in reverse dependency order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.SchedulerService.Stop(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		} else {
			a.Logger.Info().Msg("Scheduler stopped")
		}
	}

	if a.BrowserWorker != nil {
		if err := a.BrowserWorker.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close browser worker")
		} else {
			a.Logger.Info().Msg("Browser worker closed")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event bus")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
