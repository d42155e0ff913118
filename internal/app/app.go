package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/handlers"
	"github.com/ternarybob/replydesk/internal/interfaces"
	"github.com/ternarybob/replydesk/internal/services/browser"
	"github.com/ternarybob/replydesk/internal/services/naver"
	"github.com/ternarybob/replydesk/internal/services/tasks"
	"github.com/ternarybob/replydesk/internal/storage"
)

// cachePruneInterval is how often expired reviews and stale progress are dropped
const cachePruneInterval = time.Minute

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Browser automation
	BrowserFactory *browser.Factory
	BrowserPool    *browser.Pool
	NaverService   *naver.Service

	// Background work
	Executor    *tasks.Executor
	TaskService *tasks.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	NaverHandler   *handlers.NaverHandler
	SessionHandler *handlers.SessionHandler
	TaskHandler    *handlers.TaskHandler
	ProgressSocket *handlers.ProgressSocketHandler
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
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("session_backend", cfg.Storage.Sessions.Backend).
		Bool("persistent_browsers", cfg.Browser.Persistent).
		Bool("headless", cfg.Browser.Headless).
		Int("task_workers", cfg.Tasks.Concurrency).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the document store and the session backend
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager

	a.Logger.Info().
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires the browser pool, the naver service and the task queue
func (a *App) initServices() error {
	sessions := a.StorageManager.SessionStore()
	browserConfig := a.Config.Browser

	// 1. Browser factory and pool
	a.BrowserFactory = browser.NewFactory(browserConfig, sessions, a.Logger)
	create := func(ctx context.Context, userID string) (browser.Handle, error) {
		driver, err := a.BrowserFactory.Create(ctx, browserConfig.Headless, userID)
		if err != nil {
			return nil, err
		}
		return driver, nil
	}
	a.BrowserPool = browser.NewPool(create, browserConfig.Persistent,
		common.ParseDuration(browserConfig.IdleTimeout, 30*time.Minute), a.Logger)
	if browserConfig.Persistent {
		if err := a.BrowserPool.StartSweeper(common.ParseDuration(browserConfig.SweepInterval, time.Minute)); err != nil {
			return err
		}
	}

	// 2. Naver service over pooled browsers
	browsers := naver.NewPoolBrowsers(a.BrowserPool, naver.DefaultSelectors, a.Logger)
	a.NaverService = naver.NewService(a.Config.Naver, sessions, browsers, a.BrowserPool, a.Logger)
	if err := a.NaverService.StartMaintenance(cachePruneInterval); err != nil {
		return err
	}

	// 3. Task executor and lifecycle
	a.Executor = tasks.NewExecutor(a.Config.Tasks.Concurrency, a.Logger)
	a.Executor.Start()
	a.TaskService = tasks.NewService(a.StorageManager.TaskStorage(), a.Executor, a.Logger)
	tasks.RegisterReviewHandlers(a.TaskService, a.NaverService)
	if _, err := a.TaskService.RecoverStale(context.Background()); err != nil {
		return fmt.Errorf("failed to recover unfinished tasks: %w", err)
	}

	if schedule := a.Config.Tasks.CleanupSchedule; schedule != "" {
		retention := common.ParseDuration(a.Config.Tasks.Retention, 7*24*time.Hour)
		if err := a.TaskService.StartCleanup(schedule, retention); err != nil {
			return err
		}
	}

	a.Logger.Info().Msg("Services initialized")
	return nil
}

// initHandlers builds the HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.BrowserPool, a.Logger)
	a.NaverHandler = handlers.NewNaverHandler(a.NaverService, a.Executor, a.TaskService, a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(a.NaverService, a.Logger)
	a.TaskHandler = handlers.NewTaskHandler(a.TaskService, a.NaverService, a.Logger)
	a.ProgressSocket = handlers.NewProgressSocketHandler(a.NaverService, time.Second, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Close stops background work, closes browsers and the database
func (a *App) Close() error {
	if a.TaskService != nil {
		a.TaskService.Stop()
	}

	if a.Executor != nil {
		a.Executor.Stop()
	}

	if a.NaverService != nil {
		a.NaverService.Stop()
	}

	if a.BrowserPool != nil {
		a.BrowserPool.Shutdown()
		a.Logger.Info().Msg("Browser pool shut down")
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
