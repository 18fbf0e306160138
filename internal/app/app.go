// -----------------------------------------------------------------------
// App - dependency wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/connectors/email"
	"github.com/ternarybob/attesto/internal/handlers"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/logs"
	"github.com/ternarybob/attesto/internal/matcher"
	"github.com/ternarybob/attesto/internal/pipeline"
	"github.com/ternarybob/attesto/internal/queue"
	"github.com/ternarybob/attesto/internal/services/events"
	"github.com/ternarybob/attesto/internal/services/janitor"
	"github.com/ternarybob/attesto/internal/services/llm"
	"github.com/ternarybob/attesto/internal/services/report"
	"github.com/ternarybob/attesto/internal/services/tender"
	badgerstore "github.com/ternarybob/attesto/internal/storage/badger"
)

// App holds every wired service. Construction order matters: storage and
// the event bus come up first, the log consumer hooks into arbor before
// anything chatty starts, and the scheduler starts last.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	LogConsumer    *logs.Consumer

	LLMService   interfaces.LLMService
	Orchestrator *pipeline.Orchestrator
	Matcher      *matcher.Matcher
	Tender       *tender.Service
	Reports      *report.Service

	Scheduler *queue.Scheduler
	Janitor   *janitor.Service
	Email     *email.Connector

	UploadHandler      *handlers.UploadHandler
	JobHandler         *handlers.JobHandler
	AttestationHandler *handlers.AttestationHandler
	AnalysisHandler    *handlers.AnalysisHandler
	WSHandler          *handlers.WebSocketHandler
}

// New wires the application. Nothing processes jobs until Start is called.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	app.EventService = events.NewService(logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger, &cfg.WebSocket)

	// The consumer must own the arbor channel before job loggers are derived,
	// otherwise early pipeline logs never reach the UI.
	app.LogConsumer = logs.NewConsumer(app.EventService, logger, cfg.Logging.MinEventLevel)
	app.LogConsumer.Start()
	logger.SetChannel("context", app.LogConsumer.Channel())

	llmService, err := llm.NewLLMService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	app.LLMService = llmService

	app.Orchestrator = pipeline.BuildOrchestrator(logger, &cfg.Pipeline, llmService)
	app.Matcher = matcher.New(logger, &cfg.Matcher)
	app.Tender = tender.NewService(logger, llmService)
	app.Reports = report.NewService(logger)

	processor := queue.NewDocumentProcessor(logger, app.Orchestrator, storageManager, llmService, app.Matcher)
	app.Scheduler = queue.NewScheduler(logger, &cfg.Queue, storageManager.JobStorage(), processor, app.EventService)

	app.Janitor = janitor.NewService(logger, &cfg.Janitor, storageManager.JobStorage(), cfg.Pipeline.TempDir)
	app.Email = email.NewConnector(logger, &cfg.Email, cfg.Upload.UploadDir, cfg.Queue.MaxAttempts, storageManager.JobStorage(), storageManager.UserStorage(), storageManager.KeyValueStorage())

	app.UploadHandler = handlers.NewUploadHandler(logger, &cfg.Upload, cfg.Queue.MaxAttempts, storageManager.JobStorage(), app.EventService)
	app.JobHandler = handlers.NewJobHandler(logger, storageManager.JobStorage(), app.EventService)
	app.AttestationHandler = handlers.NewAttestationHandler(logger, storageManager.AttestationStorage())
	app.AnalysisHandler = handlers.NewAnalysisHandler(logger, storageManager.AnalysisStorage(), storageManager.AttestationStorage(), app.Matcher, app.Reports, app.Tender)

	return app, nil
}

// Start brings up the background services.
func (a *App) Start() error {
	if err := a.WSHandler.Start(); err != nil {
		return fmt.Errorf("failed to start websocket broadcaster: %w", err)
	}

	a.Scheduler.Start()
	a.Logger.Debug().Msg("Job scheduler started")

	if err := a.Janitor.Start(); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}

	a.Email.Start()

	a.Logger.Info().
		Str("llm_provider", a.LLMService.ProviderName()).
		Int("workers", a.Config.Queue.MaxConcurrent).
		Bool("email_intake", a.Config.Email.Enabled).
		Msg("Application initialization complete")
	return nil
}

// Close stops background services in reverse start order, then storage.
func (a *App) Close() error {
	a.Email.Stop()
	a.Janitor.Stop()
	a.Scheduler.Stop()
	a.WSHandler.Stop()
	a.LogConsumer.Stop()
	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close event bus")
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close storage")
			return err
		}
	}
	a.Logger.Info().Msg("Application stopped")
	return nil
}

// RecoverInterrupted requeues jobs left processing by an unclean shutdown.
// Called once at startup before the scheduler claims anything.
func (a *App) RecoverInterrupted(ctx context.Context) {
	recovered, exhausted, err := a.Janitor.RecoverInterrupted(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Startup job recovery failed")
		return
	}
	if recovered > 0 || exhausted > 0 {
		a.Logger.Info().
			Int("requeued", recovered).
			Int("exhausted", exhausted).
			Msg("Recovered jobs interrupted by previous shutdown")
	}
}
