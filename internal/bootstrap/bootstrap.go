package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/config"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/ports"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/usecase"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/artifact"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/tabular"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/observability/logging"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Schema domain.Schema
	Logger *slog.Logger

	Metrics *metrics.StageMetrics
	Runs    ports.RunRepository
	// Queue is nil unless EVENTS_ENABLED is set.
	Queue *nats.Queue

	TransformUC ports.DataTransformer
	IngestUC    ports.DataIngestor

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.New(os.Stdout, service, cfg.LogLevel, cfg.LogFormat)

	schema, err := config.LoadSchema(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	app := &App{
		Config:  cfg,
		Schema:  schema,
		Logger:  logger,
		Metrics: metrics.NewStageMetrics(service),
	}

	storage, err := localfs.New(cfg.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("init artifact storage: %w", err)
	}
	observe := resilience.WithObserver(app.Metrics)
	publishExec := resilience.NewExecutor(resilience.DefaultConfig().WithOverrides(cfg.RetryMaxAttempts, cfg.BreakerEnabled), logger, observe)
	exportExec := resilience.NewExecutor(resilience.ExportConfig().WithOverrides(cfg.RetryMaxAttempts, cfg.BreakerEnabled), logger, observe)

	provider := postgres.NewProvider(cfg.PostgresDSN, logger)
	app.closeFns = append(app.closeFns, func() { _ = provider.Close() })

	var runs ports.RunRepository = noopRunRepository{}
	if cfg.RunsEnabled {
		db, err := provider.DB()
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		runs = repo
	}
	app.Runs = runs

	var events ports.EventPublisher = noopEventPublisher{}
	if cfg.EventsEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
			ValidationCompleted:     cfg.NATSSubjectValidated,
			TransformationCompleted: cfg.NATSSubjectTransformed,
		}, nats.Options{
			ResilienceExecutor: publishExec,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
		events = queue
	}

	app.TransformUC = usecase.NewTransformDataUseCase(
		schema,
		usecase.TransformOptions{
			SMOTENeighbors: cfg.SMOTENeighbors,
			ENNNeighbors:   cfg.ENNNeighbors,
			BalanceSeed:    cfg.BalanceSeed,
			TimestampDirs:  cfg.RunTimestampDir,
		},
		tabular.NewReader(),
		artifact.NewStore(storage),
		runs,
		events,
		app.Metrics,
		logger,
	)
	app.IngestUC = usecase.NewIngestDataUseCase(
		postgres.NewRecordSource(provider, exportExec),
		tabular.NewWriter(),
		usecase.IngestOptions{
			ArtifactDir:   cfg.ArtifactDir,
			SplitRatio:    cfg.TrainTestSplitRatio,
			SplitSeed:     cfg.SplitSeed,
			TimestampDirs: cfg.RunTimestampDir,
		},
		logger,
	)
	return app, nil
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

type noopRunRepository struct{}

func (noopRunRepository) Create(context.Context, *domain.TransformationRun) error { return nil }

func (noopRunRepository) GetByID(_ context.Context, id string) (*domain.TransformationRun, error) {
	return nil, domain.WrapError(domain.ErrRunNotFound, "get run", errors.New("run journal is disabled: "+id))
}

func (noopRunRepository) UpdateStatus(context.Context, string, domain.RunStatus, string) error {
	return nil
}

func (noopRunRepository) SaveArtifact(context.Context, string, domain.DataTransformationArtifact) error {
	return nil
}

type noopEventPublisher struct{}

func (noopEventPublisher) PublishTransformationCompleted(context.Context, domain.TransformationCompleted) error {
	return nil
}
