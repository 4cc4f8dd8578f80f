package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/feature"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/ports"
)

const (
	runDirTimeFormat = "01_02_2006_15_04_05"

	failureWriteTimeout = 5 * time.Second
)

type TransformOptions struct {
	SMOTENeighbors int
	ENNNeighbors   int
	BalanceSeed    uint64
	// TimestampDirs names the run directory after the start time instead of the run id.
	TimestampDirs bool
}

type TransformDataUseCase struct {
	schema   domain.Schema
	opts     TransformOptions
	reader   ports.FrameReader
	sink     ports.ArtifactSink
	runs     ports.RunRepository
	events   ports.EventPublisher
	observer ports.StageObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewTransformDataUseCase(
	schema domain.Schema,
	opts TransformOptions,
	reader ports.FrameReader,
	sink ports.ArtifactSink,
	runs ports.RunRepository,
	events ports.EventPublisher,
	observer ports.StageObserver,
	logger *slog.Logger,
) *TransformDataUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransformDataUseCase{
		schema:   schema,
		opts:     opts,
		reader:   reader,
		sink:     sink,
		runs:     runs,
		events:   events,
		observer: observer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// split is one dataset flowing through the stage.
type split struct {
	name     string
	path     string
	frame    *domain.Frame
	features *domain.Frame
	labels   []float64
	plan     *feature.ScalingPlan
	final    *mat.Dense
	summary  domain.SplitSummary
}

func (uc *TransformDataUseCase) Transform(ctx context.Context, req domain.TransformationRequest) (*domain.DataTransformationArtifact, error) {
	if !req.Validation.ValidationStatus {
		return nil, &domain.ValidationError{Message: req.Validation.Message}
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	started := uc.now()
	uc.observer.StartRun()
	logger := uc.logger.With("run_id", req.RunID)
	logger.Info("data transformation started",
		"train_file", req.Ingestion.TrainFilePath,
		"test_file", req.Ingestion.TestFilePath,
	)

	artifact, err := uc.run(ctx, req, started, logger)
	uc.observer.FinishRun(uc.now().Sub(started), err)
	if err != nil {
		logger.Error("data transformation failed", "error", err)
		return nil, err
	}
	logger.Info("data transformation completed",
		"object_file", artifact.TransformedObjectFilePath,
		"train_file", artifact.TransformedTrainFilePath,
		"test_file", artifact.TransformedTestFilePath,
	)
	return artifact, nil
}

func (uc *TransformDataUseCase) run(
	ctx context.Context,
	req domain.TransformationRequest,
	started time.Time,
	logger *slog.Logger,
) (*domain.DataTransformationArtifact, error) {
	if err := uc.createRun(ctx, req, started); err != nil {
		return nil, err
	}

	artifact, err := uc.transformPipeline(ctx, req, started, logger)
	if err != nil {
		if failErr := uc.markFailed(ctx, req.RunID, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	if err := uc.runs.SaveArtifact(ctx, req.RunID, *artifact); err != nil {
		return nil, fmt.Errorf("save run artifact: %w", err)
	}
	if err := uc.markStatus(ctx, req.RunID, domain.RunReady, ""); err != nil {
		return nil, fmt.Errorf("set status=ready: %w", err)
	}

	event := domain.TransformationCompleted{RunID: req.RunID, Artifact: *artifact, CompletedAt: uc.now()}
	if err := uc.events.PublishTransformationCompleted(ctx, event); err != nil {
		return nil, fmt.Errorf("publish transformation event: %w", err)
	}
	return artifact, nil
}

func (uc *TransformDataUseCase) transformPipeline(
	ctx context.Context,
	req domain.TransformationRequest,
	started time.Time,
	logger *slog.Logger,
) (*domain.DataTransformationArtifact, error) {
	splits := []*split{
		{name: "train", path: req.Ingestion.TrainFilePath},
		{name: "test", path: req.Ingestion.TestFilePath},
	}
	sequence := feature.NewColumnSequence(uc.schema)
	balancer := feature.NewBalancer(uc.opts.SMOTENeighbors, uc.opts.ENNNeighbors, uc.opts.BalanceSeed)

	for _, s := range splits {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s split: %w", s.name, err)
		}
		if err := uc.load(ctx, s); err != nil {
			return nil, err
		}
		if err := uc.encode(s, sequence); err != nil {
			return nil, err
		}
		scaled, err := uc.scale(s)
		if err != nil {
			return nil, err
		}
		if err := uc.rebalance(ctx, s, balancer, scaled); err != nil {
			return nil, err
		}
		logger.Info("split transformed",
			"split", s.name,
			"rows_in", s.summary.RowsIn,
			"rows_out", s.summary.RowsOut,
			"columns", len(s.plan.OutputColumns()),
		)
	}

	return uc.persist(ctx, req.RunID, started, splits[0], splits[1])
}

func (uc *TransformDataUseCase) load(ctx context.Context, s *split) error {
	frame, err := uc.reader.ReadFrame(ctx, s.path)
	if err != nil {
		return fmt.Errorf("read %s frame: %w", s.name, err)
	}
	s.frame = frame
	s.summary = domain.SplitSummary{Split: s.name, RowsIn: frame.Rows()}
	uc.observer.ObserveRows(s.name, "input", frame.Rows())
	return nil
}

func (uc *TransformDataUseCase) encode(s *split, sequence *feature.Sequence) error {
	features, labels, err := feature.SplitTarget(s.frame, uc.schema.TargetColumn)
	if err != nil {
		return fmt.Errorf("split %s target: %w", s.name, err)
	}
	encoded, err := sequence.Apply(features)
	if err != nil {
		return fmt.Errorf("encode %s features: %w", s.name, err)
	}
	s.features = encoded
	s.labels = labels
	s.summary.LabelCountsIn = labelSummary(labels)
	return nil
}

// scale fits a fresh plan on the split itself. Test statistics are never
// borrowed from train.
func (uc *TransformDataUseCase) scale(s *split) (*mat.Dense, error) {
	plan, err := feature.NewScalingPlan(uc.schema)
	if err != nil {
		return nil, fmt.Errorf("build scaling plan: %w", err)
	}
	scaled, err := plan.FitTransform(s.features)
	if err != nil {
		return nil, fmt.Errorf("scale %s features: %w", s.name, err)
	}
	s.plan = plan
	return scaled, nil
}

func (uc *TransformDataUseCase) rebalance(ctx context.Context, s *split, balancer *feature.Balancer, scaled *mat.Dense) error {
	x, y, err := balancer.Rebalance(ctx, scaled, s.labels)
	if err != nil {
		return fmt.Errorf("rebalance %s split: %w", s.name, err)
	}
	final, err := feature.FinalArray(x, y)
	if err != nil {
		return domain.WrapError(domain.ErrDataInvalid, "assemble "+s.name+" array", err)
	}
	s.final = final
	s.summary.RowsOut = len(y)
	s.summary.LabelCountsOut = labelSummary(y)
	uc.observer.ObserveRows(s.name, "output", len(y))
	return nil
}

func (uc *TransformDataUseCase) persist(
	ctx context.Context,
	runID string,
	started time.Time,
	train, test *split,
) (*domain.DataTransformationArtifact, error) {
	layout := domain.NewTransformationLayout(uc.runDir(runID, started))

	if err := uc.sink.SaveScalingPlan(ctx, layout.ObjectKey, train.plan); err != nil {
		return nil, fmt.Errorf("save scaling plan: %w", err)
	}
	if err := uc.sink.SaveArray(ctx, layout.TrainKey, train.final); err != nil {
		return nil, fmt.Errorf("save train array: %w", err)
	}
	if err := uc.sink.SaveArray(ctx, layout.TestKey, test.final); err != nil {
		return nil, fmt.Errorf("save test array: %w", err)
	}

	artifact := &domain.DataTransformationArtifact{
		TransformedObjectFilePath: uc.sink.Locate(layout.ObjectKey),
		TransformedTrainFilePath:  uc.sink.Locate(layout.TrainKey),
		TransformedTestFilePath:   uc.sink.Locate(layout.TestKey),
	}
	manifest := domain.TransformationManifest{
		RunID:         runID,
		CreatedAt:     uc.now(),
		OutputColumns: train.plan.OutputColumns(),
		TargetColumn:  uc.schema.TargetColumn,
		Splits:        []domain.SplitSummary{train.summary, test.summary},
		Artifact:      *artifact,
	}
	if err := uc.sink.SaveManifest(ctx, layout.ManifestKey, manifest); err != nil {
		return nil, fmt.Errorf("save manifest: %w", err)
	}
	return artifact, nil
}

func (uc *TransformDataUseCase) runDir(runID string, started time.Time) string {
	if uc.opts.TimestampDirs {
		return started.Format(runDirTimeFormat)
	}
	return runID
}

func (uc *TransformDataUseCase) createRun(ctx context.Context, req domain.TransformationRequest, started time.Time) error {
	run := &domain.TransformationRun{
		ID:            req.RunID,
		TrainFilePath: req.Ingestion.TrainFilePath,
		TestFilePath:  req.Ingestion.TestFilePath,
		Status:        domain.RunProcessing,
		CreatedAt:     started,
		UpdatedAt:     started,
	}
	if err := uc.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	return nil
}

func (uc *TransformDataUseCase) markStatus(ctx context.Context, runID string, status domain.RunStatus, errMessage string) error {
	return uc.runs.UpdateStatus(ctx, runID, status, errMessage)
}

// markFailed records the failure even when the run context is already done.
func (uc *TransformDataUseCase) markFailed(ctx context.Context, runID string, runErr error) error {
	if runErr == nil {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	return uc.markStatus(writeCtx, runID, domain.RunFailed, runErr.Error())
}

func labelSummary(labels []float64) map[string]int {
	out := make(map[string]int)
	for label, n := range feature.LabelCounts(labels) {
		out[strconv.FormatFloat(label, 'g', -1, 64)] = n
	}
	return out
}
