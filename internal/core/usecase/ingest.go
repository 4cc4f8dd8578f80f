package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/ports"
)

const DefaultSplitRatio = 0.25

type IngestOptions struct {
	ArtifactDir string
	// SplitRatio is the share of rows assigned to the test split.
	SplitRatio    float64
	SplitSeed     uint64
	TimestampDirs bool
}

type IngestDataUseCase struct {
	source ports.RecordSource
	writer ports.FrameWriter
	opts   IngestOptions
	logger *slog.Logger
	now    func() time.Time
}

func NewIngestDataUseCase(
	source ports.RecordSource,
	writer ports.FrameWriter,
	opts IngestOptions,
	logger *slog.Logger,
) *IngestDataUseCase {
	if opts.SplitRatio <= 0 || opts.SplitRatio >= 1 {
		opts.SplitRatio = DefaultSplitRatio
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDataUseCase{
		source: source,
		writer: writer,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (uc *IngestDataUseCase) Ingest(ctx context.Context, collection string) (*domain.DataIngestionArtifact, error) {
	runDir := uc.now().Format(runDirTimeFormat)
	if !uc.opts.TimestampDirs {
		runDir = ""
	}
	layout := domain.NewIngestionLayout(runDir)
	uc.logger.Info("data ingestion started", "collection", collection)

	frame, err := uc.source.ExportCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("export collection %q: %w", collection, err)
	}
	if frame.Rows() < 2 {
		return nil, domain.WrapError(domain.ErrDataInvalid, "split dataset",
			fmt.Errorf("collection %q has %d rows, need at least 2", collection, frame.Rows()))
	}
	if err := uc.writer.WriteFrame(ctx, uc.path(layout.FeatureStoreKey), frame); err != nil {
		return nil, fmt.Errorf("write feature store: %w", err)
	}

	train, test := uc.split(frame)
	artifact := &domain.DataIngestionArtifact{
		TrainFilePath: uc.path(layout.TrainKey),
		TestFilePath:  uc.path(layout.TestKey),
	}
	if err := uc.writer.WriteFrame(ctx, artifact.TrainFilePath, train); err != nil {
		return nil, fmt.Errorf("write train split: %w", err)
	}
	if err := uc.writer.WriteFrame(ctx, artifact.TestFilePath, test); err != nil {
		return nil, fmt.Errorf("write test split: %w", err)
	}

	uc.logger.Info("data ingestion completed",
		"rows", frame.Rows(),
		"train_rows", train.Rows(),
		"test_rows", test.Rows(),
		"train_file", artifact.TrainFilePath,
		"test_file", artifact.TestFilePath,
	)
	return artifact, nil
}

// split shuffles row indices with a seeded generator and cuts off the test
// share, rounding the test size up. Both splits keep at least one row.
func (uc *IngestDataUseCase) split(frame *domain.Frame) (*domain.Frame, *domain.Frame) {
	rows := frame.Rows()
	testRows := int(math.Ceil(float64(rows) * uc.opts.SplitRatio))
	testRows = min(max(testRows, 1), rows-1)

	seed := uc.opts.SplitSeed
	rng := rand.New(rand.NewPCG(seed, seed))
	order := rng.Perm(rows)
	return frame.Take(order[testRows:]), frame.Take(order[:testRows])
}

func (uc *IngestDataUseCase) path(key string) string {
	return filepath.Join(uc.opts.ArtifactDir, key)
}
