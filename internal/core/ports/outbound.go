package ports

import (
	"context"
	"io"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/feature"
)

// FrameReader loads a rectangular dataset from a file path.
type FrameReader interface {
	ReadFrame(ctx context.Context, path string) (*domain.Frame, error)
}

// FrameWriter persists a dataset as a file with a header row.
type FrameWriter interface {
	WriteFrame(ctx context.Context, path string, frame *domain.Frame) error
}

// RecordSource yields a rectangular dataset for a collection identifier.
type RecordSource interface {
	ExportCollection(ctx context.Context, collection string) (*domain.Frame, error)
}

// ArtifactSink durably writes the fitted plan and the final arrays under
// storage keys; Locate resolves a key to the path handed downstream.
type ArtifactSink interface {
	SaveScalingPlan(ctx context.Context, path string, plan *feature.ScalingPlan) error
	SaveArray(ctx context.Context, path string, array *mat.Dense) error
	SaveManifest(ctx context.Context, path string, manifest domain.TransformationManifest) error
	Locate(key string) string
}

// ObjectStorage stores artifact files under a base directory.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) string
}

// RunRepository journals transformation runs.
type RunRepository interface {
	Create(ctx context.Context, run *domain.TransformationRun) error
	GetByID(ctx context.Context, id string) (*domain.TransformationRun, error)
	UpdateStatus(ctx context.Context, id string, status domain.RunStatus, errMessage string) error
	SaveArtifact(ctx context.Context, id string, artifact domain.DataTransformationArtifact) error
}

// EventPublisher announces stage transitions; EventSubscriber receives them.
type EventPublisher interface {
	PublishTransformationCompleted(ctx context.Context, event domain.TransformationCompleted) error
}

type EventSubscriber interface {
	SubscribeValidationCompleted(ctx context.Context, handler func(context.Context, domain.TransformationRequest) error) error
}

// StageObserver records stage metrics.
type StageObserver interface {
	StartRun()
	FinishRun(duration time.Duration, err error)
	ObserveRows(split, phase string, rows int)
}
