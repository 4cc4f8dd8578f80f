package ports

import (
	"context"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

// DataTransformer is the inbound contract of the transformation stage.
type DataTransformer interface {
	Transform(ctx context.Context, req domain.TransformationRequest) (*domain.DataTransformationArtifact, error)
}

// DataIngestor exports a record collection and splits it into train/test files.
type DataIngestor interface {
	Ingest(ctx context.Context, collection string) (*domain.DataIngestionArtifact, error)
}
