package domain

import (
	"path"
	"time"
)

type DataIngestionArtifact struct {
	TrainFilePath string `json:"train_file_path" yaml:"train_file_path"`
	TestFilePath  string `json:"test_file_path" yaml:"test_file_path"`
}

type DataValidationArtifact struct {
	ValidationStatus bool   `json:"validation_status" yaml:"validation_status"`
	Message          string `json:"message" yaml:"message"`
	ReportFilePath   string `json:"validation_report_file_path,omitempty" yaml:"validation_report_file_path,omitempty"`
}

// DataTransformationArtifact is handed to the model-training stage.
type DataTransformationArtifact struct {
	TransformedObjectFilePath string `json:"transformed_object_file_path" yaml:"transformed_object_file_path"`
	TransformedTrainFilePath  string `json:"transformed_train_file_path" yaml:"transformed_train_file_path"`
	TransformedTestFilePath   string `json:"transformed_test_file_path" yaml:"transformed_test_file_path"`
}

// TransformationRequest is everything the transformation stage consumes.
type TransformationRequest struct {
	RunID      string                 `json:"run_id"`
	Ingestion  DataIngestionArtifact  `json:"ingestion"`
	Validation DataValidationArtifact `json:"validation"`
}

type TransformationCompleted struct {
	RunID       string                     `json:"run_id"`
	Artifact    DataTransformationArtifact `json:"artifact"`
	CompletedAt time.Time                  `json:"completed_at"`
}

// SplitSummary describes one split before and after rebalancing.
type SplitSummary struct {
	Split          string         `yaml:"split"`
	RowsIn         int            `yaml:"rows_in"`
	RowsOut        int            `yaml:"rows_out"`
	LabelCountsIn  map[string]int `yaml:"label_counts_in"`
	LabelCountsOut map[string]int `yaml:"label_counts_out"`
}

// TransformationManifest accompanies the persisted artifacts.
type TransformationManifest struct {
	RunID         string                     `yaml:"run_id"`
	CreatedAt     time.Time                  `yaml:"created_at"`
	OutputColumns []string                   `yaml:"output_columns"`
	TargetColumn  string                     `yaml:"target_column"`
	Splits        []SplitSummary             `yaml:"splits"`
	Artifact      DataTransformationArtifact `yaml:"artifact"`
}

// TransformationLayout holds the storage keys written by one run.
type TransformationLayout struct {
	ObjectKey   string
	TrainKey    string
	TestKey     string
	ManifestKey string
}

func NewTransformationLayout(runDir string) TransformationLayout {
	base := path.Join(runDir, "data_transformation")
	return TransformationLayout{
		ObjectKey:   path.Join(base, "transformed_object/preprocessing.gob"),
		TrainKey:    path.Join(base, "transformed/train.npy"),
		TestKey:     path.Join(base, "transformed/test.npy"),
		ManifestKey: path.Join(base, "manifest.yaml"),
	}
}

// IngestionLayout holds the storage keys written by the ingestion stage.
type IngestionLayout struct {
	FeatureStoreKey string
	TrainKey        string
	TestKey         string
}

func NewIngestionLayout(runDir string) IngestionLayout {
	base := path.Join(runDir, "data_ingestion")
	return IngestionLayout{
		FeatureStoreKey: path.Join(base, "feature_store/data.csv"),
		TrainKey:        path.Join(base, "ingested/train.csv"),
		TestKey:         path.Join(base, "ingested/test.csv"),
	}
}
