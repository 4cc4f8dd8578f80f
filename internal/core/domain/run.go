package domain

import "time"

type RunStatus string

const (
	RunProcessing RunStatus = "processing"
	RunReady      RunStatus = "ready"
	RunFailed     RunStatus = "failed"
)

type TransformationRun struct {
	ID            string    `json:"id"`
	TrainFilePath string    `json:"train_file_path"`
	TestFilePath  string    `json:"test_file_path"`
	Status        RunStatus `json:"status"`
	Error         string    `json:"error,omitempty"`
	ObjectPath    string    `json:"object_path,omitempty"`
	TrainOutPath  string    `json:"train_out_path,omitempty"`
	TestOutPath   string    `json:"test_out_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
