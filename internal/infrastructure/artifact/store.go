package artifact

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/feature"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/ports"
)

// Store persists transformation outputs through object storage: the scaling
// plan as gob, final arrays as .npy, the manifest as YAML.
type Store struct {
	storage ports.ObjectStorage
}

func NewStore(storage ports.ObjectStorage) *Store {
	return &Store{storage: storage}
}

func (s *Store) Locate(key string) string {
	return s.storage.Path(key)
}

func (s *Store) SaveScalingPlan(ctx context.Context, key string, plan *feature.ScalingPlan) error {
	if plan == nil || !plan.Fitted() {
		return domain.WrapError(domain.ErrDataInvalid, "save scaling plan", feature.ErrNotFitted)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(plan); err != nil {
		return fmt.Errorf("encode scaling plan: %w", err)
	}
	return s.storage.Save(ctx, key, &buf)
}

func (s *Store) LoadScalingPlan(ctx context.Context, key string) (*feature.ScalingPlan, error) {
	rc, err := s.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var plan feature.ScalingPlan
	if err := gob.NewDecoder(rc).Decode(&plan); err != nil {
		return nil, domain.WrapError(domain.ErrDataInvalid, "decode scaling plan", err)
	}
	return &plan, nil
}

func (s *Store) SaveArray(ctx context.Context, key string, array *mat.Dense) error {
	if array == nil || array.IsEmpty() {
		return domain.WrapError(domain.ErrDataInvalid, "save array", errors.New("array is empty"))
	}
	var buf bytes.Buffer
	if err := npyio.Write(&buf, array); err != nil {
		return fmt.Errorf("encode npy array: %w", err)
	}
	return s.storage.Save(ctx, key, &buf)
}

func (s *Store) LoadArray(ctx context.Context, key string) (*mat.Dense, error) {
	rc, err := s.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var m mat.Dense
	if err := npyio.Read(rc, &m); err != nil {
		return nil, domain.WrapError(domain.ErrDataInvalid, "decode npy array", err)
	}
	return &m, nil
}

func (s *Store) SaveManifest(ctx context.Context, key string, manifest domain.TransformationManifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return s.storage.Save(ctx, key, bytes.NewReader(data))
}

// LoadValidationReport reads the YAML report written by the validation stage.
func LoadValidationReport(path string) (domain.DataValidationArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.DataValidationArtifact{}, domain.WrapError(domain.ErrIO, "open validation report", err)
	}
	defer f.Close()
	return DecodeValidationReport(f, path)
}

func DecodeValidationReport(r io.Reader, path string) (domain.DataValidationArtifact, error) {
	var report struct {
		ValidationStatus *bool  `yaml:"validation_status"`
		Message          string `yaml:"message"`
	}
	if err := yaml.NewDecoder(r).Decode(&report); err != nil {
		return domain.DataValidationArtifact{}, domain.WrapError(domain.ErrDataInvalid, "decode validation report", err)
	}
	if report.ValidationStatus == nil {
		return domain.DataValidationArtifact{}, domain.WrapError(domain.ErrDataInvalid, "decode validation report",
			errors.New("validation_status is missing"))
	}
	return domain.DataValidationArtifact{
		ValidationStatus: *report.ValidationStatus,
		Message:          report.Message,
		ReportFilePath:   path,
	}, nil
}
