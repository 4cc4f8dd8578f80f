package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across pipeline/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS transformation_runs (
	id TEXT PRIMARY KEY,
	train_file_path TEXT NOT NULL,
	test_file_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	object_path TEXT,
	train_out_path TEXT,
	test_out_path TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transformation_runs_status ON transformation_runs(status);
CREATE INDEX IF NOT EXISTS idx_transformation_runs_created_at ON transformation_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) Create(ctx context.Context, run *domain.TransformationRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO transformation_runs (
	id, train_file_path, test_file_path, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		run.ID, run.TrainFilePath, run.TestFilePath, string(run.Status), run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transformation run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.TransformationRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, train_file_path, test_file_path, status,
	COALESCE(error_message, ''), COALESCE(object_path, ''), COALESCE(train_out_path, ''), COALESCE(test_out_path, ''),
	created_at, updated_at
FROM transformation_runs
WHERE id = $1
`, id)

	var run domain.TransformationRun
	var status string
	err := row.Scan(
		&run.ID, &run.TrainFilePath, &run.TestFilePath, &status,
		&run.Error, &run.ObjectPath, &run.TrainOutPath, &run.TestOutPath,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get transformation run", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan transformation run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	return &run, nil
}

func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status domain.RunStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE transformation_runs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return expectOneRow(result, "update run status", id)
}

func (r *RunRepository) SaveArtifact(ctx context.Context, id string, artifact domain.DataTransformationArtifact) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE transformation_runs
SET object_path = $2, train_out_path = $3, test_out_path = $4, updated_at = $5
WHERE id = $1
`, id, artifact.TransformedObjectFilePath, artifact.TransformedTrainFilePath, artifact.TransformedTestFilePath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save run artifact: %w", err)
	}
	return expectOneRow(result, "save run artifact", id)
}

func expectOneRow(result sql.Result, op, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrRunNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
