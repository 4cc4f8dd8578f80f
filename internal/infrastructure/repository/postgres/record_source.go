package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/tabular"
)

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// internalColumns are storage bookkeeping columns never exported as features.
var internalColumns = map[string]struct{}{"_id": {}}

type DBProvider interface {
	DB() (*sql.DB, error)
}

// RecordSource exports a whole table as a frame. Literal "na" cells and
// NULLs both become missing values.
type RecordSource struct {
	provider DBProvider
	exec     *resilience.Executor
}

func NewRecordSource(provider DBProvider, exec *resilience.Executor) *RecordSource {
	return &RecordSource{provider: provider, exec: exec}
}

func (s *RecordSource) ExportCollection(ctx context.Context, collection string) (*domain.Frame, error) {
	if !collectionName.MatchString(collection) {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "export collection",
			fmt.Errorf("invalid collection name %q", collection))
	}
	db, err := s.provider.DB()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "acquire connection", err)
	}

	records, err := resilience.Call(ctx, s.exec, "postgres.export_collection", func(ctx context.Context) ([][]string, error) {
		return s.query(ctx, db, collection)
	}, resilience.TemporaryClassifier)
	if err != nil {
		return nil, fmt.Errorf("export collection %s: %w", collection, err)
	}
	return tabular.FromRecords(records)
}

func (s *RecordSource) query(ctx context.Context, db *sql.DB, collection string) ([][]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, collection))
	if err != nil {
		return nil, classifyPGError("query collection", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, classifyPGError("read columns", err)
	}
	keep := make([]int, 0, len(names))
	header := make([]string, 0, len(names))
	for i, name := range names {
		if _, skip := internalColumns[name]; skip {
			continue
		}
		keep = append(keep, i)
		header = append(header, name)
	}

	records := [][]string{header}
	cells := make([]sql.NullString, len(names))
	dest := make([]any, len(names))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, domain.WrapError(domain.ErrDataInvalid, "scan record", err)
		}
		record := make([]string, len(keep))
		for j, idx := range keep {
			if cells[idx].Valid && !tabular.IsMissing(cells[idx].String) {
				record[j] = strings.TrimSpace(cells[idx].String)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPGError("iterate records", err)
	}
	return records, nil
}

// classifyPGError marks connection-level failures as temporary and a missing
// table as a schema mismatch.
func classifyPGError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42P01":
			return domain.WrapError(domain.ErrSchemaMismatch, op, err)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "53300":
			return domain.WrapError(domain.ErrTemporary, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
