package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"regexp"
	"slices"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/resilience"
)

type providerFake struct {
	db    *sql.DB
	err   error
	calls int
}

func (p *providerFake) DB() (*sql.DB, error) {
	p.calls++
	return p.db, p.err
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	}, nil)
}

func TestExportCollectionBuildsFrame(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vehicle_insurance_data"`)).
		WillReturnRows(sqlmock.NewRows([]string{"_id", "id", "Gender", "Age", "Annual_Premium"}).
			AddRow("64f0", int64(1), "Male", int64(44), 40454.0).
			AddRow("64f1", int64(2), "Female", "na", 33536.5).
			AddRow("64f2", int64(3), "Male", int64(47), nil))

	source := NewRecordSource(&providerFake{db: db}, testExecutor())
	frame, err := source.ExportCollection(context.Background(), "vehicle_insurance_data")
	if err != nil {
		t.Fatalf("ExportCollection() error = %v", err)
	}
	if !slices.Equal(frame.Names(), []string{"id", "Gender", "Age", "Annual_Premium"}) {
		t.Fatalf("unexpected columns %v", frame.Names())
	}
	age, _ := frame.Column("Age")
	if age.Kind != domain.KindInt || !math.IsNaN(age.Values[1]) {
		t.Fatalf("expected na age as missing int, got %s %v", age.Kind, age.Values)
	}
	premium, _ := frame.Column("Annual_Premium")
	if premium.Kind != domain.KindFloat || !math.IsNaN(premium.Values[2]) {
		t.Fatalf("expected NULL premium as missing, got %s %v", premium.Kind, premium.Values)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExportCollectionRejectsUnsafeName(t *testing.T) {
	provider := &providerFake{}
	source := NewRecordSource(provider, testExecutor())
	_, err := source.ExportCollection(context.Background(), `data"; DROP TABLE x; --`)
	if !domain.IsKind(err, domain.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no connection for invalid name")
	}
}

func TestExportCollectionRetriesConnectionFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	frame, err := NewRecordSource(&providerFake{db: db}, testExecutor()).ExportCollection(context.Background(), "records")
	if err != nil {
		t.Fatalf("ExportCollection() error = %v", err)
	}
	if frame.Rows() != 2 {
		t.Fatalf("expected 2 rows, got %d", frame.Rows())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExportCollectionMissingTableIsSchemaMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

	_, err = NewRecordSource(&providerFake{db: db}, testExecutor()).ExportCollection(context.Background(), "absent")
	if !domain.IsKind(err, domain.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestProviderOpensOnce(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	opens := 0
	p := NewProvider("postgres://localhost/db", nil)
	p.open = func(string) (*sql.DB, error) {
		opens++
		return db, nil
	}

	for range 3 {
		got, err := p.DB()
		if err != nil || got != db {
			t.Fatalf("DB() = %v, %v", got, err)
		}
	}
	if opens != 1 {
		t.Fatalf("expected one open, got %d", opens)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestProviderRemembersOpenError(t *testing.T) {
	p := NewProvider("postgres://localhost/db", nil)
	opens := 0
	p.open = func(string) (*sql.DB, error) {
		opens++
		return nil, errors.New("dial tcp: refused")
	}
	if _, err := p.DB(); err == nil {
		t.Fatalf("expected open error")
	}
	if _, err := p.DB(); err == nil || opens != 1 {
		t.Fatalf("expected cached error after one open, got %v after %d opens", err, opens)
	}

	empty := NewProvider("", nil)
	if _, err := empty.DB(); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
