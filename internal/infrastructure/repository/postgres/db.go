package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Provider hands out one shared connection pool per process. The pool is
// opened on first use; later callers get the same handle, or the same error.
type Provider struct {
	dsn    string
	open   func(string) (*sql.DB, error)
	logger *slog.Logger

	once sync.Once
	db   *sql.DB
	err  error
}

func NewProvider(dsn string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{dsn: dsn, open: OpenDB, logger: logger}
}

func (p *Provider) DB() (*sql.DB, error) {
	p.once.Do(func() {
		if p.dsn == "" {
			p.err = errors.New("postgres dsn is empty")
			return
		}
		p.db, p.err = p.open(p.dsn)
		if p.err == nil {
			p.logger.Info("postgres_connected")
		}
	})
	return p.db, p.err
}

// Close releases the pool at process exit.
func (p *Provider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
