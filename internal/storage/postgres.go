package storage

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IshaanNene/pricewatch/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS observations (
	id          BIGSERIAL PRIMARY KEY,
	product     TEXT        NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	price       INTEGER     NOT NULL,
	discount    TEXT        NOT NULL,
	rating      TEXT        NOT NULL,
	extracted   TEXT        NOT NULL
);
CREATE INDEX IF NOT EXISTS observations_product_idx ON observations (product, observed_at);
CREATE TABLE IF NOT EXISTS reviews (
	id          BIGSERIAL PRIMARY KEY,
	product     TEXT        NOT NULL,
	review      TEXT        NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);`

// execer is the subset of pgxpool.Pool the mirror writes through.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresMirror copies observations and reviews into PostgreSQL tables.
type PostgresMirror struct {
	pool   *pgxpool.Pool
	db     execer
	psql   sq.StatementBuilderType
	logger *slog.Logger
}

// NewPostgresMirror opens a pool on dsn and creates the tables if needed.
func NewPostgresMirror(ctx context.Context, dsn string, maxConns int32, logger *slog.Logger) (*PostgresMirror, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	m := newPostgresMirror(pool, logger)
	m.pool = pool
	return m, nil
}

func newPostgresMirror(db execer, logger *slog.Logger) *PostgresMirror {
	return &PostgresMirror{
		db:     db,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: logger.With("component", "postgres_mirror"),
	}
}

func (m *PostgresMirror) Name() string { return "postgres" }

func (m *PostgresMirror) MirrorObservation(ctx context.Context, obs types.Observation) error {
	query, args, err := m.psql.Insert("observations").
		Columns("product", "observed_at", "price", "discount", "rating", "extracted").
		Values(obs.Product, obs.Timestamp.UTC(), obs.Price, obs.Discount, obs.Rating, obs.Extracted.String()).
		ToSql()
	if err != nil {
		return &types.StorageError{Backend: m.Name(), Op: "build observation insert", Err: err}
	}
	if _, err := m.db.Exec(ctx, query, args...); err != nil {
		return &types.StorageError{Backend: m.Name(), Op: "insert observation", Err: err}
	}
	return nil
}

func (m *PostgresMirror) MirrorReview(ctx context.Context, rev types.ReviewRecord) error {
	query, args, err := m.psql.Insert("reviews").
		Columns("product", "review", "observed_at").
		Values(rev.Product, rev.Text, rev.Timestamp.UTC()).
		ToSql()
	if err != nil {
		return &types.StorageError{Backend: m.Name(), Op: "build review insert", Err: err}
	}
	if _, err := m.db.Exec(ctx, query, args...); err != nil {
		return &types.StorageError{Backend: m.Name(), Op: "insert review", Err: err}
	}
	return nil
}

func (m *PostgresMirror) Close() error {
	if m.pool != nil {
		m.pool.Close()
	}
	m.logger.Info("postgres mirror closed")
	return nil
}
