package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

// schemaLockKey serializes schema creation across processes sharing a database.
const schemaLockKey = 7_311_024

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
		version   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS favorites (
		id           TEXT PRIMARY KEY CHECK (id <> ''),
		title        TEXT NOT NULL DEFAULT '',
		genre        TEXT NOT NULL DEFAULT '',
		year         TEXT NOT NULL DEFAULT '',
		duration     TEXT NOT NULL DEFAULT '',
		rating       DOUBLE PRECISION NOT NULL DEFAULT 0,
		poster_url   TEXT NOT NULL DEFAULT '',
		synopsis     TEXT NOT NULL DEFAULT '',
		position     BIGSERIAL NOT NULL,
		favorited_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS favorites_position_idx ON favorites (position)`,
}

// PostgresStore keeps favorites in Postgres behind a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	opts   Options
	closed atomic.Bool
}

// NewPostgres initializes a connection pool, validates connectivity with Ping
// and creates the schema if it is absent.
func NewPostgres(ctx context.Context, dbURL string, opts Options) (*PostgresStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("store: initializing connection pool",
		"max", opts.MaxConns, "min", opts.MinConns,
		"idle", opts.MaxConnIdleTime, "life", opts.MaxConnLifetime,
		"stmt_cache", opts.StatementCacheCapacity)

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.StatementCacheCapacity > 0 {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		cfg.ConnConfig.StatementCacheCapacity = opts.StatementCacheCapacity
	}

	connCtx := ctx
	if opts.ConnTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, opts.ConnTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger, opts: opts}
	if err := s.migrate(connCtx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("store: database connection established", "driver", "postgres")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(schemaLockKey)); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var version int
	err = tx.QueryRow(ctx, `SELECT version FROM schema_meta`).Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `INSERT INTO schema_meta (version) VALUES ($1)`, SchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		if err := checkVersion(version); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Upsert inserts or replaces a favorite in a single statement.
func (s *PostgresStore) Upsert(ctx context.Context, rec domain.FavoriteRecord) error {
	if s.closed.Load() {
		return ErrClosed
	}
	const query = `
        INSERT INTO favorites (id, title, genre, year, duration, rating, poster_url, synopsis)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE
        SET title = EXCLUDED.title,
            genre = EXCLUDED.genre,
            year = EXCLUDED.year,
            duration = EXCLUDED.duration,
            rating = EXCLUDED.rating,
            poster_url = EXCLUDED.poster_url,
            synopsis = EXCLUDED.synopsis,
            position = nextval(pg_get_serial_sequence('favorites', 'position')),
            favorited_at = now()
    `
	_, err := s.pool.Exec(ctx, query, rec.ID, rec.Title, rec.Genre, rec.Year, rec.Duration, rec.Rating, rec.PosterURL, rec.Synopsis)
	if err != nil {
		return fmt.Errorf("upsert favorite: %w", err)
	}
	return nil
}

// Delete removes a favorite by id.
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM favorites WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns all favorites in insertion order.
func (s *PostgresStore) List(ctx context.Context) ([]domain.FavoriteRecord, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM favorites ORDER BY position`, favoriteColumns))
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	items := make([]domain.FavoriteRecord, 0)
	for rows.Next() {
		rec, err := scanFavorite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return items, nil
}

// Exists uses the primary key index instead of materializing rows.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM favorites WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return ok, nil
}

// Get fetches a single favorite.
func (s *PostgresStore) Get(ctx context.Context, id string) (domain.FavoriteRecord, error) {
	if s.closed.Load() {
		return domain.FavoriteRecord{}, ErrClosed
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM favorites WHERE id = $1`, favoriteColumns), id)
	rec, err := scanFavorite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FavoriteRecord{}, ErrNotFound
		}
		return domain.FavoriteRecord{}, fmt.Errorf("get favorite: %w", err)
	}
	return rec, nil
}

// Close releases database resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil || s.closed.Swap(true) {
		return nil
	}
	s.logger.Info("store: closing connection pool")
	s.pool.Close()
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}
	if s.closed.Load() {
		return ErrClosed
	}
	checkCtx := ctx
	if s.opts.ConnTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, s.opts.ConnTimeout)
		defer cancel()
	}
	return s.pool.Ping(checkCtx)
}

// Stats exposes pgxpool statistics for observability.
func (s *PostgresStore) Stats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}
