package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

const memoryDSN = ":memory:"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
		version   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS favorites (
		id           TEXT PRIMARY KEY NOT NULL CHECK (id <> ''),
		title        TEXT NOT NULL DEFAULT '',
		genre        TEXT NOT NULL DEFAULT '',
		year         TEXT NOT NULL DEFAULT '',
		duration     TEXT NOT NULL DEFAULT '',
		rating       REAL NOT NULL DEFAULT 0,
		poster_url   TEXT NOT NULL DEFAULT '',
		synopsis     TEXT NOT NULL DEFAULT '',
		position     INTEGER NOT NULL,
		favorited_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS favorites_position_idx ON favorites (position)`,
}

// SQLiteStore keeps favorites in an embedded SQLite database file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *slog.Logger
	closed bool
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if path == memoryDSN {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sqlite database: %w", err)
	}

	logger.Info("store: database opened", "driver", "sqlite", "path", path)
	return s, nil
}

// NewInMemory creates a private in-memory store, mostly for tests.
func NewInMemory() (*SQLiteStore, error) {
	return NewSQLite(context.Background(), memoryDSN, Options{Logger: slog.New(slog.DiscardHandler)})
}

func sqliteDSN(path string) string {
	pragmas := "_pragma=busy_timeout(5000)"
	if path != memoryDSN {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + pragmas
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range sqliteSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var version int
	err = tx.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE singleton = 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_meta (singleton, version) VALUES (1, ?)`, SchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		if err := checkVersion(version); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Upsert inserts or replaces a favorite. The position subquery and the write
// run in one statement, so ordering stays consistent.
func (s *SQLiteStore) Upsert(ctx context.Context, rec domain.FavoriteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	const query = `
		INSERT INTO favorites (id, title, genre, year, duration, rating, poster_url, synopsis, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM favorites))
		ON CONFLICT (id) DO UPDATE
		SET title = excluded.title,
		    genre = excluded.genre,
		    year = excluded.year,
		    duration = excluded.duration,
		    rating = excluded.rating,
		    poster_url = excluded.poster_url,
		    synopsis = excluded.synopsis,
		    position = excluded.position,
		    favorited_at = strftime('%s', 'now')
	`
	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Title, rec.Genre, rec.Year, rec.Duration, rec.Rating, rec.PosterURL, rec.Synopsis)
	if err != nil {
		return fmt.Errorf("upsert favorite: %w", err)
	}
	return nil
}

// Delete removes a favorite by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	return n > 0, nil
}

// List returns all favorites in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.FavoriteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+favoriteColumns+` FROM favorites ORDER BY position`)
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

// Exists checks membership through the primary key.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}

	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM favorites WHERE id = ?)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return ok, nil
}

// Get fetches a single favorite.
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.FavoriteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return domain.FavoriteRecord{}, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+favoriteColumns+` FROM favorites WHERE id = ?`, id)
	rec, err := scanFavorite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FavoriteRecord{}, ErrNotFound
		}
		return domain.FavoriteRecord{}, fmt.Errorf("get favorite: %w", err)
	}
	return rec, nil
}

// HealthCheck verifies the database handle still answers.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("store: closing sqlite database")
	return s.db.Close()
}
