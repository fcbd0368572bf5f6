package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

// SchemaVersion is the favorites schema this build reads and writes.
const SchemaVersion = 1

var (
	// ErrNotFound indicates the requested favorite does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")
	// ErrSchemaTooNew is returned when the database was written by a newer build.
	ErrSchemaTooNew = errors.New("store: schema version is newer than supported")
)

// PersistentStore is the capability the favorites layer needs from a backend.
// Each mutating call is atomic: a reader observes either the state before or
// the state after it, never a partial record.
type PersistentStore interface {
	// Upsert inserts rec or replaces the row with the same id. A replaced
	// row moves to the end of the insertion order.
	Upsert(ctx context.Context, rec domain.FavoriteRecord) error
	// Delete removes the row with id and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns every row in insertion order.
	List(ctx context.Context) ([]domain.FavoriteRecord, error)
	// Exists reports whether a row with id is present.
	Exists(ctx context.Context, id string) (bool, error)
	// Get returns the row with id or ErrNotFound.
	Get(ctx context.Context, id string) (domain.FavoriteRecord, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Options controls backend connection behaviour. Pool fields only apply to
// Postgres; MaxConns also caps the SQLite handle.
type Options struct {
	MaxConns               int32
	MinConns               int32
	MaxConnIdleTime        time.Duration
	MaxConnLifetime        time.Duration
	ConnTimeout            time.Duration
	StatementCacheCapacity int
	Logger                 *slog.Logger
}

// Open selects a backend by driver name ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, opts Options) (PersistentStore, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(ctx, dsn, opts)
	case "postgres":
		return NewPostgres(ctx, dsn, opts)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

const favoriteColumns = `id, title, genre, year, duration, rating, poster_url, synopsis`

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFavorite(row rowScanner) (domain.FavoriteRecord, error) {
	var rec domain.FavoriteRecord
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Genre,
		&rec.Year,
		&rec.Duration,
		&rec.Rating,
		&rec.PosterURL,
		&rec.Synopsis,
	)
	return rec, err
}

func checkVersion(found int) error {
	if found > SchemaVersion {
		return fmt.Errorf("%w (database=%d, supported=%d)", ErrSchemaTooNew, found, SchemaVersion)
	}
	return nil
}
