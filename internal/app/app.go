// Package app builds the long-lived components shared by the server and the
// CLI from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Clark-Hu/movie-favorites/internal/catalog"
	"github.com/Clark-Hu/movie-favorites/internal/config"
	"github.com/Clark-Hu/movie-favorites/internal/favorites"
	"github.com/Clark-Hu/movie-favorites/internal/logging"
	"github.com/Clark-Hu/movie-favorites/internal/store"
)

// App owns the database handle and everything built on top of it.
type App struct {
	Backend   store.PersistentStore
	Favorites *favorites.Store
	Catalog   catalog.Client

	logger *slog.Logger
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Writer: w, Level: level, Format: cfg.LogFormat}), nil
}

// StoreOptions translates the DB_* settings into backend options.
func StoreOptions(cfg config.Config, logger *slog.Logger) store.Options {
	return store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}
}

// Build opens the configured backend and wires the favorites store and the
// catalog client on top of it. The caller must Close the result.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	backend, err := store.Open(dbCtx, cfg.DBDriver, cfg.DBURL, StoreOptions(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}

	cat, err := NewCatalog(cfg, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	return &App{
		Backend:   backend,
		Favorites: favorites.New(backend, logger),
		Catalog:   cat,
		logger:    logger,
	}, nil
}

// NewCatalog builds the HTTP catalog client behind the page cache.
func NewCatalog(cfg config.Config, logger *slog.Logger) (*catalog.CachedClient, error) {
	httpClient, err := catalog.NewHTTPClient(
		cfg.CatalogURL,
		cfg.CatalogAPIKey,
		cfg.CatalogImageBaseURL,
		time.Duration(cfg.CatalogTimeoutSecs)*time.Second,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("init catalog client: %w", err)
	}
	cached, err := catalog.NewCachedClient(httpClient, cfg.CatalogCacheSize, time.Duration(cfg.CatalogCacheTTLSecs)*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("init catalog cache: %w", err)
	}
	return cached, nil
}

// Close ends all live feeds, then releases the backend.
func (a *App) Close() error {
	if pg, ok := a.Backend.(*store.PostgresStore); ok {
		if stat := pg.Stats(); stat != nil {
			a.logger.Info("store: pool stats at shutdown",
				"acquired", stat.AcquiredConns(),
				"idle", stat.IdleConns(),
				"total", stat.TotalConns(),
				"acquire_count", stat.AcquireCount())
		}
	}
	return errors.Join(a.Favorites.Close(), a.Backend.Close())
}
