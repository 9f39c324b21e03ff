// Package postgres implements the storage.Backend interface on PostgreSQL.
// Queueing and batch writes live in the embedded GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/skyhil/hilbridge/internal/config"
	"github.com/skyhil/hilbridge/internal/database"
	gormstorage "github.com/skyhil/hilbridge/internal/storage/gorm"
	"gorm.io/gorm"
)

// Backend connects to Postgres on Init and delegates everything else.
type Backend struct {
	*gormstorage.Backend
	cfg    config.PostgresConfig
	logger *slog.Logger
	open   func(config.PostgresConfig) (*gorm.DB, error)
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(cfg config.PostgresConfig, logger *slog.Logger) *Backend {
	return &Backend{
		cfg:    cfg,
		logger: logger,
		open:   database.OpenPostgres,
	}
}

// Init connects, migrates the schema, and starts the writer goroutine.
func (b *Backend) Init() error {
	db, err := b.open(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.logger.Info("Connected to database", "host", b.cfg.Host, "database", b.cfg.Database)

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:     db,
		Logger: b.logger.With("storage", "postgres"),
	})
	return b.Backend.Init()
}

// Close stops the writer and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	err := b.Backend.Close()
	if sqlDB, dbErr := b.DB().DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	return err
}
