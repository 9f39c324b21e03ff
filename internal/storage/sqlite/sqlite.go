// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are creating
// the in-memory DB and the periodic dump.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/skyhil/hilbridge/internal/config"
	"github.com/skyhil/hilbridge/internal/database"
	gormstorage "github.com/skyhil/hilbridge/internal/storage/gorm"
	"gorm.io/gorm"
)

// DumpFileName is the snapshot written under the configured output directory.
const DumpFileName = "hilbridge.db"

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	logger   *slog.Logger
	path     string // empty for the shared in-memory database
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend. The database is opened on Init.
func New(cfg config.SQLiteConfig, logger *slog.Logger) *Backend {
	return &Backend{
		cfg:    cfg,
		logger: logger.With("storage", "sqlite"),
	}
}

// DumpPath is where snapshots are written, empty when dumping is disabled.
func (b *Backend) DumpPath() string {
	if b.cfg.OutputDir == "" {
		return ""
	}
	return filepath.Join(b.cfg.OutputDir, DumpFileName)
}

// Init opens the in-memory DB, initializes the embedded GORM backend and
// starts the dump goroutine.
func (b *Backend) Init() error {
	db, err := database.OpenSQLite(b.path)
	if err != nil {
		return fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	b.db = db
	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.logger})
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	if b.DumpPath() != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// EndRun closes the run and takes a snapshot so the finished run is on disk.
func (b *Backend) EndRun(end time.Time) error {
	if err := b.Backend.EndRun(end); err != nil {
		return err
	}
	return b.Dump()
}

// Dump writes a snapshot now. It does nothing when dumping is disabled.
func (b *Backend) Dump() error {
	path := b.DumpPath()
	if path == "" || b.db == nil {
		return nil
	}
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, path); err != nil {
		return err
	}
	b.logger.Debug("Dumped to disk", "path", path, "duration", time.Since(start))
	return nil
}

// Close stops the dump goroutine, flushes, and writes a last snapshot.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if b.stopChan != nil {
		close(b.stopChan)
		b.wg.Wait()
		b.stopChan = nil
	}
	err := b.Backend.Close()
	if err == nil {
		err = b.Dump()
	}
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	b.Backend = nil
	return err
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.logger.Error("Error dumping to disk", "error", err)
			}
		}
	}
}
