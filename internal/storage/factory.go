// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/skyhil/hilbridge/internal/config"
	"github.com/skyhil/hilbridge/internal/storage/memory"
	"github.com/skyhil/hilbridge/internal/storage/postgres"
	sqlitestorage "github.com/skyhil/hilbridge/internal/storage/sqlite"
	"github.com/skyhil/hilbridge/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case "postgres":
		return postgres.New(cfg.Postgres, logger), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, logger), nil
	case "memory", "":
		return memory.New(cfg.Memory), nil
	case "websocket":
		return websocket.New(websocket.Config{URL: cfg.WebSocket.URL, Secret: cfg.WebSocket.Secret}, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
