package database

import (
	"fmt"
	"os"
	"path/filepath"

	"pv-go/internal/config"
	"pv-go/internal/pv"
)

// NewIndexFromConfig creates an Index implementation based on the database config type.
func NewIndexFromConfig(cfg config.DatabaseConfig, clock pv.Clock) (pv.Index, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteIndex(filepath.Join(cfg.DataDir, "index.db"), clock)
	case "memory":
		return NewSQLiteIndex(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
