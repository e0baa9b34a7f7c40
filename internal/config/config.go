package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for pv.
type Config struct {
	AccountID string         `toml:"account_id"` // internal account ID, set by `pv login`
	BaseDir   string         `toml:"base_dir"`
	LogDir    string         `toml:"log_dir"`
	CacheDir  string         `toml:"cache_dir"`
	Store     StoreConfig    `toml:"store"`
	Database  DatabaseConfig `toml:"database"`
	Cache     CacheConfig    `toml:"cache"`
	Backup    BackupConfig   `toml:"backup"`
	Archive   ArchiveConfig  `toml:"archive"`
	Deletion  DeletionConfig `toml:"deletion"`
}

// StoreConfig represents configuration for the object store backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory" or "s3"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores
}

// DatabaseConfig represents configuration for the local metadata index.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CacheConfig bounds the content-digest cache.
type CacheConfig struct {
	MaxEntries int   `toml:"max_entries"` // memory tier entry cap; defaults to 4096
	MaxBytes   int64 `toml:"max_bytes"`   // memory tier byte cap; defaults to 64MB
}

// BackupConfig tunes the upload pipeline.
type BackupConfig struct {
	Workers            int   `toml:"workers"`             // upload concurrency; defaults to 4
	MultipartThreshold int64 `toml:"multipart_threshold"` // bytes; defaults to 16MB
}

// ArchiveConfig drives the storage-tier lifecycle.
type ArchiveConfig struct {
	ArchiveAfterDays  int   `toml:"archive_after_days"`  // fresh -> archived; defaults to 180
	RetentionDays     int   `toml:"retention_days"`      // retrieved -> expiring; defaults to 30
	CreditUnitBytes   int64 `toml:"credit_unit_bytes"`   // bytes per credit unit; defaults to 100MB
	CreditsPerUnit    int64 `toml:"credits_per_unit"`    // defaults to 1
}

// DeletionConfig controls account deletion scheduling.
type DeletionConfig struct {
	GracePeriodDays int `toml:"grace_period_days"` // defaults to 30
}

// NewConfig creates a new Config with the provided base directory and default
// sub-directories.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		CacheDir: filepath.Join(baseDir, "cache"),
		Store:    StoreConfig{Type: "memory"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile writes a Config to the specified file path, creating parent
// directories as needed. Used by `pv config init` and by `pv login` when it
// records the resolved account ID.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
