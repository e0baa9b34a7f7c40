package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("PV_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("PV_HOME", "/custom/pv")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/pv" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/pv")
		}
		if defaults["log_dir"] != "/custom/pv/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/pv/log")
		}
		if defaults["cache_dir"] != "/custom/pv/cache" {
			t.Errorf("cache_dir = %q, want %q", defaults["cache_dir"], "/custom/pv/cache")
		}
	})

	t.Run("honors XDG directories", func(t *testing.T) {
		t.Setenv("PV_CONFIG_PATH", "")
		t.Setenv("PV_HOME", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
		t.Setenv("XDG_DATA_HOME", "/xdg/data")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/xdg/config/pv.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/xdg/config/pv.toml")
		}
		if defaults["base_dir"] != "/xdg/data/pv" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/xdg/data/pv")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("PV_CONFIG_PATH", "")
		t.Setenv("PV_HOME", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("XDG_DATA_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "pv.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "pv")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
	})
}
