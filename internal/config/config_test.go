package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testDoc struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func TestWriteDefaultTOML(t *testing.T) {
	t.Parallel()

	t.Run("creates new config file", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "test.toml")

		if err := WriteDefaultTOML(configPath, testDoc{Name: "test", Value: 42}); err != nil {
			t.Fatalf("WriteDefaultTOML() failed: %v", err)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("failed to read config file: %v", err)
		}
		if !strings.Contains(string(content), `name = "test"`) {
			t.Error("config file missing expected name value")
		}
	})

	t.Run("does not overwrite existing file", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "existing.toml")
		existing := "name = \"old\"\nvalue = 99\n"
		if err := os.WriteFile(configPath, []byte(existing), 0644); err != nil {
			t.Fatalf("failed to seed existing file: %v", err)
		}

		if err := WriteDefaultTOML(configPath, testDoc{Name: "new", Value: 1}); err == nil {
			t.Fatal("expected error for existing file")
		} else if !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected 'already exists' error, got: %v", err)
		}

		content, _ := os.ReadFile(configPath)
		if string(content) != existing {
			t.Error("existing file was modified")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "deep", "nested", "config.toml")

		if err := WriteDefaultTOML(configPath, testDoc{Name: "nested", Value: 123}); err != nil {
			t.Fatalf("WriteDefaultTOML() failed: %v", err)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Fatal("config file was not created in nested path")
		}
	})
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	t.Run("loads valid config", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "valid.toml")
		if err := os.WriteFile(configPath, []byte("name = \"loaded\"\nvalue = 999\n"), 0644); err != nil {
			t.Fatalf("failed to seed config file: %v", err)
		}

		var cfg testDoc
		if err := LoadTOML(configPath, &cfg); err != nil {
			t.Fatalf("LoadTOML() failed: %v", err)
		}
		if cfg.Name != "loaded" || cfg.Value != 999 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		var cfg testDoc
		err := LoadTOML(filepath.Join(tmpDir, "missing.toml"), &cfg)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Fatalf("expected 'not found' error, got: %v", err)
		}
	})
}

func TestWriteTOMLThenLoadTOMLRoundTrips(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "broker.toml")

	cfg := DefaultBrokerConfig()
	cfg.ListenAddr = ":9001"
	if err := WriteTOML(configPath, &cfg); err != nil {
		t.Fatalf("WriteTOML() failed: %v", err)
	}

	var loaded BrokerConfig
	if err := LoadTOML(configPath, &loaded); err != nil {
		t.Fatalf("LoadTOML() failed: %v", err)
	}
	if loaded.ListenAddr != ":9001" {
		t.Errorf("ListenAddr = %q, want :9001", loaded.ListenAddr)
	}
	if loaded.DefaultPaperWidthMM != 80 {
		t.Errorf("DefaultPaperWidthMM = %d, want 80", loaded.DefaultPaperWidthMM)
	}
	if len(loaded.DefaultMediaTypes) != 2 {
		t.Errorf("DefaultMediaTypes = %v, want 2 entries", loaded.DefaultMediaTypes)
	}
}

func TestDatabaseConfigBuildDSNDefaultsToSQLite(t *testing.T) {
	t.Parallel()
	cfg := DatabaseConfig{}
	if got := cfg.BuildDSN(); got != "cloudprntd.db" {
		t.Errorf("BuildDSN() = %q, want cloudprntd.db", got)
	}
}

func TestDatabaseConfigBuildDSNPostgres(t *testing.T) {
	t.Parallel()
	cfg := DatabaseConfig{Driver: "postgres", Host: "db.internal", Name: "broker"}
	got := cfg.BuildDSN()
	if !strings.HasPrefix(got, "postgres://") || !strings.Contains(got, "db.internal") || !strings.Contains(got, "broker") {
		t.Errorf("unexpected DSN: %q", got)
	}
}

func TestApplyBrokerEnvOverrides(t *testing.T) {
	t.Setenv("CLOUDPRNTD_LISTEN_ADDR", ":9999")
	t.Setenv("CLOUDPRNTD_CODE_PAGE", "cp437")

	cfg := DefaultBrokerConfig()
	ApplyBrokerEnvOverrides(&cfg)

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.CodePage != "cp437" {
		t.Errorf("CodePage = %q, want cp437", cfg.CodePage)
	}
}
