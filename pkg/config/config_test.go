package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := `
port: "9000"
env: "test"
database:
  host: "db.example.com"
  database: "rowsync_test"
glide:
  page_limit: 250
sync:
  batch_size_limit: 100
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	chdir(t, tmpDir)

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")
	t.Setenv("PORT", "9100")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9100" {
		t.Errorf("expected Port=9100 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.BaseURL != "http://localhost:9100" {
		t.Errorf("expected BaseURL auto-derived from PORT, got %s", cfg.BaseURL)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host from yaml, got %s", cfg.Database.Host)
	}
	if cfg.Glide.PageLimit != 250 {
		t.Errorf("expected Glide.PageLimit=250 from yaml, got %d", cfg.Glide.PageLimit)
	}
	if cfg.Sync.BatchSizeLimit != 100 {
		t.Errorf("expected Sync.BatchSizeLimit=100 from yaml, got %d", cfg.Sync.BatchSizeLimit)
	}
}

func TestLoad_MissingYAMLFallsBackToEnv(t *testing.T) {
	chdir(t, t.TempDir())

	os.Unsetenv("BASE_URL")
	t.Setenv("PORT", "8090")
	t.Setenv("PGHOST", "env-db-host")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed without config.yaml: %v", err)
	}

	if cfg.Database.Host != "env-db-host" {
		t.Errorf("expected Database.Host from env, got %s", cfg.Database.Host)
	}
	if cfg.Sync.BatchSizeLimit != 450 {
		t.Errorf("expected default batch size 450, got %d", cfg.Sync.BatchSizeLimit)
	}
	if cfg.Glide.BaseURL == "" {
		t.Error("expected default Glide base URL")
	}
}

func TestLoad_RejectsInvalidBatchSize(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("SYNC_BATCH_SIZE_LIMIT", "0")

	if _, err := Load("dev"); err == nil {
		t.Error("expected validation error for zero batch size")
	}
}

func TestConnectionString(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "rowsync",
		Password: "secret",
		Database: "rowsync_engine",
		SSLMode:  "disable",
	}

	got := cfg.ConnectionString()
	want := "host=localhost port=5432 user=rowsync password=secret dbname=rowsync_engine sslmode=disable"
	if got != want {
		t.Errorf("ConnectionString() = %q, expected %q", got, want)
	}
}
