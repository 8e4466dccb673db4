// File path: internal/pipeline/config_test.go
package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SOPCHECK_CONFIG_FILE", "")
	t.Setenv("SOPCHECK_SIMILARITY_FLOOR", "")
	t.Setenv("SOPCHECK_TOP_K", "")
	t.Setenv("SOPCHECK_WORKERS", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Floor() != defaultSimilarityFloor || cfg.TopK != defaultTopK || cfg.Workers != defaultWorkers {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SOPCHECK_CONFIG_FILE", "")
	t.Setenv("SOPCHECK_SIMILARITY_FLOOR", "0.5")
	t.Setenv("SOPCHECK_TOP_K", "9")
	t.Setenv("SOPCHECK_WORKERS", "2")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Floor() != 0.5 || cfg.TopK != 9 || cfg.Workers != 2 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigZeroFloorIsMeaningful(t *testing.T) {
	t.Setenv("SOPCHECK_CONFIG_FILE", "")
	t.Setenv("SOPCHECK_SIMILARITY_FLOOR", "0")
	t.Setenv("SOPCHECK_TOP_K", "")
	t.Setenv("SOPCHECK_WORKERS", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Floor() != 0 {
		t.Fatalf("floor 0 must survive defaulting, got %v", cfg.Floor())
	}
}

func TestLoadConfigRejectsBadFloor(t *testing.T) {
	t.Setenv("SOPCHECK_CONFIG_FILE", "")
	t.Setenv("SOPCHECK_SIMILARITY_FLOOR", "1.5")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("floor above 1 must be rejected")
	}
	t.Setenv("SOPCHECK_SIMILARITY_FLOOR", "not-a-number")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("non-numeric floor must be rejected")
	}
}

func TestLoadConfigFileMergedWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sopcheck.yaml")
	content := "similarity_floor: 0.25\ntop_k: 7\nworkers: 8\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SOPCHECK_CONFIG_FILE", path)
	t.Setenv("SOPCHECK_SIMILARITY_FLOOR", "")
	t.Setenv("SOPCHECK_TOP_K", "3")
	t.Setenv("SOPCHECK_WORKERS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Env beats file; file beats defaults.
	if cfg.Floor() != 0.25 || cfg.TopK != 3 || cfg.Workers != 8 {
		t.Fatalf("merge wrong: %+v", cfg)
	}
}
