// File path: internal/pipeline/config.go
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config tunes the evaluation pipeline. Values come from an optional YAML
// file merged with environment overrides; defaults fill the rest. The
// similarity floor is a pointer because zero is a meaningful value (admit
// every clause), not an unset one.
type Config struct {
	SimilarityFloor *float64 `yaml:"similarity_floor"`
	TopK            int      `yaml:"top_k"`
	Workers         int      `yaml:"workers"`
}

const (
	defaultSimilarityFloor = 0.35
	defaultTopK            = 5
	defaultWorkers         = 4
)

func (c Config) Merge(override Config) Config {
	result := c
	if override.SimilarityFloor != nil {
		result.SimilarityFloor = override.SimilarityFloor
	}
	if override.TopK > 0 {
		result.TopK = override.TopK
	}
	if override.Workers > 0 {
		result.Workers = override.Workers
	}
	return result
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("SOPCHECK_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SimilarityFloor == nil {
		floor := defaultSimilarityFloor
		c.SimilarityFloor = &floor
	}
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
}

// Floor returns the effective similarity floor.
func (c Config) Floor() float64 {
	if c.SimilarityFloor == nil {
		return defaultSimilarityFloor
	}
	return *c.SimilarityFloor
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read pipeline config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse pipeline config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{}
	if raw := strings.TrimSpace(os.Getenv("SOPCHECK_SIMILARITY_FLOOR")); raw != "" {
		floor, err := strconv.ParseFloat(raw, 64)
		if err != nil || floor < 0 || floor > 1 {
			return Config{}, fmt.Errorf("invalid SOPCHECK_SIMILARITY_FLOOR %q", raw)
		}
		cfg.SimilarityFloor = &floor
	}
	if raw := strings.TrimSpace(os.Getenv("SOPCHECK_TOP_K")); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 {
			return Config{}, fmt.Errorf("invalid SOPCHECK_TOP_K %q", raw)
		}
		cfg.TopK = k
	}
	if raw := strings.TrimSpace(os.Getenv("SOPCHECK_WORKERS")); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w <= 0 {
			return Config{}, fmt.Errorf("invalid SOPCHECK_WORKERS %q", raw)
		}
		cfg.Workers = w
	}
	return cfg, nil
}
