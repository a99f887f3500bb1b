package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension and merges it onto
// Defaults(). Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays AILIB_* variables read through getenv. Malformed numbers
// are reported rather than silently ignored.
func ApplyEnv(cfg Config, getenv func(string) string) (Config, error) {
	if v := getenv("AILIB_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("AILIB_MODELS_DIR"); v != "" {
		cfg.ModelsDir = v
	}
	if v := getenv("AILIB_DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := getenv("AILIB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("AILIB_REDIS_ADDR"); v != "" {
		cfg.CacheOptions.Backend = "redis"
		cfg.CacheOptions.RedisAddr = v
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"AILIB_DEFAULT_TIMEOUT_MS", &cfg.DefaultTimeoutMS},
		{"AILIB_MAX_RETRIES", &cfg.MaxRetries},
		{"AILIB_WORKERS", &cfg.Workers},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", e.key, err)
		}
		*e.dst = n
	}
	return cfg, nil
}
