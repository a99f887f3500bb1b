package config

import (
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/ailib-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_MalformedFiles(t *testing.T) {
	d := t.TempDir()
	cases := map[string]string{
		"bad.yaml": "addr: :8080\n: broken\n",
		"bad.json": `{ "addr": ":8080", "models_dir": }`,
		"bad.toml": "addr=:8080\nmodels_dir\n",
	}
	for name, body := range cases {
		p := writeTempFile(t, d, name, body)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected unmarshal error", name)
		}
	}
}

func TestWithDefaultsFillsZeroes(t *testing.T) {
	cfg := Config{LogLevel: "debug"}.WithDefaults()
	if cfg.LogLevel != "debug" {
		t.Fatalf("explicit value overwritten: %q", cfg.LogLevel)
	}
	if cfg.DefaultTimeout().Milliseconds() != 30000 || cfg.CacheOptions.MaxSize != 100 || cfg.RefillInterval().Seconds() != 1 {
		t.Fatalf("defaults missing: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"AILIB_ADDR":               ":1234",
		"AILIB_LOG_LEVEL":          "DEBUG",
		"AILIB_DEFAULT_TIMEOUT_MS": "250",
		"AILIB_REDIS_ADDR":         "localhost:6379",
	}
	cfg, err := ApplyEnv(Defaults(), func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Addr != ":1234" || cfg.LogLevel != "debug" || cfg.DefaultTimeoutMS != 250 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.CacheOptions.Backend != "redis" || cfg.CacheOptions.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected cache options: %+v", cfg.CacheOptions)
	}

	env["AILIB_MAX_RETRIES"] = "many"
	if _, err := ApplyEnv(Defaults(), func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected error for malformed AILIB_MAX_RETRIES")
	}
}

func TestStoreUpdate(t *testing.T) {
	s, err := NewStore(Defaults())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	got, err := s.Update(func(c *Config) { c.MaxRetries = 1 })
	if err != nil || got.MaxRetries != 1 || s.Get().MaxRetries != 1 {
		t.Fatalf("update not applied: %+v %v", got, err)
	}
	if _, err := s.Update(func(c *Config) { c.LogLevel = "nope" }); err == nil {
		t.Fatalf("expected invalid update to be rejected")
	}
	if s.Get().LogLevel != "info" {
		t.Fatalf("rejected update leaked: %q", s.Get().LogLevel)
	}

	// snapshots are independent copies
	snap := s.Get()
	snap.Plugins = map[string]bool{PluginTracing: true}
	if s.Get().Plugins != nil {
		t.Fatalf("snapshot mutation leaked into store")
	}
}
