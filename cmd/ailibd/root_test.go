package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ailib/internal/config"
	"ailib/pkg/types"
)

func execRoot(t *testing.T, o *rootOptions, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmdWith(o)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func noEnv(string) string { return "" }

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "run": false, "models": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
	for _, f := range []string{"config", "env-file", "addr", "models-dir", "log-level", "log-format"} {
		if root.PersistentFlags().Lookup(f) == nil {
			t.Fatalf("missing persistent flag --%s", f)
		}
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ailib.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9000\"\nworkers: 3\nmax_retries: 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env := map[string]string{"AILIB_WORKERS": "5"}
	o := &rootOptions{configPath: path, addr: ":9100", getenv: func(k string) string { return env[k] }}
	cfg, err := o.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("flag should win over file: addr=%q", cfg.Addr)
	}
	if cfg.Workers != 5 {
		t.Fatalf("env should win over file: workers=%d", cfg.Workers)
	}
	if cfg.MaxRetries != 1 {
		t.Fatalf("file value lost: max_retries=%d", cfg.MaxRetries)
	}
	if cfg.DefaultModel != echoModelID {
		t.Fatalf("default model=%q want %q", cfg.DefaultModel, echoModelID)
	}
}

func TestLoadReadsDotenv(t *testing.T) {
	t.Setenv("AILIB_MAX_RETRIES", "")
	os.Unsetenv("AILIB_MAX_RETRIES")
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("AILIB_MAX_RETRIES=7\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	cfg, err := (&rootOptions{envFile: envFile, getenv: os.Getenv}).load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxRetries != 7 {
		t.Fatalf("max_retries=%d want 7 from dotenv", cfg.MaxRetries)
	}
}

func TestLoadMissingDotenvIsFine(t *testing.T) {
	o := &rootOptions{envFile: filepath.Join(t.TempDir(), "nope.env"), getenv: noEnv}
	if _, err := o.load(); err != nil {
		t.Fatalf("missing dotenv should be ignored: %v", err)
	}
}

func TestLoadBadEnvNumber(t *testing.T) {
	o := &rootOptions{getenv: func(k string) string {
		if k == "AILIB_WORKERS" {
			return "many"
		}
		return ""
	}}
	if _, err := o.load(); err == nil || !strings.Contains(err.Error(), "AILIB_WORKERS") {
		t.Fatalf("expected AILIB_WORKERS error, got %v", err)
	}
}

func TestRunEchoesPrompt(t *testing.T) {
	o := &rootOptions{getenv: noEnv}
	out, _, err := execRoot(t, o, "run", "--env-file", "", "--models-dir", t.TempDir(), "hello", "world")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var done types.InferDone
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &done); err != nil {
		t.Fatalf("decode %q: %v", lines[len(lines)-1], err)
	}
	if !done.Done || done.Content != "hello world" || done.Model != echoModelID {
		t.Fatalf("unexpected final line: %+v", done)
	}
}

func TestRunStreamsTokens(t *testing.T) {
	o := &rootOptions{getenv: noEnv}
	out, _, err := execRoot(t, o, "run", "--env-file", "", "--models-dir", t.TempDir(), "--stream", "a", "b", "c")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := strings.Count(out, `"token"`); n != 3 {
		t.Fatalf("token lines=%d want 3\n%s", n, out)
	}
}

func TestRunUnknownModel(t *testing.T) {
	o := &rootOptions{getenv: noEnv}
	_, _, err := execRoot(t, o, "run", "--env-file", "", "--models-dir", t.TempDir(), "-m", "ghost", "hi")
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestRunMultiFlagBuildsParams(t *testing.T) {
	req := runOptions{models: []string{"a", "b"}}.request([]string{"x", "y"})
	if req.Prompt != "x y" {
		t.Fatalf("prompt=%q", req.Prompt)
	}
	mm, ok := req.Params["multiModel"].(map[string]any)
	if !ok {
		t.Fatalf("multiModel missing: %+v", req.Params)
	}
	ids, _ := mm["modelIds"].([]string)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("modelIds=%v", mm["modelIds"])
	}
}

func TestModelsListsGGUF(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"tinyllama.Q4_K_M.gguf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	out, _, err := execRoot(t, &rootOptions{getenv: noEnv}, "models", "--env-file", "", "--models-dir", dir)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "tinyllama.Q4_K_M.gguf") || !strings.Contains(out, "Q4_K_M") || !strings.Contains(out, "llama") {
		t.Fatalf("gguf row missing:\n%s", out)
	}
	if strings.Contains(out, "notes.txt") {
		t.Fatalf("non-gguf file listed:\n%s", out)
	}
}

func TestModelsMissingDir(t *testing.T) {
	_, _, err := execRoot(t, &rootOptions{getenv: noEnv}, "models", "--env-file", "", "--models-dir", filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestSetupTracing(t *testing.T) {
	cfg := config.Defaults()
	tp, shutdown, err := setupTracing(cfg, &bytes.Buffer{})
	if err != nil || tp != nil {
		t.Fatalf("tracing off: tp=%v err=%v", tp, err)
	}
	_ = shutdown(context.Background())

	cfg.Tracing = config.TracingOptions{Enabled: true, Exporter: "stdout"}
	var buf bytes.Buffer
	tp, shutdown, err = setupTracing(cfg, &buf)
	if err != nil || tp == nil {
		t.Fatalf("tracing on: tp=%v err=%v", tp, err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "probe") {
		t.Fatalf("span not exported: %q", buf.String())
	}
}
