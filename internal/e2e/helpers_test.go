package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ailib/internal/config"
	"ailib/internal/httpapi"
	"ailib/internal/manager"
	"ailib/internal/model"
	"ailib/pkg/types"
)

// baseConfig is Defaults with the rate limiter off so tests never wait on
// tokens.
func baseConfig() config.Config {
	cfg := config.Defaults()
	cfg.RateLimitOptions.Enabled = false
	cfg.DefaultModel = "echo"
	return cfg
}

// newServer starts an httptest server over a real manager.
func newServer(t *testing.T, cfg config.Config, models ...model.Model) (*httptest.Server, *manager.Manager) {
	t.Helper()
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		Config:     cfg,
		Models:     models,
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	mgr.StartWorkers(ctx, cfg.Workers)
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = mgr.Close()
	})
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// lastDone decodes the final NDJSON line of an /infer body.
func lastDone(t *testing.T, body []byte) types.InferDone {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	var done types.InferDone
	if err := json.Unmarshal(lines[len(lines)-1], &done); err != nil {
		t.Fatalf("decode final line %q: %v", lines[len(lines)-1], err)
	}
	return done
}

// waitJob polls GET /jobs/{id} until the job leaves pending/processing.
func waitJob(t *testing.T, base, id string) types.JobStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, body := httpGet(t, base+"/jobs/"+id)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("/jobs/%s status=%d body=%s", id, resp.StatusCode, body)
		}
		var js types.JobStatus
		if err := json.Unmarshal(body, &js); err != nil {
			t.Fatalf("job json: %v body=%s", err, body)
		}
		if js.Status == types.StatusCompleted || js.Status == types.StatusFailed {
			return js
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s still %s", id, js.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
