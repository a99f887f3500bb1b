package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ailib/internal/config"
	"ailib/internal/errs"
	"ailib/internal/notify"
	"ailib/pkg/types"
)

// blockService blocks Infer until the context is done.
type blockService struct{ mockService }

func (b *blockService) Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestInferTimeoutReturns500(t *testing.T) {
	defer SetInferTimeout(0)
	SetInferTimeout(50 * time.Millisecond)
	h := NewMux(&blockService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postJSON("/infer", `{"prompt":"x"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on timeout, got %d", rec.Code)
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORS(config.CORSOptions{Enabled: true, AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "OPTIONS"}, AllowedHeaders: []string{"Content-Type"}})
	defer SetCORS(config.CORSOptions{})

	h := NewMux(&mockService{ready: true})
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected Access-Control-Allow-Origin to be set")
	}
}

func TestIngressLimiterRejectsBurst(t *testing.T) {
	SetIngressLimit(1, 2)
	defer SetIngressLimit(0, 0)
	h := NewMux(&mockService{})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v", codes)
	}
	// health probes are never limited
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz limited: %d", rec.Code)
	}
}

func TestIngressLimiterIsPerClient(t *testing.T) {
	l := newIngressLimiter(1, 1)
	now := time.Now()
	if !l.allow("a", now) || l.allow("a", now) {
		t.Fatalf("client a should get exactly one token")
	}
	if !l.allow("b", now) {
		t.Fatalf("client b shares a's bucket")
	}
	if !l.allow("a", now.Add(time.Second)) {
		t.Fatalf("client a did not refill")
	}
}

func TestSubmitAndGetJob(t *testing.T) {
	var gotModel string
	var gotParams map[string]any
	svc := &mockService{
		jobs: map[string]types.JobStatus{"job-1": {ID: "job-1", ModelID: "echo", Status: types.StatusPending}},
		submitFn: func(modelID string, params map[string]any) (string, error) {
			gotModel, gotParams = modelID, params
			return "job-1", nil
		},
	}
	h := NewMux(svc)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postJSON("/jobs", `{"model":"echo","prompt":"later","max_tokens":8}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Location") != "/jobs/job-1" {
		t.Fatalf("location=%q", rec.Header().Get("Location"))
	}
	if gotModel != "echo" || gotParams["prompt"] != "later" || gotParams["max_tokens"] != 8 {
		t.Fatalf("submitted %s %v", gotModel, gotParams)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil))
	var js types.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &js); err != nil || js.Status != types.StatusPending {
		t.Fatalf("job: %+v %v", js, err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job status=%d", rec.Code)
	}
}

func TestSubmitJobErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"busy":    {errs.TooBusy("request queue"), http.StatusTooManyRequests},
		"missing": {errs.ModelNotFound("x"), http.StatusNotFound},
	}
	for name, c := range cases {
		svc := &mockService{submitFn: func(string, map[string]any) (string, error) { return "", c.err }}
		rec := httptest.NewRecorder()
		NewMux(svc).ServeHTTP(rec, postJSON("/jobs", `{"prompt":"x"}`))
		if rec.Code != c.want {
			t.Fatalf("%s: status=%d want %d", name, rec.Code, c.want)
		}
	}
}

func TestEventsStreamsSSE(t *testing.T) {
	svc := &mockService{bus: notify.NewBus()}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?name=request_done", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	// the subscription exists once headers are flushed
	svc.bus.Publish(types.Event{Name: "chunk", RequestID: "r1"})
	svc.bus.Publish(types.Event{Name: "request_done", RequestID: "r1"})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == 2 {
			break
		}
	}
	if len(lines) != 2 || lines[0] != "event: request_done" || !strings.HasPrefix(lines[1], "data: ") {
		t.Fatalf("sse lines: %v", lines)
	}
	var e types.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &e); err != nil || e.RequestID != "r1" {
		t.Fatalf("event: %+v %v", e, err)
	}
}
