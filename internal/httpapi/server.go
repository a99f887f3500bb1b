package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ailib/internal/notify"
	"ailib/internal/registry"
	"ailib/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.ModelInfo
	Search(c registry.Criteria) []types.ModelInfo
	Status() types.StatusResponse
	Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error
	Submit(modelID string, params map[string]any) (string, error)
	Job(id string) (types.JobStatus, bool)
	Subscribe(buffer int, names ...string) *notify.Subscription
	Ready() bool
}

// NewMux builds the router. Package-level settings (Set* and Configure)
// are read here, so apply them first.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if c := settings.CORS; c.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(c.AllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(c.AllowedMethods, []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: orDefault(c.AllowedHeaders, []string{"Content-Type", "X-Log-Level"}),
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}

	// Operational endpoints stay outside the ingress limiter.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	r.Group(func(r chi.Router) {
		if ingressRPS > 0 {
			r.Use(newIngressLimiter(ingressRPS, ingressBurst).middleware)
		}
		r.Get("/models", h.models)
		r.Get("/status", h.status)
		r.Post("/infer", h.infer)
		r.Post("/jobs", h.submitJob)
		r.Get("/jobs/{id}", h.getJob)
		r.Get("/events", h.events)
	})
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

type handlers struct {
	svc Service
}

// models godoc
// @Summary      List or search models
// @Tags         models
// @Produce      json
// @Param        category query string false "comma-separated categories (any)"
// @Param        tag      query string false "comma-separated tags (any)"
// @Param        name     query string false "exact model name"
// @Param        version  query string false "exact model version"
// @Success      200 {object} types.ModelsResponse
// @Router       /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := registry.Criteria{
		Categories: splitCSV(q.Get("category")),
		Tags:       splitCSV(q.Get("tag")),
		Name:       q.Get("name"),
		Version:    q.Get("version"),
	}
	var models []types.ModelInfo
	if len(c.Categories)+len(c.Tags) == 0 && c.Name == "" && c.Version == "" {
		models = h.svc.ListModels()
	} else {
		models = h.svc.Search(c)
	}
	if models == nil {
		models = []types.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
}

// status godoc
// @Summary      Pipeline status
// @Tags         status
// @Produce      json
// @Success      200 {object} types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// decodeInfer validates content type and body of an inference payload.
func decodeInfer(w http.ResponseWriter, r *http.Request) (types.InferRequest, bool) {
	var req types.InferRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, settings.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// oversize bodies also land here; keep the message generic
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return req, false
	}
	return req, true
}

// trackingWriter remembers whether the response body has started.
type trackingWriter struct {
	w       io.Writer
	started bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	t.started = true
	return t.w.Write(p)
}

// infer godoc
// @Summary      Run inference
// @Description  Streams NDJSON: {"token": ...} lines when stream is true, then a final done line.
// @Tags         inference
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request body types.InferRequest true "inference request"
// @Success      200 {object} types.InferDone
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      504 {object} types.ErrorResponse
// @Router       /infer [post]
func (h *handlers) infer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInfer(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	start := time.Now()
	log := requestLogger(r, middleware.GetReqID(r.Context()))

	out := &trackingWriter{w: w}
	var writer io.Writer = out
	if log.GetLevel() <= zerolog.DebugLevel {
		writer = io.MultiWriter(out, &ndjsonLogWriter{log: log})
	}
	log.Info().Str("path", r.URL.Path).Str("model", req.Model).Bool("stream", req.Stream).Msg("infer start")

	ctx, cancel := handlerContext(r, settings.InferTimeout)
	defer cancel()

	err := h.svc.Infer(ctx, req, writer, flush)
	if err == nil {
		log.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("infer end")
		return
	}
	// client disconnect or shutdown: nobody to answer
	if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
		return
	}
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure(backpressureReason(err))
	}
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("infer end")
	if out.started {
		// headers are gone; report in-band as the last line
		b, _ := json.Marshal(types.ErrorResponse{Error: err.Error(), Code: status})
		_, _ = w.Write(append(b, '\n'))
		if flush != nil {
			flush()
		}
		return
	}
	writeJSONError(w, status, err.Error())
}

// submitJob godoc
// @Summary      Submit an asynchronous inference job
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body types.InferRequest true "inference request"
// @Success      202 {object} types.JobStatus
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Router       /jobs [post]
func (h *handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeInfer(w, r)
	if !ok {
		return
	}
	id, err := h.svc.Submit(req.Model, req.ToParams())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure(backpressureReason(err))
		}
		writeJSONError(w, status, err.Error())
		return
	}
	js, ok := h.svc.Job(id)
	if !ok {
		js = types.JobStatus{ID: id, ModelID: req.Model, Status: types.StatusPending}
	}
	w.Header().Set("Location", "/jobs/"+id)
	writeJSON(w, http.StatusAccepted, js)
}

// getJob godoc
// @Summary      Job status
// @Tags         jobs
// @Produce      json
// @Param        id path string true "job id"
// @Success      200 {object} types.JobStatus
// @Failure      404 {object} types.ErrorResponse
// @Router       /jobs/{id} [get]
func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	js, ok := h.svc.Job(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, js)
}

// events godoc
// @Summary      Server-sent pipeline events
// @Tags         events
// @Produce      text/event-stream
// @Param        name query string false "comma-separated event names to receive"
// @Router       /events [get]
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub := h.svc.Subscribe(notify.DefaultBuffer, splitCSV(r.URL.Query().Get("name"))...)
	defer sub.Close()
	sseClients.Inc()
	defer sseClients.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := handlerContext(r, 0)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSE(w, e); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger().Debug().Err(err).Msg("events: write failed")
				}
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, e types.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, b)
	return err
}

// splitCSV splits a comma-separated list, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
