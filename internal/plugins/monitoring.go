package plugins

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/internal/plugin"
	"ailib/pkg/types"
)

var startTimeKey = annotationKey(config.PluginPerformanceMonitoring, "startTime")

type modelStats struct {
	total    time.Duration
	count    int64
	failures int64
}

// PerformanceMonitoring times every attempt per model.
type PerformanceMonitoring struct {
	now  func() time.Time
	hist *prometheus.HistogramVec

	mu    sync.Mutex
	stats map[string]*modelStats
}

// MonitoringOptions configures PerformanceMonitoring.
type MonitoringOptions struct {
	// Registerer receives the execution histogram; nil skips Prometheus.
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// NewPerformanceMonitoring builds the plugin, registering
// ailib_model_execution_seconds when a registerer is given.
func NewPerformanceMonitoring(o MonitoringOptions) *PerformanceMonitoring {
	p := &PerformanceMonitoring{now: o.Now, stats: make(map[string]*modelStats)}
	if p.now == nil {
		p.now = time.Now
	}
	if o.Registerer != nil {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ailib_model_execution_seconds",
			Help:    "Model execution time per attempt.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"model", "outcome"})
		if err := o.Registerer.Register(h); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				h = are.ExistingCollector.(*prometheus.HistogramVec)
			} else {
				h = nil
			}
		}
		p.hist = h
	}
	return p
}

func (p *PerformanceMonitoring) Name() string { return config.PluginPerformanceMonitoring }

func (p *PerformanceMonitoring) PreExecution(_ context.Context, _ model.Model, req *types.Request) error {
	req.Annotate(startTimeKey, p.now())
	return nil
}

func (p *PerformanceMonitoring) PostExecution(_ context.Context, _ model.Model, req *types.Request, res plugin.Result) (plugin.Outcome, error) {
	v, ok := req.Annotation(startTimeKey)
	start, _ := v.(time.Time)
	if !ok || start.IsZero() {
		return plugin.Outcome{}, nil
	}
	elapsed := p.now().Sub(start)
	id := req.Target()

	p.mu.Lock()
	s := p.stats[id]
	if s == nil {
		s = &modelStats{}
		p.stats[id] = s
	}
	s.total += elapsed
	s.count++
	if res.Err != nil {
		s.failures++
	}
	p.mu.Unlock()

	if p.hist != nil {
		outcome := "success"
		if res.Err != nil {
			outcome = "error"
		}
		p.hist.WithLabelValues(id, outcome).Observe(elapsed.Seconds())
	}
	return plugin.Outcome{}, nil
}

// AverageExecutionTime is the mean attempt duration for modelID, zero if the
// model was never called.
func (p *PerformanceMonitoring) AverageExecutionTime(modelID string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats[modelID]
	if s == nil || s.count == 0 {
		return 0
	}
	return s.total / time.Duration(s.count)
}

// Metrics returns a snapshot for every model seen.
func (p *PerformanceMonitoring) Metrics() map[string]types.ModelMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]types.ModelMetrics, len(p.stats))
	for id, s := range p.stats {
		m := types.ModelMetrics{CallCount: s.count, Failures: s.failures, TotalTime: s.total}
		if s.count > 0 {
			m.AvgTimeMS = float64(s.total) / float64(s.count) / float64(time.Millisecond)
		}
		out[id] = m
	}
	return out
}

// ModelIDs lists the models with recorded metrics, sorted.
func (p *PerformanceMonitoring) ModelIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.stats))
	for id := range p.stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
