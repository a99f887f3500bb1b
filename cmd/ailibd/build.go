package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"ailib/internal/config"
	"ailib/internal/logging"
	"ailib/internal/manager"
	"ailib/internal/model"
	"ailib/internal/registry"
)

const echoModelID = "echo"

// setupTracing installs a stdout span exporter when tracing is enabled with
// that exporter. The returned shutdown flushes pending spans.
func setupTracing(cfg config.Config, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled(config.PluginTracing) || cfg.Tracing.Exporter != "stdout" {
		return nil, noop, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, noop, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// buildModels returns the builtin echo model plus one llama model per GGUF
// file in the models directory. An unreadable directory is logged, not fatal.
func buildModels(cfg config.Config, log zerolog.Logger) []model.Model {
	models := []model.Model{model.NewEcho(echoModelID, 0)}
	specs, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("models dir not scanned")
		return models
	}
	for _, s := range specs {
		models = append(models, model.NewLlama(s, model.LlamaOptions{}))
	}
	log.Info().Int("gguf", len(specs)).Str("dir", cfg.ModelsDir).Msg("models loaded")
	return models
}

// newManager wires config, logging, tracing and models into a Manager.
// Callers must Close the manager and call shutdown.
func newManager(cfg config.Config, logOut, traceOut io.Writer, reg prometheus.Registerer) (*manager.Manager, zerolog.Logger, func(context.Context) error, error) {
	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: logOut})
	tp, shutdown, err := setupTracing(cfg, traceOut)
	if err != nil {
		return nil, log, nil, err
	}
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		Config:         cfg,
		Models:         buildModels(cfg, log),
		Logger:         &log,
		Registerer:     reg,
		TracerProvider: tp,
	})
	if err != nil {
		_ = shutdown(context.Background())
		return nil, log, nil, err
	}
	return mgr, log, shutdown, nil
}
