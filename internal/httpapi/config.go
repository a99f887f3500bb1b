package httpapi

import (
	"time"

	"ailib/internal/config"
)

const defaultMaxBodyBytes int64 = 1 << 20

// Settings are the HTTP knobs read by NewMux and the handlers. They are
// package state, so apply them before serving.
type Settings struct {
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
	// InferTimeout bounds a whole /infer call, retries included. Zero leaves
	// it to the pipeline's per-attempt model timeout.
	InferTimeout time.Duration
	// CORS adds the cors middleware when Enabled.
	CORS config.CORSOptions
}

var settings = Settings{MaxBodyBytes: defaultMaxBodyBytes}

// CurrentSettings returns a copy of the active settings.
func CurrentSettings() Settings {
	s := settings
	s.CORS = cloneCORS(s.CORS)
	return s
}

// SetMaxBodyBytes sets the body cap; non-positive restores the 1 MiB default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	settings.MaxBodyBytes = n
}

// SetInferTimeout sets the /infer deadline (negative means none).
func SetInferTimeout(d time.Duration) {
	settings.InferTimeout = max(d, 0)
}

// SetCORS replaces the CORS options.
func SetCORS(o config.CORSOptions) { settings.CORS = cloneCORS(o) }

func cloneCORS(o config.CORSOptions) config.CORSOptions {
	o.AllowedOrigins = append([]string(nil), o.AllowedOrigins...)
	o.AllowedMethods = append([]string(nil), o.AllowedMethods...)
	o.AllowedHeaders = append([]string(nil), o.AllowedHeaders...)
	return o
}

// Configure applies the HTTP-related parts of cfg. Call it before NewMux.
func Configure(cfg config.Config) {
	SetMaxBodyBytes(cfg.MaxBodyBytes)
	SetCORS(cfg.CORS)
	SetIngressLimit(cfg.IngressRPS, cfg.IngressBurst)
	SetDefaultLogLevel(cfg.LogLevel)
}
