package httpapi

import (
	"bytes"
	"net/http"

	"github.com/rs/zerolog"

	"ailib/internal/logging"
)

// zlog is the structured logger of the HTTP layer; nil means discard.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logger() *zerolog.Logger {
	if zlog == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return zlog
}

var defaultLogLevel = zerolog.InfoLevel

// SetDefaultLogLevel sets the level used when a request carries no override.
func SetDefaultLogLevel(s string) { defaultLogLevel = logging.ParseLevel(s) }

// requestLogLevel honours ?log=<level> (or ?log=1 for debug), then the
// X-Log-Level header, then the default.
func requestLogLevel(r *http.Request) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return zerolog.DebugLevel
		}
		return logging.ParseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return logging.ParseLevel(v)
	}
	return defaultLogLevel
}

// requestLogger is the package logger tagged with the request id, at the
// level the request asked for.
func requestLogger(r *http.Request, rid string) zerolog.Logger {
	return logger().With().Str("request_id", rid).Logger().Level(requestLogLevel(r))
}

// ndjsonLogWriter logs each complete NDJSON line at debug level.
type ndjsonLogWriter struct {
	log zerolog.Logger
	buf []byte
}

func (lw *ndjsonLogWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		line, rest, ok := bytes.Cut(lw.buf, []byte{'\n'})
		if !ok {
			break
		}
		if len(line) > 0 {
			lw.log.Debug().Bytes("line", line).Msg("infer>")
		}
		lw.buf = rest
	}
	return len(p), nil
}
