// Package plugins holds the built-in cross-cutting behaviours of the
// execution pipeline. Each type implements plugin.Plugin and whichever hook
// interfaces it needs. Per-request state lives in request annotations keyed
// by the plugin name.
package plugins

import (
	"context"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func annotationKey(plugin, field string) string { return plugin + "." + field }
