package httpapi

import (
	"context"
	"net/http"
	"time"
)

// serverBaseCtx is cancelled on process shutdown. Long-lived handlers
// (infer, events) stop when either it or the request context ends.
var serverBaseCtx = context.Background()

// SetBaseContext installs the shutdown context; nil resets it.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts is done as soon as a or b is. Call the returned func to
// release the AfterFunc registration.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// handlerContext joins the request with the server lifetime and applies
// limit when positive.
func handlerContext(r *http.Request, limit time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if limit <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, limit)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
