package clog

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ChiOption configures SlogChiMiddleware.
type ChiOption func(*chiLogger)

// WithChiSkip leaves requests matching skip unlogged, e.g. health probes.
func WithChiSkip(skip func(r *http.Request) bool) ChiOption {
	return func(l *chiLogger) {
		l.skip = skip
	}
}

type chiLogger struct {
	skip func(r *http.Request) bool
}

// SlogChiMiddleware logs one record per plain HTTP request, levelled by the
// status. A websocket upgrade is logged when the push session ends, so its
// duration covers the whole connection.
func SlogChiMiddleware(opts ...ChiOption) func(http.Handler) http.Handler {
	l := &chiLogger{}
	for _, opt := range opts {
		opt(l)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.skip != nil && l.skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			l.serve(next, w, r)
		})
	}
}

func (l *chiLogger) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	push := strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
	ctx := ContextWithSlog(r.Context())
	AddAttributes(ctx, map[string]any{
		"method":      r.Method,
		"procedure":   r.URL.Path,
		"remote_addr": r.RemoteAddr,
	})

	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	next.ServeHTTP(ww, r.WithContext(ctx))

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	AddAttributes(ctx, map[string]any{
		"status":   status,
		"duration": time.Since(started),
	})
	if push {
		logAt(ctx, HTTPStatusToLevel(status), "push session ended")
		return
	}
	AddAttribute(ctx, "bytes_written", ww.BytesWritten())
	logAt(ctx, HTTPStatusToLevel(status), http.StatusText(status))
}
