// Package middleware contains HTTP middleware shared by every route.
//
// The request logger writes one line per request. Routes that resolve a
// session (see handler.RequireUser) report the user they resolved through
// SetUserID, so the line for GET /users/me/ carries the caller's id even
// though the user is only known deep inside the handler chain.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type requestInfoKey struct{}

// requestInfo is filled in by inner handlers while the request runs and read
// by Logger once it returns. A request is served by one goroutine, so no lock.
type requestInfo struct {
	userID string
}

// SetUserID records the authenticated user for the current request's log
// line. It is a no-op when Logger is not installed.
func SetUserID(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.userID = userID
	}
}

// Logger returns an HTTP middleware that logs each request with slog.
//
// Each line includes method, path, status, duration, bytes written, the chi
// request id and, once a session was resolved, the user id. The level
// follows the status: 5xx is ERROR, 4xx is WARN, everything else INFO.
//
// quietPaths (health checks, metric scrapes) are logged at DEBUG so the
// probes of a load balancer or Prometheus do not drown real traffic.
//
// Cookies and bodies are never logged: they carry session tokens and passwords.
func Logger(logger *slog.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{}
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

			status := ww.Status()
			if status == 0 {
				// Nothing was written; net/http sends 200.
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			}
			if info.userID != "" {
				attrs = append(attrs, slog.String("userID", info.userID))
			}

			logger.LogAttrs(r.Context(), levelFor(r.URL.Path, status, quiet), "request completed", attrs...)
		})
	}
}

func levelFor(path string, status int, quiet map[string]struct{}) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	if _, ok := quiet[path]; ok {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
