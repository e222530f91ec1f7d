package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"jobpay/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestID reuses a sane incoming X-Request-ID or mints a UUID, and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context()).Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal server error",
					map[string]any{"request_id": logger.RequestID(r.Context())}))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request, with the level picked from the status code.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		lw := &loggedRequest{}
		next.ServeHTTP(ww, r.WithContext(withLoggedRequest(r.Context(), lw)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"status", status,
			"method", r.Method,
			"path", r.URL.Path,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, "query", r.URL.RawQuery)
		}
		ctx := r.Context()
		if lw.profileID != 0 {
			ctx = logger.WithProfileID(ctx, lw.profileID)
		}
		log := logger.FromContext(ctx)
		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}
	})
}

// loggedRequest lets inner handlers report who made the request to requestLogger.
type loggedRequest struct {
	profileID int64
}

type loggedRequestKey struct{}

func withLoggedRequest(ctx context.Context, lr *loggedRequest) context.Context {
	return context.WithValue(ctx, loggedRequestKey{}, lr)
}

func noteProfile(ctx context.Context, id int64) {
	if lr, ok := ctx.Value(loggedRequestKey{}).(*loggedRequest); ok {
		lr.profileID = id
	}
}
