package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/frontier/internal/common"
)

// slowRequest is the duration above which a successful request is logged at
// warn. Large num_portfolios values are the usual cause.
const slowRequest = 5 * time.Second

type requestIDKey struct{}

// RequestID returns the correlation id attached by the middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder remembers the status and body size for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.size += n
	return n, err
}

// Flush lets /api/shutdown push its reply before the server stops.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type middleware func(http.Handler) http.Handler

// chain wraps h so that mws run in the order given.
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// recoveryMiddleware turns a handler panic into a 500 response.
func recoveryMiddleware(logger *common.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger.Error().
					Str("panic", fmt.Sprint(rec)).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("correlation_id", w.Header().Get("X-Correlation-ID")).
					Msg("Handler panicked")
				WriteError(w, http.StatusInternalServerError, "Internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware opens the API to browser front ends on any origin.
// Preflight requests are answered with 204 and never reach a handler.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, X-Request-ID, X-Correlation-ID")
		h.Set("Access-Control-Expose-Headers", "X-Correlation-ID")
		h.Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// correlationIDMiddleware reuses X-Request-ID or X-Correlation-ID from the
// caller, otherwise mints a short id. The id is echoed in the response and
// stored on the request context.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = r.Header.Get("X-Correlation-ID")
		}
		if id == "" {
			id = uuid.NewString()[:8]
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// deadlineMiddleware bounds the request context. Simulations and price
// fetches observe the context, so an abandoned or oversized run stops
// instead of holding workers. Zero disables it.
func deadlineMiddleware(timeout time.Duration) middleware {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggingMiddleware writes one line per request. 5xx logs at error, 4xx at
// info, slow successes at warn and everything else at trace.
func loggingMiddleware(logger *common.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			elapsed := time.Since(start)

			event := logger.Trace()
			switch {
			case sr.status >= http.StatusInternalServerError:
				event = logger.Error()
			case sr.status >= http.StatusBadRequest:
				event = logger.Info()
			case elapsed >= slowRequest:
				event = logger.Warn()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", sr.status).
				Int("bytes", sr.size).
				Dur("duration", elapsed).
				Str("correlation_id", RequestID(r.Context())).
				Msg("HTTP request")
		})
	}
}

// applyMiddleware builds the stack: recovery, cors, correlation id, request
// deadline, then logging closest to the mux.
func applyMiddleware(handler http.Handler, logger *common.Logger, timeout time.Duration) http.Handler {
	return chain(handler,
		recoveryMiddleware(logger),
		corsMiddleware,
		correlationIDMiddleware,
		deadlineMiddleware(timeout),
		loggingMiddleware(logger),
	)
}
