package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ratevault/internal/logger"
	"github.com/kailas-cloud/ratevault/internal/transport/api"
)

// requestEvent collects fields filled in by inner middlewares for the canonical log line.
type requestEvent struct {
	caller common.Address
}

type requestEventKey struct{}

func annotateCaller(ctx context.Context, caller common.Address) {
	if ev, ok := ctx.Value(requestEventKey{}).(*requestEvent); ok {
		ev.caller = caller
	}
}

// JSONRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func JSONRecoverer(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					log.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, api.ErrorResponseCodeInternalError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
// It expects chi's RequestID middleware to run first.
func WideEventMiddleware(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ev := &requestEvent{}
			ctx := context.WithValue(r.Context(), requestEventKey{}, ev)
			ctx = logger.ContextWithLogger(ctx, reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if ev.caller != (common.Address{}) {
				fields = append(fields, zap.String("caller", ev.caller.Hex()))
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}

// BadRequestHandler renders parameter binding failures from the router.
func BadRequestHandler(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, http.StatusBadRequest, api.ErrorResponseCodeBadRequest, err.Error())
}
