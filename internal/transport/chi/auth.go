package chi

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ratevault/internal/logger"
	"github.com/kailas-cloud/ratevault/internal/transport/api"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type callerKey struct{}

// ContextWithCaller stores the authenticated caller address.
func ContextWithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	c, ok := ctx.Value(callerKey{}).(common.Address)
	return c, ok
}

// BearerAuthMiddleware maps Bearer tokens to caller addresses.
// If principals is empty, authentication is disabled: requests pass through without a caller
// and only read endpoints succeed.
func BearerAuthMiddleware(principals map[string]common.Address) func(http.Handler) http.Handler {
	valid := make(map[string]common.Address, len(principals))
	for token, addr := range principals {
		if token != "" {
			valid[token] = addr
		}
	}

	return func(next http.Handler) http.Handler {
		if len(valid) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, api.ErrorResponseCodeUnauthenticated, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					api.ErrorResponseCodeUnauthenticated, "authorization header must use Bearer scheme")
				return
			}

			caller, ok := valid[auth[len(bearerPrefix):]]
			if !ok {
				writeError(w, http.StatusUnauthorized, api.ErrorResponseCodeUnauthenticated, "invalid token")
				return
			}

			annotateCaller(r.Context(), caller)
			ctx := logger.With(ContextWithCaller(r.Context(), caller), zap.String("principal", caller.Hex()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
