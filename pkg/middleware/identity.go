// Package middleware provides the HTTP middleware chain for the
// authorization service: caller identity, request IDs, and panic recovery.
//
// Token validation is out of scope. The service trusts the platform gateway
// to authenticate requests and forward the caller's user ID in a header.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/floworks/flowgate/pkg/httputil"
	"github.com/floworks/flowgate/pkg/observability"
)

// CallerHeader carries the authenticated caller's user ID, set by the
// gateway in front of this service.
const CallerHeader = "X-Flowgate-User-ID"

type contextKey string

const callerKey contextKey = "flowgate_caller"

// IdentityMiddleware extracts the caller's user ID from the gateway header.
// Requests without a parseable caller ID are rejected with 401.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(CallerHeader)
		if raw == "" {
			httputil.WriteUnauthorized(w, "missing caller identity")
			return
		}
		callerID, err := uuid.Parse(raw)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid caller identity")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, callerID)
		ctx = observability.WithCallerID(ctx, callerID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerID returns the authenticated caller's user ID from the context.
func CallerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(callerKey).(uuid.UUID)
	return id, ok
}

// RequestIDMiddleware assigns each request a UUID, echoing any ID the
// gateway already set.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := observability.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware converts handler panics into 500 responses.
func RecoveryMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithField("panic", rec).
						WithField("path", r.URL.Path).
						Error("handler panic recovered")
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
