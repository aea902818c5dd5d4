package rbac

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/floworks/flowgate/pkg/httputil"
	"github.com/floworks/flowgate/pkg/middleware"
)

// PermissionMiddleware guards routes with permission checks against the
// authenticated caller.
type PermissionMiddleware struct {
	checker *Checker
}

// NewPermissionMiddleware creates a permission middleware.
func NewPermissionMiddleware(checker *Checker) *PermissionMiddleware {
	return &PermissionMiddleware{checker: checker}
}

// RequirePermission guards a route with a permission check. For project and
// flow scopes, scopeVar names the mux path variable carrying the resource's
// UUID.
//
// A caller without the permission gets 403 even when the resource does not
// exist; existence is only revealed to callers the check already admits.
func (pm *PermissionMiddleware) RequirePermission(permission string, scope ScopeType, scopeVar string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID, ok := middleware.CallerID(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			var scopeID *uuid.UUID
			if scope != ScopeGlobal {
				raw := mux.Vars(r)[scopeVar]
				parsed, err := uuid.Parse(raw)
				if err != nil {
					httputil.WriteBadRequest(w, "invalid "+scopeVar)
					return
				}
				scopeID = &parsed
			}

			allowed, err := pm.checker.CanAccess(r.Context(), callerID, permission, scope, scopeID)
			if err != nil {
				var userNotFound *UserNotFoundError
				if errors.As(err, &userNotFound) {
					httputil.WriteForbidden(w, "insufficient permissions")
					return
				}
				httputil.WriteInternalError(w, errors.New("permission check failed"))
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireGlobalRole guards a route with a global role requirement, bypassing
// permission resolution. Superusers always pass.
func (pm *PermissionMiddleware) RequireGlobalRole(roleName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID, ok := middleware.CallerID(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			user, err := pm.checker.users.GetUser(r.Context(), callerID)
			if err != nil {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}
			if user.IsSuperuser {
				next.ServeHTTP(w, r)
				return
			}

			hasRole, err := pm.checker.store.HasGlobalRole(r.Context(), callerID, roleName)
			if err != nil {
				httputil.WriteInternalError(w, errors.New("role check failed"))
				return
			}
			if !hasRole {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
