package rbac

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/floworks/flowgate/pkg/httputil"
	"github.com/floworks/flowgate/pkg/middleware"
	"github.com/floworks/flowgate/pkg/observability"
)

// Handler exposes the authorization engine over HTTP.
type Handler struct {
	checker *Checker
	manager *Manager
	store   Store
	logger  *observability.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(checker *Checker, manager *Manager, store Store, logger *observability.Logger) *Handler {
	return &Handler{
		checker: checker,
		manager: manager,
		store:   store,
		logger:  logger,
	}
}

// RegisterRoutes registers the engine's routes on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/rbac/check", h.Check).Methods(http.MethodPost)
	router.HandleFunc("/rbac/check/batch", h.BatchCheck).Methods(http.MethodPost)
	router.HandleFunc("/rbac/assignments", h.CreateAssignment).Methods(http.MethodPost)
	router.HandleFunc("/rbac/assignments", h.ListAssignments).Methods(http.MethodGet)
	router.HandleFunc("/rbac/assignments/{id:[0-9]+}", h.UpdateAssignment).Methods(http.MethodPut)
	router.HandleFunc("/rbac/assignments/{id:[0-9]+}", h.DeleteAssignment).Methods(http.MethodDelete)
	router.HandleFunc("/rbac/users/{user_id}/permissions", h.UserPermissions).Methods(http.MethodGet)
	router.HandleFunc("/rbac/roles", h.ListRoles).Methods(http.MethodGet)
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var (
		userNotFound       *UserNotFoundError
		roleNotFound       *RoleNotFoundError
		resourceNotFound   *ResourceNotFoundError
		assignmentNotFound *AssignmentNotFoundError
		duplicate          *DuplicateAssignmentError
		immutable          *ImmutableAssignmentError
		invalidScope       *InvalidScopeError
		batchSize          *BatchSizeError
	)
	switch {
	case errors.As(err, &duplicate):
		httputil.WriteConflict(w, err.Error())
	case errors.As(err, &immutable):
		httputil.WriteForbidden(w, err.Error())
	case errors.As(err, &userNotFound),
		errors.As(err, &roleNotFound),
		errors.As(err, &resourceNotFound),
		errors.As(err, &assignmentNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.As(err, &invalidScope), errors.As(err, &batchSize):
		httputil.WriteUnprocessable(w, err.Error())
	default:
		h.logger.WithError(err).Error("authorization request failed")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}

type checkRequest struct {
	UserID     uuid.UUID  `json:"user_id"`
	Permission string     `json:"permission"`
	ScopeType  ScopeType  `json:"scope_type"`
	ScopeID    *uuid.UUID `json:"scope_id,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// Check handles POST /rbac/check.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	if req.Permission == "" {
		httputil.WriteBadRequest(w, "permission is required")
		return
	}

	allowed, err := h.checker.CanAccess(r.Context(), req.UserID, req.Permission, req.ScopeType, req.ScopeID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, checkResponse{Allowed: allowed})
}

type batchCheckRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Checks []Check   `json:"checks"`
}

type batchCheckResponse struct {
	Results []bool `json:"results"`
}

// BatchCheck handles POST /rbac/check/batch. Results come back in request
// order.
func (h *Handler) BatchCheck(w http.ResponseWriter, r *http.Request) {
	var req batchCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	if len(req.Checks) == 0 || len(req.Checks) > MaxBatchChecks {
		h.writeEngineError(w, &BatchSizeError{Count: len(req.Checks)})
		return
	}

	results, err := h.checker.BatchCanAccess(r.Context(), req.UserID, req.Checks)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, batchCheckResponse{Results: results})
}

type createAssignmentRequest struct {
	UserID    uuid.UUID  `json:"user_id"`
	Role      string     `json:"role"`
	ScopeType ScopeType  `json:"scope_type"`
	ScopeID   *uuid.UUID `json:"scope_id,omitempty"`
	Immutable bool       `json:"immutable"`
}

// CreateAssignment handles POST /rbac/assignments.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	if req.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}

	var createdBy *uuid.UUID
	if callerID, ok := middleware.CallerID(r.Context()); ok {
		createdBy = &callerID
	}

	assignment, err := h.manager.AssignRole(r.Context(), req.UserID, req.Role, req.ScopeType, req.ScopeID, createdBy, req.Immutable)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httputil.WriteCreated(w, assignment)
}

// ListAssignments handles GET /rbac/assignments, optionally filtered by
// user_id.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.ParseQueryUUID(r, "user_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	assignments, err := h.manager.ListUserAssignments(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if assignments == nil {
		assignments = []Assignment{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"assignments": assignments})
}

type updateAssignmentRequest struct {
	Role string `json:"role"`
}

// UpdateAssignment handles PUT /rbac/assignments/{id}, swapping the role.
func (h *Handler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req updateAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}

	var actor *uuid.UUID
	if callerID, ok := middleware.CallerID(r.Context()); ok {
		actor = &callerID
	}

	assignment, err := h.manager.UpdateRole(r.Context(), id, req.Role, actor)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, assignment)
}

// DeleteAssignment handles DELETE /rbac/assignments/{id}.
func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var actor *uuid.UUID
	if callerID, ok := middleware.CallerID(r.Context()); ok {
		actor = &callerID
	}

	if err := h.manager.RemoveRole(r.Context(), id, actor); err != nil {
		h.writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// UserPermissions handles GET /rbac/users/{user_id}/permissions.
func (h *Handler) UserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	scope, err := ParseScopeType(httputil.ParseQueryString(r, "scope", string(ScopeGlobal)))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	scopeID, err := httputil.ParseQueryUUID(r, "scope_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	permissions, err := h.manager.GetUserPermissionsForScope(r.Context(), userID, scope, scopeID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if permissions == nil {
		permissions = []Permission{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": permissions})
}

// ListRoles handles GET /rbac/roles.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}
