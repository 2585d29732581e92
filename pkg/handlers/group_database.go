package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/auth"
	"github.com/grouplog-io/grouplog-engine/pkg/services"
)

// GroupDatabaseHandler exposes the admin endpoints for managing a group's
// database configuration.
type GroupDatabaseHandler struct {
	groupDB *services.GroupDatabaseService
	logger  *zap.Logger
}

// NewGroupDatabaseHandler creates a new GroupDatabaseHandler.
func NewGroupDatabaseHandler(groupDB *services.GroupDatabaseService, logger *zap.Logger) *GroupDatabaseHandler {
	return &GroupDatabaseHandler{groupDB: groupDB, logger: logger}
}

// RegisterRoutes registers the group database routes on the given mux.
func (h *GroupDatabaseHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("PUT /api/groups/{gid}/database", authMiddleware.RequireAuth(h.Configure))
	mux.HandleFunc("GET /api/groups/{gid}/database", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PATCH /api/groups/{gid}/database/enabled", authMiddleware.RequireAuth(h.SetEnabled))
	mux.HandleFunc("POST /api/groups/{gid}/database/test", authMiddleware.RequireAuth(h.Test))
}

// Configure handles PUT /api/groups/{gid}/database.
func (h *GroupDatabaseHandler) Configure(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req services.ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	cfg, err := h.groupDB.Configure(r.Context(), caller, r.PathValue("gid"), &req)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, cfg)
}

// Get handles GET /api/groups/{gid}/database. The encrypted password is
// excluded from serialization at the model level.
func (h *GroupDatabaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	cfg, err := h.groupDB.GetConfig(r.Context(), caller, r.PathValue("gid"))
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, cfg)
}

// SetEnabled handles PATCH /api/groups/{gid}/database/enabled.
func (h *GroupDatabaseHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.groupDB.SetEnabled(r.Context(), caller, r.PathValue("gid"), req.Enabled); err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// Test handles POST /api/groups/{gid}/database/test.
func (h *GroupDatabaseHandler) Test(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req services.TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.groupDB.TestConnection(r.Context(), caller, r.PathValue("gid"), &req); err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
