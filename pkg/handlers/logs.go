package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/auth"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
	"github.com/grouplog-io/grouplog-engine/pkg/services"
)

// filterDateLayout is the wire format for date_after and date_before.
const filterDateLayout = "2006-01-02"

// LogsHandler exposes a group's logs over HTTP.
type LogsHandler struct {
	logs   *services.LogService
	logger *zap.Logger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(logs *services.LogService, logger *zap.Logger) *LogsHandler {
	return &LogsHandler{logs: logs, logger: logger}
}

// RegisterRoutes registers the log routes on the given mux.
func (h *LogsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/groups/{gid}/logs", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/groups/{gid}/logs", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/groups/{gid}/logs/categories", authMiddleware.RequireAuth(h.Categories))
	mux.HandleFunc("GET /api/groups/{gid}/equipment", authMiddleware.RequireAuth(h.Equipment))
}

// List handles GET /api/groups/{gid}/logs.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	page, err := h.logs.ListLogs(r.Context(), caller, r.PathValue("gid"), filters)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, page)
}

// Create handles POST /api/groups/{gid}/logs.
func (h *LogsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var entry models.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	record, err := h.logs.CreateLog(r.Context(), caller, r.PathValue("gid"), &entry)
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, record)
}

// Categories handles GET /api/groups/{gid}/logs/categories.
func (h *LogsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	categories, err := h.logs.ListCategories(r.Context(), caller, r.PathValue("gid"))
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}

// Equipment handles GET /api/groups/{gid}/equipment.
func (h *LogsHandler) Equipment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	groups, err := h.logs.ListEquipment(r.Context(), caller, r.PathValue("gid"), r.URL.Query().Get("search"))
	if err != nil {
		_ = ServiceError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"equipment_groups": groups})
}

// callerFrom builds the service-layer caller identity from validated claims.
func callerFrom(r *http.Request) (services.Caller, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok || claims == nil || claims.Subject == "" {
		return services.Caller{}, false
	}
	return services.Caller{
		UserID: claims.Subject,
		Name:   claims.Name,
		Admin:  claims.IsAdmin(),
	}, true
}

// parseFilters reads the optional list query parameters. Anything malformed
// is rejected up front rather than silently ignored.
func parseFilters(r *http.Request) (*models.LogFilters, error) {
	q := r.URL.Query()
	filters := &models.LogFilters{
		Category:    q.Get("category"),
		Equipment:   q.Get("equipment"),
		UserFilter:  q.Get("user"),
		TitleSearch: q.Get("search"),
	}

	if v := q.Get("verified"); v != "" {
		verified, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid verified value %q", v)
		}
		filters.Verified = &verified
	}

	for name, dst := range map[string]**time.Time{
		"date_after":  &filters.DateAfter,
		"date_before": &filters.DateBefore,
	} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(filterDateLayout, v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q, expected YYYY-MM-DD", name, v)
			}
			*dst = &t
		}
	}

	sortKey, err := models.ParseSortKey(q.Get("sort_by"))
	if err != nil {
		return nil, err
	}
	filters.SortBy = sortKey
	filters.SortDesc = q.Get("order") != "asc"

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid limit value %q", v)
		}
		filters.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid offset value %q", v)
		}
		filters.Offset = offset
	}

	return filters, nil
}
