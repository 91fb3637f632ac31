// Package handler exposes the audit trail HTTP endpoints.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fleetcore_backend/internal/audit/service"
	"fleetcore_backend/internal/audit/transport"
	"fleetcore_backend/platform/httpkit"
	"fleetcore_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the audit trail.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new audit handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Query returns a filtered page of the tenant's audit trail.
// GET /api/v1/audit
func (h *Handler) Query(c *gin.Context) {
	var req transport.QueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	filters := service.QueryFilters{
		TenantID: tenantID,
		Entity:   req.Entity,
		Action:   req.Action,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}
	if req.MemberID != "" {
		memberID, err := uuid.Parse(req.MemberID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid member ID", nil)
			return
		}
		filters.MemberID = &memberID
	}
	from, ok := parseTimestamp(c, req.From, "from")
	if !ok {
		return
	}
	to, ok := parseTimestamp(c, req.To, "to")
	if !ok {
		return
	}
	filters.From = from
	filters.To = to

	result, err := h.svc.Query(c.Request.Context(), filters)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToQueryResponse(result.Logs, result.Total))
}

// Suspicious runs the suspicious behavior detector for one member.
// GET /api/v1/audit/suspicious
func (h *Handler) Suspicious(c *gin.Context) {
	var req transport.SuspicionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid member ID", nil)
		return
	}

	report, err := h.svc.DetectSuspiciousBehavior(c.Request.Context(), tenantID, memberID, req.WindowMinutes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func parseTimestamp(c *gin.Context, raw, field string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+field+" timestamp", nil)
		return nil, false
	}
	return &ts, true
}

func mustGetTenantID(c *gin.Context, identity httpkit.Identity) (uuid.UUID, bool) {
	tenantID := identity.TenantID()
	if tenantID == uuid.Nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return uuid.UUID{}, false
	}
	return tenantID, true
}
