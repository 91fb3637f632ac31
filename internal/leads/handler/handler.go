// Package handler exposes the lead lifecycle HTTP endpoints.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fleetcore_backend/internal/leads/service"
	"fleetcore_backend/internal/leads/transport"
	"fleetcore_backend/platform/httpkit"
	"fleetcore_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid lead ID"
)

// Handler handles HTTP requests for the lead lifecycle engines.
type Handler struct {
	status *service.StatusEngine
	qual   *service.QualificationEngine
	val    *validator.Validator
}

// New creates a new leads handler.
func New(status *service.StatusEngine, qual *service.QualificationEngine, val *validator.Validator) *Handler {
	return &Handler{status: status, qual: qual, val: val}
}

// UpdateStatus applies a status transition to a lead.
// PATCH /api/v1/leads/:id/status
//
// Validation outcomes (unknown lead, disallowed transition, loss reason
// problems) come back as a result payload with success=false, not as an
// HTTP error.
func (h *Handler) UpdateStatus(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	memberID := identity.MemberID()
	result, err := h.status.UpdateStatus(c.Request.Context(), tenantID, leadID, req.Status, service.UpdateStatusOptions{
		PerformedBy:      &memberID,
		LossReasonCode:   req.LossReasonCode,
		LossReasonDetail: req.LossReasonDetail,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Qualify scores a lead against the tenant's qualification framework.
// POST /api/v1/leads/:id/qualify
func (h *Handler) Qualify(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.QualifyLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	memberID := identity.MemberID()
	result, err := h.qual.QualifyLead(c.Request.Context(), tenantID, leadID, req.Answers(), &memberID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Transitions lists the statuses a lead may move to next.
// GET /api/v1/leads/:id/transitions
func (h *Handler) Transitions(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
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

	current, transitions, err := h.status.LeadTransitions(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TransitionsResponse{Status: current, Transitions: transitions})
}

// Activities returns a lead's activity history, newest first.
// GET /api/v1/leads/:id/activities
func (h *Handler) Activities(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
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

	items, err := h.status.LeadActivities(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToActivitiesResponse(leadID, items))
}

func mustGetTenantID(c *gin.Context, identity httpkit.Identity) (uuid.UUID, bool) {
	tenantID := identity.TenantID()
	if tenantID == uuid.Nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return uuid.UUID{}, false
	}
	return tenantID, true
}
