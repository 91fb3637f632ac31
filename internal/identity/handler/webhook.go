// Package handler exposes the identity webhook endpoint.
package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetcore_backend/internal/identity/service"
	"fleetcore_backend/internal/identity/transport"
	"fleetcore_backend/platform/config"
	"fleetcore_backend/platform/httpkit"
	"fleetcore_backend/platform/logger"
	"fleetcore_backend/platform/validator"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
	SignatureHeader = "X-Webhook-Signature"

	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidSignature = "invalid signature"
)

// Handler handles identity provider webhook deliveries.
type Handler struct {
	svc *service.SyncService
	val *validator.Validator
	log *logger.Logger
}

// New creates a new identity webhook handler.
func New(svc *service.SyncService, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, val: val, log: log}
}

// VerifySignature returns middleware that checks the webhook signature
// against the shared secret before the payload is processed. The body is
// restored for the downstream handler.
func VerifySignature(cfg config.WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, []byte(cfg.GetIdentityWebhookSecret()))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		provided := c.GetHeader(SignatureHeader)
		if provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgInvalidSignature})
			return
		}
		c.Next()
	}
}

// Receive accepts one webhook delivery and dispatches it by event type.
// POST /api/v1/webhooks/identity
//
// Unknown event types are acknowledged with 200 so an at-least-once
// transport does not retry deliveries this service never consumes.
func (h *Handler) Receive(c *gin.Context) {
	var envelope transport.WebhookEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(envelope); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ctx := c.Request.Context()
	var err error
	handled := true
	externalID := ""

	switch envelope.Type {
	case transport.EventUserCreated, transport.EventUserUpdated, transport.EventUserDeleted:
		var payload transport.UserPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(payload); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
		externalID = payload.ID
		switch envelope.Type {
		case transport.EventUserCreated:
			err = h.svc.HandleUserCreated(ctx, payload)
		case transport.EventUserUpdated:
			err = h.svc.HandleUserUpdated(ctx, payload)
		default:
			err = h.svc.HandleUserDeleted(ctx, payload)
		}

	case transport.EventOrganizationCreated, transport.EventOrganizationUpdated, transport.EventOrganizationDeleted:
		var payload transport.OrganizationPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(payload); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
		externalID = payload.ID
		switch envelope.Type {
		case transport.EventOrganizationCreated:
			err = h.svc.HandleOrganizationCreated(ctx, payload)
		case transport.EventOrganizationUpdated:
			err = h.svc.HandleOrganizationUpdated(ctx, payload)
		default:
			err = h.svc.HandleOrganizationDeleted(ctx, payload)
		}

	default:
		handled = false
	}

	if httpkit.HandleError(c, err) {
		return
	}

	h.log.WebhookEvent(envelope.Type, externalID, handled)
	httpkit.OK(c, transport.WebhookAck{Received: true, Handled: handled, Type: envelope.Type})
}
