// Package transport defines the identity webhook payloads.
package transport

import "encoding/json"

// Webhook event types consumed by the sync service.
const (
	EventUserCreated         = "user.created"
	EventUserUpdated         = "user.updated"
	EventUserDeleted         = "user.deleted"
	EventOrganizationCreated = "organization.created"
	EventOrganizationUpdated = "organization.updated"
	EventOrganizationDeleted = "organization.deleted"
)

// WebhookEnvelope is the outer payload of every identity webhook delivery.
// Data is decoded per event type.
type WebhookEnvelope struct {
	Type string          `json:"type" validate:"required,max=64"`
	Data json.RawMessage `json:"data" validate:"required"`
}

// UserPayload is the data block of user.* events. ID is the identity
// provider's user id. Pointer fields on updates distinguish "not supplied"
// from "cleared".
type UserPayload struct {
	ID        string  `json:"id" validate:"required,max=128"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,max=128"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,max=128"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// OrganizationPayload is the data block of organization.* events. ID is the
// identity provider's organization id.
type OrganizationPayload struct {
	ID   string  `json:"id" validate:"required,max=128"`
	Name *string `json:"name,omitempty" validate:"omitempty,max=256"`
	Slug *string `json:"slug,omitempty" validate:"omitempty,max=128"`
}

// WebhookAck is the response body for every accepted delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Handled  bool   `json:"handled"`
	Type     string `json:"type"`
}
