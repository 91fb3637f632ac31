// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"fleetcore_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadStatusChanged is published after a lead status transition commits.
type LeadStatusChanged struct {
	BaseEvent
	LeadID         uuid.UUID  `json:"leadId"`
	TenantID       uuid.UUID  `json:"tenantId"`
	PreviousStatus string     `json:"previousStatus"`
	NewStatus      string     `json:"newStatus"`
	LossReasonCode *string    `json:"lossReasonCode,omitempty"`
	PerformedBy    *uuid.UUID `json:"performedBy,omitempty"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// LeadQualified is published after a lead qualification score is persisted.
type LeadQualified struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Score          int       `json:"score"`
	Recommendation string    `json:"recommendation"`
	StatusUpdated  bool      `json:"statusUpdated"`
}

func (e LeadQualified) EventName() string { return "leads.lead.qualified" }

// =============================================================================
// Identity Domain Events
// =============================================================================

// MemberSynced is published after an identity webhook reconciles a member.
type MemberSynced struct {
	BaseEvent
	MemberID   uuid.UUID `json:"memberId"`
	TenantID   uuid.UUID `json:"tenantId"`
	ExternalID string    `json:"externalId"`
	Action     string    `json:"action"` // created, updated, deleted
}

func (e MemberSynced) EventName() string { return "identity.member.synced" }

// TenantSynced is published after an identity webhook reconciles a tenant.
type TenantSynced struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	ExternalID string    `json:"externalId"`
	Action     string    `json:"action"` // created, updated, deleted
}

func (e TenantSynced) EventName() string { return "identity.tenant.synced" }

// =============================================================================
// Audit Domain Events
// =============================================================================

// SuspiciousBehaviorDetected is published when the audit sweep flags a member.
type SuspiciousBehaviorDetected struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	MemberID uuid.UUID `json:"memberId"`
	Reason   string    `json:"reason"`
}

func (e SuspiciousBehaviorDetected) EventName() string { return "audit.suspicious.detected" }
