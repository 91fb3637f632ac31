// Package ports defines the interfaces the leads module needs from other
// bounded contexts. Adapters in internal/adapters satisfy them.
package ports

import (
	"context"

	"github.com/google/uuid"
)

// AuditEntry is the leads-side view of an audit record. Old/new values feed
// the audit trail's diff; Context keys are recorded alongside the diff under
// the reserved audit prefix.
type AuditEntry struct {
	TenantID  uuid.UUID
	MemberID  *uuid.UUID
	Entity    string
	EntityID  string
	Action    string
	OldValues map[string]any
	NewValues map[string]any
	Context   map[string]any
	Tags      []string
}

// AuditWriter records audit entries best-effort: implementations must never
// fail the calling business operation.
type AuditWriter interface {
	LogActionSafe(ctx context.Context, entry AuditEntry)
}
