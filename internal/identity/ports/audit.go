// Package ports defines the interfaces the identity module needs from other
// bounded contexts. Adapters in internal/adapters satisfy them.
package ports

import (
	"context"

	"github.com/google/uuid"
)

// AuditEntry is the identity-side view of an audit record.
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

// AuditWriter records audit entries best-effort after the domain transaction
// commits; implementations must never fail the sync operation.
type AuditWriter interface {
	LogActionSafe(ctx context.Context, entry AuditEntry)
}
