package adapters

import (
	"context"

	"fleetcore_backend/internal/audit/service"
	identityports "fleetcore_backend/internal/identity/ports"
)

// IdentityAuditWriterAdapter adapts the audit service for use by the
// identity domain. It implements the identity/ports.AuditWriter interface.
type IdentityAuditWriterAdapter struct {
	svc *service.Service
}

func NewIdentityAuditWriterAdapter(svc *service.Service) *IdentityAuditWriterAdapter {
	return &IdentityAuditWriterAdapter{svc: svc}
}

func (a *IdentityAuditWriterAdapter) LogActionSafe(ctx context.Context, entry identityports.AuditEntry) {
	a.svc.LogActionSafe(ctx, service.Entry{
		TenantID:  entry.TenantID,
		MemberID:  entry.MemberID,
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Action:    entry.Action,
		OldValues: entry.OldValues,
		NewValues: entry.NewValues,
		Context:   entry.Context,
		Tags:      entry.Tags,
	})
}

var _ identityports.AuditWriter = (*IdentityAuditWriterAdapter)(nil)
