package adapters

import (
	"context"

	"fleetcore_backend/internal/audit/service"
	"fleetcore_backend/internal/leads/ports"
)

// AuditWriterAdapter adapts the audit service for use by the leads domain.
// It implements the leads/ports.AuditWriter interface.
type AuditWriterAdapter struct {
	svc *service.Service
}

func NewAuditWriterAdapter(svc *service.Service) *AuditWriterAdapter {
	return &AuditWriterAdapter{svc: svc}
}

func (a *AuditWriterAdapter) LogActionSafe(ctx context.Context, entry ports.AuditEntry) {
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

var _ ports.AuditWriter = (*AuditWriterAdapter)(nil)
