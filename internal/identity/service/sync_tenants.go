package service

import (
	"context"
	"errors"
	"fmt"

	"fleetcore_backend/internal/events"
	"fleetcore_backend/internal/identity/domain"
	"fleetcore_backend/internal/identity/ports"
	"fleetcore_backend/internal/identity/repository"
	"fleetcore_backend/internal/identity/transport"
	"fleetcore_backend/platform/apperr"
)

// HandleOrganizationCreated provisions a tenant from an identity provider
// organization. The slug comes from the payload or is derived from the name,
// disambiguated with a numeric suffix on collision. Tenant and lifecycle
// event commit in one transaction.
func (s *SyncService) HandleOrganizationCreated(ctx context.Context, payload transport.OrganizationPayload) error {
	if _, err := s.repo.GetTenantByExternalID(ctx, payload.ID); err == nil {
		s.log.Debug("tenant already synced", "externalId", payload.ID)
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if payload.Name == nil || *payload.Name == "" {
		return apperr.Validation("name is required for organization.created")
	}
	name := *payload.Name

	base := domain.Slugify(name)
	if payload.Slug != nil && *payload.Slug != "" {
		base = domain.Slugify(*payload.Slug)
	}
	slug, err := s.resolveSlug(ctx, base)
	if err != nil {
		return err
	}

	var tenant repository.Tenant
	err = s.repo.RunInTransaction(ctx, func(q repository.DBTX) error {
		created, err := s.repo.CreateTenant(ctx, q, repository.CreateTenantParams{
			ExternalID:  payload.ID,
			Name:        name,
			Slug:        slug,
			CountryCode: domain.DefaultCountryCode,
			Currency:    domain.DefaultCurrency,
			Timezone:    domain.DefaultTimezone,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return errAlreadySynced
			}
			return err
		}
		tenant = created
		return s.repo.InsertLifecycleEvent(ctx, q, tenant.ID, domain.LifecycleCreated)
	})
	if err != nil {
		if errors.Is(err, errAlreadySynced) {
			s.log.Debug("tenant already synced", "externalId", payload.ID)
			return nil
		}
		return err
	}

	s.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID: tenant.ID,
		MemberID: &domain.SystemActorID,
		Entity:   "tenant",
		EntityID: tenant.ID.String(),
		Action:   "create",
		NewValues: map[string]any{
			"external_id":  tenant.ExternalID,
			"name":         tenant.Name,
			"slug":         tenant.Slug,
			"status":       tenant.Status,
			"country_code": tenant.CountryCode,
			"currency":     tenant.Currency,
			"timezone":     tenant.Timezone,
		},
		Context: map[string]any{"source": "identity_sync"},
		Tags:    []string{"identity_sync"},
	})

	s.publishTenantSynced(ctx, tenant, "created")
	return nil
}

// resolveSlug finds a free slug, suffixing -1, -2, … on collisions.
func (s *SyncService) resolveSlug(ctx context.Context, base string) (string, error) {
	slug := base
	for suffix := 1; ; suffix++ {
		taken, err := s.repo.TenantSlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, suffix)
	}
}

// HandleOrganizationUpdated applies supplied fields to an existing tenant,
// auditing only actual changes.
func (s *SyncService) HandleOrganizationUpdated(ctx context.Context, payload transport.OrganizationPayload) error {
	tenant, err := s.repo.GetTenantByExternalID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("tenant not found for external id " + payload.ID)
		}
		return err
	}

	params := repository.UpdateTenantParams{TenantID: tenant.ID}
	oldValues := make(map[string]any)
	newValues := make(map[string]any)

	if payload.Name != nil && *payload.Name != tenant.Name {
		params.Name = payload.Name
		oldValues["name"] = tenant.Name
		newValues["name"] = *payload.Name
	}
	if payload.Slug != nil {
		slug := domain.Slugify(*payload.Slug)
		if slug != tenant.Slug {
			resolved, err := s.resolveSlug(ctx, slug)
			if err != nil {
				return err
			}
			params.Slug = &resolved
			oldValues["slug"] = tenant.Slug
			newValues["slug"] = resolved
		}
	}

	if len(newValues) == 0 {
		return nil
	}

	updated, err := s.repo.UpdateTenant(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("tenant not found for external id " + payload.ID)
		}
		return err
	}

	s.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID:  updated.ID,
		MemberID:  &domain.SystemActorID,
		Entity:    "tenant",
		EntityID:  updated.ID.String(),
		Action:    "update",
		OldValues: oldValues,
		NewValues: newValues,
		Context:   map[string]any{"source": "identity_sync"},
		Tags:      []string{"identity_sync"},
	})

	s.publishTenantSynced(ctx, updated, "updated")
	return nil
}

// HandleOrganizationDeleted suspends the tenant and every one of its members
// in one transaction. The tenant row is soft-deleted, not removed.
func (s *SyncService) HandleOrganizationDeleted(ctx context.Context, payload transport.OrganizationPayload) error {
	tenant, err := s.repo.GetTenantByExternalID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("tenant not found for external id " + payload.ID)
		}
		return err
	}

	var suspendedMembers int64
	err = s.repo.RunInTransaction(ctx, func(q repository.DBTX) error {
		if err := s.repo.SuspendTenant(ctx, q, tenant.ID); err != nil {
			return err
		}
		if err := s.repo.InsertLifecycleEvent(ctx, q, tenant.ID, domain.LifecycleSuspended); err != nil {
			return err
		}
		count, err := s.repo.SuspendTenantMembers(ctx, q, tenant.ID)
		if err != nil {
			return err
		}
		suspendedMembers = count
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID:  tenant.ID,
		MemberID:  &domain.SystemActorID,
		Entity:    "tenant",
		EntityID:  tenant.ID.String(),
		Action:    "delete",
		OldValues: map[string]any{"status": tenant.Status},
		NewValues: map[string]any{"status": domain.TenantStatusSuspended},
		Context: map[string]any{
			"source":            "identity_sync",
			"suspended_members": suspendedMembers,
		},
		Tags: []string{"identity_sync"},
	})

	s.publishTenantSynced(ctx, tenant, "deleted")
	return nil
}

func (s *SyncService) publishTenantSynced(ctx context.Context, tenant repository.Tenant, action string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.TenantSynced{
		BaseEvent:  events.NewBaseEvent(),
		TenantID:   tenant.ID,
		ExternalID: tenant.ExternalID,
		Action:     action,
	})
}
