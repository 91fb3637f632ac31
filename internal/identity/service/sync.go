// Package service implements the identity sync: idempotent reconciliation of
// members and tenants from external identity provider webhooks.
package service

import (
	"context"
	"errors"
	"time"

	"fleetcore_backend/internal/events"
	"fleetcore_backend/internal/identity/domain"
	"fleetcore_backend/internal/identity/ports"
	"fleetcore_backend/internal/identity/repository"
	"fleetcore_backend/internal/identity/transport"
	"fleetcore_backend/platform/apperr"
	"fleetcore_backend/platform/logger"
	"fleetcore_backend/platform/phone"

	"github.com/google/uuid"
)

// errAlreadySynced marks a duplicate delivery that raced past the pre-check
// read and hit the unique index instead. It never leaves the service.
var errAlreadySynced = errors.New("already synced")

// Store is what the sync service needs from the identity repository.
// *repository.Repository satisfies it.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(q repository.DBTX) error) error

	GetMemberByExternalID(ctx context.Context, externalID string) (repository.Member, error)
	CreateMember(ctx context.Context, q repository.DBTX, params repository.CreateMemberParams) (repository.Member, error)
	UpdateMember(ctx context.Context, params repository.UpdateMemberParams) (repository.Member, error)
	SoftDeleteMember(ctx context.Context, q repository.DBTX, memberID, deletedBy uuid.UUID) error
	SuspendTenantMembers(ctx context.Context, q repository.DBTX, tenantID uuid.UUID) (int64, error)

	GetRoleBySlug(ctx context.Context, slug string) (repository.Role, error)
	AssignRole(ctx context.Context, q repository.DBTX, params repository.AssignRoleParams) error
	ExpireMemberRoles(ctx context.Context, q repository.DBTX, memberID uuid.UUID) error

	FindLatestPendingInvitation(ctx context.Context, email string, now time.Time) (repository.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, q repository.DBTX, invitationID, memberID uuid.UUID) error

	GetTenantByExternalID(ctx context.Context, externalID string) (repository.Tenant, error)
	TenantSlugExists(ctx context.Context, slug string) (bool, error)
	CreateTenant(ctx context.Context, q repository.DBTX, params repository.CreateTenantParams) (repository.Tenant, error)
	UpdateTenant(ctx context.Context, params repository.UpdateTenantParams) (repository.Tenant, error)
	SuspendTenant(ctx context.Context, q repository.DBTX, tenantID uuid.UUID) error
	InsertLifecycleEvent(ctx context.Context, q repository.DBTX, tenantID uuid.UUID, eventType string) error
}

// SyncService reconciles identity provider state into local members and
// tenants. Every handler is an idempotent no-op once its first delivery has
// committed.
type SyncService struct {
	repo  Store
	audit ports.AuditWriter
	bus   events.Bus
	log   *logger.Logger
	now   func() time.Time
}

// NewSyncService creates the identity sync service.
func NewSyncService(repo Store, audit ports.AuditWriter, bus events.Bus, log *logger.Logger) *SyncService {
	return &SyncService{repo: repo, audit: audit, bus: bus, log: log, now: time.Now}
}

// HandleUserCreated provisions a member from an identity provider user. The
// user must hold a pending, unexpired invitation; its role slug must resolve.
// Member, role assignment and invitation acceptance commit in one
// transaction; the audit entry follows after commit as the system actor.
func (s *SyncService) HandleUserCreated(ctx context.Context, payload transport.UserPayload) error {
	if _, err := s.repo.GetMemberByExternalID(ctx, payload.ID); err == nil {
		s.log.Debug("member already synced", "externalId", payload.ID)
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if payload.Email == nil || *payload.Email == "" {
		return apperr.Validation("email is required for user.created")
	}
	email := *payload.Email

	invitation, err := s.repo.FindLatestPendingInvitation(ctx, email, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("no pending invitation for this email")
		}
		return err
	}

	role, err := s.repo.GetRoleBySlug(ctx, invitation.RoleSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("invitation role does not exist: " + invitation.RoleSlug)
		}
		return err
	}

	var phoneNumber *string
	if payload.Phone != nil && *payload.Phone != "" {
		normalized := phone.NormalizeE164(*payload.Phone)
		phoneNumber = &normalized
	}

	var member repository.Member
	err = s.repo.RunInTransaction(ctx, func(q repository.DBTX) error {
		created, err := s.repo.CreateMember(ctx, q, repository.CreateMemberParams{
			TenantID:   invitation.TenantID,
			ExternalID: payload.ID,
			Email:      email,
			FirstName:  stringOrEmpty(payload.FirstName),
			LastName:   stringOrEmpty(payload.LastName),
			Phone:      phoneNumber,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return errAlreadySynced
			}
			return err
		}
		member = created

		if err := s.repo.AssignRole(ctx, q, repository.AssignRoleParams{
			MemberID:  member.ID,
			RoleID:    role.ID,
			TenantID:  invitation.TenantID,
			IsPrimary: true,
			Scope:     "global",
		}); err != nil {
			return err
		}

		return s.repo.MarkInvitationAccepted(ctx, q, invitation.ID, member.ID)
	})
	if err != nil {
		if errors.Is(err, errAlreadySynced) {
			s.log.Debug("member already synced", "externalId", payload.ID)
			return nil
		}
		return err
	}

	s.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID: member.TenantID,
		MemberID: &domain.SystemActorID,
		Entity:   "member",
		EntityID: member.ID.String(),
		Action:   "create",
		NewValues: map[string]any{
			"external_id": member.ExternalID,
			"email":       member.Email,
			"first_name":  member.FirstName,
			"last_name":   member.LastName,
			"status":      member.Status,
			"role":        role.Slug,
		},
		Context: map[string]any{"source": "identity_sync"},
		Tags:    []string{"identity_sync"},
	})

	s.publishMemberSynced(ctx, member, "created")
	return nil
}

// HandleUserUpdated applies the supplied fields to an existing member. Only
// actually changed fields are persisted and audited; a no-change delivery is
// a no-op.
func (s *SyncService) HandleUserUpdated(ctx context.Context, payload transport.UserPayload) error {
	member, err := s.repo.GetMemberByExternalID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("member not found for external id " + payload.ID)
		}
		return err
	}

	params := repository.UpdateMemberParams{MemberID: member.ID}
	oldValues := make(map[string]any)
	newValues := make(map[string]any)

	if payload.Email != nil && *payload.Email != member.Email {
		params.Email = payload.Email
		oldValues["email"] = member.Email
		newValues["email"] = *payload.Email
	}
	if payload.FirstName != nil && *payload.FirstName != member.FirstName {
		params.FirstName = payload.FirstName
		oldValues["first_name"] = member.FirstName
		newValues["first_name"] = *payload.FirstName
	}
	if payload.LastName != nil && *payload.LastName != member.LastName {
		params.LastName = payload.LastName
		oldValues["last_name"] = member.LastName
		newValues["last_name"] = *payload.LastName
	}
	if payload.Phone != nil {
		normalized := phone.NormalizeE164(*payload.Phone)
		if member.Phone == nil || normalized != *member.Phone {
			params.Phone = &normalized
			oldValues["phone"] = optionalString(member.Phone)
			newValues["phone"] = normalized
		}
	}

	if len(newValues) == 0 {
		return nil
	}

	updated, err := s.repo.UpdateMember(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("member not found for external id " + payload.ID)
		}
		return err
	}

	s.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID:  updated.TenantID,
		MemberID:  &domain.SystemActorID,
		Entity:    "member",
		EntityID:  updated.ID.String(),
		Action:    "update",
		OldValues: oldValues,
		NewValues: newValues,
		Context:   map[string]any{"source": "identity_sync"},
		Tags:      []string{"identity_sync"},
	})

	s.publishMemberSynced(ctx, updated, "updated")
	return nil
}

// HandleUserDeleted soft-deletes the member and expires every valid role
// assignment in one transaction.
func (s *SyncService) HandleUserDeleted(ctx context.Context, payload transport.UserPayload) error {
	member, err := s.repo.GetMemberByExternalID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("member not found for external id " + payload.ID)
		}
		return err
	}

	err = s.repo.RunInTransaction(ctx, func(q repository.DBTX) error {
		if err := s.repo.SoftDeleteMember(ctx, q, member.ID, domain.SystemActorID); err != nil {
			return err
		}
		return s.repo.ExpireMemberRoles(ctx, q, member.ID)
	})
	if err != nil {
		return err
	}

	s.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID:  member.TenantID,
		MemberID:  &domain.SystemActorID,
		Entity:    "member",
		EntityID:  member.ID.String(),
		Action:    "delete",
		OldValues: map[string]any{"status": member.Status},
		NewValues: map[string]any{"status": domain.MemberStatusInactive},
		Context:   map[string]any{"source": "identity_sync"},
		Tags:      []string{"identity_sync"},
	})

	s.publishMemberSynced(ctx, member, "deleted")
	return nil
}

func (s *SyncService) publishMemberSynced(ctx context.Context, member repository.Member, action string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.MemberSynced{
		BaseEvent:  events.NewBaseEvent(),
		MemberID:   member.ID,
		TenantID:   member.TenantID,
		ExternalID: member.ExternalID,
		Action:     action,
	})
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
