package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"fleetcore_backend/internal/identity/domain"
	"fleetcore_backend/internal/identity/ports"
	"fleetcore_backend/internal/identity/repository"
	"fleetcore_backend/internal/identity/transport"
	"fleetcore_backend/platform/apperr"
	"fleetcore_backend/platform/logger"
)

// fakeStore is an in-memory Store. Members and tenants are keyed by their
// identity provider external id, mirroring the unique indexes the real
// repository relies on. RunInTransaction passes a nil DBTX; the fake never
// touches it.
type fakeStore struct {
	members     map[string]repository.Member
	tenants     map[string]repository.Tenant
	roles       map[string]repository.Role
	invitations map[string]repository.Invitation
	slugs       map[string]bool

	// missPreCheck makes member reads report not-found, simulating a
	// duplicate delivery racing past the pre-check into the unique index.
	missPreCheck bool

	createMemberCalls   int
	assignedRoles       []repository.AssignRoleParams
	acceptedInvitations []uuid.UUID
	expiredRoles        []uuid.UUID
	lifecycleEvents     map[uuid.UUID][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:         make(map[string]repository.Member),
		tenants:         make(map[string]repository.Tenant),
		roles:           make(map[string]repository.Role),
		invitations:     make(map[string]repository.Invitation),
		slugs:           make(map[string]bool),
		lifecycleEvents: make(map[uuid.UUID][]string),
	}
}

func (f *fakeStore) RunInTransaction(_ context.Context, fn func(q repository.DBTX) error) error {
	return fn(nil)
}

func (f *fakeStore) GetMemberByExternalID(_ context.Context, externalID string) (repository.Member, error) {
	if f.missPreCheck {
		return repository.Member{}, repository.ErrNotFound
	}
	member, ok := f.members[externalID]
	if !ok || member.DeletedAt != nil {
		return repository.Member{}, repository.ErrNotFound
	}
	return member, nil
}

func (f *fakeStore) CreateMember(_ context.Context, _ repository.DBTX, params repository.CreateMemberParams) (repository.Member, error) {
	f.createMemberCalls++
	if _, exists := f.members[params.ExternalID]; exists {
		return repository.Member{}, &pgconn.PgError{Code: "23505"}
	}
	member := repository.Member{
		ID:         uuid.New(),
		TenantID:   params.TenantID,
		ExternalID: params.ExternalID,
		Email:      params.Email,
		FirstName:  params.FirstName,
		LastName:   params.LastName,
		Phone:      params.Phone,
		Status:     domain.MemberStatusActive,
	}
	f.members[params.ExternalID] = member
	return member, nil
}

func (f *fakeStore) UpdateMember(_ context.Context, params repository.UpdateMemberParams) (repository.Member, error) {
	for externalID, member := range f.members {
		if member.ID != params.MemberID {
			continue
		}
		if params.Email != nil {
			member.Email = *params.Email
		}
		if params.FirstName != nil {
			member.FirstName = *params.FirstName
		}
		if params.LastName != nil {
			member.LastName = *params.LastName
		}
		if params.Phone != nil {
			member.Phone = params.Phone
		}
		f.members[externalID] = member
		return member, nil
	}
	return repository.Member{}, repository.ErrNotFound
}

func (f *fakeStore) SoftDeleteMember(_ context.Context, _ repository.DBTX, memberID, deletedBy uuid.UUID) error {
	for externalID, member := range f.members {
		if member.ID != memberID {
			continue
		}
		now := time.Now()
		member.DeletedAt = &now
		member.DeletedBy = &deletedBy
		member.Status = domain.MemberStatusInactive
		f.members[externalID] = member
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeStore) SuspendTenantMembers(_ context.Context, _ repository.DBTX, tenantID uuid.UUID) (int64, error) {
	var count int64
	for externalID, member := range f.members {
		if member.TenantID != tenantID || member.DeletedAt != nil {
			continue
		}
		if member.Status == domain.MemberStatusSuspended {
			continue
		}
		member.Status = domain.MemberStatusSuspended
		f.members[externalID] = member
		count++
	}
	return count, nil
}

func (f *fakeStore) GetRoleBySlug(_ context.Context, slug string) (repository.Role, error) {
	role, ok := f.roles[slug]
	if !ok {
		return repository.Role{}, repository.ErrNotFound
	}
	return role, nil
}

func (f *fakeStore) AssignRole(_ context.Context, _ repository.DBTX, params repository.AssignRoleParams) error {
	f.assignedRoles = append(f.assignedRoles, params)
	return nil
}

func (f *fakeStore) ExpireMemberRoles(_ context.Context, _ repository.DBTX, memberID uuid.UUID) error {
	f.expiredRoles = append(f.expiredRoles, memberID)
	return nil
}

func (f *fakeStore) FindLatestPendingInvitation(_ context.Context, email string, now time.Time) (repository.Invitation, error) {
	invitation, ok := f.invitations[email]
	if !ok || invitation.Status != "pending" || !invitation.ExpiresAt.After(now) {
		return repository.Invitation{}, repository.ErrNotFound
	}
	return invitation, nil
}

func (f *fakeStore) MarkInvitationAccepted(_ context.Context, _ repository.DBTX, invitationID, _ uuid.UUID) error {
	f.acceptedInvitations = append(f.acceptedInvitations, invitationID)
	return nil
}

func (f *fakeStore) GetTenantByExternalID(_ context.Context, externalID string) (repository.Tenant, error) {
	tenant, ok := f.tenants[externalID]
	if !ok {
		return repository.Tenant{}, repository.ErrNotFound
	}
	return tenant, nil
}

func (f *fakeStore) TenantSlugExists(_ context.Context, slug string) (bool, error) {
	return f.slugs[slug], nil
}

func (f *fakeStore) CreateTenant(_ context.Context, _ repository.DBTX, params repository.CreateTenantParams) (repository.Tenant, error) {
	if _, exists := f.tenants[params.ExternalID]; exists {
		return repository.Tenant{}, &pgconn.PgError{Code: "23505"}
	}
	tenant := repository.Tenant{
		ID:          uuid.New(),
		ExternalID:  params.ExternalID,
		Name:        params.Name,
		Slug:        params.Slug,
		Status:      domain.TenantStatusActive,
		CountryCode: params.CountryCode,
		Currency:    params.Currency,
		Timezone:    params.Timezone,
	}
	f.tenants[params.ExternalID] = tenant
	f.slugs[params.Slug] = true
	return tenant, nil
}

func (f *fakeStore) UpdateTenant(_ context.Context, params repository.UpdateTenantParams) (repository.Tenant, error) {
	for externalID, tenant := range f.tenants {
		if tenant.ID != params.TenantID {
			continue
		}
		if params.Name != nil {
			tenant.Name = *params.Name
		}
		if params.Slug != nil {
			tenant.Slug = *params.Slug
			f.slugs[*params.Slug] = true
		}
		f.tenants[externalID] = tenant
		return tenant, nil
	}
	return repository.Tenant{}, repository.ErrNotFound
}

func (f *fakeStore) SuspendTenant(_ context.Context, _ repository.DBTX, tenantID uuid.UUID) error {
	for externalID, tenant := range f.tenants {
		if tenant.ID != tenantID {
			continue
		}
		tenant.Status = domain.TenantStatusSuspended
		f.tenants[externalID] = tenant
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeStore) InsertLifecycleEvent(_ context.Context, _ repository.DBTX, tenantID uuid.UUID, eventType string) error {
	f.lifecycleEvents[tenantID] = append(f.lifecycleEvents[tenantID], eventType)
	return nil
}

type fakeAuditWriter struct {
	entries []ports.AuditEntry
}

func (f *fakeAuditWriter) LogActionSafe(_ context.Context, entry ports.AuditEntry) {
	f.entries = append(f.entries, entry)
}

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSyncService(store *fakeStore, audit *fakeAuditWriter) *SyncService {
	svc := NewSyncService(store, audit, nil, logger.New("test"))
	svc.now = func() time.Time { return testClock }
	return svc
}

func seedInvitation(store *fakeStore, tenantID uuid.UUID, email, roleSlug string) {
	store.invitations[email] = repository.Invitation{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Email:     email,
		RoleSlug:  roleSlug,
		Status:    "pending",
		ExpiresAt: testClock.Add(24 * time.Hour),
	}
	if _, ok := store.roles[roleSlug]; !ok {
		store.roles[roleSlug] = repository.Role{ID: uuid.New(), Slug: roleSlug, Name: roleSlug}
	}
}

func strPtr(s string) *string { return &s }

func TestHandleUserCreatedIsIdempotent(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAuditWriter{}
	svc := newTestSyncService(store, audit)

	tenantID := uuid.New()
	seedInvitation(store, tenantID, "driver@fleet.test", "sales_rep")

	payload := transport.UserPayload{
		ID:        "user_1",
		Email:     strPtr("driver@fleet.test"),
		FirstName: strPtr("Ada"),
		LastName:  strPtr("Lovelace"),
	}

	if err := svc.HandleUserCreated(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleUserCreated(context.Background(), payload); err != nil {
		t.Fatalf("second delivery must no-op: %v", err)
	}

	if store.createMemberCalls != 1 {
		t.Fatalf("expected exactly one member insert, got %d", store.createMemberCalls)
	}
	if len(store.members) != 1 {
		t.Fatalf("expected exactly one member, got %d", len(store.members))
	}
	if len(store.assignedRoles) != 1 {
		t.Fatalf("expected exactly one role assignment, got %d", len(store.assignedRoles))
	}
	if len(store.acceptedInvitations) != 1 {
		t.Fatalf("expected exactly one invitation acceptance, got %d", len(store.acceptedInvitations))
	}
	if len(audit.entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(audit.entries))
	}

	member := store.members["user_1"]
	if member.TenantID != tenantID {
		t.Fatalf("member must join the invitation's tenant, got %s", member.TenantID)
	}
	assignment := store.assignedRoles[0]
	if !assignment.IsPrimary || assignment.Scope != "global" {
		t.Fatalf("expected primary global role assignment, got %+v", assignment)
	}
	entry := audit.entries[0]
	if entry.MemberID == nil || *entry.MemberID != domain.SystemActorID {
		t.Fatalf("sync audit must be attributed to the system actor, got %v", entry.MemberID)
	}
}

func TestHandleUserCreatedDuplicateRaceIsSwallowed(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAuditWriter{}
	svc := newTestSyncService(store, audit)

	tenantID := uuid.New()
	seedInvitation(store, tenantID, "driver@fleet.test", "sales_rep")

	payload := transport.UserPayload{ID: "user_1", Email: strPtr("driver@fleet.test")}

	if err := svc.HandleUserCreated(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// The duplicate arrives before the first commit is visible to the
	// pre-check read, so it falls through to the unique index.
	store.missPreCheck = true
	if err := svc.HandleUserCreated(context.Background(), payload); err != nil {
		t.Fatalf("racing duplicate must resolve to a no-op: %v", err)
	}

	if len(store.members) != 1 {
		t.Fatalf("expected exactly one member, got %d", len(store.members))
	}
	if len(audit.entries) != 1 {
		t.Fatalf("duplicate delivery must not audit, got %d entries", len(audit.entries))
	}
}

func TestHandleUserCreatedWithoutInvitationIsNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestSyncService(store, &fakeAuditWriter{})

	err := svc.HandleUserCreated(context.Background(), transport.UserPayload{
		ID:    "user_1",
		Email: strPtr("stranger@fleet.test"),
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if len(store.members) != 0 {
		t.Fatal("no member may be created without a pending invitation")
	}
}

func TestHandleOrganizationCreatedResolvesSlugCollisions(t *testing.T) {
	store := newFakeStore()
	svc := newTestSyncService(store, &fakeAuditWriter{})

	for i, externalID := range []string{"org_1", "org_2", "org_3"} {
		err := svc.HandleOrganizationCreated(context.Background(), transport.OrganizationPayload{
			ID:   externalID,
			Name: strPtr("Acme Fleet"),
		})
		if err != nil {
			t.Fatalf("organization %d: %v", i+1, err)
		}
	}

	want := map[string]string{
		"org_1": "acme-fleet",
		"org_2": "acme-fleet-1",
		"org_3": "acme-fleet-2",
	}
	for externalID, slug := range want {
		tenant, ok := store.tenants[externalID]
		if !ok {
			t.Fatalf("tenant %s was not created", externalID)
		}
		if tenant.Slug != slug {
			t.Errorf("tenant %s slug = %q, want %q", externalID, tenant.Slug, slug)
		}
	}
}

func TestHandleOrganizationDeletedSuspendsEveryMember(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAuditWriter{}
	svc := newTestSyncService(store, audit)

	err := svc.HandleOrganizationCreated(context.Background(), transport.OrganizationPayload{
		ID:   "org_1",
		Name: strPtr("Acme Fleet"),
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	tenant := store.tenants["org_1"]

	for i, email := range []string{"a@fleet.test", "b@fleet.test", "c@fleet.test"} {
		seedInvitation(store, tenant.ID, email, "sales_rep")
		err := svc.HandleUserCreated(context.Background(), transport.UserPayload{
			ID:    "user_" + email,
			Email: strPtr(email),
		})
		if err != nil {
			t.Fatalf("seed member %d: %v", i+1, err)
		}
	}

	otherTenant := uuid.New()
	store.members["outsider"] = repository.Member{
		ID:         uuid.New(),
		TenantID:   otherTenant,
		ExternalID: "outsider",
		Status:     domain.MemberStatusActive,
	}
	audit.entries = nil

	err = svc.HandleOrganizationDeleted(context.Background(), transport.OrganizationPayload{ID: "org_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.tenants["org_1"].Status; got != domain.TenantStatusSuspended {
		t.Fatalf("expected suspended tenant, got %s", got)
	}
	events := store.lifecycleEvents[tenant.ID]
	if len(events) == 0 || events[len(events)-1] != domain.LifecycleSuspended {
		t.Fatalf("expected a suspended lifecycle event, got %v", events)
	}
	for externalID, member := range store.members {
		if member.TenantID == tenant.ID && member.Status != domain.MemberStatusSuspended {
			t.Errorf("member %s must be suspended, is %s", externalID, member.Status)
		}
	}
	if store.members["outsider"].Status != domain.MemberStatusActive {
		t.Fatal("members of other tenants must be left alone")
	}

	if len(audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Action != "delete" || entry.Entity != "tenant" {
		t.Fatalf("unexpected audit entry %s/%s", entry.Entity, entry.Action)
	}
	if got := entry.Context["suspended_members"]; got != int64(3) {
		t.Fatalf("audit must record the suspended member count, got %v", got)
	}
}

func TestHandleUserUpdatedIgnoresNoChangeDelivery(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAuditWriter{}
	svc := newTestSyncService(store, audit)

	tenantID := uuid.New()
	seedInvitation(store, tenantID, "driver@fleet.test", "sales_rep")
	err := svc.HandleUserCreated(context.Background(), transport.UserPayload{
		ID:        "user_1",
		Email:     strPtr("driver@fleet.test"),
		FirstName: strPtr("Ada"),
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	audit.entries = nil

	err = svc.HandleUserUpdated(context.Background(), transport.UserPayload{
		ID:        "user_1",
		Email:     strPtr("driver@fleet.test"),
		FirstName: strPtr("Ada"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audit.entries) != 0 {
		t.Fatalf("a no-change delivery must not audit, got %d entries", len(audit.entries))
	}
}

func TestHandleUserDeletedSoftDeletesAndExpiresRoles(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAuditWriter{}
	svc := newTestSyncService(store, audit)

	tenantID := uuid.New()
	seedInvitation(store, tenantID, "driver@fleet.test", "sales_rep")
	err := svc.HandleUserCreated(context.Background(), transport.UserPayload{
		ID:    "user_1",
		Email: strPtr("driver@fleet.test"),
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	memberID := store.members["user_1"].ID
	audit.entries = nil

	err = svc.HandleUserDeleted(context.Background(), transport.UserPayload{ID: "user_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	member := store.members["user_1"]
	if member.DeletedAt == nil || member.DeletedBy == nil || *member.DeletedBy != domain.SystemActorID {
		t.Fatalf("expected soft delete by the system actor, got %+v", member)
	}
	if len(store.expiredRoles) != 1 || store.expiredRoles[0] != memberID {
		t.Fatalf("expected the member's roles to be expired, got %v", store.expiredRoles)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "delete" {
		t.Fatalf("expected one delete audit entry, got %+v", audit.entries)
	}
}
