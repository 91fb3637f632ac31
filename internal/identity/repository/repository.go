// Package repository persists the identity sync entities: members, roles,
// invitations and tenants.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting repository
// methods participate in a caller-owned transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RunInTransaction executes fn inside one transaction. Any error rolls the
// whole transaction back; partial application is impossible.
func (r *Repository) RunInTransaction(ctx context.Context, fn func(q DBTX) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. A duplicate webhook delivery racing past the pre-check read
// lands here and collapses into the idempotent no-op path.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Member is the persistence view of a member.
type Member struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Phone      *string
	Status     string
	DeletedAt  *time.Time
	DeletedBy  *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const memberSelectCols = `
	id, tenant_id, external_id, email, first_name, last_name, phone,
	status, deleted_at, deleted_by, created_at, updated_at`

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.ExternalID,
		&m.Email,
		&m.FirstName,
		&m.LastName,
		&m.Phone,
		&m.Status,
		&m.DeletedAt,
		&m.DeletedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

// GetMemberByExternalID loads the live member synced from the given external
// identity. Soft-deleted members are invisible here: their external id state
// is terminal.
func (r *Repository) GetMemberByExternalID(ctx context.Context, externalID string) (Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `
		SELECT`+memberSelectCols+`
		FROM members
		WHERE external_id = $1 AND deleted_at IS NULL
	`, externalID))
}

// CreateMemberParams carries one member insert.
type CreateMemberParams struct {
	TenantID   uuid.UUID
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Phone      *string
}

// CreateMember inserts an active member.
func (r *Repository) CreateMember(ctx context.Context, q DBTX, params CreateMemberParams) (Member, error) {
	return scanMember(q.QueryRow(ctx, `
		INSERT INTO members (tenant_id, external_id, email, first_name, last_name, phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'active')
		RETURNING`+memberSelectCols+`
	`, params.TenantID, params.ExternalID, params.Email, params.FirstName, params.LastName, params.Phone))
}

// UpdateMemberParams carries a partial member update; nil fields are left
// untouched.
type UpdateMemberParams struct {
	MemberID  uuid.UUID
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
}

// UpdateMember applies the supplied fields and returns the updated row.
// ErrNotFound for an unknown or soft-deleted member.
func (r *Repository) UpdateMember(ctx context.Context, params UpdateMemberParams) (Member, error) {
	setClauses := []string{"updated_at = now()"}
	args := []interface{}{params.MemberID}
	argIdx := 2

	appendSet := func(column string, value *string) {
		if value == nil {
			return
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, *value)
		argIdx++
	}
	appendSet("email", params.Email)
	appendSet("first_name", params.FirstName)
	appendSet("last_name", params.LastName)
	appendSet("phone", params.Phone)

	return scanMember(r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE members
		SET %s
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING`+memberSelectCols+`
	`, strings.Join(setClauses, ", ")), args...))
}

// SoftDeleteMember marks the member deleted and inactive.
func (r *Repository) SoftDeleteMember(ctx context.Context, q DBTX, memberID, deletedBy uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE members
		SET deleted_at = now(),
		    deleted_by = $1,
		    status = 'inactive',
		    updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL
	`, deletedBy, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SuspendTenantMembers suspends every live member of a tenant.
func (r *Repository) SuspendTenantMembers(ctx context.Context, q DBTX, tenantID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE members
		SET status = 'suspended',
		    updated_at = now()
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`, tenantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Role is a grantable role definition.
type Role struct {
	ID   uuid.UUID
	Slug string
	Name string
}

// GetRoleBySlug resolves a role definition by its slug.
func (r *Repository) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, slug, name
		FROM roles
		WHERE slug = $1
	`, slug).Scan(&role.ID, &role.Slug, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// AssignRoleParams carries one role assignment.
type AssignRoleParams struct {
	MemberID  uuid.UUID
	RoleID    uuid.UUID
	TenantID  uuid.UUID
	IsPrimary bool
	Scope     string
}

// AssignRole grants a role to a member, valid from now.
func (r *Repository) AssignRole(ctx context.Context, q DBTX, params AssignRoleParams) error {
	_, err := q.Exec(ctx, `
		INSERT INTO member_roles (member_id, role_id, tenant_id, is_primary, scope, valid_from)
		VALUES ($1, $2, $3, $4, $5, now())
	`, params.MemberID, params.RoleID, params.TenantID, params.IsPrimary, params.Scope)
	return err
}

// ExpireMemberRoles ends every currently valid role assignment of a member.
func (r *Repository) ExpireMemberRoles(ctx context.Context, q DBTX, memberID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE member_roles
		SET valid_until = now()
		WHERE member_id = $1
		  AND (valid_until IS NULL OR valid_until > now())
	`, memberID)
	return err
}

// Invitation is a pending offer to join a tenant under a role.
type Invitation struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Email            string
	RoleSlug         string
	Status           string
	ExpiresAt        time.Time
	AcceptedAt       *time.Time
	AcceptedMemberID *uuid.UUID
	CreatedAt        time.Time
}

// FindLatestPendingInvitation returns the most recent pending, unexpired
// invitation for the email address.
func (r *Repository) FindLatestPendingInvitation(ctx context.Context, email string, now time.Time) (Invitation, error) {
	var inv Invitation
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, role_slug, status, expires_at,
		       accepted_at, accepted_member_id, created_at
		FROM invitations
		WHERE lower(email) = lower($1)
		  AND status = 'pending'
		  AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, email, now).Scan(
		&inv.ID,
		&inv.TenantID,
		&inv.Email,
		&inv.RoleSlug,
		&inv.Status,
		&inv.ExpiresAt,
		&inv.AcceptedAt,
		&inv.AcceptedMemberID,
		&inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrNotFound
		}
		return Invitation{}, err
	}
	return inv, nil
}

// MarkInvitationAccepted records who accepted the invitation and when.
func (r *Repository) MarkInvitationAccepted(ctx context.Context, q DBTX, invitationID, memberID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE invitations
		SET status = 'accepted',
		    accepted_at = now(),
		    accepted_member_id = $1
		WHERE id = $2 AND status = 'pending'
	`, memberID, invitationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
