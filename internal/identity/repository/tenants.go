package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Tenant is the persistence view of a tenant.
type Tenant struct {
	ID          uuid.UUID
	ExternalID  string
	Name        string
	Slug        string
	Status      string
	CountryCode string
	Currency    string
	Timezone    string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const tenantSelectCols = `
	id, external_id, name, slug, status, country_code, currency, timezone,
	deleted_at, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID,
		&t.ExternalID,
		&t.Name,
		&t.Slug,
		&t.Status,
		&t.CountryCode,
		&t.Currency,
		&t.Timezone,
		&t.DeletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	return t, nil
}

// GetTenantByExternalID loads the live tenant synced from the given external
// organization.
func (r *Repository) GetTenantByExternalID(ctx context.Context, externalID string) (Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `
		SELECT`+tenantSelectCols+`
		FROM tenants
		WHERE external_id = $1 AND deleted_at IS NULL
	`, externalID))
}

// TenantSlugExists reports whether any tenant already holds the slug,
// including soft-deleted ones (the slug index spans them).
func (r *Repository) TenantSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1)
	`, slug).Scan(&exists)
	return exists, err
}

// CreateTenantParams carries one tenant insert.
type CreateTenantParams struct {
	ExternalID  string
	Name        string
	Slug        string
	CountryCode string
	Currency    string
	Timezone    string
}

// CreateTenant inserts an active tenant.
func (r *Repository) CreateTenant(ctx context.Context, q DBTX, params CreateTenantParams) (Tenant, error) {
	return scanTenant(q.QueryRow(ctx, `
		INSERT INTO tenants (external_id, name, slug, status, country_code, currency, timezone)
		VALUES ($1, $2, $3, 'active', $4, $5, $6)
		RETURNING`+tenantSelectCols+`
	`, params.ExternalID, params.Name, params.Slug, params.CountryCode, params.Currency, params.Timezone))
}

// UpdateTenantParams carries a partial tenant update; nil fields are left
// untouched.
type UpdateTenantParams struct {
	TenantID uuid.UUID
	Name     *string
	Slug     *string
}

// UpdateTenant applies the supplied fields and returns the updated row.
func (r *Repository) UpdateTenant(ctx context.Context, params UpdateTenantParams) (Tenant, error) {
	setClauses := []string{"updated_at = now()"}
	args := []interface{}{params.TenantID}
	argIdx := 2

	appendSet := func(column string, value *string) {
		if value == nil {
			return
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, *value)
		argIdx++
	}
	appendSet("name", params.Name)
	appendSet("slug", params.Slug)

	return scanTenant(r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE tenants
		SET %s
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING`+tenantSelectCols+`
	`, strings.Join(setClauses, ", ")), args...))
}

// SuspendTenant soft-deletes the tenant and marks it suspended.
func (r *Repository) SuspendTenant(ctx context.Context, q DBTX, tenantID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE tenants
		SET status = 'suspended',
		    deleted_at = now(),
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertLifecycleEvent appends one tenant lifecycle event.
func (r *Repository) InsertLifecycleEvent(ctx context.Context, q DBTX, tenantID uuid.UUID, eventType string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO tenant_lifecycle_events (tenant_id, event_type)
		VALUES ($1, $2)
	`, tenantID, eventType)
	return err
}
