// Package repository persists audit log rows. The table is append-only: the
// only delete path is the retention purge.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Log is one audit row. Changes, OldValues and NewValues hold raw JSON;
// Changes is nil when the entry recorded no diff.
type Log struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	MemberID       *uuid.UUID
	Entity         string
	EntityID       string
	Action         string
	Changes        []byte
	OldValues      []byte
	NewValues      []byte
	Severity       string
	Category       string
	RetentionUntil time.Time
	Tags           []string
	CreatedAt      time.Time
}

// InsertParams carries one audit row to append.
type InsertParams struct {
	TenantID       uuid.UUID
	MemberID       *uuid.UUID
	Entity         string
	EntityID       string
	Action         string
	Changes        []byte
	OldValues      []byte
	NewValues      []byte
	Severity       string
	Category       string
	RetentionUntil time.Time
	Tags           []string
}

// Insert appends one audit row.
func (r *Repository) Insert(ctx context.Context, params InsertParams) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (
			tenant_id,
			member_id,
			entity,
			entity_id,
			action,
			changes,
			old_values,
			new_values,
			severity,
			category,
			retention_until,
			tags
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, params.TenantID, params.MemberID, params.Entity, params.EntityID, params.Action,
		params.Changes, params.OldValues, params.NewValues, params.Severity,
		params.Category, params.RetentionUntil, params.Tags)
	return err
}

// Filters narrow a tenant-scoped audit query.
type Filters struct {
	TenantID uuid.UUID
	Entity   string
	Action   string
	MemberID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (f Filters) whereClause() (string, []interface{}) {
	whereClauses := []string{"tenant_id = $1"}
	args := []interface{}{f.TenantID}
	argIdx := 2

	if f.Entity != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("entity = $%d", argIdx))
		args = append(args, f.Entity)
		argIdx++
	}
	if f.Action != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, f.Action)
		argIdx++
	}
	if f.MemberID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("member_id = $%d", argIdx))
		args = append(args, *f.MemberID)
		argIdx++
	}
	if f.From != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *f.From)
		argIdx++
	}
	if f.To != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *f.To)
		argIdx++
	}

	return strings.Join(whereClauses, " AND "), args
}

const logSelectCols = `
	id, tenant_id, member_id, entity, entity_id, action, changes,
	old_values, new_values, severity, category, retention_until, tags, created_at`

// List returns matching rows, newest first.
func (r *Repository) List(ctx context.Context, filters Filters) ([]Log, error) {
	whereClause, args := filters.whereClause()
	args = append(args, filters.Limit, filters.Offset)

	query := fmt.Sprintf(`
		SELECT`+logSelectCols+`
		FROM audit_logs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Log, 0)
	for rows.Next() {
		var log Log
		if err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.MemberID,
			&log.Entity,
			&log.EntityID,
			&log.Action,
			&log.Changes,
			&log.OldValues,
			&log.NewValues,
			&log.Severity,
			&log.Category,
			&log.RetentionUntil,
			&log.Tags,
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, log)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the total number of matching rows, ignoring pagination.
func (r *Repository) Count(ctx context.Context, filters Filters) (int64, error) {
	whereClause, args := filters.whereClause()

	var total int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM audit_logs
		WHERE %s
	`, whereClause), args...).Scan(&total)
	return total, err
}

// ListActionsSince returns the action of every entry a member produced in the
// tenant since the given instant. Used by the suspicious behavior detector.
func (r *Repository) ListActionsSince(ctx context.Context, tenantID, memberID uuid.UUID, since time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT action
		FROM audit_logs
		WHERE tenant_id = $1 AND member_id = $2 AND created_at >= $3
	`, tenantID, memberID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := make([]string, 0)
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

// ListActiveMembersSince returns the distinct (tenant, member) pairs that
// produced audit entries since the given instant. Drives the periodic sweep.
func (r *Repository) ListActiveMembersSince(ctx context.Context, since time.Time) ([]MemberRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tenant_id, member_id
		FROM audit_logs
		WHERE member_id IS NOT NULL AND created_at >= $1
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]MemberRef, 0)
	for rows.Next() {
		var ref MemberRef
		if err := rows.Scan(&ref.TenantID, &ref.MemberID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// MemberRef identifies a member within a tenant.
type MemberRef struct {
	TenantID uuid.UUID
	MemberID uuid.UUID
}

// DeleteExpired removes rows whose retention horizon has passed. This is the
// only delete path into audit_logs.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM audit_logs
		WHERE retention_until < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
