package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lead is the persistence view of a lead as the lifecycle engines see it.
// Status is nullable: a NULL status is treated as the workflow default.
type Lead struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	Status             *string
	QualificationScore *int
	QualificationNotes *string
	LossReasonCode     *string
	LossReasonDetail   *string
	ConvertedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const leadSelectCols = `
	id, tenant_id, status, qualification_score, qualification_notes,
	loss_reason_code, loss_reason_detail, converted_at, created_at, updated_at`

// GetLead loads a lead scoped to its tenant. Returns ErrNotFound when absent.
func (r *Repository) GetLead(ctx context.Context, leadID, tenantID uuid.UUID) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads
		WHERE id = $1 AND tenant_id = $2
	`, leadID, tenantID).Scan(
		&lead.ID,
		&lead.TenantID,
		&lead.Status,
		&lead.QualificationScore,
		&lead.QualificationNotes,
		&lead.LossReasonCode,
		&lead.LossReasonDetail,
		&lead.ConvertedAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return lead, nil
}

// UpdateStatusParams carries one status transition write.
type UpdateStatusParams struct {
	LeadID           uuid.UUID
	TenantID         uuid.UUID
	NewStatus        string
	LossReasonCode   *string
	LossReasonDetail *string
	SetConvertedAt   bool
	Activity         ActivityParams
}

// UpdateLeadStatus persists a status transition and its activity record in
// one transaction. Partial application is impossible: either the lead row
// and the activity row both commit, or neither does.
func (r *Repository) UpdateLeadStatus(ctx context.Context, params UpdateStatusParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET status = $1,
		    loss_reason_code = $2,
		    loss_reason_detail = $3,
		    converted_at = CASE WHEN $4 THEN now() ELSE converted_at END,
		    updated_at = now()
		WHERE id = $5 AND tenant_id = $6
	`, params.NewStatus, params.LossReasonCode, params.LossReasonDetail, params.SetConvertedAt, params.LeadID, params.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := insertActivity(ctx, tx, params.Activity); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdateQualificationParams carries one qualification write.
type UpdateQualificationParams struct {
	LeadID   uuid.UUID
	TenantID uuid.UUID
	Score    int
	Notes    string
	Activity ActivityParams
}

// UpdateLeadQualification persists the qualification score, the serialized
// notes and the activity record in one transaction.
func (r *Repository) UpdateLeadQualification(ctx context.Context, params UpdateQualificationParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET qualification_score = $1,
		    qualification_notes = $2,
		    updated_at = now()
		WHERE id = $3 AND tenant_id = $4
	`, params.Score, params.Notes, params.LeadID, params.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := insertActivity(ctx, tx, params.Activity); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
