package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ActivitySummaryMaxLen is the canonical maximum character length for
// activity summaries. Callers should use TruncateSummary when populating
// ActivityParams.Summary.
const ActivitySummaryMaxLen = 400

// TruncateSummary trims text to maxLen characters, appending "..." on
// overflow. Cuts on rune boundaries so multi-byte text is never split
// mid-sequence. Returns nil for blank input.
func TruncateSummary(text string, maxLen int) *string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		runes := []rune(trimmed)
		trimmed = string(runes[:maxLen]) + "..."
	}
	return &trimmed
}

// Activity is one entry in a lead's activity history.
type Activity struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	TenantID     uuid.UUID
	ActorID      *uuid.UUID
	ActivityType string
	Title        string
	Summary      *string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// ActivityParams describes one activity row to insert.
type ActivityParams struct {
	LeadID       uuid.UUID
	TenantID     uuid.UUID
	ActorID      *uuid.UUID
	ActivityType string
	Title        string
	Summary      *string
	Metadata     map[string]any
}

func insertActivity(ctx context.Context, tx pgx.Tx, params ActivityParams) error {
	metadataJSON, err := json.Marshal(params.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO lead_activities (
			lead_id,
			tenant_id,
			actor_id,
			activity_type,
			title,
			summary,
			metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, params.LeadID, params.TenantID, params.ActorID, params.ActivityType, params.Title, params.Summary, metadataJSON)
	return err
}

const activitySelectCols = `
	id, lead_id, tenant_id, actor_id, activity_type, title, summary, metadata, created_at`

// ListActivities returns all activity entries for a lead, newest first.
func (r *Repository) ListActivities(ctx context.Context, leadID, tenantID uuid.UUID) ([]Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+activitySelectCols+`
		FROM lead_activities
		WHERE lead_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
	`, leadID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var activity Activity
		var rawMetadata []byte
		if err := rows.Scan(
			&activity.ID,
			&activity.LeadID,
			&activity.TenantID,
			&activity.ActorID,
			&activity.ActivityType,
			&activity.Title,
			&activity.Summary,
			&rawMetadata,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(rawMetadata) > 0 {
			_ = json.Unmarshal(rawMetadata, &activity.Metadata)
		}
		items = append(items, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
