// Package settings provides access to tenant-scoped JSON configuration
// documents. The lead lifecycle engines read their workflow, loss reason and
// qualification documents through this repository.
package settings

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Well-known setting document keys.
const (
	KeyStatusWorkflow         = "lead_status_workflow"
	KeyLossReasons            = "lead_loss_reasons"
	KeyQualificationFramework = "lead_qualification_framework"
)

// Reader is the read-only settings accessor the engines depend on.
type Reader interface {
	// GetSettingValue returns the raw JSON document stored under key for the
	// tenant, or nil when no document exists. Absence is not an error here;
	// engines decide whether a missing document is a configuration defect.
	GetSettingValue(ctx context.Context, tenantID uuid.UUID, key string) (json.RawMessage, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSettingValue implements Reader.
func (r *Repository) GetSettingValue(ctx context.Context, tenantID uuid.UUID, key string) (json.RawMessage, error) {
	var value []byte
	err := r.pool.QueryRow(ctx, `
		SELECT value
		FROM tenant_settings
		WHERE tenant_id = $1 AND key = $2
	`, tenantID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return json.RawMessage(value), nil
}

// UpsertSettingValue stores a JSON document under key for the tenant,
// bumping the stored version on every write.
func (r *Repository) UpsertSettingValue(ctx context.Context, tenantID uuid.UUID, key string, value json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_settings (tenant_id, key, value, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (tenant_id, key)
		DO UPDATE SET value = EXCLUDED.value,
		              version = tenant_settings.version + 1,
		              updated_at = now()
	`, tenantID, key, []byte(value))
	return err
}
