package settings

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Default lifecycle configuration documents seeded for every new tenant.
// Tenants customize them afterwards through normal settings writes.
var defaultDocuments = map[string]string{
	KeyStatusWorkflow: `{
		"version": 1,
		"phases": ["engagement", "negotiation", "closed"],
		"statuses": [
			{"value": "new", "phase": "engagement", "probability": 10, "color": "#6b7280",
			 "allowed_transitions": ["contacted", "qualified", "disqualified"]},
			{"value": "contacted", "phase": "engagement", "probability": 25, "color": "#3b82f6",
			 "allowed_transitions": ["qualified", "lost", "disqualified"], "sla_hours": 48},
			{"value": "qualified", "phase": "negotiation", "probability": 55, "color": "#8b5cf6",
			 "allowed_transitions": ["proposal_sent", "lost"]},
			{"value": "proposal_sent", "phase": "negotiation", "probability": 75, "color": "#f59e0b",
			 "allowed_transitions": ["won", "lost"], "sla_hours": 120},
			{"value": "won", "phase": "closed", "probability": 100, "color": "#22c55e",
			 "allowed_transitions": [], "is_terminal": true, "is_won": true},
			{"value": "lost", "phase": "closed", "probability": 0, "color": "#ef4444",
			 "allowed_transitions": [], "is_terminal": true, "requires_reason": true},
			{"value": "disqualified", "phase": "closed", "probability": 0, "color": "#991b1b",
			 "allowed_transitions": [], "is_terminal": true, "requires_reason": true}
		]
	}`,
	KeyLossReasons: `{
		"reasons": [
			{"code": "price_too_high", "category": "lost"},
			{"code": "chose_competitor", "category": "lost", "requires_detail": true, "detail_field": "competitor_name"},
			{"code": "no_response", "category": "lost"},
			{"code": "no_fleet", "category": "disqualified"},
			{"code": "out_of_territory", "category": "disqualified"},
			{"code": "other", "category": "lost", "requires_detail": true, "detail_field": "description"}
		]
	}`,
	KeyQualificationFramework: `{
		"version": 1,
		"qualified_status": "qualified",
		"questions": [
			{"criterion": "challenges", "prompt": "How acute are the fleet management challenges?"},
			{"criterion": "priority", "prompt": "How high is solving this on their agenda?"},
			{"criterion": "timing", "prompt": "When do they want to start?"}
		],
		"score_weights": {
			"challenges": {"high": 40, "medium": 25, "low": 10},
			"priority": {"high": 30, "medium": 20, "low": 5},
			"timing": {"hot": 30, "warm": 20, "cold": 5}
		},
		"thresholds": {"proceed": 70, "nurture": 40}
	}`,
}

// SeedDefaults installs the default lifecycle documents for a tenant,
// leaving any document the tenant already has untouched.
func (r *Repository) SeedDefaults(ctx context.Context, tenantID uuid.UUID) error {
	for key, doc := range defaultDocuments {
		compact, err := compactJSON(doc)
		if err != nil {
			return err
		}
		_, err = r.pool.Exec(ctx, `
			INSERT INTO tenant_settings (tenant_id, key, value, version, updated_at)
			VALUES ($1, $2, $3, 1, now())
			ON CONFLICT (tenant_id, key) DO NOTHING
		`, tenantID, key, compact)
		if err != nil {
			return err
		}
	}
	return nil
}

func compactJSON(doc string) ([]byte, error) {
	var value any
	if err := json.Unmarshal([]byte(doc), &value); err != nil {
		return nil, err
	}
	return json.Marshal(value)
}
