package domain

import (
	"encoding/json"
	"fmt"
)

// LossReason is a coded explanation for moving a lead to a negative terminal
// status. The category ties the reason to the status it applies to
// (e.g. "lost", "disqualified").
type LossReason struct {
	Code           string `json:"code"`
	Category       string `json:"category"`
	RequiresDetail bool   `json:"requires_detail"`
	DetailField    string `json:"detail_field,omitempty"`
}

// LossReasonsConfig is the settings document listing the configured reasons.
type LossReasonsConfig struct {
	Reasons []LossReason `json:"reasons"`
}

// ParseLossReasons decodes a raw settings document.
func ParseLossReasons(raw json.RawMessage) (LossReasonsConfig, error) {
	var cfg LossReasonsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return LossReasonsConfig{}, fmt.Errorf("decode loss reasons: %w", err)
	}
	return cfg, nil
}

// Find returns the reason with the given code.
func (c LossReasonsConfig) Find(code string) (LossReason, bool) {
	for _, reason := range c.Reasons {
		if reason.Code == code {
			return reason, true
		}
	}
	return LossReason{}, false
}

// LossReasonCheck is the outcome of validating a loss reason against a
// target status. Error carries the fixed, user-facing message when invalid.
type LossReasonCheck struct {
	Valid          bool
	Error          string
	RequiresDetail bool
}

// CheckLossReason validates code against the target status: the code must
// exist and its category must match the target status. RequiresDetail tells
// the caller whether a non-empty detail string must accompany the reason.
func (c LossReasonsConfig) CheckLossReason(code, targetStatus string) LossReasonCheck {
	if code == "" {
		return LossReasonCheck{Error: fmt.Sprintf("Loss reason is required for status %s", targetStatus)}
	}

	reason, ok := c.Find(code)
	if !ok {
		return LossReasonCheck{Error: fmt.Sprintf("Unknown loss reason: %s", code)}
	}

	if reason.Category != targetStatus {
		return LossReasonCheck{Error: fmt.Sprintf("Loss reason %s does not apply to status %s", code, targetStatus)}
	}

	return LossReasonCheck{Valid: true, RequiresDetail: reason.RequiresDetail}
}

// MissingDetailError is the fixed message for a reason that requires detail
// when none was supplied.
func MissingDetailError(code string) string {
	return fmt.Sprintf("Loss reason %s requires additional detail", code)
}
