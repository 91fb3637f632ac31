// Package domain holds the audit classification rules: severity and category
// lookup tables, retention horizons and the shallow field diff.
package domain

import (
	"reflect"
	"time"
)

// Severity levels of an audit entry.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Compliance categories of an audit entry. The category decides how long the
// entry is retained.
const (
	CategorySecurity    = "security"
	CategoryFinancial   = "financial"
	CategoryCompliance  = "compliance"
	CategoryOperational = "operational"
)

var severityByAction = map[string]string{
	"create":            SeverityInfo,
	"update":            SeverityInfo,
	"restore":           SeverityInfo,
	"login":             SeverityInfo,
	"logout":            SeverityInfo,
	"invite":            SeverityInfo,
	"accept_invite":     SeverityInfo,
	"delete":            SeverityWarning,
	"export":            SeverityWarning,
	"import":            SeverityWarning,
	"validation_failed": SeverityWarning,
	"ip_blocked":        SeverityCritical,
}

var categoryByEntity = map[string]string{
	"member":     CategorySecurity,
	"role":       CategorySecurity,
	"invitation": CategorySecurity,
	"session":    CategorySecurity,
	"api_key":    CategorySecurity,
	"payment":    CategoryFinancial,
	"invoice":    CategoryFinancial,
	"billing":    CategoryFinancial,
	"audit_log":  CategoryCompliance,
	"consent":    CategoryCompliance,
	"contract":   CategoryCompliance,
}

// retentionDays maps a category to its compliance-driven retention horizon.
var retentionDays = map[string]int{
	CategorySecurity:    730,
	CategoryFinancial:   3650,
	CategoryCompliance:  1095,
	CategoryOperational: 365,
}

// DetermineSeverity classifies an action. Unknown actions are info.
func DetermineSeverity(action string) string {
	if severity, ok := severityByAction[action]; ok {
		return severity
	}
	return SeverityInfo
}

// DetermineCategory buckets an entity. Unknown entities are operational.
func DetermineCategory(entity string) string {
	if category, ok := categoryByEntity[entity]; ok {
		return category
	}
	return CategoryOperational
}

// RetentionUntil computes the expiry timestamp for an entry of the given
// category, measured from now.
func RetentionUntil(category string, now time.Time) time.Time {
	days, ok := retentionDays[category]
	if !ok {
		days = retentionDays[CategoryOperational]
	}
	return now.AddDate(0, 0, days)
}

// FieldChange is one changed field in a diff. A removed key keeps its old
// value and serializes New as JSON null.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff computes a shallow key-wise diff between two value maps. Identical
// maps produce an empty diff; keys present on only one side are reported with
// the missing side as nil.
func Diff(oldValues, newValues map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)

	for key, oldVal := range oldValues {
		newVal, ok := newValues[key]
		if !ok {
			changes[key] = FieldChange{Old: oldVal, New: nil}
			continue
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = FieldChange{Old: oldVal, New: newVal}
		}
	}
	for key, newVal := range newValues {
		if _, ok := oldValues[key]; !ok {
			changes[key] = FieldChange{Old: nil, New: newVal}
		}
	}

	return changes
}
