// Package domain holds the identity sync vocabulary: actor sentinels, entity
// statuses, locale defaults and slug derivation.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// SystemActorID attributes automated mutations (webhook reconciliation,
// background sweeps) in the audit trail. Distinct from a nil member id, which
// means unattributed.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Member statuses.
const (
	MemberStatusActive    = "active"
	MemberStatusInactive  = "inactive"
	MemberStatusSuspended = "suspended"
)

// Tenant statuses.
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Tenant lifecycle event types.
const (
	LifecycleCreated   = "created"
	LifecycleSuspended = "suspended"
)

// Locale defaults applied to newly provisioned tenants.
const (
	DefaultCountryCode = "FR"
	DefaultCurrency    = "EUR"
	DefaultTimezone    = "Europe/Paris"
)

// Slugify derives a URL-safe slug from a display name: lowercase, runs of
// non-alphanumerics collapsed into single dashes, no leading or trailing
// dash. An empty result falls back to "tenant".
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "tenant"
	}
	return slug
}
