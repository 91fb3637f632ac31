// Package service implements the audit trail: classification, best-effort
// recording, filtered queries and suspicious behavior detection.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fleetcore_backend/internal/audit/domain"
	"fleetcore_backend/internal/audit/repository"
	"fleetcore_backend/internal/events"
	"fleetcore_backend/platform/logger"
)

// auditKeyPrefix marks context keys carried inside the changes document.
// Domain field names never start with it, so the two can share one map.
const auditKeyPrefix = "_audit_"

// Store is the persistence surface the audit trail needs.
// Satisfied by *repository.Repository.
type Store interface {
	Insert(ctx context.Context, params repository.InsertParams) error
	List(ctx context.Context, filters repository.Filters) ([]repository.Log, error)
	Count(ctx context.Context, filters repository.Filters) (int64, error)
	ListActionsSince(ctx context.Context, tenantID, memberID uuid.UUID, since time.Time) ([]string, error)
	ListActiveMembersSince(ctx context.Context, since time.Time) ([]repository.MemberRef, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Service is the audit trail service.
type Service struct {
	repo Store
	bus  events.Bus
	log  *logger.Logger
	now  func() time.Time
}

// New creates the audit trail service.
func New(repo Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log, now: time.Now}
}

// Entry describes one action to record. Old/new values feed the diff;
// Context keys are stored inside the changes document under the reserved
// audit prefix.
type Entry struct {
	TenantID  uuid.UUID
	MemberID  *uuid.UUID
	Entity    string
	EntityID  string
	Action    string
	OldValues map[string]any
	NewValues map[string]any
	Context   map[string]any
	Tags      []string
}

// LogAction derives severity, category and retention for the entry, computes
// the diff when both value maps are supplied, and appends one immutable row.
func (s *Service) LogAction(ctx context.Context, entry Entry) error {
	now := s.now()
	severity := domain.DetermineSeverity(entry.Action)
	category := domain.DetermineCategory(entry.Entity)

	changes := make(map[string]any)
	if entry.OldValues != nil && entry.NewValues != nil {
		for key, change := range domain.Diff(entry.OldValues, entry.NewValues) {
			changes[key] = change
		}
	}
	for key, value := range entry.Context {
		changes[auditKeyPrefix+key] = value
	}

	var changesJSON []byte
	if len(changes) > 0 {
		encoded, err := json.Marshal(changes)
		if err != nil {
			return err
		}
		changesJSON = encoded
	}

	oldJSON, err := marshalValues(entry.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(entry.NewValues)
	if err != nil {
		return err
	}

	return s.repo.Insert(ctx, repository.InsertParams{
		TenantID:       entry.TenantID,
		MemberID:       entry.MemberID,
		Entity:         entry.Entity,
		EntityID:       entry.EntityID,
		Action:         entry.Action,
		Changes:        changesJSON,
		OldValues:      oldJSON,
		NewValues:      newJSON,
		Severity:       severity,
		Category:       category,
		RetentionUntil: domain.RetentionUntil(category, now),
		Tags:           entry.Tags,
	})
}

// LogActionSafe records the entry best-effort. A failed write must never
// abort the caller's primary operation; the failure is logged in development
// and otherwise dropped.
func (s *Service) LogActionSafe(ctx context.Context, entry Entry) {
	if err := s.LogAction(ctx, entry); err != nil {
		s.log.AuditWriteFailed(entry.Entity, entry.Action, err)
	}
}

func marshalValues(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

// Query pagination defaults.
const (
	DefaultQueryLimit = 20
	MaxQueryLimit     = 100
)

// QueryFilters narrow an audit query. TenantID is mandatory.
type QueryFilters struct {
	TenantID uuid.UUID
	Entity   string
	Action   string
	MemberID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// QueryResult holds one page of audit rows plus the unpaginated total.
type QueryResult struct {
	Logs  []repository.Log
	Total int64
}

// Query returns matching entries newest first. The page fetch and the total
// count are independent reads and run concurrently.
func (s *Service) Query(ctx context.Context, filters QueryFilters) (QueryResult, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	repoFilters := repository.Filters{
		TenantID: filters.TenantID,
		Entity:   filters.Entity,
		Action:   filters.Action,
		MemberID: filters.MemberID,
		From:     filters.From,
		To:       filters.To,
		Limit:    limit,
		Offset:   offset,
	}

	var result QueryResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs, err := s.repo.List(gctx, repoFilters)
		if err != nil {
			return err
		}
		result.Logs = logs
		return nil
	})
	g.Go(func() error {
		total, err := s.repo.Count(gctx, repoFilters)
		if err != nil {
			return err
		}
		result.Total = total
		return nil
	})
	if err := g.Wait(); err != nil {
		return QueryResult{}, err
	}
	return result, nil
}

// DefaultSuspicionWindowMinutes is the lookback window when the caller does
// not supply one.
const DefaultSuspicionWindowMinutes = 5

// Per-window thresholds over which a member's activity is flagged.
const (
	suspiciousReadThreshold   = 100
	suspiciousWriteThreshold  = 50
	suspiciousDeleteThreshold = 10
)

// SuspicionMetrics are the bucketed action counts inside the window.
type SuspicionMetrics struct {
	Reads         int `json:"reads"`
	Writes        int `json:"writes"`
	Deletes       int `json:"deletes"`
	Total         int `json:"total"`
	WindowMinutes int `json:"windowMinutes"`
}

// SuspicionReport is the detector's outcome. Metrics are always populated.
type SuspicionReport struct {
	IsSuspicious bool             `json:"isSuspicious"`
	Reason       string           `json:"reason,omitempty"`
	Metrics      SuspicionMetrics `json:"metrics"`
}

// DetectSuspiciousBehavior counts a member's recent actions and flags the
// first exceeded threshold, checking reads, then writes, then deletes. It
// never errors beyond a storage failure.
func (s *Service) DetectSuspiciousBehavior(ctx context.Context, tenantID, memberID uuid.UUID, windowMinutes int) (SuspicionReport, error) {
	if windowMinutes <= 0 {
		windowMinutes = DefaultSuspicionWindowMinutes
	}
	since := s.now().Add(-time.Duration(windowMinutes) * time.Minute)

	actions, err := s.repo.ListActionsSince(ctx, tenantID, memberID, since)
	if err != nil {
		return SuspicionReport{}, err
	}

	metrics := SuspicionMetrics{Total: len(actions), WindowMinutes: windowMinutes}
	for _, action := range actions {
		switch action {
		case "validation_failed":
			metrics.Reads++
		case "create", "update", "import":
			metrics.Writes++
		case "delete":
			metrics.Deletes++
		}
	}

	report := SuspicionReport{Metrics: metrics}
	switch {
	case metrics.Reads > suspiciousReadThreshold:
		report.IsSuspicious = true
		report.Reason = fmt.Sprintf("Excessive failed reads: %d validation failures in %d minutes", metrics.Reads, windowMinutes)
	case metrics.Writes > suspiciousWriteThreshold:
		report.IsSuspicious = true
		report.Reason = fmt.Sprintf("Excessive write volume: %d writes in %d minutes", metrics.Writes, windowMinutes)
	case metrics.Deletes > suspiciousDeleteThreshold:
		report.IsSuspicious = true
		report.Reason = fmt.Sprintf("Excessive deletions: %d deletes in %d minutes", metrics.Deletes, windowMinutes)
	}

	if report.IsSuspicious && s.bus != nil {
		s.bus.Publish(ctx, events.SuspiciousBehaviorDetected{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  tenantID,
			MemberID:  memberID,
			Reason:    report.Reason,
		})
	}

	return report, nil
}

// SweepSuspiciousBehavior runs the detector over every member active inside
// the window and records a warning entry for each flagged member. Detection
// failures for one member do not stop the sweep.
func (s *Service) SweepSuspiciousBehavior(ctx context.Context, windowMinutes int) (int, error) {
	if windowMinutes <= 0 {
		windowMinutes = DefaultSuspicionWindowMinutes
	}
	since := s.now().Add(-time.Duration(windowMinutes) * time.Minute)

	refs, err := s.repo.ListActiveMembersSince(ctx, since)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, ref := range refs {
		report, err := s.DetectSuspiciousBehavior(ctx, ref.TenantID, ref.MemberID, windowMinutes)
		if err != nil {
			s.log.Error("suspicious behavior check failed",
				"tenantId", ref.TenantID, "memberId", ref.MemberID, "error", err)
			continue
		}
		if !report.IsSuspicious {
			continue
		}
		flagged++
		memberID := ref.MemberID
		s.LogActionSafe(ctx, Entry{
			TenantID: ref.TenantID,
			MemberID: &memberID,
			Entity:   "audit_log",
			EntityID: memberID.String(),
			Action:   "validation_failed",
			Context: map[string]any{
				"reason":  report.Reason,
				"metrics": report.Metrics,
			},
			Tags: []string{"suspicious_behavior"},
		})
	}
	return flagged, nil
}

// PurgeExpired deletes entries whose retention horizon has passed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
