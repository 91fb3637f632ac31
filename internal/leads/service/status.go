// Package service implements the settings-driven lead lifecycle engines.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetcore_backend/internal/events"
	"fleetcore_backend/internal/leads/domain"
	"fleetcore_backend/internal/leads/ports"
	"fleetcore_backend/internal/leads/repository"
	"fleetcore_backend/internal/settings"
	"fleetcore_backend/platform/apperr"
	"fleetcore_backend/platform/logger"
	"fleetcore_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Fixed result message for a missing lead. Lead absence is a business
// outcome of the status flow, not an exception (unlike the identity flows).
const errLeadNotFound = "Lead not found"

// LeadStore is the persistence surface the engines need.
// Satisfied by *repository.Repository.
type LeadStore interface {
	GetLead(ctx context.Context, leadID, tenantID uuid.UUID) (repository.Lead, error)
	UpdateLeadStatus(ctx context.Context, params repository.UpdateStatusParams) error
	UpdateLeadQualification(ctx context.Context, params repository.UpdateQualificationParams) error
	ListActivities(ctx context.Context, leadID, tenantID uuid.UUID) ([]repository.Activity, error)
}

type workflowEntry struct {
	value    *domain.WorkflowMap
	loadedAt time.Time
}

type lossReasonsEntry struct {
	value    domain.LossReasonsConfig
	loadedAt time.Time
}

// StatusEngine validates and applies lead status transitions against the
// tenant's configured workflow document. Configuration documents are loaded
// lazily and cached per engine instance until ClearCache.
type StatusEngine struct {
	repo     LeadStore
	settings settings.Reader
	audit    ports.AuditWriter
	bus      events.Bus
	log      *logger.Logger

	mu          sync.RWMutex
	workflows   map[uuid.UUID]workflowEntry
	lossReasons map[uuid.UUID]lossReasonsEntry
}

// NewStatusEngine creates a status engine.
func NewStatusEngine(repo LeadStore, settingsReader settings.Reader, audit ports.AuditWriter, bus events.Bus, log *logger.Logger) *StatusEngine {
	return &StatusEngine{
		repo:        repo,
		settings:    settingsReader,
		audit:       audit,
		bus:         bus,
		log:         log,
		workflows:   make(map[uuid.UUID]workflowEntry),
		lossReasons: make(map[uuid.UUID]lossReasonsEntry),
	}
}

// ClearCache drops every cached configuration document. Call after a
// settings write so the next operation reloads.
func (e *StatusEngine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows = make(map[uuid.UUID]workflowEntry)
	e.lossReasons = make(map[uuid.UUID]lossReasonsEntry)
}

// Workflow returns the compiled workflow map for the tenant, loading and
// caching it on first use. A missing document is a configuration defect.
func (e *StatusEngine) Workflow(ctx context.Context, tenantID uuid.UUID) (*domain.WorkflowMap, error) {
	e.mu.RLock()
	entry, ok := e.workflows[tenantID]
	e.mu.RUnlock()
	if ok {
		return entry.value, nil
	}

	raw, err := e.settings.GetSettingValue(ctx, tenantID, settings.KeyStatusWorkflow)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, apperr.Configuration("status workflow document is not configured")
	}

	workflow, err := domain.ParseWorkflow(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "status workflow document is malformed", err)
	}

	e.mu.Lock()
	e.workflows[tenantID] = workflowEntry{value: workflow, loadedAt: time.Now()}
	e.mu.Unlock()

	return workflow, nil
}

func (e *StatusEngine) lossReasonsConfig(ctx context.Context, tenantID uuid.UUID) (domain.LossReasonsConfig, error) {
	e.mu.RLock()
	entry, ok := e.lossReasons[tenantID]
	e.mu.RUnlock()
	if ok {
		return entry.value, nil
	}

	raw, err := e.settings.GetSettingValue(ctx, tenantID, settings.KeyLossReasons)
	if err != nil {
		return domain.LossReasonsConfig{}, err
	}
	if raw == nil {
		return domain.LossReasonsConfig{}, apperr.Configuration("loss reasons document is not configured")
	}

	cfg, err := domain.ParseLossReasons(raw)
	if err != nil {
		return domain.LossReasonsConfig{}, apperr.Wrap(apperr.KindConfiguration, "loss reasons document is malformed", err)
	}

	e.mu.Lock()
	e.lossReasons[tenantID] = lossReasonsEntry{value: cfg, loadedAt: time.Now()}
	e.mu.Unlock()

	return cfg, nil
}

// ValidateTransition reports whether from → to is allowed by the tenant's
// workflow. Purely configuration-driven.
func (e *StatusEngine) ValidateTransition(ctx context.Context, tenantID uuid.UUID, from, to string) (bool, error) {
	workflow, err := e.Workflow(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return workflow.ValidateTransition(from, to), nil
}

// AllowedTransitions returns the transition targets configured for a status.
func (e *StatusEngine) AllowedTransitions(ctx context.Context, tenantID uuid.UUID, from string) ([]string, error) {
	workflow, err := e.Workflow(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return workflow.AllowedTransitions(from), nil
}

// ValidateLossReason checks a loss reason code against a target status.
func (e *StatusEngine) ValidateLossReason(ctx context.Context, tenantID uuid.UUID, code, targetStatus string) (domain.LossReasonCheck, error) {
	cfg, err := e.lossReasonsConfig(ctx, tenantID)
	if err != nil {
		return domain.LossReasonCheck{}, err
	}
	return cfg.CheckLossReason(code, targetStatus), nil
}

// LeadTransitions returns a lead's current status and the transition targets
// the workflow allows from it.
func (e *StatusEngine) LeadTransitions(ctx context.Context, tenantID, leadID uuid.UUID) (string, []string, error) {
	workflow, err := e.Workflow(ctx, tenantID)
	if err != nil {
		return "", nil, err
	}

	lead, err := e.repo.GetLead(ctx, leadID, tenantID)
	if err != nil {
		if err == repository.ErrNotFound {
			return "", nil, apperr.NotFound("lead not found")
		}
		return "", nil, err
	}

	current := domain.DefaultStatus
	if lead.Status != nil && *lead.Status != "" {
		current = *lead.Status
	}
	return current, workflow.AllowedTransitions(current), nil
}

// LeadActivities returns a lead's activity history, newest first.
func (e *StatusEngine) LeadActivities(ctx context.Context, tenantID, leadID uuid.UUID) ([]repository.Activity, error) {
	if _, err := e.repo.GetLead(ctx, leadID, tenantID); err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, err
	}
	return e.repo.ListActivities(ctx, leadID, tenantID)
}

// UpdateStatusOptions carries the optional parts of a status update.
type UpdateStatusOptions struct {
	PerformedBy      *uuid.UUID
	LossReasonCode   string
	LossReasonDetail string
}

// StatusUpdateResult reports the outcome of a status update. Validation
// failures populate Error and leave Success false; they are results, not
// errors — only configuration and infrastructure problems surface as errors.
type StatusUpdateResult struct {
	Success        bool      `json:"success"`
	LeadID         uuid.UUID `json:"leadId"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	NewStatus      string    `json:"newStatus,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func failedUpdate(leadID uuid.UUID, message string) StatusUpdateResult {
	return StatusUpdateResult{Success: false, LeadID: leadID, Error: message}
}

// UpdateStatus validates and applies a status transition. On success the new
// status and its activity record commit atomically; the audit entry and the
// domain event follow after commit, best-effort.
func (e *StatusEngine) UpdateStatus(ctx context.Context, tenantID, leadID uuid.UUID, newStatus string, opts UpdateStatusOptions) (StatusUpdateResult, error) {
	workflow, err := e.Workflow(ctx, tenantID)
	if err != nil {
		return StatusUpdateResult{}, err
	}

	lead, err := e.repo.GetLead(ctx, leadID, tenantID)
	if err != nil {
		if err == repository.ErrNotFound {
			return failedUpdate(leadID, errLeadNotFound), nil
		}
		return StatusUpdateResult{}, err
	}

	previous := domain.DefaultStatus
	if lead.Status != nil && *lead.Status != "" {
		previous = *lead.Status
	}

	if !workflow.ValidateTransition(previous, newStatus) {
		return failedUpdate(leadID, fmt.Sprintf("Invalid transition from %s to %s", previous, newStatus)), nil
	}

	target, _ := workflow.Status(newStatus)

	var reasonCode, reasonDetail *string
	if target.RequiresReason {
		check, err := e.ValidateLossReason(ctx, tenantID, opts.LossReasonCode, newStatus)
		if err != nil {
			return StatusUpdateResult{}, err
		}
		if !check.Valid {
			return failedUpdate(leadID, check.Error), nil
		}

		detail := sanitize.Text(opts.LossReasonDetail)
		if check.RequiresDetail && detail == "" {
			return failedUpdate(leadID, domain.MissingDetailError(opts.LossReasonCode)), nil
		}

		code := opts.LossReasonCode
		reasonCode = &code
		if detail != "" {
			reasonDetail = &detail
		}
	}

	params := repository.UpdateStatusParams{
		LeadID:           leadID,
		TenantID:         tenantID,
		NewStatus:        newStatus,
		LossReasonCode:   reasonCode,
		LossReasonDetail: reasonDetail,
		SetConvertedAt:   target.IsWon,
		Activity: repository.ActivityParams{
			LeadID:       leadID,
			TenantID:     tenantID,
			ActorID:      opts.PerformedBy,
			ActivityType: "status_changed",
			Title:        fmt.Sprintf("Status changed to %s", newStatus),
			Summary:      repository.TruncateSummary(opts.LossReasonDetail, repository.ActivitySummaryMaxLen),
			Metadata: map[string]any{
				"previousStatus": previous,
				"newStatus":      newStatus,
				"lossReasonCode": opts.LossReasonCode,
			},
		},
	}

	if err := e.repo.UpdateLeadStatus(ctx, params); err != nil {
		if err == repository.ErrNotFound {
			return failedUpdate(leadID, errLeadNotFound), nil
		}
		return StatusUpdateResult{}, err
	}

	oldValues := map[string]any{"status": previous}
	newValues := map[string]any{"status": newStatus}
	if reasonCode != nil {
		newValues["loss_reason_code"] = *reasonCode
	}
	e.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID:  tenantID,
		MemberID:  opts.PerformedBy,
		Entity:    "lead",
		EntityID:  leadID.String(),
		Action:    "update",
		OldValues: oldValues,
		NewValues: newValues,
		Context:   map[string]any{"source": "lead_status_engine"},
		Tags:      []string{"lead_lifecycle"},
	})

	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         leadID,
			TenantID:       tenantID,
			PreviousStatus: previous,
			NewStatus:      newStatus,
			LossReasonCode: reasonCode,
			PerformedBy:    opts.PerformedBy,
		})
	}

	return StatusUpdateResult{
		Success:        true,
		LeadID:         leadID,
		PreviousStatus: previous,
		NewStatus:      newStatus,
	}, nil
}
