package service

import (
	"context"
	"encoding/json"
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

	"github.com/google/uuid"
)

type frameworkEntry struct {
	value    domain.QualificationFramework
	loadedAt time.Time
}

// QualificationEngine computes CPT qualification scores from the tenant's
// configured framework document and, on a proceed recommendation, drives the
// status engine to advance the lead.
type QualificationEngine struct {
	repo         LeadStore
	settings     settings.Reader
	statusEngine *StatusEngine
	audit        ports.AuditWriter
	bus          events.Bus
	log          *logger.Logger

	mu         sync.RWMutex
	frameworks map[uuid.UUID]frameworkEntry
}

// NewQualificationEngine creates a qualification engine.
func NewQualificationEngine(repo LeadStore, settingsReader settings.Reader, statusEngine *StatusEngine, audit ports.AuditWriter, bus events.Bus, log *logger.Logger) *QualificationEngine {
	return &QualificationEngine{
		repo:         repo,
		settings:     settingsReader,
		statusEngine: statusEngine,
		audit:        audit,
		bus:          bus,
		log:          log,
		frameworks:   make(map[uuid.UUID]frameworkEntry),
	}
}

// ClearCache drops every cached framework document.
func (e *QualificationEngine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameworks = make(map[uuid.UUID]frameworkEntry)
}

// Framework returns the qualification framework for the tenant, loading and
// caching it on first use. A missing or incomplete document is a
// configuration defect.
func (e *QualificationEngine) Framework(ctx context.Context, tenantID uuid.UUID) (domain.QualificationFramework, error) {
	e.mu.RLock()
	entry, ok := e.frameworks[tenantID]
	e.mu.RUnlock()
	if ok {
		return entry.value, nil
	}

	raw, err := e.settings.GetSettingValue(ctx, tenantID, settings.KeyQualificationFramework)
	if err != nil {
		return domain.QualificationFramework{}, err
	}
	if raw == nil {
		return domain.QualificationFramework{}, apperr.Configuration("qualification framework document is not configured")
	}

	framework, err := domain.ParseQualificationFramework(raw)
	if err != nil {
		return domain.QualificationFramework{}, apperr.Wrap(apperr.KindConfiguration, "qualification framework document is malformed", err)
	}

	e.mu.Lock()
	e.frameworks[tenantID] = frameworkEntry{value: framework, loadedAt: time.Now()}
	e.mu.Unlock()

	return framework, nil
}

// QualifyResult reports the outcome of a qualification run.
type QualifyResult struct {
	LeadID          uuid.UUID             `json:"leadId"`
	Score           domain.ScoreBreakdown `json:"score"`
	Recommendation  string                `json:"recommendation"`
	StatusUpdated   bool                  `json:"statusUpdated"`
	SuggestedAction string                `json:"suggestedAction,omitempty"`
}

// qualificationNotes is the serialized form stored on the lead: enough to
// reconstruct how the score was produced after the framework changes.
type qualificationNotes struct {
	FrameworkVersion int               `json:"framework_version"`
	Answers          domain.CPTAnswers `json:"answers"`
}

// QualifyLead scores a lead against the CPT rubric and persists the result.
// A missing lead and a terminal current status are errors; a proceed
// recommendation triggers an inner status update whose failure is swallowed
// (the qualification itself stays committed).
func (e *QualificationEngine) QualifyLead(ctx context.Context, tenantID, leadID uuid.UUID, cpt domain.CPTAnswers, performedBy *uuid.UUID) (QualifyResult, error) {
	framework, err := e.Framework(ctx, tenantID)
	if err != nil {
		return QualifyResult{}, err
	}

	lead, err := e.repo.GetLead(ctx, leadID, tenantID)
	if err != nil {
		if err == repository.ErrNotFound {
			return QualifyResult{}, apperr.NotFound("lead not found")
		}
		return QualifyResult{}, err
	}

	currentStatus := domain.DefaultStatus
	if lead.Status != nil && *lead.Status != "" {
		currentStatus = *lead.Status
	}

	workflow, err := e.statusEngine.Workflow(ctx, tenantID)
	if err != nil {
		return QualifyResult{}, err
	}
	if workflow.IsTerminal(currentStatus) {
		return QualifyResult{}, apperr.Validation(fmt.Sprintf("lead in terminal status %s cannot be requalified", currentStatus))
	}

	score, err := domain.CalculateScore(framework, cpt)
	if err != nil {
		return QualifyResult{}, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	recommendation := domain.Recommendation(framework.Thresholds, score.Total)

	notes, err := json.Marshal(qualificationNotes{
		FrameworkVersion: framework.Version,
		Answers:          cpt,
	})
	if err != nil {
		return QualifyResult{}, err
	}

	params := repository.UpdateQualificationParams{
		LeadID:   leadID,
		TenantID: tenantID,
		Score:    score.Total,
		Notes:    string(notes),
		Activity: repository.ActivityParams{
			LeadID:       leadID,
			TenantID:     tenantID,
			ActorID:      performedBy,
			ActivityType: "lead_qualified",
			Title:        fmt.Sprintf("Qualified with score %d (%s)", score.Total, recommendation),
			Metadata: map[string]any{
				"score":          score.Total,
				"recommendation": recommendation,
				"answers":        cpt,
			},
		},
	}
	if err := e.repo.UpdateLeadQualification(ctx, params); err != nil {
		if err == repository.ErrNotFound {
			return QualifyResult{}, apperr.NotFound("lead not found")
		}
		return QualifyResult{}, err
	}

	e.audit.LogActionSafe(ctx, ports.AuditEntry{
		TenantID:  tenantID,
		MemberID:  performedBy,
		Entity:    "lead",
		EntityID:  leadID.String(),
		Action:    "update",
		OldValues: map[string]any{"qualification_score": optionalInt(lead.QualificationScore)},
		NewValues: map[string]any{"qualification_score": score.Total},
		Context:   map[string]any{"source": "lead_qualification_engine", "recommendation": recommendation},
		Tags:      []string{"lead_lifecycle"},
	})

	result := QualifyResult{
		LeadID:         leadID,
		Score:          score,
		Recommendation: recommendation,
	}

	switch recommendation {
	case domain.RecommendationProceed:
		// A failed inner transition is swallowed: the qualification stays
		// committed and the lead keeps its current status.
		inner, err := e.statusEngine.UpdateStatus(ctx, tenantID, leadID, framework.QualifiedStatus, UpdateStatusOptions{PerformedBy: performedBy})
		if err != nil {
			e.log.Error("auto-advance after qualification failed", "error", err, "leadId", leadID)
		} else if !inner.Success {
			e.log.Warn("auto-advance after qualification rejected", "reason", inner.Error, "leadId", leadID)
		}
		result.StatusUpdated = err == nil && inner.Success
	case domain.RecommendationNurture:
		result.SuggestedAction = "Schedule a nurture follow-up before requalifying"
	default:
		result.SuggestedAction = "Move the lead to a disqualified status with a loss reason"
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadQualified{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         leadID,
			TenantID:       tenantID,
			Score:          score.Total,
			Recommendation: recommendation,
			StatusUpdated:  result.StatusUpdated,
		})
	}

	return result, nil
}

func optionalInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
