package service

import (
	"context"
	"encoding/json"
	"testing"

	"fleetcore_backend/internal/leads/domain"
	"fleetcore_backend/platform/apperr"
	"fleetcore_backend/platform/logger"

	"github.com/google/uuid"
)

func newTestQualificationEngine(store *fakeLeadStore, reader *fakeSettingsReader, audit *fakeAuditWriter) *QualificationEngine {
	log := logger.New("test")
	status := NewStatusEngine(store, reader, audit, nil, log)
	return NewQualificationEngine(store, reader, status, audit, nil, log)
}

func TestQualifyLeadProceedAdvancesStatus(t *testing.T) {
	store := newFakeLeadStore()
	audit := &fakeAuditWriter{}
	engine := newTestQualificationEngine(store, testSettings(), audit)

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")
	actorID := uuid.New()

	result, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "high", Priority: "high", Timing: "hot",
	}, &actorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score.Total != 100 {
		t.Fatalf("expected score 100, got %d", result.Score.Total)
	}
	if result.Recommendation != domain.RecommendationProceed {
		t.Fatalf("expected proceed, got %s", result.Recommendation)
	}
	if !result.StatusUpdated {
		t.Fatal("expected auto-advance to the qualified status")
	}

	lead := store.leads[leadID]
	if lead.Status == nil || *lead.Status != "qualified" {
		t.Fatalf("expected lead status qualified, got %v", lead.Status)
	}
	if lead.QualificationScore == nil || *lead.QualificationScore != 100 {
		t.Fatalf("expected persisted score 100, got %v", lead.QualificationScore)
	}

	// One audit entry for the qualification, one for the inner transition.
	if len(audit.entries) != 2 {
		t.Fatalf("expected two audit entries, got %d", len(audit.entries))
	}
}

func TestQualifyLeadProceedAdvancesNewLead(t *testing.T) {
	store := newFakeLeadStore()
	audit := &fakeAuditWriter{}
	engine := newTestQualificationEngine(store, testSettings(), audit)

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "new")

	result, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "high", Priority: "high", Timing: "hot",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score.Total != 100 {
		t.Fatalf("expected score 100, got %d", result.Score.Total)
	}
	if result.Recommendation != domain.RecommendationProceed {
		t.Fatalf("expected proceed, got %s", result.Recommendation)
	}
	if !result.StatusUpdated {
		t.Fatal("a brand-new lead scoring proceed must auto-advance")
	}

	lead := store.leads[leadID]
	if lead.Status == nil || *lead.Status != "qualified" {
		t.Fatalf("expected lead status qualified, got %v", lead.Status)
	}
}

func TestQualifyLeadNurtureKeepsStatus(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestQualificationEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")

	result, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "medium", Priority: "medium", Timing: "warm",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score.Total != 65 {
		t.Fatalf("expected score 65, got %d", result.Score.Total)
	}
	if result.Recommendation != domain.RecommendationNurture {
		t.Fatalf("expected nurture, got %s", result.Recommendation)
	}
	if result.StatusUpdated {
		t.Fatal("nurture must not change status")
	}
	if result.SuggestedAction == "" {
		t.Fatal("expected a suggested action for nurture")
	}

	lead := store.leads[leadID]
	if lead.Status == nil || *lead.Status != "contacted" {
		t.Fatalf("expected status to stay contacted, got %v", lead.Status)
	}
}

func TestQualifyLeadDisqualifyRecommendation(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestQualificationEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "new")

	result, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "low", Priority: "low", Timing: "cold",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score.Total != 20 {
		t.Fatalf("expected score 20, got %d", result.Score.Total)
	}
	if result.Recommendation != domain.RecommendationDisqualify {
		t.Fatalf("expected disqualify, got %s", result.Recommendation)
	}
	if result.StatusUpdated {
		t.Fatal("disqualify must not change status automatically")
	}
}

func TestQualifyLeadMissingLeadIsNotFound(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestQualificationEngine(store, testSettings(), &fakeAuditWriter{})

	_, err := engine.QualifyLead(context.Background(), uuid.New(), uuid.New(), domain.CPTAnswers{
		Challenges: "high", Priority: "high", Timing: "hot",
	}, nil)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestQualifyLeadRejectsTerminalStatus(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestQualificationEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "won")

	_, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "high", Priority: "high", Timing: "hot",
	}, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.qualificationUpdates) != 0 {
		t.Fatal("no write must happen for a terminal lead")
	}
}

func TestQualifyLeadRejectsUnknownLevel(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestQualificationEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "new")

	_, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "extreme", Priority: "high", Timing: "hot",
	}, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQualifyLeadProceedSwallowsBlockedAutoAdvance(t *testing.T) {
	store := newFakeLeadStore()
	reader := testSettings()
	// Remove the qualified edge so the auto-advance is rejected.
	reader.docs["lead_status_workflow"] = json.RawMessage(`{
		"version": 1,
		"statuses": [
			{"value": "new", "allowed_transitions": ["contacted"]},
			{"value": "contacted", "allowed_transitions": []},
			{"value": "qualified", "allowed_transitions": []}
		]
	}`)
	engine := newTestQualificationEngine(store, reader, &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")

	result, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "high", Priority: "high", Timing: "hot",
	}, nil)
	if err != nil {
		t.Fatalf("qualification must commit even when auto-advance is rejected: %v", err)
	}
	if result.Recommendation != domain.RecommendationProceed {
		t.Fatalf("expected proceed, got %s", result.Recommendation)
	}
	if result.StatusUpdated {
		t.Fatal("StatusUpdated must be false when the inner transition is rejected")
	}

	lead := store.leads[leadID]
	if lead.Status == nil || *lead.Status != "contacted" {
		t.Fatalf("expected status to stay contacted, got %v", lead.Status)
	}
	if lead.QualificationScore == nil || *lead.QualificationScore != 100 {
		t.Fatalf("expected persisted score despite blocked advance, got %v", lead.QualificationScore)
	}
}

func TestQualifyLeadStoresAnswersInNotes(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestQualificationEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "new")

	_, err := engine.QualifyLead(context.Background(), tenantID, leadID, domain.CPTAnswers{
		Challenges: "low", Priority: "low", Timing: "cold",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.qualificationUpdates) != 1 {
		t.Fatalf("expected one qualification write, got %d", len(store.qualificationUpdates))
	}
	var notes qualificationNotes
	if err := json.Unmarshal([]byte(store.qualificationUpdates[0].Notes), &notes); err != nil {
		t.Fatalf("notes are not valid JSON: %v", err)
	}
	if notes.FrameworkVersion != 1 {
		t.Fatalf("expected framework version 1, got %d", notes.FrameworkVersion)
	}
	if notes.Answers.Challenges != "low" || notes.Answers.Timing != "cold" {
		t.Fatalf("unexpected answers %+v", notes.Answers)
	}
}
