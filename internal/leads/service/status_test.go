package service

import (
	"context"
	"encoding/json"
	"testing"

	"fleetcore_backend/internal/leads/domain"
	"fleetcore_backend/internal/leads/ports"
	"fleetcore_backend/internal/leads/repository"
	"fleetcore_backend/platform/apperr"
	"fleetcore_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	leads      map[uuid.UUID]repository.Lead
	activities []repository.Activity

	statusUpdates        []repository.UpdateStatusParams
	qualificationUpdates []repository.UpdateQualificationParams
	updateErr            error
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: make(map[uuid.UUID]repository.Lead)}
}

func (f *fakeLeadStore) GetLead(_ context.Context, leadID, tenantID uuid.UUID) (repository.Lead, error) {
	lead, ok := f.leads[leadID]
	if !ok || lead.TenantID != tenantID {
		return repository.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (f *fakeLeadStore) UpdateLeadStatus(_ context.Context, params repository.UpdateStatusParams) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	lead, ok := f.leads[params.LeadID]
	if !ok {
		return repository.ErrNotFound
	}
	status := params.NewStatus
	lead.Status = &status
	lead.LossReasonCode = params.LossReasonCode
	lead.LossReasonDetail = params.LossReasonDetail
	f.leads[params.LeadID] = lead
	f.statusUpdates = append(f.statusUpdates, params)
	return nil
}

func (f *fakeLeadStore) UpdateLeadQualification(_ context.Context, params repository.UpdateQualificationParams) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	lead, ok := f.leads[params.LeadID]
	if !ok {
		return repository.ErrNotFound
	}
	score := params.Score
	lead.QualificationScore = &score
	f.leads[params.LeadID] = lead
	f.qualificationUpdates = append(f.qualificationUpdates, params)
	return nil
}

func (f *fakeLeadStore) ListActivities(_ context.Context, leadID, tenantID uuid.UUID) ([]repository.Activity, error) {
	return f.activities, nil
}

type fakeSettingsReader struct {
	docs  map[string]json.RawMessage
	calls int
}

func (f *fakeSettingsReader) GetSettingValue(_ context.Context, _ uuid.UUID, key string) (json.RawMessage, error) {
	f.calls++
	return f.docs[key], nil
}

type fakeAuditWriter struct {
	entries []ports.AuditEntry
}

func (f *fakeAuditWriter) LogActionSafe(_ context.Context, entry ports.AuditEntry) {
	f.entries = append(f.entries, entry)
}

const testWorkflowDoc = `{
	"version": 1,
	"phases": ["engagement", "closed"],
	"statuses": [
		{"value": "new", "allowed_transitions": ["contacted", "qualified", "disqualified"]},
		{"value": "contacted", "allowed_transitions": ["qualified", "lost"]},
		{"value": "qualified", "allowed_transitions": ["won", "lost"]},
		{"value": "won", "is_terminal": true, "is_won": true},
		{"value": "lost", "is_terminal": true, "requires_reason": true},
		{"value": "disqualified", "is_terminal": true, "requires_reason": true}
	]
}`

const testLossReasonsDoc = `{
	"reasons": [
		{"code": "price_too_high", "category": "lost"},
		{"code": "chose_competitor", "category": "lost", "requires_detail": true},
		{"code": "no_fleet", "category": "disqualified"}
	]
}`

const testFrameworkDoc = `{
	"version": 1,
	"qualified_status": "qualified",
	"score_weights": {
		"challenges": {"high": 40, "medium": 25, "low": 10},
		"priority": {"high": 30, "medium": 20, "low": 5},
		"timing": {"hot": 30, "warm": 20, "cold": 5}
	},
	"thresholds": {"proceed": 70, "nurture": 40}
}`

func testSettings() *fakeSettingsReader {
	return &fakeSettingsReader{docs: map[string]json.RawMessage{
		"lead_status_workflow":         json.RawMessage(testWorkflowDoc),
		"lead_loss_reasons":            json.RawMessage(testLossReasonsDoc),
		"lead_qualification_framework": json.RawMessage(testFrameworkDoc),
	}}
}

func newTestStatusEngine(store *fakeLeadStore, reader *fakeSettingsReader, audit *fakeAuditWriter) *StatusEngine {
	return NewStatusEngine(store, reader, audit, nil, logger.New("test"))
}

func seedLead(store *fakeLeadStore, tenantID uuid.UUID, status string) uuid.UUID {
	leadID := uuid.New()
	lead := repository.Lead{ID: leadID, TenantID: tenantID}
	if status != "" {
		lead.Status = &status
	}
	store.leads[leadID] = lead
	return leadID
}

func TestUpdateStatusAppliesValidTransition(t *testing.T) {
	store := newFakeLeadStore()
	audit := &fakeAuditWriter{}
	engine := newTestStatusEngine(store, testSettings(), audit)

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "new")
	actorID := uuid.New()

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "contacted", UpdateStatusOptions{PerformedBy: &actorID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.PreviousStatus != "new" || result.NewStatus != "contacted" {
		t.Fatalf("unexpected result statuses: %+v", result)
	}

	if len(store.statusUpdates) != 1 {
		t.Fatalf("expected one status write, got %d", len(store.statusUpdates))
	}
	update := store.statusUpdates[0]
	if update.SetConvertedAt {
		t.Fatal("converted_at must not be set for a non-won status")
	}
	if update.Activity.ActivityType != "status_changed" {
		t.Fatalf("unexpected activity type %q", update.Activity.ActivityType)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Entity != "lead" || entry.Action != "update" {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.OldValues["status"] != "new" || entry.NewValues["status"] != "contacted" {
		t.Fatalf("audit entry carries wrong statuses: %+v", entry)
	}
}

func TestUpdateStatusTreatsNullStatusAsDefault(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "")

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "contacted", UpdateStatusOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.PreviousStatus != domain.DefaultStatus {
		t.Fatalf("expected transition from default status, got %+v", result)
	}
}

func TestUpdateStatusMissingLeadIsAResultNotAnError(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	result, err := engine.UpdateStatus(context.Background(), uuid.New(), uuid.New(), "contacted", UpdateStatusOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failed result")
	}
	if result.Error != "Lead not found" {
		t.Fatalf("expected fixed not-found message, got %q", result.Error)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "new")

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "won", UpdateStatusOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failed result")
	}
	if result.Error != "Invalid transition from new to won" {
		t.Fatalf("unexpected message %q", result.Error)
	}
	if len(store.statusUpdates) != 0 {
		t.Fatal("no write must happen for a rejected transition")
	}
}

func TestUpdateStatusRequiresLossReasonForTerminalStatus(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "lost", UpdateStatusOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failed result without loss reason")
	}
	if result.Error != "Loss reason is required for status lost" {
		t.Fatalf("unexpected message %q", result.Error)
	}
}

func TestUpdateStatusRejectsLossReasonCategoryMismatch(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "lost", UpdateStatusOptions{LossReasonCode: "no_fleet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Error != "Loss reason no_fleet does not apply to status lost" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestUpdateStatusRequiresDetailWhenReasonDemandsIt(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "lost", UpdateStatusOptions{LossReasonCode: "chose_competitor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Error != "Loss reason chose_competitor requires additional detail" {
		t.Fatalf("unexpected result %+v", result)
	}

	// Whitespace-only detail counts as missing.
	result, err = engine.UpdateStatus(context.Background(), tenantID, leadID, "lost", UpdateStatusOptions{
		LossReasonCode:   "chose_competitor",
		LossReasonDetail: "   ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failed result for whitespace-only detail")
	}
}

func TestUpdateStatusPersistsLossReasonWithDetail(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "lost", UpdateStatusOptions{
		LossReasonCode:   "chose_competitor",
		LossReasonDetail: "FleetRival BV",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}

	update := store.statusUpdates[0]
	if update.LossReasonCode == nil || *update.LossReasonCode != "chose_competitor" {
		t.Fatalf("loss reason code not persisted: %+v", update)
	}
	if update.LossReasonDetail == nil || *update.LossReasonDetail != "FleetRival BV" {
		t.Fatalf("loss reason detail not persisted: %+v", update)
	}
}

func TestUpdateStatusSetsConvertedAtOnWon(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "qualified")

	result, err := engine.UpdateStatus(context.Background(), tenantID, leadID, "won", UpdateStatusOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if !store.statusUpdates[0].SetConvertedAt {
		t.Fatal("expected converted_at to be set for a won transition")
	}
}

func TestUpdateStatusMissingWorkflowIsConfigurationError(t *testing.T) {
	store := newFakeLeadStore()
	reader := &fakeSettingsReader{docs: map[string]json.RawMessage{}}
	engine := newTestStatusEngine(store, reader, &fakeAuditWriter{})

	_, err := engine.UpdateStatus(context.Background(), uuid.New(), uuid.New(), "contacted", UpdateStatusOptions{})
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration kind, got %v", err)
	}
}

func TestWorkflowIsCachedUntilCleared(t *testing.T) {
	store := newFakeLeadStore()
	reader := testSettings()
	engine := newTestStatusEngine(store, reader, &fakeAuditWriter{})

	tenantID := uuid.New()
	if _, err := engine.Workflow(context.Background(), tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Workflow(context.Background(), tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("expected one settings read, got %d", reader.calls)
	}

	engine.ClearCache()
	if _, err := engine.Workflow(context.Background(), tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.calls != 2 {
		t.Fatalf("expected reload after ClearCache, got %d reads", reader.calls)
	}
}

func TestLeadTransitionsReturnsCurrentStatusAndTargets(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	tenantID := uuid.New()
	leadID := seedLead(store, tenantID, "contacted")

	current, targets, err := engine.LeadTransitions(context.Background(), tenantID, leadID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current != "contacted" {
		t.Fatalf("expected current status contacted, got %q", current)
	}
	want := []string{"lost", "qualified"}
	if len(targets) != len(want) || targets[0] != want[0] || targets[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, targets)
	}
}

func TestLeadTransitionsMissingLeadIsNotFound(t *testing.T) {
	store := newFakeLeadStore()
	engine := newTestStatusEngine(store, testSettings(), &fakeAuditWriter{})

	_, _, err := engine.LeadTransitions(context.Background(), uuid.New(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
