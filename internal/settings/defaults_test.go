package settings

import (
	"encoding/json"
	"testing"

	"fleetcore_backend/internal/leads/domain"
)

// The seeded defaults must form a coherent lifecycle on their own: every
// loss reason category must be a workflow status, and the framework's
// qualified status must be reachable from a fresh lead.
func TestDefaultDocumentsAreMutuallyConsistent(t *testing.T) {
	workflow, err := domain.ParseWorkflow(json.RawMessage(defaultDocuments[KeyStatusWorkflow]))
	if err != nil {
		t.Fatalf("default workflow does not parse: %v", err)
	}
	fw, err := domain.ParseQualificationFramework(json.RawMessage(defaultDocuments[KeyQualificationFramework]))
	if err != nil {
		t.Fatalf("default qualification framework does not parse: %v", err)
	}
	reasons, err := domain.ParseLossReasons(json.RawMessage(defaultDocuments[KeyLossReasons]))
	if err != nil {
		t.Fatalf("default loss reasons do not parse: %v", err)
	}

	qualified := fw.QualifiedStatus
	if qualified == "" {
		qualified = domain.DefaultQualifiedStatus
	}
	if _, ok := workflow.Status(qualified); !ok {
		t.Fatalf("framework qualified status %q is not a workflow status", qualified)
	}
	if !workflow.ValidateTransition("new", qualified) {
		t.Fatalf("a new lead that scores proceed must be able to advance to %q", qualified)
	}

	for _, reason := range reasons.Reasons {
		cfg, ok := workflow.Status(reason.Category)
		if !ok {
			t.Errorf("loss reason %q names unknown status %q", reason.Code, reason.Category)
			continue
		}
		if !cfg.RequiresReason {
			t.Errorf("loss reason %q targets status %q which does not require a reason", reason.Code, reason.Category)
		}
	}
}

func TestDefaultDocumentsAreValidJSON(t *testing.T) {
	for key, doc := range defaultDocuments {
		if _, err := compactJSON(doc); err != nil {
			t.Fatalf("default document %s is not valid JSON: %v", key, err)
		}
	}
}
