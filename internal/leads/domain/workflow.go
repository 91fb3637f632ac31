// Package domain provides core business rules for the leads bounded context.
// The status workflow is configuration, not code: transition edges live in a
// tenant settings document and are compiled into an immutable in-memory map.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultStatus is the status assumed for a lead whose status column is NULL
// or empty. New leads start here.
const DefaultStatus = "new"

// StatusConfig describes one status in the configured workflow.
type StatusConfig struct {
	Value              string   `json:"value"`
	Phase              string   `json:"phase"`
	Probability        int      `json:"probability"`
	Color              string   `json:"color"`
	AllowedTransitions []string `json:"allowed_transitions"`
	RequiresReason     bool     `json:"requires_reason"`
	IsTerminal         bool     `json:"is_terminal"`
	IsWon              bool     `json:"is_won"`
	SLAHours           *int     `json:"sla_hours,omitempty"`
}

// StatusWorkflow is the versioned settings document the workflow map is
// built from.
type StatusWorkflow struct {
	Version  int            `json:"version"`
	Phases   []string       `json:"phases"`
	Statuses []StatusConfig `json:"statuses"`
}

// WorkflowMap is the compiled, immutable form of a StatusWorkflow.
// A transition (from → to) is valid iff to is in from's allowed set.
type WorkflowMap struct {
	version     int
	phases      []string
	statuses    map[string]StatusConfig
	transitions map[string]map[string]struct{}
	wonStatus   string
}

// ParseWorkflow decodes a raw settings document and compiles it.
func ParseWorkflow(raw json.RawMessage) (*WorkflowMap, error) {
	var wf StatusWorkflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("decode status workflow: %w", err)
	}
	return BuildWorkflowMap(wf)
}

// BuildWorkflowMap compiles a StatusWorkflow into a WorkflowMap.
// Terminal statuses always end up with an empty transition set; a transition
// edge pointing at an unknown status is a configuration defect.
func BuildWorkflowMap(wf StatusWorkflow) (*WorkflowMap, error) {
	if len(wf.Statuses) == 0 {
		return nil, fmt.Errorf("status workflow has no statuses")
	}

	m := &WorkflowMap{
		version:     wf.Version,
		phases:      append([]string(nil), wf.Phases...),
		statuses:    make(map[string]StatusConfig, len(wf.Statuses)),
		transitions: make(map[string]map[string]struct{}, len(wf.Statuses)),
	}

	for _, status := range wf.Statuses {
		if status.Value == "" {
			return nil, fmt.Errorf("status workflow contains a status without a value")
		}
		if _, exists := m.statuses[status.Value]; exists {
			return nil, fmt.Errorf("duplicate status %q in workflow", status.Value)
		}
		m.statuses[status.Value] = status
		if status.IsWon && m.wonStatus == "" {
			m.wonStatus = status.Value
		}
	}

	for _, status := range wf.Statuses {
		edges := make(map[string]struct{})
		if !status.IsTerminal {
			for _, target := range status.AllowedTransitions {
				if _, known := m.statuses[target]; !known {
					return nil, fmt.Errorf("status %q allows transition to unknown status %q", status.Value, target)
				}
				edges[target] = struct{}{}
			}
		}
		m.transitions[status.Value] = edges
	}

	return m, nil
}

// Version returns the workflow document version.
func (m *WorkflowMap) Version() int {
	return m.version
}

// Phases returns the ordered phase list.
func (m *WorkflowMap) Phases() []string {
	return append([]string(nil), m.phases...)
}

// Status returns the configuration for a status value.
func (m *WorkflowMap) Status(value string) (StatusConfig, bool) {
	cfg, ok := m.statuses[value]
	return cfg, ok
}

// ValidateTransition reports whether from → to is an allowed edge.
// Unknown source statuses and terminal statuses never allow transitions.
func (m *WorkflowMap) ValidateTransition(from, to string) bool {
	edges, ok := m.transitions[from]
	if !ok {
		return false
	}
	_, allowed := edges[to]
	return allowed
}

// AllowedTransitions returns the sorted transition targets for a status.
// Terminal and unknown statuses yield an empty list.
func (m *WorkflowMap) AllowedTransitions(from string) []string {
	edges := m.transitions[from]
	targets := make([]string, 0, len(edges))
	for target := range edges {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// IsTerminal reports whether the status is configured as terminal.
// Unknown statuses are not terminal; they simply allow no transitions.
func (m *WorkflowMap) IsTerminal(status string) bool {
	cfg, ok := m.statuses[status]
	return ok && cfg.IsTerminal
}

// WonStatus returns the first status flagged is_won, if any.
func (m *WorkflowMap) WonStatus() (string, bool) {
	return m.wonStatus, m.wonStatus != ""
}
