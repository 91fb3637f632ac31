// Package transport defines request and response DTOs for the audit API.
package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fleetcore_backend/internal/audit/repository"
)

// QueryRequest carries the optional audit query filters. Timestamps are
// RFC 3339.
type QueryRequest struct {
	Entity   string `form:"entity" validate:"omitempty,max=64"`
	Action   string `form:"action" validate:"omitempty,max=64"`
	MemberID string `form:"memberId" validate:"omitempty,uuid"`
	From     string `form:"from" validate:"omitempty"`
	To       string `form:"to" validate:"omitempty"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset   int    `form:"offset" validate:"omitempty,min=0"`
}

// SuspicionRequest identifies the member to inspect and the lookback window.
type SuspicionRequest struct {
	MemberID      string `form:"memberId" validate:"required,uuid"`
	WindowMinutes int    `form:"windowMinutes" validate:"omitempty,min=1,max=1440"`
}

// LogResponse is one audit entry in API shape. Changes and the value
// snapshots are passed through as raw JSON.
type LogResponse struct {
	ID             uuid.UUID       `json:"id"`
	MemberID       *uuid.UUID      `json:"memberId,omitempty"`
	Entity         string          `json:"entity"`
	EntityID       string          `json:"entityId"`
	Action         string          `json:"action"`
	Changes        json.RawMessage `json:"changes,omitempty"`
	OldValues      json.RawMessage `json:"oldValues,omitempty"`
	NewValues      json.RawMessage `json:"newValues,omitempty"`
	Severity       string          `json:"severity"`
	Category       string          `json:"category"`
	RetentionUntil time.Time       `json:"retentionUntil"`
	Tags           []string        `json:"tags,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// QueryResponse is one page of audit entries plus the unpaginated total.
type QueryResponse struct {
	Logs  []LogResponse `json:"logs"`
	Total int64         `json:"total"`
}

// ToLogResponse maps a repository row to its API shape.
func ToLogResponse(log repository.Log) LogResponse {
	return LogResponse{
		ID:             log.ID,
		MemberID:       log.MemberID,
		Entity:         log.Entity,
		EntityID:       log.EntityID,
		Action:         log.Action,
		Changes:        json.RawMessage(log.Changes),
		OldValues:      json.RawMessage(log.OldValues),
		NewValues:      json.RawMessage(log.NewValues),
		Severity:       log.Severity,
		Category:       log.Category,
		RetentionUntil: log.RetentionUntil,
		Tags:           log.Tags,
		Timestamp:      log.CreatedAt,
	}
}

// ToQueryResponse maps a page of repository rows.
func ToQueryResponse(logs []repository.Log, total int64) QueryResponse {
	out := make([]LogResponse, 0, len(logs))
	for _, log := range logs {
		out = append(out, ToLogResponse(log))
	}
	return QueryResponse{Logs: out, Total: total}
}
