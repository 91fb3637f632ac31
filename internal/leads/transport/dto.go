// Package transport defines request and response DTOs for the leads API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"fleetcore_backend/internal/leads/domain"
	"fleetcore_backend/internal/leads/repository"
)

// UpdateStatusRequest is the payload for changing a lead's status.
type UpdateStatusRequest struct {
	Status           string `json:"status" validate:"required,max=64"`
	LossReasonCode   string `json:"lossReasonCode,omitempty" validate:"omitempty,max=64"`
	LossReasonDetail string `json:"lossReasonDetail,omitempty" validate:"omitempty,max=2000"`
}

// QualifyLeadRequest carries the selected level for each qualification
// criterion. Levels are tenant-configured, so only presence is validated here.
type QualifyLeadRequest struct {
	Challenges string `json:"challenges" validate:"required,max=32"`
	Priority   string `json:"priority" validate:"required,max=32"`
	Timing     string `json:"timing" validate:"required,max=32"`
}

// Answers converts the request into the domain answer set.
func (r QualifyLeadRequest) Answers() domain.CPTAnswers {
	return domain.CPTAnswers{
		Challenges: r.Challenges,
		Priority:   r.Priority,
		Timing:     r.Timing,
	}
}

// TransitionsResponse lists the statuses a lead may move to from its
// current status.
type TransitionsResponse struct {
	Status      string   `json:"status"`
	Transitions []string `json:"transitions"`
}

// ActivityResponse is one entry in a lead's activity history.
type ActivityResponse struct {
	ID           uuid.UUID      `json:"id"`
	ActorID      *uuid.UUID     `json:"actorId,omitempty"`
	ActivityType string         `json:"activityType"`
	Title        string         `json:"title"`
	Summary      *string        `json:"summary,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// ActivitiesResponse wraps a lead's activity history.
type ActivitiesResponse struct {
	LeadID     uuid.UUID          `json:"leadId"`
	Activities []ActivityResponse `json:"activities"`
}

// ToActivityResponse maps a repository activity to its API shape.
func ToActivityResponse(a repository.Activity) ActivityResponse {
	return ActivityResponse{
		ID:           a.ID,
		ActorID:      a.ActorID,
		ActivityType: a.ActivityType,
		Title:        a.Title,
		Summary:      a.Summary,
		Metadata:     a.Metadata,
		CreatedAt:    a.CreatedAt,
	}
}

// ToActivitiesResponse maps a list of repository activities.
func ToActivitiesResponse(leadID uuid.UUID, items []repository.Activity) ActivitiesResponse {
	out := make([]ActivityResponse, 0, len(items))
	for _, item := range items {
		out = append(out, ToActivityResponse(item))
	}
	return ActivitiesResponse{LeadID: leadID, Activities: out}
}
