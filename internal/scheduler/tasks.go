// Package scheduler defines the background jobs: the audit retention purge
// and the suspicious behavior sweep. The client enqueues, the worker
// consumes.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAuditRetentionPurge = "audit.retention.purge"

const TaskAuditSuspiciousSweep = "audit.suspicious.sweep"

type AuditRetentionPurgePayload struct {
	RequestedAt string `json:"requestedAt"`
}

type AuditSuspiciousSweepPayload struct {
	WindowMinutes int `json:"windowMinutes"`
}

func NewAuditRetentionPurgeTask(payload AuditRetentionPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetentionPurge, data), nil
}

func ParseAuditRetentionPurgePayload(task *asynq.Task) (AuditRetentionPurgePayload, error) {
	var payload AuditRetentionPurgePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AuditRetentionPurgePayload{}, err
	}
	return payload, nil
}

func NewAuditSuspiciousSweepTask(payload AuditSuspiciousSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditSuspiciousSweep, data), nil
}

func ParseAuditSuspiciousSweepPayload(task *asynq.Task) (AuditSuspiciousSweepPayload, error) {
	var payload AuditSuspiciousSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AuditSuspiciousSweepPayload{}, err
	}
	return payload, nil
}
