// Package jobs runs the console's background work on asynq.
package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/parishdesk/parishdesk/internal/notifications"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotificationsBroadcast fans an announcement out to every matching profile.
	TaskNotificationsBroadcast = "notifications:broadcast"
	// TaskNotificationsPrune deletes old read notifications.
	TaskNotificationsPrune = "notifications:prune"
)

// BroadcastPayload describes an announcement. Empty Roles addresses everyone.
type BroadcastPayload struct {
	Roles []string            `json:"roles,omitempty"`
	Draft notifications.Draft `json:"draft"`
	// Author is the profile id of the publisher, for the audit log.
	Author string `json:"author,omitempty"`
}

// Validate checks the payload before it is enqueued.
func (p BroadcastPayload) Validate() error {
	if strings.TrimSpace(p.Draft.Title) == "" {
		return errors.New("broadcast: title is required")
	}
	if strings.TrimSpace(p.Draft.Message) == "" {
		return errors.New("broadcast: message is required")
	}
	return nil
}

// PrunePayload bounds the prune run. Zero RetentionHours uses the job default.
type PrunePayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewBroadcastTask constructs a broadcast task.
func NewBroadcastTask(payload BroadcastPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationsBroadcast, data, asynq.MaxRetry(5)), nil
}

// NewPruneTask constructs a prune task.
func NewPruneTask(payload PrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationsPrune, data), nil
}
