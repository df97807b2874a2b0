package notify

import (
	"context"
	"time"
)

// Status is the outcome of a pipeline run or a single stage.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
)

// StageResult is the outcome of one stage within a run.
type StageResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Event describes one finished deployment hook run.
type Event struct {
	ServiceID    string        `json:"service_id"`
	Slice        string        `json:"slice,omitempty"`
	DeploymentID string        `json:"deployment_id"`
	Status       Status        `json:"status"`
	Stages       []StageResult `json:"stages"`
	Error        string        `json:"error,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Failed reports whether the run failed.
func (e Event) Failed() bool {
	return e.Status == StatusFailed
}

func (e Event) serviceKey() string {
	if e.ServiceID == "" {
		return "default"
	}
	return e.ServiceID
}

// Notifier delivers deployment outcomes to external systems.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
