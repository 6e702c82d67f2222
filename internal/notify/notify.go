// Package notify publishes job lifecycle events to a configured webhook
// endpoint, asynchronously and with retries.
package notify

import (
	"time"

	"github.com/google/uuid"

	"loadharness/internal/workload"
)

// Event types published over the webhook.
const (
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
	EventJobStopped   = "job.stopped"
)

// Event is a job lifecycle notification.
type Event struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	JobID   string        `json:"job_id"`
	JobType workload.Type `json:"job_type"`
	Config  any           `json:"config,omitempty"`
	Time    time.Time     `json:"time"`
}

// NewEvent builds an event with a fresh delivery id and current timestamp.
func NewEvent(eventType, jobID string, jobType workload.Type, config any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		JobID:   jobID,
		JobType: jobType,
		Config:  config,
		Time:    time.Now().UTC(),
	}
}
