// Package event implements the Event Publication Registry and
// externalization pipeline: a transactional, durable log of in-flight
// event deliveries with at-least-once delivery to in-process listeners and
// external brokers, completion tracking, staleness detection, and restart
// resubmission.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Status is an EventPublication's lifecycle state.
type Status string

const (
	StatusPublished   Status = "PUBLISHED"
	StatusProcessing  Status = "PROCESSING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusResubmitted Status = "RESUBMITTED"
)

// IsTerminal reports whether s is one of the states an EventPublication
// never leaves once reached.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EventPublication records that a particular event was delivered, or
// attempted to be delivered, to a particular listener. It is the unit of
// at-least-once tracking.
type EventPublication struct {
	ID                 uuid.UUID
	EventType          string
	SerializedEvent    string
	Target             PublicationTargetIdentifier
	PublishedAt        time.Time
	CompletedAt        *time.Time
	Status             Status
	Attempts           int
	LastResubmittedAt  *time.Time
	// sequence breaks publishedAt ties for publications created in the
	// same transaction, preserving program order (testable property 4)
	// even when the clock's resolution is coarser than the creation rate.
	sequence uint64
}

// NewEventPublication constructs a publication in the PUBLISHED state.
func NewEventPublication(id uuid.UUID, eventType, serializedEvent string, target PublicationTargetIdentifier, publishedAt time.Time, sequence uint64) *EventPublication {
	return &EventPublication{
		ID:              id,
		EventType:       eventType,
		SerializedEvent: serializedEvent,
		Target:          target,
		PublishedAt:     publishedAt,
		Status:          StatusPublished,
		sequence:        sequence,
	}
}

// Sequence returns the insertion-order tiebreaker assigned at creation.
func (p *EventPublication) Sequence() uint64 { return p.sequence }

// IsCompleted reports whether p reached the COMPLETED terminal state.
func (p *EventPublication) IsCompleted() bool { return p.Status == StatusCompleted }

// MarkCompleted transitions p to COMPLETED at the given time. Calling it
// more than once is a no-op: idempotent completion (testable property 1).
func (p *EventPublication) MarkCompleted(at time.Time) {
	if p.IsCompleted() {
		return
	}
	t := at
	p.CompletedAt = &t
	p.Status = StatusCompleted
}

// MarkFailed transitions p to FAILED, incrementing Attempts and stamping
// LastResubmittedAt monotonically (never moving it backwards).
func (p *EventPublication) MarkFailed(at time.Time) {
	if p.Status.IsTerminal() {
		return
	}
	p.Status = StatusFailed
	p.Attempts++
	if p.LastResubmittedAt == nil || at.After(*p.LastResubmittedAt) {
		t := at
		p.LastResubmittedAt = &t
	}
}

// MarkResubmitted records a resubmission attempt without changing the
// terminal/non-terminal nature of p's status.
func (p *EventPublication) MarkResubmitted(at time.Time) {
	p.Attempts++
	if p.LastResubmittedAt == nil || at.After(*p.LastResubmittedAt) {
		t := at
		p.LastResubmittedAt = &t
	}
	if !p.Status.IsTerminal() {
		p.Status = StatusResubmitted
	}
}

// IsStale reports whether p has been in flight longer than threshold as of
// now and has not reached a terminal state.
func (p *EventPublication) IsStale(now time.Time, threshold time.Duration) bool {
	if p.Status.IsTerminal() {
		return false
	}
	return now.Sub(p.PublishedAt) > threshold
}
