// Package events defines the immutable domain events emitted by the
// Request aggregate; the in-process bus that delivers them lives in
// pkg/infrastructure/eventbus.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every domain event. EventType is a stable
// string used for event-bus dispatch; AggregateID is the correlation key
// (the owning Request's id); OccurredAt and EventID are immutable once
// constructed so ordering checks (monotonic OccurredAt, stable emission
// sequence) are reproducible.
type Event interface {
	EventType() string
	AggregateID() string
	EventID() string
	OccurredAt() time.Time
	Sequence() uint64
}

type base struct {
	id          string
	aggregateID string
	occurredAt  time.Time
	sequence    uint64
}

func (b base) EventID() string        { return b.id }
func (b base) AggregateID() string    { return b.aggregateID }
func (b base) OccurredAt() time.Time  { return b.occurredAt }
func (b base) Sequence() uint64       { return b.sequence }

func newBase(aggregateID string, seq uint64, now time.Time) base {
	return base{id: uuid.NewString(), aggregateID: aggregateID, occurredAt: now, sequence: seq}
}

// RequestCreated is emitted once, when a Request aggregate is constructed.
type RequestCreated struct {
	base
	RequestID  string
	TemplateID string
	RequestType string
}

func (RequestCreated) EventType() string { return "RequestCreated" }

func NewRequestCreated(requestID, templateID, requestType string, seq uint64, now time.Time) RequestCreated {
	return RequestCreated{base: newBase(requestID, seq, now), RequestID: requestID, TemplateID: templateID, RequestType: requestType}
}

// RequestStatusChanged is emitted on every state-machine transition.
type RequestStatusChanged struct {
	base
	RequestID string
	OldStatus string
	NewStatus string
}

func (RequestStatusChanged) EventType() string { return "RequestStatusChanged" }

func NewRequestStatusChanged(requestID, oldStatus, newStatus string, seq uint64, now time.Time) RequestStatusChanged {
	return RequestStatusChanged{base: newBase(requestID, seq, now), RequestID: requestID, OldStatus: oldStatus, NewStatus: newStatus}
}

// RequestCompleted is emitted when a Request reaches a terminal outcome
// (completed or failed; cancellation does not emit this event).
type RequestCompleted struct {
	base
	RequestID         string
	Success           bool
	MachineIDs        []string
	ErrorMessage      string
	CompletionMessage string
}

func (RequestCompleted) EventType() string { return "RequestCompleted" }

func NewRequestCompleted(requestID string, success bool, machineIDs []string, errMsg, completionMsg string, seq uint64, now time.Time) RequestCompleted {
	return RequestCompleted{
		base:              newBase(requestID, seq, now),
		RequestID:         requestID,
		Success:           success,
		MachineIDs:        machineIDs,
		ErrorMessage:      errMsg,
		CompletionMessage: completionMsg,
	}
}
