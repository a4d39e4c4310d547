// Package request implements the Request aggregate root and its state
// machine: pending -> processing -> {completed, failed}, with cancel
// reachable from pending or processing. Transitions outside the table
// are hard errors and leave the aggregate unchanged.
package request

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"

	"github.com/hostfactory/aws-provider/pkg/domain/events"
)

// Status is one of the five request lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Type distinguishes acquisition requests from return requests.
type Type string

const (
	TypeNew    Type = "NEW"
	TypeReturn Type = "RETURN"
)

// InvalidStateError reports an attempted transition that isn't in the
// state table above.
type InvalidStateError struct {
	Current   Status
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return "invalid request state transition: " + string(e.Current) + " -> " + e.Attempted
}

// Request is the aggregate root. All mutation happens through its
// transition methods; fields are otherwise read-only to callers outside
// this package (the fields are exported for repository (de)serialization
// convenience, but the state-machine invariant only holds if callers use
// the methods below).
type Request struct {
	RequestID            string
	TemplateID           string
	RequestType          Type
	MachineCount         int
	RequesterID          string
	Priority             int
	Status               Status
	Tags                 map[string]string
	Configuration        map[string]any
	TimeoutMinutes       int
	MaxRetries           int
	RetryCount           int
	ResourceIDs          []string
	MachineReferences    []string
	MachineIDsToReturn   []string
	ProviderName         string
	ProviderType         string
	ProviderAPI          string
	CreatedAt            time.Time
	ProcessingStartedAt  *time.Time
	CompletedAt          *time.Time
	FailedAt             *time.Time
	CancelledAt          *time.Time
	CompletionMessage    string
	ErrorMessage         string
	ReturnReason         string
	CompletedMachineCount int
	LaunchTemplateID      string
	LaunchTemplateVersion string

	pending  []events.Event
	sequence uint64
}

// NewAcquisitionRequest constructs a NEW request in the pending state. now
// is injected (rather than time.Now()) so callers can keep clocks
// consistent across an aggregate's lifetime in tests.
func NewAcquisitionRequest(templateID string, machineCount int, requesterID string, priority int, tags map[string]string, configuration map[string]any, timeoutMinutes, maxRetries int, now time.Time) (*Request, error) {
	if machineCount <= 0 {
		return nil, domainerrors.Validation("INVALID_MACHINE_COUNT", "machine_count must be > 0", map[string]any{"machine_count": machineCount})
	}
	if templateID == "" {
		return nil, domainerrors.Validation("TEMPLATE_ID_REQUIRED", "template_id is required for NEW requests", nil)
	}
	if priority == 0 {
		priority = 1
	}
	if priority < 1 || priority > 5 {
		return nil, domainerrors.Validation("INVALID_PRIORITY", "priority must be within [1,5]", map[string]any{"priority": priority})
	}
	r := &Request{
		RequestID:      uuid.NewString(),
		TemplateID:     templateID,
		RequestType:    TypeNew,
		MachineCount:   machineCount,
		RequesterID:    requesterID,
		Priority:       priority,
		Status:         StatusPending,
		Tags:           tags,
		Configuration:  configuration,
		TimeoutMinutes: timeoutMinutes,
		MaxRetries:     maxRetries,
		CreatedAt:      now,
	}
	r.emit(events.NewRequestCreated(r.RequestID, r.TemplateID, string(r.RequestType), r.nextSeq(), now))
	return r, nil
}

// NewReturnRequest constructs a RETURN request in the pending state.
func NewReturnRequest(machineIDs []string, requesterID string, reason string, priority int, now time.Time) (*Request, error) {
	if len(machineIDs) == 0 {
		return nil, domainerrors.Validation("MACHINE_IDS_REQUIRED", "machine_ids is required for RETURN requests", nil)
	}
	if priority == 0 {
		priority = 1
	}
	if priority < 1 || priority > 5 {
		return nil, domainerrors.Validation("INVALID_PRIORITY", "priority must be within [1,5]", map[string]any{"priority": priority})
	}
	r := &Request{
		RequestID:          uuid.NewString(),
		RequestType:        TypeReturn,
		MachineCount:       len(machineIDs),
		MachineIDsToReturn: machineIDs,
		RequesterID:        requesterID,
		ReturnReason:       reason,
		Priority:           priority,
		Status:             StatusPending,
		CreatedAt:          now,
	}
	r.emit(events.NewRequestCreated(r.RequestID, r.TemplateID, string(r.RequestType), r.nextSeq(), now))
	return r, nil
}

func (r *Request) nextSeq() uint64 {
	r.sequence++
	return r.sequence
}

func (r *Request) emit(e events.Event) {
	r.pending = append(r.pending, e)
}

// PullEvents drains and returns the aggregate's pending domain events.
// Invariant: the Unit-of-Work must only call this after a durable write
// succeeds, and must discard the aggregate (not call PullEvents) on
// rollback.
func (r *Request) PullEvents() []events.Event {
	pending := r.pending
	r.pending = nil
	return pending
}

func (r *Request) transitionError(attempted string) error {
	return &InvalidStateError{Current: r.Status, Attempted: attempted}
}

// StartProcessing moves pending -> processing.
func (r *Request) StartProcessing(now time.Time) error {
	if r.Status != StatusPending {
		return r.transitionError("start_processing")
	}
	old := r.Status
	r.Status = StatusProcessing
	r.ProcessingStartedAt = &now
	r.emit(events.NewRequestStatusChanged(r.RequestID, string(old), string(r.Status), r.nextSeq(), now))
	return nil
}

// CompleteSuccessfully moves processing -> completed.
func (r *Request) CompleteSuccessfully(machineIDs []string, message string, now time.Time) error {
	if r.Status != StatusProcessing {
		return r.transitionError("complete_successfully")
	}
	old := r.Status
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.MachineReferences = machineIDs
	r.CompletionMessage = message
	r.CompletedMachineCount = len(machineIDs)
	r.emit(events.NewRequestStatusChanged(r.RequestID, string(old), string(r.Status), r.nextSeq(), now))
	r.emit(events.NewRequestCompleted(r.RequestID, true, machineIDs, "", message, r.nextSeq(), now))
	return nil
}

// FailWithError moves processing -> failed.
func (r *Request) FailWithError(message string, now time.Time) error {
	if r.Status != StatusProcessing {
		return r.transitionError("fail_with_error")
	}
	old := r.Status
	r.Status = StatusFailed
	r.FailedAt = &now
	r.ErrorMessage = message
	r.emit(events.NewRequestStatusChanged(r.RequestID, string(old), string(r.Status), r.nextSeq(), now))
	r.emit(events.NewRequestCompleted(r.RequestID, false, nil, message, "", r.nextSeq(), now))
	return nil
}

// Cancel moves pending or processing -> cancelled.
func (r *Request) Cancel(reason string, now time.Time) error {
	if r.Status != StatusPending && r.Status != StatusProcessing {
		return r.transitionError("cancel")
	}
	old := r.Status
	r.Status = StatusCancelled
	r.CancelledAt = &now
	r.ReturnReason = reason
	r.emit(events.NewRequestStatusChanged(r.RequestID, string(old), string(r.Status), r.nextSeq(), now))
	return nil
}

// CanRetry reports whether another retry is permitted.
func (r *Request) CanRetry() bool { return r.RetryCount < r.MaxRetries }

// IncrementRetryCount increments the retry counter; note is recorded as
// part of the error/completion message trail for operator visibility.
func (r *Request) IncrementRetryCount(note string) error {
	if r.RetryCount >= r.MaxRetries {
		return domainerrors.New(domainerrors.KindInfraOther, "MAX_RETRIES_EXCEEDED", "retry_count would exceed max_retries", map[string]any{
			"retry_count": r.RetryCount, "max_retries": r.MaxRetries,
		})
	}
	r.RetryCount++
	if note != "" {
		r.ErrorMessage = note
	}
	return nil
}

// GetTimeoutAt returns the instant at which an external poller should
// consider this request timed out.
func (r *Request) GetTimeoutAt() time.Time {
	return r.CreatedAt.Add(time.Duration(r.TimeoutMinutes) * time.Minute)
}

// IsTimedOut is a pure function of "now"; the aggregate itself never
// transitions on a timer tick — an external poller drives FailWithError.
func (r *Request) IsTimedOut(now time.Time) bool {
	if r.TimeoutMinutes <= 0 {
		return false
	}
	return now.After(r.GetTimeoutAt())
}

// UpdateProgress records the count of machines known complete so far and
// an operator-facing status message. The source of truth for
// completed_count is the status poller observing >= 1 instance
// transition to running; this method just records what it's told.
func (r *Request) UpdateProgress(completedCount int, statusMessage string) {
	if completedCount > r.MachineCount {
		completedCount = r.MachineCount
	}
	r.CompletedMachineCount = completedCount
	if statusMessage != "" {
		r.CompletionMessage = statusMessage
	}
}

// GetProgressPercentage returns 100*completed/machine_count, 0 when
// machine_count is 0 (which a valid request never has).
func (r *Request) GetProgressPercentage() float64 {
	if r.MachineCount == 0 {
		return 0
	}
	return 100 * float64(r.CompletedMachineCount) / float64(r.MachineCount)
}

// SetResourceIDs records the opaque provider resource handle(s) created
// for this request (fleet id, spot fleet request id, ASG name, or
// reservation id).
func (r *Request) SetResourceIDs(ids []string) { r.ResourceIDs = ids }

// SetLaunchTemplateInfo records which launch template/version this
// request's handler used, for idempotent reuse on retry.
func (r *Request) SetLaunchTemplateInfo(templateID, version string) {
	r.LaunchTemplateID = templateID
	r.LaunchTemplateVersion = version
}

// SetProviderSelection records which provider instance/type/API serviced
// this request, set once by the command handler after selection.
func (r *Request) SetProviderSelection(providerName, providerType, providerAPI string) {
	r.ProviderName = providerName
	r.ProviderType = providerType
	r.ProviderAPI = providerAPI
}
