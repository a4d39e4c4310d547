package uow

import (
	"time"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
)

func timeStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timePtrStr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return timeStr(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}

// RequestToRecord projects a Request aggregate to its persistent schema.
func RequestToRecord(r *request.Request) repository.RequestRecord {
	return repository.RequestRecord{
		RequestID:             r.RequestID,
		TemplateID:            r.TemplateID,
		RequestType:           string(r.RequestType),
		MachineCount:          r.MachineCount,
		RequesterID:           r.RequesterID,
		Priority:              r.Priority,
		Status:                string(r.Status),
		Tags:                  r.Tags,
		Configuration:         r.Configuration,
		TimeoutMinutes:        r.TimeoutMinutes,
		MaxRetries:            r.MaxRetries,
		RetryCount:            r.RetryCount,
		ResourceIDs:           r.ResourceIDs,
		MachineReferences:     r.MachineReferences,
		MachineIDsToReturn:    r.MachineIDsToReturn,
		ProviderName:          r.ProviderName,
		ProviderType:          r.ProviderType,
		ProviderAPI:           r.ProviderAPI,
		CreatedAt:             timeStr(r.CreatedAt),
		ProcessingStartedAt:   timePtrStr(r.ProcessingStartedAt),
		CompletedAt:           timePtrStr(r.CompletedAt),
		FailedAt:              timePtrStr(r.FailedAt),
		CancelledAt:           timePtrStr(r.CancelledAt),
		CompletionMessage:     r.CompletionMessage,
		ErrorMessage:          r.ErrorMessage,
		ReturnReason:          r.ReturnReason,
		CompletedMachineCount: r.CompletedMachineCount,
		LaunchTemplateID:      r.LaunchTemplateID,
		LaunchTemplateVersion: r.LaunchTemplateVersion,
	}
}

// RecordToRequest rehydrates a Request aggregate from its persistent
// schema. The rehydrated aggregate has no pending events and an
// internal sequence counter reset to 0 — callers must not expect
// PullEvents to return history for a loaded aggregate.
func RecordToRequest(rec repository.RequestRecord) *request.Request {
	return &request.Request{
		RequestID:             rec.RequestID,
		TemplateID:            rec.TemplateID,
		RequestType:           request.Type(rec.RequestType),
		MachineCount:          rec.MachineCount,
		RequesterID:           rec.RequesterID,
		Priority:              rec.Priority,
		Status:                request.Status(rec.Status),
		Tags:                  rec.Tags,
		Configuration:         rec.Configuration,
		TimeoutMinutes:        rec.TimeoutMinutes,
		MaxRetries:            rec.MaxRetries,
		RetryCount:            rec.RetryCount,
		ResourceIDs:           rec.ResourceIDs,
		MachineReferences:     rec.MachineReferences,
		MachineIDsToReturn:    rec.MachineIDsToReturn,
		ProviderName:          rec.ProviderName,
		ProviderType:          rec.ProviderType,
		ProviderAPI:           rec.ProviderAPI,
		CreatedAt:             parseTime(rec.CreatedAt),
		ProcessingStartedAt:   parseTimePtr(rec.ProcessingStartedAt),
		CompletedAt:           parseTimePtr(rec.CompletedAt),
		FailedAt:              parseTimePtr(rec.FailedAt),
		CancelledAt:           parseTimePtr(rec.CancelledAt),
		CompletionMessage:     rec.CompletionMessage,
		ErrorMessage:          rec.ErrorMessage,
		ReturnReason:          rec.ReturnReason,
		CompletedMachineCount: rec.CompletedMachineCount,
		LaunchTemplateID:      rec.LaunchTemplateID,
		LaunchTemplateVersion: rec.LaunchTemplateVersion,
	}
}

// MachineToRecord projects a Machine entity to its persistent schema.
func MachineToRecord(m machine.Machine) repository.MachineRecord {
	return repository.MachineRecord{
		MachineID:        m.MachineID,
		InstanceID:       m.InstanceID,
		RequestID:        m.RequestID,
		TemplateID:       m.TemplateID,
		ResourceID:       m.ResourceID,
		Status:           m.Status,
		Result:           string(m.Result),
		InstanceType:     m.InstanceType,
		AvailabilityZone: m.AvailabilityZone,
		PrivateIP:        m.PrivateIP,
		PublicIP:         m.PublicIP,
		LaunchTime:       timeStr(m.LaunchTime),
		PriceType:        m.PriceType,
		ProviderName:     m.ProviderName,
		ProviderType:     m.ProviderType,
		ProviderAPI:      m.ProviderAPI,
		Tags:             m.Tags,
	}
}

// RecordToMachine rehydrates a Machine entity from its persistent schema.
func RecordToMachine(rec repository.MachineRecord) machine.Machine {
	return machine.Machine{
		MachineID:        rec.MachineID,
		InstanceID:       rec.InstanceID,
		RequestID:        rec.RequestID,
		TemplateID:       rec.TemplateID,
		ResourceID:       rec.ResourceID,
		Status:           rec.Status,
		Result:           machine.Result(rec.Result),
		InstanceType:     rec.InstanceType,
		AvailabilityZone: rec.AvailabilityZone,
		PrivateIP:        rec.PrivateIP,
		PublicIP:         rec.PublicIP,
		LaunchTime:       parseTime(rec.LaunchTime),
		PriceType:        rec.PriceType,
		ProviderName:     rec.ProviderName,
		ProviderType:     rec.ProviderType,
		ProviderAPI:      rec.ProviderAPI,
		Tags:             rec.Tags,
	}
}
