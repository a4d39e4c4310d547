// Package machine defines the Machine entity: the normalized view of a
// cloud instance that the provider layer produces and the scheduler-facing
// DTO mapping it projects to.
package machine

import "time"

// Result mirrors the scheduler protocol's machine result vocabulary.
type Result string

const (
	ResultExecuting Result = "executing"
	ResultFail      Result = "fail"
	ResultSucceed   Result = "succeed"
)

// Machine is the normalized instance record persisted and surfaced to the
// scheduler.
type Machine struct {
	MachineID        string
	InstanceID       string
	RequestID        string
	TemplateID       string
	ResourceID       string
	Status           string
	Result           Result
	InstanceType     string
	AvailabilityZone string
	PrivateIP        string
	PublicIP         string
	LaunchTime       time.Time
	PriceType        string
	ProviderName     string
	ProviderType     string
	ProviderAPI      string
	Tags             map[string]string
}

// SchedulerDTO is the exact key set the scheduler protocol expects —
// field names and casing are bit-for-bit load-bearing.
type SchedulerDTO struct {
	MachineID         string `json:"machineId"`
	Name              string `json:"name"`
	Result            string `json:"result"`
	PrivateIPAddress  string `json:"privateIpAddress"`
	PublicIPAddress   string `json:"publicIpAddress"`
	LaunchTime        int64  `json:"launchtime"`
	InstanceType      string `json:"instanceType"`
	PriceType         string `json:"priceType"`
}

// ToSchedulerDTO renders the scheduler-facing payload. Name defaults to
// the cloud instance id absent an explicit template/Name tag, matching
// the common host-factory convention of naming machines after their
// cloud-native id.
func (m Machine) ToSchedulerDTO() SchedulerDTO {
	name := m.Tags["Name"]
	if name == "" {
		name = m.InstanceID
	}
	var launchEpoch int64
	if !m.LaunchTime.IsZero() {
		launchEpoch = m.LaunchTime.Unix()
	}
	return SchedulerDTO{
		MachineID:        m.MachineID,
		Name:             name,
		Result:           string(m.Result),
		PrivateIPAddress: m.PrivateIP,
		PublicIPAddress:  m.PublicIP,
		LaunchTime:       launchEpoch,
		InstanceType:     m.InstanceType,
		PriceType:        m.PriceType,
	}
}
