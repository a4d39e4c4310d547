// Package commands declares the mutating operations the command bus
// dispatches: one struct per command type, one handler per type.
package commands

// CreateAcquisitionRequest asks for machine_count new machines against
// a template.
type CreateAcquisitionRequest struct {
	TemplateID     string
	MachineCount   int
	RequesterID    string
	Priority       int
	Tags           map[string]string
	Configuration  map[string]any
	TimeoutMinutes int
	MaxRetries     int
}

// CreateReturnRequest asks for the given machines to be released.
type CreateReturnRequest struct {
	MachineIDs  []string
	RequesterID string
	Reason      string
	Priority    int
}

// ProcessRequest drives one pending request's provisioning or
// termination through its provider strategy. Handlers for this command
// are where the Unit-of-Work transaction spans persistence, event
// publication, and the ProviderContext dispatch.
type ProcessRequest struct {
	RequestID string
}

// CancelRequest cancels a pending or processing request.
type CancelRequest struct {
	RequestID string
	Reason    string
}

// RecordMachineStatus upserts a machine's observed state, typically
// from the status poller.
type RecordMachineStatus struct {
	Machine MachineStatusInput
}

// ReloadTemplates invalidates the cached template set so the next
// lookup re-reads and re-merges every template file from disk.
type ReloadTemplates struct{}

// MachineStatusInput is the poller-facing shape of an observed machine;
// kept separate from the domain Machine entity so the command layer
// doesn't depend on provider wire formats.
type MachineStatusInput struct {
	MachineID        string
	InstanceID       string
	RequestID        string
	TemplateID       string
	ResourceID       string
	Status           string
	Result           string
	InstanceType     string
	AvailabilityZone string
	PrivateIP        string
	PublicIP         string
	PriceType        string
	ProviderName     string
	ProviderType     string
	ProviderAPI      string
	Tags             map[string]string
}
