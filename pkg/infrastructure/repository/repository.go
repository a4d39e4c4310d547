// Package repository declares the aggregate-agnostic Repository
// contract and the per-aggregate record shapes storage strategies
// persist. save is upsert; GetByID returns (zero, false, nil) when
// absent rather than an error.
package repository

// Repository is implemented once per (aggregate, storage strategy) pair.
// T is the persisted record shape — a file/SQL/KV-friendly struct, not
// the domain aggregate itself, so storage stays decoupled from domain
// invariants.
type Repository[T any] interface {
	Save(entity T) error
	GetByID(id string) (T, bool, error)
	FindAll() ([]T, error)
	FindBy(criteria func(T) bool) ([]T, error)
	Delete(id string) error
}

// RequestRecord is the Request aggregate's persistent schema: a JSON
// object per record with field names matching what the file/SQL/KV
// backends write verbatim.
type RequestRecord struct {
	RequestID             string            `json:"request_id"`
	TemplateID            string            `json:"template_id"`
	RequestType           string            `json:"request_type"`
	MachineCount          int               `json:"machine_count"`
	RequesterID           string            `json:"requester_id"`
	Priority              int               `json:"priority"`
	Status                string            `json:"status"`
	Tags                  map[string]string `json:"tags,omitempty"`
	Configuration         map[string]any    `json:"configuration,omitempty"`
	TimeoutMinutes        int               `json:"timeout_minutes"`
	MaxRetries            int               `json:"max_retries"`
	RetryCount            int               `json:"retry_count"`
	ResourceIDs           []string          `json:"resource_ids,omitempty"`
	MachineReferences     []string          `json:"machine_references,omitempty"`
	MachineIDsToReturn    []string          `json:"machine_ids_to_return,omitempty"`
	ProviderName          string            `json:"provider_name,omitempty"`
	ProviderType          string            `json:"provider_type,omitempty"`
	ProviderAPI           string            `json:"provider_api,omitempty"`
	CreatedAt             string            `json:"created_at"`
	ProcessingStartedAt   string            `json:"processing_started_at,omitempty"`
	CompletedAt           string            `json:"completed_at,omitempty"`
	FailedAt              string            `json:"failed_at,omitempty"`
	CancelledAt           string            `json:"cancelled_at,omitempty"`
	CompletionMessage     string            `json:"completion_message,omitempty"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	ReturnReason          string            `json:"return_reason,omitempty"`
	CompletedMachineCount int               `json:"completed_machine_count"`
	LaunchTemplateID      string            `json:"launch_template_id,omitempty"`
	LaunchTemplateVersion string            `json:"launch_template_version,omitempty"`
}

// MachineRecord is the Machine entity's persistent schema.
type MachineRecord struct {
	MachineID        string            `json:"machine_id"`
	InstanceID       string            `json:"instance_id"`
	RequestID        string            `json:"request_id"`
	TemplateID       string            `json:"template_id"`
	ResourceID       string            `json:"resource_id,omitempty"`
	Status           string            `json:"status"`
	Result           string            `json:"result"`
	InstanceType     string            `json:"instance_type,omitempty"`
	AvailabilityZone string            `json:"availability_zone,omitempty"`
	PrivateIP        string            `json:"private_ip,omitempty"`
	PublicIP         string            `json:"public_ip,omitempty"`
	LaunchTime       string            `json:"launch_time,omitempty"`
	PriceType        string            `json:"price_type,omitempty"`
	ProviderName     string            `json:"provider_name,omitempty"`
	ProviderType     string            `json:"provider_type,omitempty"`
	ProviderAPI      string            `json:"provider_api,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// TemplateRecord is the Template aggregate's persistent schema, used
// only by storage strategies that cache resolved templates (most
// deployments read templates straight off disk via the template
// configuration manager instead).
type TemplateRecord struct {
	TemplateID string         `json:"template_id"`
	Name       string         `json:"name"`
	Data       map[string]any `json:"data"`
}
