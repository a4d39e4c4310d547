// Package queries declares the side-effect-free operations the query
// bus dispatches.
package queries

// GetRequestByID fetches one request's current state.
type GetRequestByID struct {
	RequestID string
}

// ListRequests lists requests, optionally filtered by status.
type ListRequests struct {
	Status string // empty means no filter
}

// GetMachinesByRequestID lists the machines associated with a request.
type GetMachinesByRequestID struct {
	RequestID string
}

// ListMachines lists every known machine, optionally filtered by
// status.
type ListMachines struct {
	Status string
}

// GetTemplateByID fetches one resolved template definition.
type GetTemplateByID struct {
	TemplateID string
}

// ListTemplates lists every resolved template definition.
type ListTemplates struct{}

// GetProviderInfo reports the health and rolling metrics of one
// registered provider strategy.
type GetProviderInfo struct {
	ProviderType string
}
