package queries

import (
	"context"
	"fmt"

	"github.com/hostfactory/aws-provider/pkg/domain/template"
	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/templateconfig"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/uow"
	"github.com/hostfactory/aws-provider/pkg/provider"
)

// ProviderInfo is what HandleGetProviderInfo returns: one strategy's
// current health plus its accumulated metrics.
type ProviderInfo struct {
	ProviderType string
	Health       provider.HealthStatus
	Metrics      provider.Snapshot
}

// Handlers answers queries directly off the storage Registry and the
// template configuration manager; queries never go through the
// Unit-of-Work since they never write.
type Handlers struct {
	Storage   *storage.Registry
	Templates *templateconfig.Manager
	Providers *provider.Context
}

func (h *Handlers) HandleGetRequestByID(ctx context.Context, q any) (any, error) {
	query := q.(GetRequestByID)
	rec, found, err := h.Storage.Requests.GetByID(query.RequestID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domainerrors.NotFound("REQUEST_NOT_FOUND", "request "+query.RequestID+" does not exist")
	}
	return uow.RecordToRequest(rec), nil
}

func (h *Handlers) HandleListRequests(ctx context.Context, q any) (any, error) {
	query := q.(ListRequests)
	var recs []repository.RequestRecord
	var err error
	if query.Status == "" {
		recs, err = h.Storage.Requests.FindAll()
	} else {
		recs, err = h.Storage.Requests.FindBy(func(r repository.RequestRecord) bool { return r.Status == query.Status })
	}
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, uow.RecordToRequest(rec))
	}
	return out, nil
}

func (h *Handlers) HandleGetMachinesByRequestID(ctx context.Context, q any) (any, error) {
	query := q.(GetMachinesByRequestID)
	recs, err := h.Storage.Machines.FindBy(func(m repository.MachineRecord) bool { return m.RequestID == query.RequestID })
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, uow.RecordToMachine(rec))
	}
	return out, nil
}

func (h *Handlers) HandleListMachines(ctx context.Context, q any) (any, error) {
	query := q.(ListMachines)
	var recs []repository.MachineRecord
	var err error
	if query.Status == "" {
		recs, err = h.Storage.Machines.FindAll()
	} else {
		recs, err = h.Storage.Machines.FindBy(func(m repository.MachineRecord) bool { return m.Status == query.Status })
	}
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, uow.RecordToMachine(rec))
	}
	return out, nil
}

func (h *Handlers) HandleGetTemplateByID(ctx context.Context, q any) (any, error) {
	query := q.(GetTemplateByID)
	all, err := h.Templates.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.TemplateID == query.TemplateID {
			return t, nil
		}
	}
	return nil, domainerrors.NotFound("TEMPLATE_NOT_FOUND", "template "+query.TemplateID+" does not exist")
}

func (h *Handlers) HandleListTemplates(ctx context.Context, q any) (any, error) {
	all, err := h.Templates.LoadAll()
	if err != nil {
		return nil, err
	}
	out := make([]*template.Template, len(all))
	copy(out, all)
	return out, nil
}

func (h *Handlers) HandleGetProviderInfo(ctx context.Context, q any) (any, error) {
	query := q.(GetProviderInfo)
	health, err := h.Providers.CheckHealth(ctx, query.ProviderType)
	if err != nil {
		return nil, fmt.Errorf("provider info: %w", err)
	}
	return ProviderInfo{
		ProviderType: query.ProviderType,
		Health:       health,
		Metrics:      h.Providers.Metrics(query.ProviderType),
	}, nil
}
