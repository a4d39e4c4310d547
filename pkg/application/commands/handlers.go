package commands

import (
	"context"
	"time"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/uow"
)

// TemplateInvalidator is the one method ReloadTemplates needs out of
// templateconfig.Manager; declared locally so this package doesn't
// depend on pkg/infrastructure/templateconfig directly.
type TemplateInvalidator interface {
	Invalidate()
}

// Dispatcher is the subset of ProviderContext's contract command
// handlers need: routing one provisioning operation to whichever
// provider strategy is active. Declared locally so this package never
// imports the provider package directly.
type Dispatcher interface {
	Execute(ctx context.Context, operationType string, parameters map[string]any) (map[string]any, error)
}

// Clock abstracts time.Now so handler tests can inject a fixed instant.
type Clock func() time.Time

// Handlers bundles the collaborators every command handler needs: the
// Unit-of-Work factory, the provider dispatcher, and a clock.
type Handlers struct {
	UoW        *uow.UnitOfWork
	Dispatcher Dispatcher
	Templates  TemplateInvalidator
	Clock      Clock
	Logger     logging.Port
}

func (h *Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// HandleCreateAcquisitionRequest constructs and persists a NEW request,
// returning its id.
func (h *Handlers) HandleCreateAcquisitionRequest(ctx context.Context, cmd any) (any, error) {
	c := cmd.(CreateAcquisitionRequest)
	r, err := request.NewAcquisitionRequest(c.TemplateID, c.MachineCount, c.RequesterID, c.Priority, c.Tags, c.Configuration, c.TimeoutMinutes, c.MaxRetries, h.now())
	if err != nil {
		return nil, err
	}
	tx := h.UoW.Begin(r.RequestID)
	tx.SaveRequest(r)
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.RequestID, nil
}

// HandleCreateReturnRequest constructs and persists a RETURN request.
func (h *Handlers) HandleCreateReturnRequest(ctx context.Context, cmd any) (any, error) {
	c := cmd.(CreateReturnRequest)
	r, err := request.NewReturnRequest(c.MachineIDs, c.RequesterID, c.Reason, c.Priority, h.now())
	if err != nil {
		return nil, err
	}
	tx := h.UoW.Begin(r.RequestID)
	tx.SaveRequest(r)
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.RequestID, nil
}

// HandleProcessRequest loads a pending request, transitions it to
// processing, dispatches the corresponding provisioning operation, and
// records the outcome — all within one Unit-of-Work transaction scoped
// to the request id.
func (h *Handlers) HandleProcessRequest(ctx context.Context, cmd any) (any, error) {
	c := cmd.(ProcessRequest)
	tx := h.UoW.Begin(c.RequestID)

	rec, found, err := tx.Requests().GetByID(c.RequestID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !found {
		tx.Rollback()
		return nil, domainerrors.NotFound("REQUEST_NOT_FOUND", "request "+c.RequestID+" does not exist")
	}
	r := uow.RecordToRequest(rec)

	if err := r.StartProcessing(h.now()); err != nil {
		tx.Rollback()
		return nil, err
	}

	operationType, params := operationFor(r)
	result, dispatchErr := h.Dispatcher.Execute(ctx, operationType, params)

	if dispatchErr != nil {
		if failErr := r.FailWithError(dispatchErr.Error(), h.now()); failErr != nil {
			tx.Rollback()
			return nil, failErr
		}
		tx.SaveRequest(r)
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, dispatchErr
	}

	if resourceIDs, ok := result["resource_ids"].([]string); ok {
		r.SetResourceIDs(resourceIDs)
	}
	if providerName, ok := result["provider_name"].(string); ok {
		providerType, _ := result["provider_type"].(string)
		providerAPI, _ := result["provider_api"].(string)
		r.SetProviderSelection(providerName, providerType, providerAPI)
	}

	machineIDs, _ := result["machine_ids"].([]string)
	if err := r.CompleteSuccessfully(machineIDs, "provisioning dispatched", h.now()); err != nil {
		tx.Rollback()
		return nil, err
	}
	tx.SaveRequest(r)
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return machineIDs, nil
}

// HandleReloadTemplates drops the cached template set so the next
// template read re-discovers and re-merges every file from disk.
func (h *Handlers) HandleReloadTemplates(ctx context.Context, cmd any) (any, error) {
	if h.Templates != nil {
		h.Templates.Invalidate()
	}
	return nil, nil
}

func operationFor(r *request.Request) (string, map[string]any) {
	if r.RequestType == request.TypeReturn {
		return "TERMINATE_INSTANCES", map[string]any{
			"request_id":  r.RequestID,
			"machine_ids": r.MachineIDsToReturn,
		}
	}
	return "CREATE_INSTANCES", map[string]any{
		"request_id":    r.RequestID,
		"template_id":   r.TemplateID,
		"machine_count": r.MachineCount,
		"tags":          r.Tags,
	}
}

// HandleCancelRequest cancels a pending or processing request.
func (h *Handlers) HandleCancelRequest(ctx context.Context, cmd any) (any, error) {
	c := cmd.(CancelRequest)
	tx := h.UoW.Begin(c.RequestID)

	rec, found, err := tx.Requests().GetByID(c.RequestID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !found {
		tx.Rollback()
		return nil, domainerrors.NotFound("REQUEST_NOT_FOUND", "request "+c.RequestID+" does not exist")
	}
	r := uow.RecordToRequest(rec)
	if err := r.Cancel(c.Reason, h.now()); err != nil {
		tx.Rollback()
		return nil, err
	}
	tx.SaveRequest(r)
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c.RequestID, nil
}

// HandleRecordMachineStatus upserts a machine record; this doesn't touch
// any Request aggregate so it acquires no aggregate lock.
func (h *Handlers) HandleRecordMachineStatus(ctx context.Context, cmd any) (any, error) {
	c := cmd.(RecordMachineStatus)
	m := machine.Machine{
		MachineID:        c.Machine.MachineID,
		InstanceID:       c.Machine.InstanceID,
		RequestID:        c.Machine.RequestID,
		TemplateID:       c.Machine.TemplateID,
		ResourceID:       c.Machine.ResourceID,
		Status:           c.Machine.Status,
		Result:           machine.Result(c.Machine.Result),
		InstanceType:     c.Machine.InstanceType,
		AvailabilityZone: c.Machine.AvailabilityZone,
		PrivateIP:        c.Machine.PrivateIP,
		PublicIP:         c.Machine.PublicIP,
		LaunchTime:       h.now(),
		PriceType:        c.Machine.PriceType,
		ProviderName:     c.Machine.ProviderName,
		ProviderType:     c.Machine.ProviderType,
		ProviderAPI:      c.Machine.ProviderAPI,
		Tags:             c.Machine.Tags,
	}
	tx := h.UoW.Begin()
	tx.SaveMachine(m)
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m.MachineID, nil
}
