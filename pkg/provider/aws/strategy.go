package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/uow"
	"github.com/hostfactory/aws-provider/pkg/provider"
)

// TemplateProvider resolves a template_id to its validated Template,
// the one read path AWSProviderStrategy needs out of the template
// configuration manager.
type TemplateProvider interface {
	GetByID(id string) (*template.Template, bool, error)
}

// AWSProviderStrategy implements provider.Strategy for the AWS backend,
// dispatching CREATE_INSTANCES/TERMINATE_INSTANCES/GET_INSTANCE_STATUS
// to whichever of the four handlers matches the template's provider_api.
type AWSProviderStrategy struct {
	providerType string
	providerName string

	handlers  map[template.ProviderAPI]Handler
	templates TemplateProvider
	storage   *storage.Registry
	uow       *uow.UnitOfWork
	ops       *Operations
	logger    logging.Port

	initialized bool
}

func NewAWSProviderStrategy(providerType, providerName string, handlers map[template.ProviderAPI]Handler, templates TemplateProvider, reg *storage.Registry, u *uow.UnitOfWork, ops *Operations, logger logging.Port) *AWSProviderStrategy {
	if logger == nil {
		logger = logging.NoOpLogger()
	}
	return &AWSProviderStrategy{
		providerType: providerType,
		providerName: providerName,
		handlers:     handlers,
		templates:    templates,
		storage:      reg,
		uow:          u,
		ops:          ops,
		logger:       logger,
	}
}

func (s *AWSProviderStrategy) ProviderType() string { return s.providerType }

func (s *AWSProviderStrategy) Initialize(ctx context.Context) error {
	s.initialized = true
	return nil
}

func (s *AWSProviderStrategy) IsInitialized() bool { return s.initialized }

func (s *AWSProviderStrategy) Cleanup(ctx context.Context) error {
	s.initialized = false
	return nil
}

// GetCapabilities declares the three provisioning operations this
// strategy actually implements. VALIDATE_TEMPLATE/GET_AVAILABLE_TEMPLATES
// belong to the selection/capability application services, not to the
// cloud-facing strategy, so they are deliberately absent here.
func (s *AWSProviderStrategy) GetCapabilities() provider.Capabilities {
	apis := make([]string, 0, len(s.handlers))
	for api := range s.handlers {
		apis = append(apis, string(api))
	}
	return provider.Capabilities{
		ProviderAPIs: apis,
		SupportedOperations: []provider.OperationType{
			provider.OperationCreateInstances,
			provider.OperationTerminateInstances,
			provider.OperationGetInstanceStatus,
		},
	}
}

func (s *AWSProviderStrategy) CheckHealth(ctx context.Context) provider.HealthStatus {
	open := 0
	for _, state := range s.ops.BreakerStates() {
		if state == "open" {
			open++
		}
	}
	if open > 0 {
		return provider.HealthStatus{Healthy: false, Message: fmt.Sprintf("%d circuit breaker(s) open", open), CheckedAt: time.Now()}
	}
	return provider.HealthStatus{Healthy: true, Message: "ok", CheckedAt: time.Now()}
}

func (s *AWSProviderStrategy) ExecuteOperation(ctx context.Context, op provider.Operation) (provider.Result, error) {
	switch op.Type {
	case provider.OperationCreateInstances:
		return s.createInstances(ctx, op.Parameters)
	case provider.OperationTerminateInstances:
		return s.terminateInstances(ctx, op.Parameters)
	case provider.OperationGetInstanceStatus:
		return s.instanceStatus(ctx, op.Parameters)
	default:
		return provider.Result{Success: false, ErrorCode: "OPERATION_NOT_SUPPORTED", ErrorMessage: fmt.Sprintf("aws strategy does not implement %s", op.Type)}, nil
	}
}

func (s *AWSProviderStrategy) handlerFor(api template.ProviderAPI) (Handler, error) {
	h, ok := s.handlers[api]
	if !ok {
		return nil, domainerrors.New(domainerrors.KindProviderOperation, "PROVIDER_API_NOT_SUPPORTED", "no handler registered for provider_api "+string(api), map[string]any{"provider_api": api})
	}
	return h, nil
}

func (s *AWSProviderStrategy) createInstances(ctx context.Context, params map[string]any) (provider.Result, error) {
	requestID, _ := params["request_id"].(string)
	templateID, _ := params["template_id"].(string)
	machineCount, _ := params["machine_count"].(int)
	tags, _ := params["tags"].(map[string]string)

	t, found, err := s.templates.GetByID(templateID)
	if err != nil {
		return failureResult(err)
	}
	if !found {
		return provider.Result{Success: false, ErrorCode: "TEMPLATE_NOT_FOUND", ErrorMessage: "template " + templateID + " does not exist"}, nil
	}

	handler, err := s.handlerFor(t.ProviderAPI)
	if err != nil {
		return failureResult(err)
	}

	r := &request.Request{
		RequestID:    requestID,
		TemplateID:   templateID,
		MachineCount: machineCount,
		Tags:         tags,
	}

	acquired, err := handler.AcquireHosts(ctx, r, t)
	if err != nil {
		return failureResult(err)
	}
	if !acquired.Success {
		return provider.Result{Success: false, ErrorCode: "ACQUIRE_HOSTS_FAILED", ErrorMessage: acquired.ErrorMessage}, nil
	}

	machineIDs := s.persistMachines(acquired.Instances)

	return provider.Result{
		Success: true,
		Data: map[string]any{
			"machine_ids":  machineIDs,
			"resource_ids": acquired.ResourceIDs,
		},
		Metadata: map[string]any{
			"provider_name": s.providerName,
			"provider_type": s.providerType,
			"provider_api":  string(t.ProviderAPI),
		},
	}, nil
}

// terminateInstances groups the machine ids to return by the
// acquisition request (and thus the resource id / provider_api) that
// created them, since a RETURN request's id names no resource itself —
// only the Machine records it targets know which fleet/group/reservation
// they belong to.
func (s *AWSProviderStrategy) terminateInstances(ctx context.Context, params map[string]any) (provider.Result, error) {
	machineIDs, _ := params["machine_ids"].([]string)
	if len(machineIDs) == 0 {
		return provider.Result{Success: true, Data: map[string]any{"machine_ids": []string{}}}, nil
	}

	type group struct {
		resourceID  string
		providerAPI string
		machineIDs  []string
	}
	groups := map[string]*group{} // owning request_id -> group

	for _, machineID := range machineIDs {
		rec, found, err := s.storage.Machines.GetByID(machineID)
		if err != nil {
			return failureResult(err)
		}
		if !found {
			continue
		}
		g, ok := groups[rec.RequestID]
		if !ok {
			g = &group{resourceID: rec.ResourceID, providerAPI: rec.ProviderAPI}
			groups[rec.RequestID] = g
		}
		g.machineIDs = append(g.machineIDs, machineID)
	}

	var terminated []string
	var errs error
	for originalRequestID, g := range groups {
		handler, err := s.handlerFor(template.ProviderAPI(g.providerAPI))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		r := &request.Request{
			RequestID:         originalRequestID,
			ResourceIDs:       []string{g.resourceID},
			MachineReferences: g.machineIDs,
		}
		if err := handler.ReleaseHosts(ctx, r); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		terminated = append(terminated, g.machineIDs...)
	}

	s.deleteMachines(terminated)

	if errs != nil {
		return failureResult(errs)
	}
	return provider.Result{Success: true, Data: map[string]any{"machine_ids": terminated}}, nil
}

func (s *AWSProviderStrategy) instanceStatus(ctx context.Context, params map[string]any) (provider.Result, error) {
	requestID, _ := params["request_id"].(string)

	rec, found, err := s.storage.Requests.GetByID(requestID)
	if err != nil {
		return failureResult(err)
	}
	if !found {
		return provider.Result{Success: false, ErrorCode: "REQUEST_NOT_FOUND", ErrorMessage: "request " + requestID + " does not exist"}, nil
	}
	r := uow.RecordToRequest(rec)

	handler, err := s.handlerFor(template.ProviderAPI(r.ProviderAPI))
	if err != nil {
		return failureResult(err)
	}

	machines, err := handler.CheckHostsStatus(ctx, r)
	if err != nil {
		return failureResult(err)
	}
	machineIDs := s.persistMachines(machines)

	return provider.Result{Success: true, Data: map[string]any{"machine_ids": machineIDs}}, nil
}

// persistMachines upserts each machine without touching any Request
// aggregate lock, mirroring the no-lock machine-only transaction the
// RecordMachineStatus command handler uses.
func (s *AWSProviderStrategy) persistMachines(machines []machine.Machine) []string {
	ids := make([]string, 0, len(machines))
	tx := s.uow.Begin()
	for _, m := range machines {
		tx.SaveMachine(m)
		ids = append(ids, m.MachineID)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Warn("aws strategy: failed to persist machine records", "error", err)
	}
	return ids
}

// deleteMachines removes each terminated machine's record once its
// owning handler has confirmed release, so a later status poll doesn't
// report an instance that no longer exists.
func (s *AWSProviderStrategy) deleteMachines(ids []string) {
	tx := s.uow.Begin()
	for _, id := range ids {
		if err := tx.Machines().Delete(id); err != nil {
			s.logger.Warn("aws strategy: failed to delete machine record", "machine_id", id, "error", err)
		}
	}
}

var _ provider.Strategy = (*AWSProviderStrategy)(nil)

func failureResult(err error) (provider.Result, error) {
	code := "PROVIDER_OPERATION_FAILED"
	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		code = de.Code
	}
	return provider.Result{Success: false, ErrorCode: code, ErrorMessage: err.Error()}, nil
}
