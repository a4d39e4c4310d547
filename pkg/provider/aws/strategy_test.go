package aws

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/eventbus"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage/file"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/uow"
	"github.com/hostfactory/aws-provider/pkg/provider"
)

// fakeTemplateProvider serves a fixed, in-memory template set so
// strategy tests don't need a real templateconfig.Manager/on-disk files.
type fakeTemplateProvider struct {
	templates map[string]*template.Template
}

func (f *fakeTemplateProvider) GetByID(id string) (*template.Template, bool, error) {
	t, ok := f.templates[id]
	return t, ok, nil
}

func newTestRegistry(t *testing.T) *storage.Registry {
	t.Helper()
	dir := t.TempDir()
	return &storage.Registry{
		Strategy:  "file",
		Requests:  file.New(filepath.Join(dir, "requests"), func(r repository.RequestRecord) string { return r.RequestID }),
		Machines:  file.New(filepath.Join(dir, "machines"), func(m repository.MachineRecord) string { return m.MachineID }),
		Templates: file.New(filepath.Join(dir, "templates"), func(tr repository.TemplateRecord) string { return tr.TemplateID }),
	}
}

func newTestStrategy(t *testing.T, ec2Client *fakeEC2Client, tmpl *template.Template) (*AWSProviderStrategy, *storage.Registry) {
	t.Helper()
	deps := testDeps(ec2Client, nil)
	handlers := map[template.ProviderAPI]Handler{
		template.ProviderAPIEC2Fleet: NewEC2FleetHandler(deps),
	}
	reg := newTestRegistry(t)
	u := uow.New(reg, eventbus.New(logging.NoOpLogger()), logging.NoOpLogger())
	templates := &fakeTemplateProvider{templates: map[string]*template.Template{tmpl.TemplateID: tmpl}}
	s := NewAWSProviderStrategy("aws-ec2", "aws-ec2", handlers, templates, reg, u, deps.Ops, logging.NoOpLogger())
	return s, reg
}

func TestAWSProviderStrategyCreateInstancesDispatchesToEC2Fleet(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	tmpl := mustHandlerTemplate(template.ProviderAPIEC2Fleet)
	s, reg := newTestStrategy(t, ec2Client, tmpl)

	result, err := s.ExecuteOperation(context.Background(), provider.Operation{
		Type: provider.OperationCreateInstances,
		Parameters: map[string]any{
			"request_id":    "req-1",
			"template_id":   tmpl.TemplateID,
			"machine_count": 2,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if ec2Client.createFleetCalls != 1 {
		t.Fatalf("expected one CreateFleet call, got %d", ec2Client.createFleetCalls)
	}
	machineIDs, _ := result.Data["machine_ids"].([]string)
	if len(machineIDs) != 1 {
		t.Fatalf("expected one persisted machine id, got %v", machineIDs)
	}
	if _, found, _ := reg.Machines.GetByID(machineIDs[0]); !found {
		t.Fatal("expected the created machine to be persisted")
	}
}

func TestAWSProviderStrategyCreateInstancesRejectsUnknownTemplate(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	tmpl := mustHandlerTemplate(template.ProviderAPIEC2Fleet)
	s, _ := newTestStrategy(t, ec2Client, tmpl)

	result, err := s.ExecuteOperation(context.Background(), provider.Operation{
		Type:       provider.OperationCreateInstances,
		Parameters: map[string]any{"request_id": "req-1", "template_id": "does-not-exist", "machine_count": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.ErrorCode != "TEMPLATE_NOT_FOUND" {
		t.Fatalf("expected TEMPLATE_NOT_FOUND, got %+v", result)
	}
}

func TestAWSProviderStrategyTerminateInstancesGroupsByOwningRequest(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	tmpl := mustHandlerTemplate(template.ProviderAPIEC2Fleet)
	s, reg := newTestStrategy(t, ec2Client, tmpl)

	if err := reg.Machines.Save(repository.MachineRecord{
		MachineID:   "i-aaaa",
		RequestID:   "req-original",
		ResourceID:  "fleet-0123456789abcdef0",
		ProviderAPI: string(template.ProviderAPIEC2Fleet),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := s.ExecuteOperation(context.Background(), provider.Operation{
		Type:       provider.OperationTerminateInstances,
		Parameters: map[string]any{"request_id": "req-return", "machine_ids": []string{"i-aaaa"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if ec2Client.deleteFleetsCalls != 1 {
		t.Fatalf("expected one DeleteFleets call routed through the EC2Fleet handler, got %d", ec2Client.deleteFleetsCalls)
	}
	if _, found, _ := reg.Machines.GetByID("i-aaaa"); found {
		t.Fatal("expected the terminated machine record to be deleted")
	}
}

func TestAWSProviderStrategyGetInstanceStatusReadsPersistedRequest(t *testing.T) {
	ec2Client := &fakeEC2Client{
		fleetInstances:     []string{"i-aaaa"},
		describedInstances: []ec2types.Instance{{InstanceId: aws.String("i-aaaa"), State: &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning}}},
	}
	tmpl := mustHandlerTemplate(template.ProviderAPIEC2Fleet)
	s, reg := newTestStrategy(t, ec2Client, tmpl)

	if err := reg.Requests.Save(repository.RequestRecord{
		RequestID:   "req-1",
		ProviderAPI: string(template.ProviderAPIEC2Fleet),
		ResourceIDs: []string{"fleet-0123456789abcdef0"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := s.ExecuteOperation(context.Background(), provider.Operation{
		Type:       provider.OperationGetInstanceStatus,
		Parameters: map[string]any{"request_id": "req-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	machineIDs, _ := result.Data["machine_ids"].([]string)
	if len(machineIDs) != 1 {
		t.Fatalf("expected one machine id, got %v", machineIDs)
	}
}

func TestAWSProviderStrategyCapabilitiesExcludeUnimplementedOperations(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	tmpl := mustHandlerTemplate(template.ProviderAPIEC2Fleet)
	s, _ := newTestStrategy(t, ec2Client, tmpl)

	caps := s.GetCapabilities()
	if caps.SupportsOperation(provider.OperationValidateTemplate) {
		t.Fatal("expected VALIDATE_TEMPLATE to be unsupported at the AWS strategy level")
	}
	if !caps.SupportsOperation(provider.OperationCreateInstances) {
		t.Fatal("expected CREATE_INSTANCES to be supported")
	}
}

func TestAWSProviderStrategyCheckHealthHealthyWithNoOpenBreakers(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	tmpl := mustHandlerTemplate(template.ProviderAPIEC2Fleet)
	s, _ := newTestStrategy(t, ec2Client, tmpl)

	status := s.CheckHealth(context.Background())
	if !status.Healthy {
		t.Fatalf("expected healthy status, got %+v", status)
	}
}
