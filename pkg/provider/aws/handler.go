package aws

import (
	"context"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/launchtemplate"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/nativespec"
)

// AcquireResult is what every handler's AcquireHosts returns to the
// strategy: the opaque provider resource ids a request now owns, plus
// whatever instances are already known synchronously.
type AcquireResult struct {
	Success      bool
	ResourceIDs  []string
	Instances    []machine.Machine
	ErrorMessage string
}

// Handler is the common contract every AWS provisioning API
// implements: idempotent acquisition keyed by request id, a
// side-effect-free status enumeration, and release/termination.
type Handler interface {
	AcquireHosts(ctx context.Context, r *request.Request, t *template.Template) (AcquireResult, error)
	CheckHostsStatus(ctx context.Context, r *request.Request) ([]machine.Machine, error)
	ReleaseHosts(ctx context.Context, r *request.Request) error
}

// Deps bundles the collaborators every handler is constructed with:
// a lazily-memoized SDK client, the shared retry/circuit-breaker
// wrapper, the launch template manager, the instance-to-Machine
// adapter, and the optional native-spec renderer.
type Deps struct {
	Client          ClientProvider
	Ops             *Operations
	LaunchTemplates *launchtemplate.Manager
	MachineAdapter  *MachineAdapter
	NativeSpec      *nativespec.Service
	Logger          logging.Port
	ProviderName    string
	ProviderType    string
}
