package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/hostfactory/aws-provider/pkg/application/bus"
	"github.com/hostfactory/aws-provider/pkg/application/commands"
	"github.com/hostfactory/aws-provider/pkg/application/queries"
	"github.com/hostfactory/aws-provider/pkg/application/services"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/config"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/eventbus"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/templateconfig"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/uow"
	"github.com/hostfactory/aws-provider/pkg/provider"
	"github.com/hostfactory/aws-provider/pkg/provider/aws"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/amis"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/launchtemplate"
	awsmetrics "github.com/hostfactory/aws-provider/pkg/provider/aws/metrics"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/nativespec"
	"github.com/hostfactory/aws-provider/pkg/provider/composite"

	_ "github.com/hostfactory/aws-provider/pkg/infrastructure/storage/cloudkv"
	_ "github.com/hostfactory/aws-provider/pkg/infrastructure/storage/file"
	_ "github.com/hostfactory/aws-provider/pkg/infrastructure/storage/sqlstore"
)

// App bundles every collaborator the CLI subcommands need: the two
// buses, the read-model storage registry, and the provider instance
// selection/validation services that sit in front of dispatch.
type App struct {
	Config     config.Config
	Logger     logging.Port
	Registry   *storage.Registry
	Events     *eventbus.Bus
	UoW        *uow.UnitOfWork
	Providers  *provider.Context
	Templates  *templateconfig.Manager
	Commands   *bus.CommandBus
	Queries    *bus.QueryBus
	Selection  *services.ProviderSelectionService
	Capability *services.ProviderCapabilityService
	Metrics    *awsmetrics.Collector
}

// buildApp wires the full dependency graph once, in the teacher's
// hand-construction style (cmd/nimbus never routes through a DI
// container either; the container in pkg/infrastructure/di is kept as
// an alternative wiring path for embedders, not used by this binary).
func buildApp(ctx context.Context, cfg config.Config, logger logging.Port) (*App, error) {
	registry, err := storage.Build(cfg.Storage.Strategy, map[string]any{
		"dsn":      cfg.Storage.DSN,
		"base_dir": cfg.Storage.BaseDir,
		"table":    cfg.Storage.Table,
		"extra":    cfg.Storage.Extra,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	events := eventbus.New(logger)
	unitOfWork := uow.New(registry, events, logger)
	providers := provider.NewContext(logger)

	metricsCollector := awsmetrics.NewCollector(prometheus.DefaultRegisterer, awsmetrics.Config{
		Enabled:             cfg.AWSMetrics.Enabled,
		SampleRate:          cfg.AWSMetrics.SampleRate,
		MonitoredServices:   cfg.AWSMetrics.MonitoredServices,
		MonitoredOperations: cfg.AWSMetrics.MonitoredOperations,
		TrackPayloadSizes:   cfg.AWSMetrics.TrackPayloadSizes,
	})

	var primaryTemplates *templateconfig.Manager
	perType := map[string][]weightedStrategy{}

	enabled := lo.Filter(cfg.Providers, func(pc config.ProviderConfig, _ int) bool { return pc.Enabled })
	if len(enabled) == 0 {
		return nil, fmt.Errorf("wiring: no enabled provider instances configured")
	}

	for _, pc := range enabled {
		strategy, tplMgr, err := buildProviderInstance(ctx, pc, registry, unitOfWork, logger, metricsCollector)
		if err != nil {
			return nil, fmt.Errorf("wiring provider instance %q: %w", pc.Name, err)
		}
		perType[pc.Type] = append(perType[pc.Type], weightedStrategy{strategy: strategy, weight: pc.Weight, instanceID: pc.Type + ":" + pc.Name})
		if primaryTemplates == nil || pc.Name == cfg.DefaultProviderInstance {
			primaryTemplates = tplMgr
		}
	}

	for providerType, strategies := range perType {
		providers.RegisterStrategy(ctx, composeStrategy(providerType, strategies, cfg.SelectionPolicy, providers, logger))
	}

	activeType := enabled[0].Type
	for _, pc := range enabled {
		if pc.Name == cfg.DefaultProviderInstance {
			activeType = pc.Type
		}
	}
	if err := providers.SetStrategy(activeType); err != nil {
		return nil, fmt.Errorf("wiring: %w", err)
	}

	selection := services.NewProviderSelectionService(enabled, cfg, providers)
	capability := services.NewProviderCapabilityService()

	cmdHandlers := &commands.Handlers{
		UoW:        unitOfWork,
		Dispatcher: providers,
		Templates:  primaryTemplates,
		Clock:      time.Now,
		Logger:     logger,
	}
	commandBus := bus.NewCommandBus()
	commandBus.Register(commands.CreateAcquisitionRequest{}, cmdHandlers.HandleCreateAcquisitionRequest)
	commandBus.Register(commands.CreateReturnRequest{}, cmdHandlers.HandleCreateReturnRequest)
	commandBus.Register(commands.ProcessRequest{}, cmdHandlers.HandleProcessRequest)
	commandBus.Register(commands.CancelRequest{}, cmdHandlers.HandleCancelRequest)
	commandBus.Register(commands.RecordMachineStatus{}, cmdHandlers.HandleRecordMachineStatus)
	commandBus.Register(commands.ReloadTemplates{}, cmdHandlers.HandleReloadTemplates)

	queryHandlers := &queries.Handlers{Storage: registry, Templates: primaryTemplates, Providers: providers}
	queryBus := bus.NewQueryBus()
	queryBus.Register(queries.GetRequestByID{}, queryHandlers.HandleGetRequestByID)
	queryBus.Register(queries.ListRequests{}, queryHandlers.HandleListRequests)
	queryBus.Register(queries.GetMachinesByRequestID{}, queryHandlers.HandleGetMachinesByRequestID)
	queryBus.Register(queries.ListMachines{}, queryHandlers.HandleListMachines)
	queryBus.Register(queries.GetTemplateByID{}, queryHandlers.HandleGetTemplateByID)
	queryBus.Register(queries.ListTemplates{}, queryHandlers.HandleListTemplates)
	queryBus.Register(queries.GetProviderInfo{}, queryHandlers.HandleGetProviderInfo)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   registry,
		Events:     events,
		UoW:        unitOfWork,
		Providers:  providers,
		Templates:  primaryTemplates,
		Commands:   commandBus,
		Queries:    queryBus,
		Selection:  selection,
		Capability: capability,
		Metrics:    metricsCollector,
	}, nil
}

type weightedStrategy struct {
	strategy   provider.Strategy
	weight     int
	instanceID string
}

// instanceStrategy decorates a provider.Strategy, overriding only
// ProviderType so composites can distinguish same-type instances
// (needed since every provider.Context metrics/health entry is keyed
// by ProviderType).
type instanceStrategy struct {
	provider.Strategy
	instanceID string
}

func (s instanceStrategy) ProviderType() string { return s.instanceID }

// composeStrategy wraps multiple provider instances of the same
// provider_type into a single provider.Strategy per spec.md §4.3's
// selection_policy: FIRST_AVAILABLE degrades to an ordered Fallback,
// every other policy becomes the matching composite.LoadBalancing
// algorithm. A single instance registers unwrapped.
func composeStrategy(providerType string, weighted []weightedStrategy, policy string, metrics *provider.Context, logger logging.Port) provider.Strategy {
	if len(weighted) == 1 {
		return weighted[0].strategy
	}

	// Every child is wrapped so its ProviderType reports its own
	// instance id instead of the shared logical type; otherwise
	// provider.Context's per-type metrics/health map couldn't tell the
	// children apart.
	instances := lo.Map(weighted, func(w weightedStrategy, _ int) provider.Strategy {
		return instanceStrategy{Strategy: w.strategy, instanceID: w.instanceID}
	})

	if services.SelectionPolicy(policy) == services.PolicyFirstAvailable || policy == "" {
		return composite.NewFallback(providerType, instances, logger)
	}

	algorithm := composite.AlgorithmRoundRobin
	switch services.SelectionPolicy(policy) {
	case services.PolicyWeightedRoundRobin:
		algorithm = composite.AlgorithmWeighted
	case services.PolicyCapabilityBased:
		algorithm = composite.AlgorithmCapabilityBased
	case services.PolicyFastestResponse:
		algorithm = composite.AlgorithmFastestResponse
	}
	children := lo.Map(weighted, func(w weightedStrategy, i int) composite.Child {
		return composite.Child{Strategy: instances[i], Weight: w.weight}
	})
	return composite.NewLoadBalancing(providerType, algorithm, children, metrics, logger)
}

// buildProviderInstance constructs one AWS account/region's handler
// set, launch template manager, and AMI resolver, and the
// AWSProviderStrategy fronting them.
func buildProviderInstance(ctx context.Context, pc config.ProviderConfig, registry *storage.Registry, unit *uow.UnitOfWork, logger logging.Port, metrics *awsmetrics.Collector) (*aws.AWSProviderStrategy, *templateconfig.Manager, error) {
	awsCfg, err := config.LoadAWSConfig(ctx, pc)
	if err != nil {
		return nil, nil, fmt.Errorf("aws config: %w", err)
	}
	awsCfg.APIOptions = append(awsCfg.APIOptions, metrics.Middleware())

	client := aws.NewClient(awsCfg)
	ops := aws.NewOperations(3)
	machineAdapter := aws.NewMachineAdapter(pc.Name, pc.Type)
	nativeSpec := nativespec.NewService(nativespec.Config{Enabled: true}, "hostfactoryd", version)

	// The launch template manager needs CreateLaunchTemplate/
	// CreateLaunchTemplateVersion, which Client.EC2()'s narrowed
	// EC2API interface doesn't expose; it gets its own raw client
	// over the same session.
	rawEC2 := ec2.NewFromConfig(awsCfg)
	amiResolver := amis.NewResolver(client.SSM())
	ltManager := launchtemplate.NewManager(rawEC2, amiResolver, launchtemplate.DefaultOptions())

	deps := aws.Deps{
		Client:          client,
		Ops:             ops,
		LaunchTemplates: ltManager,
		MachineAdapter:  machineAdapter,
		NativeSpec:      nativeSpec,
		Logger:          logger.With("provider_name", pc.Name, "provider_type", pc.Type),
		ProviderName:    pc.Name,
		ProviderType:    pc.Type,
	}

	handlers := map[template.ProviderAPI]aws.Handler{}
	apis := pc.APIs
	if len(apis) == 0 {
		apis = []string{
			string(template.ProviderAPIEC2Fleet),
			string(template.ProviderAPISpotFleet),
			string(template.ProviderAPIASG),
			string(template.ProviderAPIRunInstances),
		}
	}
	for _, api := range apis {
		switch template.ProviderAPI(api) {
		case template.ProviderAPIEC2Fleet:
			handlers[template.ProviderAPIEC2Fleet] = aws.NewEC2FleetHandler(deps)
		case template.ProviderAPISpotFleet:
			handlers[template.ProviderAPISpotFleet] = aws.NewSpotFleetHandler(deps)
		case template.ProviderAPIASG:
			handlers[template.ProviderAPIASG] = aws.NewASGHandler(deps)
		case template.ProviderAPIRunInstances:
			handlers[template.ProviderAPIRunInstances] = aws.NewRunInstancesHandler(deps)
		}
	}

	templatesDir := pc.TemplatesDir
	if templatesDir == "" {
		templatesDir = filepath.Join("/etc/hostfactoryd", "conf")
	}
	cache := templateconfig.NewTTLCache(60 * time.Second)
	tplMgr := templateconfig.NewManager(templatesDir, pc.Name, pc.Type, cache, templateconfig.DefaultsLayers{})

	strategy := aws.NewAWSProviderStrategy(pc.Type, pc.Name, handlers, tplMgr, registry, unit, ops, logger)
	return strategy, tplMgr, nil
}
