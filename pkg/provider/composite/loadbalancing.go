package composite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/provider"
)

// Algorithm selects which LoadBalancing child handles the next
// operation.
type Algorithm string

const (
	AlgorithmRoundRobin      Algorithm = "ROUND_ROBIN"
	AlgorithmWeighted        Algorithm = "WEIGHTED_ROUND_ROBIN"
	AlgorithmCapabilityBased Algorithm = "CAPABILITY_BASED"
	AlgorithmFastestResponse Algorithm = "FASTEST_RESPONSE"
)

// Child pairs a strategy with its configured weight, used only by the
// weighted algorithm; zero or negative weights are treated as 1.
type Child struct {
	Strategy provider.Strategy
	Weight   int
}

// LoadBalancing distributes operations across a set of children by one
// of four algorithms, skipping any child CheckHealth reports unhealthy.
type LoadBalancing struct {
	providerType string
	algorithm    Algorithm
	children     []Child
	logger       logging.Port
	ctx          *provider.Context // consulted for per-child metrics under FASTEST_RESPONSE

	mu          sync.Mutex
	initialized bool
	nextIndex   int
	weightedSeq []int // precomputed round-robin sequence of child indices, expanded by weight
	weightedPos int
}

// NewLoadBalancing builds a LoadBalancing strategy. metrics, if
// non-nil, is consulted by AlgorithmFastestResponse to read each
// child's recorded average response time; it may be nil for the other
// three algorithms.
func NewLoadBalancing(providerType string, algorithm Algorithm, children []Child, metrics *provider.Context, logger logging.Port) *LoadBalancing {
	if logger == nil {
		logger = logging.NoOpLogger()
	}
	lb := &LoadBalancing{
		providerType: providerType,
		algorithm:    algorithm,
		children:     children,
		logger:       logger,
		ctx:          metrics,
	}
	lb.weightedSeq = expandByWeight(children)
	return lb
}

func expandByWeight(children []Child) []int {
	var seq []int
	for i, c := range children {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		for j := 0; j < w; j++ {
			seq = append(seq, i)
		}
	}
	return seq
}

func (lb *LoadBalancing) ProviderType() string { return lb.providerType }

func (lb *LoadBalancing) Initialize(ctx context.Context) error {
	for _, c := range lb.children {
		if err := c.Strategy.Initialize(ctx); err != nil {
			return fmt.Errorf("loadbalancing: initialize %s: %w", c.Strategy.ProviderType(), err)
		}
	}
	lb.mu.Lock()
	lb.initialized = true
	lb.mu.Unlock()
	return nil
}

func (lb *LoadBalancing) IsInitialized() bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.initialized
}

func (lb *LoadBalancing) Cleanup(ctx context.Context) error {
	var firstErr error
	for _, c := range lb.children {
		if err := c.Strategy.Cleanup(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	lb.mu.Lock()
	lb.initialized = false
	lb.mu.Unlock()
	return firstErr
}

func (lb *LoadBalancing) GetCapabilities() provider.Capabilities {
	strategies := make([]provider.Strategy, 0, len(lb.children))
	for _, c := range lb.children {
		strategies = append(strategies, c.Strategy)
	}
	return unionCapabilities(strategies)
}

// CheckHealth reports healthy if at least one child currently accepts
// dispatch.
func (lb *LoadBalancing) CheckHealth(ctx context.Context) provider.HealthStatus {
	healthyCount := 0
	for _, c := range lb.children {
		if c.Strategy.CheckHealth(ctx).Healthy {
			healthyCount++
		}
	}
	if healthyCount == 0 {
		return provider.HealthStatus{Healthy: false, Message: "no child strategy is healthy", CheckedAt: time.Now()}
	}
	return provider.HealthStatus{Healthy: true, Message: fmt.Sprintf("%d/%d children healthy", healthyCount, len(lb.children)), CheckedAt: time.Now()}
}

// ExecuteOperation picks a child per the configured algorithm, skipping
// any child whose CheckHealth reports unhealthy, and dispatches to it.
func (lb *LoadBalancing) ExecuteOperation(ctx context.Context, op provider.Operation) (provider.Result, error) {
	candidates := lb.healthyChildren(ctx, op.Type)
	if len(candidates) == 0 {
		return provider.Result{}, fmt.Errorf("loadbalancing: no healthy child supports %s", op.Type)
	}

	var chosen provider.Strategy
	switch lb.algorithm {
	case AlgorithmWeighted:
		chosen = lb.pickWeighted(candidates)
	case AlgorithmCapabilityBased:
		chosen = lb.pickCapabilityBased(candidates, op.Type)
	case AlgorithmFastestResponse:
		chosen = lb.pickFastestResponse(candidates)
	default: // AlgorithmRoundRobin and unrecognized values
		chosen = lb.pickRoundRobin(candidates)
	}

	return chosen.ExecuteOperation(ctx, op)
}

func (lb *LoadBalancing) healthyChildren(ctx context.Context, op provider.OperationType) []provider.Strategy {
	var healthy []provider.Strategy
	for _, c := range lb.children {
		if !c.Strategy.GetCapabilities().SupportsOperation(op) {
			continue
		}
		if c.Strategy.CheckHealth(ctx).Healthy {
			healthy = append(healthy, c.Strategy)
		}
	}
	return healthy
}

func (lb *LoadBalancing) pickRoundRobin(candidates []provider.Strategy) provider.Strategy {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	chosen := candidates[lb.nextIndex%len(candidates)]
	lb.nextIndex++
	return chosen
}

// pickWeighted walks the precomputed weighted sequence, skipping any
// entry whose strategy isn't currently a healthy candidate, and falls
// back to plain round-robin over candidates if the sequence is empty.
// Every child appears in the sequence at least once, so one full pass
// always reaches a candidate; the trailing candidates[0] is a guard.
func (lb *LoadBalancing) pickWeighted(candidates []provider.Strategy) provider.Strategy {
	if len(lb.weightedSeq) == 0 {
		return lb.pickRoundRobin(candidates)
	}
	candidateSet := make(map[provider.Strategy]struct{}, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = struct{}{}
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()
	for attempt := 0; attempt < len(lb.weightedSeq); attempt++ {
		idx := lb.weightedSeq[lb.weightedPos%len(lb.weightedSeq)]
		lb.weightedPos++
		candidate := lb.children[idx].Strategy
		if _, ok := candidateSet[candidate]; ok {
			return candidate
		}
	}
	return candidates[0]
}

// pickCapabilityBased prefers the candidate with the widest declared
// capability set (supported operations plus provider APIs, counted
// together; ties go to the first seen),
// on the theory that more-capable backends are better defaults when
// several can serve the same operation.
func (lb *LoadBalancing) pickCapabilityBased(candidates []provider.Strategy, op provider.OperationType) provider.Strategy {
	best := candidates[0]
	bestScore := -1
	for _, c := range candidates {
		caps := c.GetCapabilities()
		score := len(caps.SupportedOperations) + len(caps.ProviderAPIs)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// pickFastestResponse chooses the candidate with the lowest recorded
// AverageResponseMs. A child with no recorded operations yet
// (TotalOperations=0) is treated as fastest, so it gets an initial
// trial before established averages dominate selection.
func (lb *LoadBalancing) pickFastestResponse(candidates []provider.Strategy) provider.Strategy {
	if lb.ctx == nil {
		return lb.pickRoundRobin(candidates)
	}
	best := candidates[0]
	bestMs := -1.0
	for _, c := range candidates {
		snap := lb.ctx.Metrics(c.ProviderType())
		ms := snap.AverageResponseMs
		if snap.TotalOperations == 0 {
			return c
		}
		if bestMs < 0 || ms < bestMs {
			best, bestMs = c, ms
		}
	}
	return best
}

var _ provider.Strategy = (*LoadBalancing)(nil)
