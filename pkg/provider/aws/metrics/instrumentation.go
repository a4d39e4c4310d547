// Package metrics attaches a smithy-go middleware to an AWS SDK config
// that records per-call Prometheus metrics: call counts, durations,
// error/throttling breakdowns, and best-effort response sizes. It plays
// the role botocore's before/after/error event hooks play for a boto3
// session, adapted to the middleware stack aws-sdk-go-v2 exposes.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	smithymiddleware "github.com/aws/smithy-go/middleware"
	"github.com/prometheus/client_golang/prometheus"

	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awserr"
)

// Config mirrors spec.md §4.9's aws_metrics options: whether the
// middleware is attached at all, what fraction of calls it samples,
// and an optional service/operation allowlist.
type Config struct {
	Enabled             bool
	SampleRate          float64
	MonitoredServices   []string
	MonitoredOperations []string
	TrackPayloadSizes   bool
}

// requestContext tracks one in-flight AWS call, mirroring the Python
// instrumentation's RequestContext: service/operation identity, start
// time, and an accumulated retry count.
type requestContext struct {
	service    string
	operation  string
	start      time.Time
	retryCount int32
}

// Collector owns the Prometheus series and the in-flight request
// table. It is safe for concurrent use by every handler sharing an AWS
// session.
type Collector struct {
	cfg Config

	calls       *prometheus.CounterVec
	success     *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	errorsByKind *prometheus.CounterVec
	throttling  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	responseSize *prometheus.GaugeVec

	monitoredServices   map[string]bool
	monitoredOperations map[string]bool

	requestSeq atomic.Uint64
	active     sync.Map // id (uint64) -> *requestContext
	sampleSeq  atomic.Uint64
}

// NewCollector builds and registers the AWS API metric series against
// reg. A Config with Enabled false, or a nil reg, registers nothing;
// NewCollector still returns a usable (inert) Collector so callers
// never need a nil check before calling Middleware.
func NewCollector(reg prometheus.Registerer, cfg Config) *Collector {
	c := &Collector{
		cfg:                 cfg,
		monitoredServices:   toSet(cfg.MonitoredServices),
		monitoredOperations: toSet(cfg.MonitoredOperations),
	}
	if !cfg.Enabled || reg == nil {
		return c
	}

	c.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "calls_total",
		Help: "Total AWS API calls made, by service and operation.",
	}, []string{"service", "operation"})
	c.success = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "success_total",
		Help: "AWS API calls that completed without error.",
	}, []string{"service", "operation"})
	c.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "errors_total",
		Help: "AWS API calls that returned an error.",
	}, []string{"service", "operation"})
	c.errorsByKind = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "errors_by_kind_total",
		Help: "AWS API errors bucketed by domain error kind.",
	}, []string{"service", "operation", "kind"})
	c.throttling = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "throttling_total",
		Help: "AWS API calls that failed with a throttling-family error code.",
	}, []string{"service", "operation"})
	c.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "retries_total",
		Help: "Retry attempts the SDK's retryer made beyond the first attempt.",
	}, []string{"service", "operation"})
	c.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "duration_seconds",
		Help:    "AWS API call duration including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "operation"})
	c.responseSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hostfactoryd", Subsystem: "aws_api", Name: "response_size_bytes",
		Help: "Best-effort serialized size of the most recent response per operation.",
	}, []string{"service", "operation"})

	reg.MustRegister(c.calls, c.success, c.errorsTotal, c.errorsByKind, c.throttling, c.retries, c.duration, c.responseSize)
	return c
}

// Middleware returns the smithy-go stack mutator to append to
// aws.Config.APIOptions. It is a no-op once attached if the collector
// was built with Enabled: false, matching the Python handler's
// "register_events is a no-op when disabled" guard.
func (c *Collector) Middleware() func(*smithymiddleware.Stack) error {
	return func(stack *smithymiddleware.Stack) error {
		if !c.cfg.Enabled {
			return nil
		}
		recorder := &callRecorder{collector: c}
		if err := stack.Finalize.Insert(recorder, "Retry", smithymiddleware.Before); err != nil {
			// No retry middleware on this stack (e.g. presigned or
			// streaming operations) — still record duration, just
			// without a retry-boundary wrapping guarantee.
			return stack.Finalize.Add(recorder, smithymiddleware.Before)
		}

		attempts := &attemptRecorder{collector: c}
		if err := stack.Finalize.Insert(attempts, "Retry", smithymiddleware.After); err != nil {
			return nil
		}
		return nil
	}
}

// attemptContextKey is the smithy stack-value key the call recorder
// uses to hand its requestContext id to the attempt recorder sitting
// on the other side of the retry middleware.
type attemptContextKey struct{}

// callRecorder wraps the full Finalize step (including every retry
// attempt) and records the overall outcome: duration, success/error,
// error classification, and throttling.
type callRecorder struct {
	collector *Collector
}

func (*callRecorder) ID() string { return "hostfactoryd.AWSMetrics.Call" }

func (r *callRecorder) HandleFinalize(ctx context.Context, in smithymiddleware.FinalizeInput, next smithymiddleware.FinalizeHandler) (
	smithymiddleware.FinalizeOutput, smithymiddleware.Metadata, error,
) {
	c := r.collector
	service := awsmiddleware.GetServiceID(ctx)
	operation := awsmiddleware.GetOperationName(ctx)

	if !c.shouldRecord(service, operation) {
		return next.HandleFinalize(ctx, in)
	}

	id := c.requestSeq.Add(1)
	rc := &requestContext{service: strings.ToLower(service), operation: normalizeOperation(operation), start: time.Now()}
	c.active.Store(id, rc)
	defer c.active.Delete(id) // popped here so a leaked context never outlives the call

	ctx = smithymiddleware.WithStackValue(ctx, attemptContextKey{}, id)
	out, meta, err := next.HandleFinalize(ctx, in)

	c.recordOutcome(rc, out, err)
	return out, meta, err
}

// attemptRecorder sits on the far side of the retry middleware, so it
// runs once per attempt (the first plus every retry), letting it
// increment retries_total without the call recorder needing to know
// how many attempts the retryer made.
type attemptRecorder struct {
	collector *Collector
}

func (*attemptRecorder) ID() string { return "hostfactoryd.AWSMetrics.Attempt" }

func (r *attemptRecorder) HandleFinalize(ctx context.Context, in smithymiddleware.FinalizeInput, next smithymiddleware.FinalizeHandler) (
	smithymiddleware.FinalizeOutput, smithymiddleware.Metadata, error,
) {
	if idVal := smithymiddleware.GetStackValue(ctx, attemptContextKey{}); idVal != nil {
		if id, ok := idVal.(uint64); ok {
			if v, ok := r.collector.active.Load(id); ok {
				rc := v.(*requestContext)
				if atomic.AddInt32(&rc.retryCount, 1) > 1 {
					r.collector.retries.WithLabelValues(rc.service, rc.operation).Inc()
				}
			}
		}
	}
	return next.HandleFinalize(ctx, in)
}

func (c *Collector) shouldRecord(service, operation string) bool {
	if !c.cfg.Enabled {
		return false
	}
	if len(c.monitoredServices) > 0 && !c.monitoredServices[strings.ToLower(service)] {
		return false
	}
	if len(c.monitoredOperations) > 0 && !c.monitoredOperations[normalizeOperation(operation)] {
		return false
	}
	return c.shouldSample()
}

func (c *Collector) shouldSample() bool {
	rate := c.cfg.SampleRate
	if rate <= 0 {
		return false
	}
	if rate >= 1.0 {
		return true
	}
	n := c.sampleSeq.Add(1)
	stride := uint64(1.0 / rate)
	if stride == 0 {
		stride = 1
	}
	return n%stride == 0
}

func (c *Collector) recordOutcome(rc *requestContext, out smithymiddleware.FinalizeOutput, err error) {
	duration := time.Since(rc.start)
	c.calls.WithLabelValues(rc.service, rc.operation).Inc()
	c.duration.WithLabelValues(rc.service, rc.operation).Observe(duration.Seconds())

	if c.cfg.TrackPayloadSizes {
		if size := estimateSize(out.Result); size > 0 {
			c.responseSize.WithLabelValues(rc.service, rc.operation).Set(float64(size))
		}
	}

	if err == nil {
		c.success.WithLabelValues(rc.service, rc.operation).Inc()
		return
	}

	c.errorsTotal.WithLabelValues(rc.service, rc.operation).Inc()

	classified := awserr.Classify(rc.operation, err)
	kind := string(domainerrors.KindInfraOther)
	var de *domainerrors.DomainError
	if errors.As(classified, &de) {
		kind = string(de.Kind)
	}
	c.errorsByKind.WithLabelValues(rc.service, rc.operation, strings.ToLower(kind)).Inc()

	if awserr.IsThrottling(err) {
		c.throttling.WithLabelValues(rc.service, rc.operation).Inc()
	}
}

// ActiveRequests reports how many AWS calls are currently in flight
// across every instrumented client, mirroring the Python handler's
// get_stats()["active_requests"].
func (c *Collector) ActiveRequests() int {
	n := 0
	c.active.Range(func(_, _ any) bool { n++; return true })
	return n
}

func normalizeOperation(op string) string {
	var b strings.Builder
	for i, r := range op {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func estimateSize(v any) int {
	if v == nil {
		return 0
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(encoded)
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}
