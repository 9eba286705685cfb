// Package observability provides a metrics plugin for the lease engine.
// The extension observes lifecycle hooks and records counters and
// histograms through a pluggable MetricFactory, so the engine core never
// depends on a metrics backend directly.
package observability

import (
	"context"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/quota"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc(labels ...string)
	Add(v float64, labels ...string)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(v float64, labels ...string)
	Add(v float64, labels ...string)
}

// Histogram records observations into buckets.
type Histogram interface {
	Observe(v float64, labels ...string)
}

// MetricFactory creates metrics. Implementations decide the backend;
// labels passed to the metric methods match labelNames positionally.
type MetricFactory interface {
	Counter(name, help string, labelNames ...string) Counter
	Gauge(name, help string, labelNames ...string) Gauge
	Histogram(name, help string, buckets []float64, labelNames ...string) Histogram
}

// MetricsExtension records engine activity as metrics.
type MetricsExtension struct {
	leasesCreated    Counter
	leasesDeleted    Counter
	stateTransitions Counter
	quotaRejections  Counter
	recordsWritten   Counter
	collectionFails  Counter
	collectionSecs   Histogram
	costCollected    Counter
}

var _ interface {
	OnLeaseCreated(ctx context.Context, l *vm.Lease) error
	OnLeaseDeleted(ctx context.Context, leaseID id.LeaseID, tenantID string) error
	OnStateChanged(ctx context.Context, l *vm.Lease, from, to vm.Status) error
	OnQuotaExceeded(ctx context.Context, tenantID string, err *quota.ExceededError) error
	OnUsageCollected(ctx context.Context, records []*meter.UsageRecord) error
	OnCollectionPass(ctx context.Context, result *meter.CollectionResult) error
} = (*MetricsExtension)(nil)

// NewMetricsExtension builds the extension, registering its metrics with
// the factory up front.
func NewMetricsExtension(f MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		leasesCreated: f.Counter("lease_leases_created_total",
			"Leases admitted and created.", "tenant"),
		leasesDeleted: f.Counter("lease_leases_deleted_total",
			"Leases deleted.", "tenant"),
		stateTransitions: f.Counter("lease_state_transitions_total",
			"Lifecycle state transitions.", "from", "to"),
		quotaRejections: f.Counter("lease_quota_rejections_total",
			"Admission requests rejected by quota.", "tenant"),
		recordsWritten: f.Counter("lease_usage_records_total",
			"Usage records written by the collector.", "tenant"),
		collectionFails: f.Counter("lease_collection_failures_total",
			"Per-lease failures during collection passes."),
		collectionSecs: f.Histogram("lease_collection_seconds",
			"Duration of collection passes.",
			[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}),
		costCollected: f.Counter("lease_cost_collected_total",
			"Cost accrued by usage records, in major currency units.", "tenant"),
	}
}

func (m *MetricsExtension) Name() string { return "metrics" }

func (m *MetricsExtension) OnLeaseCreated(_ context.Context, l *vm.Lease) error {
	m.leasesCreated.Inc(l.TenantID)
	return nil
}

func (m *MetricsExtension) OnLeaseDeleted(_ context.Context, _ id.LeaseID, tenantID string) error {
	m.leasesDeleted.Inc(tenantID)
	return nil
}

func (m *MetricsExtension) OnStateChanged(_ context.Context, _ *vm.Lease, from, to vm.Status) error {
	m.stateTransitions.Inc(string(from), string(to))
	return nil
}

func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, tenantID string, _ *quota.ExceededError) error {
	m.quotaRejections.Inc(tenantID)
	return nil
}

func (m *MetricsExtension) OnUsageCollected(_ context.Context, records []*meter.UsageRecord) error {
	perTenant := make(map[string]types.Cost)
	for _, r := range records {
		m.recordsWritten.Inc(r.TenantID)
		if c, ok := perTenant[r.TenantID]; ok {
			perTenant[r.TenantID] = c.Add(r.Cost)
		} else {
			perTenant[r.TenantID] = r.Cost
		}
	}
	for tenant, c := range perTenant {
		m.costCollected.Add(c.Float64(), tenant)
	}
	return nil
}

func (m *MetricsExtension) OnCollectionPass(_ context.Context, result *meter.CollectionResult) error {
	m.collectionSecs.Observe(result.Elapsed.Seconds())
	if result.Failed > 0 {
		m.collectionFails.Add(float64(result.Failed))
	}
	return nil
}

// nopFactory backs NewNopMetricsExtension.
type nopFactory struct{}

type nopMetric struct{}

func (nopMetric) Inc(...string)              {}
func (nopMetric) Add(float64, ...string)     {}
func (nopMetric) Set(float64, ...string)     {}
func (nopMetric) Observe(float64, ...string) {}

func (nopFactory) Counter(string, string, ...string) Counter { return nopMetric{} }
func (nopFactory) Gauge(string, string, ...string) Gauge     { return nopMetric{} }
func (nopFactory) Histogram(string, string, []float64, ...string) Histogram {
	return nopMetric{}
}

// NopFactory returns a MetricFactory that discards everything.
func NopFactory() MetricFactory { return nopFactory{} }
