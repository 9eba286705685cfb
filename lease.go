package lease

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/lease/driver"
	"github.com/xraph/lease/plugin"
	"github.com/xraph/lease/pricing"
	"github.com/xraph/lease/quota"
	"github.com/xraph/lease/store"
	"github.com/xraph/lease/types"
)

// Default engine tunables.
const (
	DefaultCollectionInterval = 5 * time.Minute
	DefaultDriverTimeout      = 30 * time.Second
)

// Limits are the static creation-time bounds on declared resources.
// A zero max component disables the ceiling for that dimension.
type Limits struct {
	Min types.Resources `json:"min" yaml:"min"`
	Max types.Resources `json:"max" yaml:"max"`
}

// DefaultLimits requires at least one core and 512 MB of RAM, and caps
// allocations at a generous single-host ceiling.
var DefaultLimits = Limits{
	Min: types.Resources{CPUCores: 1, RAMMB: 512, StorageGB: 1, BandwidthGB: 0},
	Max: types.Resources{CPUCores: 128, RAMMB: 1 << 20, StorageGB: 10240, BandwidthGB: 102400},
}

// Engine is the compute-lease core: it admits leases against tenant
// quotas, owns the lifecycle state machine, meters running leases on a
// timer, and aggregates usage records into billable statistics.
type Engine struct {
	store   store.Store
	driver  driver.Driver
	quotas  quota.Source
	plugins *plugin.Registry
	logger  *slog.Logger

	tariff pricing.Tariff
	limits Limits

	collectInterval time.Duration
	driverTimeout   time.Duration

	// leaseLocks serializes same-lease operations for the synchronous
	// portion of each transition; tenantLocks makes "read usage, compare
	// to quota, persist" one atomic unit per tenant.
	leaseLocks  *keyedMutex
	tenantLocks *keyedMutex

	now func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Engine. The store, container driver, and quota source
// are the three external capabilities the core consumes but does not
// implement.
func New(s store.Store, d driver.Driver, q quota.Source, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		driver:          d,
		quotas:          q,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		tariff:          pricing.DefaultTariff,
		limits:          DefaultLimits,
		collectInterval: DefaultCollectionInterval,
		driverTimeout:   DefaultDriverTimeout,
		leaseLocks:      newKeyedMutex(),
		tenantLocks:     newKeyedMutex(),
		now:             func() time.Time { return time.Now().UTC() },
		stopChan:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithTariff sets the rate table used for hourly rates and usage costing.
func WithTariff(t pricing.Tariff) Option {
	return func(e *Engine) {
		e.tariff = t
	}
}

// WithLimits sets the creation-time resource bounds.
func WithLimits(l Limits) Option {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithCollectionInterval sets the usage meter period. The interval is
// also the duration every usage record covers.
func WithCollectionInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.collectInterval = d
		}
	}
}

// WithDriverTimeout bounds every container driver call. On timeout the
// pending transition resolves to the error state like any other driver
// failure; there is no unbounded wait state.
func WithDriverTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.driverTimeout = d
		}
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock overrides the engine clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Tariff returns the engine's active rate table.
func (e *Engine) Tariff() pricing.Tariff { return e.tariff }

// Start migrates the store, initializes plugins, and begins the periodic
// usage meter.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.tariff.Validate(); err != nil {
		return err
	}
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.collectWorker()

	e.logger.Info("lease engine started",
		"collection_interval", e.collectInterval,
		"driver_timeout", e.driverTimeout,
		"currency", e.tariff.Currency,
	)

	return nil
}

// Stop shuts down the engine. It waits for in-flight transitions and any
// running collection pass to resolve, so no lease is left stuck in a
// transitional state and no usage record is half-written.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

func (e *Engine) stopping() bool {
	select {
	case <-e.stopChan:
		return true
	default:
		return false
	}
}
