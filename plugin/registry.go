package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/quota"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// Registry manages registered plugins and dispatches events. Hook lists
// are built explicitly at Register time, never during their own
// construction, so dispatch is a plain slice walk.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	onInit           []OnInit
	onShutdown       []OnShutdown
	onLeaseCreated   []OnLeaseCreated
	onLeaseResized   []OnLeaseResized
	onLeaseDeleted   []OnLeaseDeleted
	onStateChanged   []OnStateChanged
	onQuotaExceeded  []OnQuotaExceeded
	onUsageCollected []OnUsageCollected
	onCollectionPass []OnCollectionPass
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnLeaseCreated); ok {
		r.onLeaseCreated = append(r.onLeaseCreated, v)
	}
	if v, ok := p.(OnLeaseResized); ok {
		r.onLeaseResized = append(r.onLeaseResized, v)
	}
	if v, ok := p.(OnLeaseDeleted); ok {
		r.onLeaseDeleted = append(r.onLeaseDeleted, v)
	}
	if v, ok := p.(OnStateChanged); ok {
		r.onStateChanged = append(r.onStateChanged, v)
	}
	if v, ok := p.(OnQuotaExceeded); ok {
		r.onQuotaExceeded = append(r.onQuotaExceeded, v)
	}
	if v, ok := p.(OnUsageCollected); ok {
		r.onUsageCollected = append(r.onUsageCollected, v)
	}
	if v, ok := p.(OnCollectionPass); ok {
		r.onCollectionPass = append(r.onCollectionPass, v)
	}

	return nil
}

// Plugins returns the names of all registered plugins.
func (r *Registry) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}

func (r *Registry) hookErr(hook, name string, err error) {
	if err != nil {
		r.logger.Error("plugin hook failed", "hook", hook, "plugin", name, "error", err)
	}
}

// EmitInit dispatches the init hook.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onInit {
		r.hookErr("init", p.Name(), p.OnInit(ctx, engine))
	}
}

// EmitShutdown dispatches the shutdown hook.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onShutdown {
		r.hookErr("shutdown", p.Name(), p.OnShutdown(ctx))
	}
}

// EmitLeaseCreated dispatches the lease-created hook.
func (r *Registry) EmitLeaseCreated(ctx context.Context, l *vm.Lease) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onLeaseCreated {
		r.hookErr("lease_created", p.Name(), p.OnLeaseCreated(ctx, l))
	}
}

// EmitLeaseResized dispatches the lease-resized hook.
func (r *Registry) EmitLeaseResized(ctx context.Context, l *vm.Lease, old types.Resources) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onLeaseResized {
		r.hookErr("lease_resized", p.Name(), p.OnLeaseResized(ctx, l, old))
	}
}

// EmitLeaseDeleted dispatches the lease-deleted hook.
func (r *Registry) EmitLeaseDeleted(ctx context.Context, leaseID id.LeaseID, tenantID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onLeaseDeleted {
		r.hookErr("lease_deleted", p.Name(), p.OnLeaseDeleted(ctx, leaseID, tenantID))
	}
}

// EmitStateChanged dispatches the state-changed hook.
func (r *Registry) EmitStateChanged(ctx context.Context, l *vm.Lease, from, to vm.Status) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onStateChanged {
		r.hookErr("state_changed", p.Name(), p.OnStateChanged(ctx, l, from, to))
	}
}

// EmitQuotaExceeded dispatches the quota-exceeded hook.
func (r *Registry) EmitQuotaExceeded(ctx context.Context, tenantID string, err *quota.ExceededError) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onQuotaExceeded {
		r.hookErr("quota_exceeded", p.Name(), p.OnQuotaExceeded(ctx, tenantID, err))
	}
}

// EmitUsageCollected dispatches the usage-collected hook.
func (r *Registry) EmitUsageCollected(ctx context.Context, records []*meter.UsageRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onUsageCollected {
		r.hookErr("usage_collected", p.Name(), p.OnUsageCollected(ctx, records))
	}
}

// EmitCollectionPass dispatches the collection-pass hook.
func (r *Registry) EmitCollectionPass(ctx context.Context, result *meter.CollectionResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onCollectionPass {
		r.hookErr("collection_pass", p.Name(), p.OnCollectionPass(ctx, result))
	}
}
