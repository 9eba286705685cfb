// Package plugin provides an extensible hook system for the lease engine.
// Plugins can observe lifecycle events to extend functionality: metrics,
// audit trails, notifications.
package plugin

import (
	"context"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/quota"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// OnInit is called when the engine starts. The engine is passed as an
// opaque value to avoid an import cycle with the root package.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnLeaseCreated is called after a lease is admitted and persisted.
type OnLeaseCreated interface {
	Plugin
	OnLeaseCreated(ctx context.Context, l *vm.Lease) error
}

// OnLeaseResized is called after a resize commits; old holds the
// previous declared resources.
type OnLeaseResized interface {
	Plugin
	OnLeaseResized(ctx context.Context, l *vm.Lease, old types.Resources) error
}

// OnLeaseDeleted is called after a lease and its usage records are
// removed.
type OnLeaseDeleted interface {
	Plugin
	OnLeaseDeleted(ctx context.Context, leaseID id.LeaseID, tenantID string) error
}

// OnStateChanged is called on every lifecycle state flip, including
// transitions into and out of the in-flight states.
type OnStateChanged interface {
	Plugin
	OnStateChanged(ctx context.Context, l *vm.Lease, from, to vm.Status) error
}

// OnQuotaExceeded is called when an admission decision rejects a request.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, tenantID string, err *quota.ExceededError) error
}

// OnUsageCollected is called with the records written by one collection
// pass.
type OnUsageCollected interface {
	Plugin
	OnUsageCollected(ctx context.Context, records []*meter.UsageRecord) error
}

// OnCollectionPass is called after every collection pass with its
// summary, successful or not.
type OnCollectionPass interface {
	Plugin
	OnCollectionPass(ctx context.Context, result *meter.CollectionResult) error
}
