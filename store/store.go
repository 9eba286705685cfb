// Package store declares the unified storage interface for the lease
// engine. Instead of embedding the per-entity sub-interfaces, all methods
// are declared explicitly to avoid naming conflicts.
package store

import (
	"context"
	"time"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/vm"
)

// Store is the persistence capability consumed by the engine. Drivers
// must support the two hot queries efficiently: usage records for a lease
// within a time range, and leases filtered by tenant and status.
type Store interface {
	// Lease methods
	CreateLease(ctx context.Context, l *vm.Lease) error
	GetLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error)
	ListLeases(ctx context.Context, opts vm.ListOpts) ([]*vm.Lease, error)
	UpdateLease(ctx context.Context, l *vm.Lease) error
	DeleteLease(ctx context.Context, leaseID id.LeaseID) error
	CountLeases(ctx context.Context, tenantID string) (int64, error)

	// Usage record methods (append-only)
	InsertUsageRecords(ctx context.Context, records []*meter.UsageRecord) error
	QueryUsage(ctx context.Context, leaseID id.LeaseID, opts meter.QueryOpts) ([]*meter.UsageRecord, error)
	DeleteUsage(ctx context.Context, leaseID id.LeaseID) (int64, error)
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
