package vm

import (
	"context"

	"github.com/xraph/lease/id"
)

// Store is the persistence contract for leases.
type Store interface {
	CreateLease(ctx context.Context, l *Lease) error
	GetLease(ctx context.Context, leaseID id.LeaseID) (*Lease, error)
	ListLeases(ctx context.Context, opts ListOpts) ([]*Lease, error)
	UpdateLease(ctx context.Context, l *Lease) error
	DeleteLease(ctx context.Context, leaseID id.LeaseID) error
	CountLeases(ctx context.Context, tenantID string) (int64, error)
}

// ListOpts filters and pages lease listings. Zero values mean "any".
type ListOpts struct {
	TenantID string
	Status   Status
	Limit    int
	Offset   int
}
