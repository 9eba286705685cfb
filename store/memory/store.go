// Package memory provides an in-memory Store, used in tests and for
// running the engine without external infrastructure.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/lease"
	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/store"
	"github.com/xraph/lease/vm"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps everything in maps guarded by one RWMutex. Leases are
// cloned on the way in and out so callers never share mutable state with
// the store.
type Store struct {
	mu sync.RWMutex

	leases map[string]*vm.Lease
	usage  []*meter.UsageRecord

	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		leases: make(map[string]*vm.Lease),
	}
}

func (s *Store) CreateLease(_ context.Context, l *vm.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lease.ErrStoreClosed
	}
	if _, exists := s.leases[l.ID.String()]; exists {
		return lease.ErrAlreadyExists
	}
	s.leases[l.ID.String()] = l.Clone()
	return nil
}

func (s *Store) GetLease(_ context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.leases[leaseID.String()]; ok {
		return l.Clone(), nil
	}
	return nil, lease.ErrLeaseNotFound
}

func (s *Store) ListLeases(_ context.Context, opts vm.ListOpts) ([]*vm.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*vm.Lease, 0)
	for _, l := range s.leases {
		if opts.TenantID != "" && l.TenantID != opts.TenantID {
			continue
		}
		if opts.Status != "" && l.Status != opts.Status {
			continue
		}
		result = append(result, l.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	start := min(opts.Offset, len(result))
	end := len(result)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	return result[start:end], nil
}

func (s *Store) UpdateLease(_ context.Context, l *vm.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leases[l.ID.String()]; !exists {
		return lease.ErrLeaseNotFound
	}
	s.leases[l.ID.String()] = l.Clone()
	return nil
}

func (s *Store) DeleteLease(_ context.Context, leaseID id.LeaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leases[leaseID.String()]; !exists {
		return lease.ErrLeaseNotFound
	}
	delete(s.leases, leaseID.String())
	return nil
}

func (s *Store) CountLeases(_ context.Context, tenantID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, l := range s.leases {
		if l.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func (s *Store) InsertUsageRecords(_ context.Context, records []*meter.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lease.ErrStoreClosed
	}
	for _, r := range records {
		cp := *r
		s.usage = append(s.usage, &cp)
	}
	return nil
}

func (s *Store) QueryUsage(_ context.Context, leaseID id.LeaseID, opts meter.QueryOpts) ([]*meter.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*meter.UsageRecord, 0)
	for _, r := range s.usage {
		if r.LeaseID.String() != leaseID.String() {
			continue
		}
		if !opts.Start.IsZero() && r.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && r.Timestamp.After(opts.End) {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	start := min(opts.Offset, len(result))
	end := len(result)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	return result[start:end], nil
}

func (s *Store) DeleteUsage(_ context.Context, leaseID id.LeaseID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.usage[:0]
	var removed int64
	for _, r := range s.usage {
		if r.LeaseID.String() == leaseID.String() {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.usage = kept
	return removed, nil
}

func (s *Store) PurgeUsage(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.usage[:0]
	var removed int64
	for _, r := range s.usage {
		if r.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.usage = kept
	return removed, nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return lease.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
