package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/lease"
	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

func newLease(tenant, name string) *vm.Lease {
	return &vm.Lease{
		Entity:    types.NewEntity(),
		ID:        id.NewLeaseID(),
		TenantID:  tenant,
		Name:      name,
		Resources: types.Resources{CPUCores: 1, RAMMB: 1024, StorageGB: 10},
		Status:    vm.StatusStopped,
	}
}

func TestLeaseCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	l := newLease("acme", "web-1")
	if err := s.CreateLease(ctx, l); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateLease(ctx, l); !errors.Is(err, lease.ErrAlreadyExists) {
		t.Errorf("duplicate create = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetLease(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "web-1" {
		t.Errorf("name = %q", got.Name)
	}

	// Mutating the returned copy must not leak into the store.
	got.Name = "mutated"
	again, _ := s.GetLease(ctx, l.ID)
	if again.Name != "web-1" {
		t.Error("store shares state with callers")
	}

	got.Name = "web-2"
	if err := s.UpdateLease(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := s.GetLease(ctx, l.ID)
	if updated.Name != "web-2" {
		t.Errorf("updated name = %q", updated.Name)
	}

	if err := s.DeleteLease(ctx, l.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetLease(ctx, l.ID); !errors.Is(err, lease.ErrLeaseNotFound) {
		t.Errorf("get deleted = %v, want ErrLeaseNotFound", err)
	}
	if err := s.DeleteLease(ctx, l.ID); !errors.Is(err, lease.ErrLeaseNotFound) {
		t.Errorf("double delete = %v, want ErrLeaseNotFound", err)
	}
}

func TestUpdateMissingLease(t *testing.T) {
	s := New()
	err := s.UpdateLease(context.Background(), newLease("acme", "ghost"))
	if !errors.Is(err, lease.ErrLeaseNotFound) {
		t.Errorf("err = %v, want ErrLeaseNotFound", err)
	}
}

func TestListLeasesFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := newLease("acme", "a")
	b := newLease("acme", "b")
	b.Status = vm.StatusRunning
	c := newLease("globex", "c")
	for _, l := range []*vm.Lease{a, b, c} {
		if err := s.CreateLease(ctx, l); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, _ := s.ListLeases(ctx, vm.ListOpts{})
	if len(all) != 3 {
		t.Errorf("all = %d leases", len(all))
	}

	acme, _ := s.ListLeases(ctx, vm.ListOpts{TenantID: "acme"})
	if len(acme) != 2 {
		t.Errorf("acme = %d leases", len(acme))
	}

	running, _ := s.ListLeases(ctx, vm.ListOpts{Status: vm.StatusRunning})
	if len(running) != 1 || running[0].Name != "b" {
		t.Errorf("running = %+v", running)
	}

	paged, _ := s.ListLeases(ctx, vm.ListOpts{Limit: 2, Offset: 2})
	if len(paged) != 1 {
		t.Errorf("paged = %d leases", len(paged))
	}
}

func record(leaseID id.LeaseID, ts time.Time, amount int64) *meter.UsageRecord {
	return &meter.UsageRecord{
		ID:        id.NewUsageRecordID(),
		LeaseID:   leaseID,
		TenantID:  "acme",
		Cost:      types.Cost{Amount: amount, Currency: "usd"},
		Timestamp: ts,
	}
}

func TestUsageQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	leaseID := id.NewLeaseID()
	otherID := id.NewLeaseID()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []*meter.UsageRecord{
		record(leaseID, base.Add(2*time.Hour), 3),
		record(leaseID, base, 1),
		record(leaseID, base.Add(time.Hour), 2),
		record(otherID, base, 100),
	}
	if err := s.InsertUsageRecords(ctx, records); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.QueryUsage(ctx, leaseID, meter.QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatal("records not ordered by timestamp")
		}
	}

	ranged, _ := s.QueryUsage(ctx, leaseID, meter.QueryOpts{
		Start: base.Add(30 * time.Minute),
		End:   base.Add(90 * time.Minute),
	})
	if len(ranged) != 1 || ranged[0].Cost.Amount != 2 {
		t.Errorf("ranged = %+v", ranged)
	}

	paged, _ := s.QueryUsage(ctx, leaseID, meter.QueryOpts{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].Cost.Amount != 2 {
		t.Errorf("paged = %+v", paged)
	}
}

func TestDeleteAndPurgeUsage(t *testing.T) {
	ctx := context.Background()
	s := New()

	leaseID := id.NewLeaseID()
	otherID := id.NewLeaseID()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_ = s.InsertUsageRecords(ctx, []*meter.UsageRecord{
		record(leaseID, base, 1),
		record(leaseID, base.Add(time.Hour), 2),
		record(otherID, base, 3),
		record(otherID, base.AddDate(0, 0, 7), 4),
	})

	removed, err := s.DeleteUsage(ctx, leaseID)
	if err != nil {
		t.Fatalf("delete usage: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	purged, err := s.PurgeUsage(ctx, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	left, _ := s.QueryUsage(ctx, otherID, meter.QueryOpts{})
	if len(left) != 1 || left[0].Cost.Amount != 4 {
		t.Errorf("left = %+v", left)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, lease.ErrStoreClosed) {
		t.Errorf("ping after close = %v, want ErrStoreClosed", err)
	}
	if err := s.CreateLease(ctx, newLease("acme", "late")); !errors.Is(err, lease.ErrStoreClosed) {
		t.Errorf("create after close = %v, want ErrStoreClosed", err)
	}
}
