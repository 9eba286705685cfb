package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/vm"
)

type recorder struct {
	name string

	created  int
	deleted  int
	changed  int
	failWith error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnLeaseCreated(context.Context, *vm.Lease) error {
	r.created++
	return r.failWith
}

func (r *recorder) OnLeaseDeleted(context.Context, id.LeaseID, string) error {
	r.deleted++
	return nil
}

func (r *recorder) OnStateChanged(context.Context, *vm.Lease, vm.Status, vm.Status) error {
	r.changed++
	return nil
}

// nameOnly implements no hooks at all.
type nameOnly struct{}

func (nameOnly) Name() string { return "inert" }

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&recorder{name: "audit"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&recorder{name: "audit"}); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if got := r.Plugins(); len(got) != 1 || got[0] != "audit" {
		t.Errorf("plugins = %v", got)
	}
}

func TestEmitDispatchesOnlyImplementedHooks(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{name: "audit"}
	if err := r.Register(rec); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(nameOnly{}); err != nil {
		t.Fatalf("register inert: %v", err)
	}

	ctx := context.Background()
	l := &vm.Lease{ID: id.NewLeaseID()}

	r.EmitLeaseCreated(ctx, l)
	r.EmitLeaseCreated(ctx, l)
	r.EmitLeaseDeleted(ctx, l.ID, "acme")
	r.EmitStateChanged(ctx, l, vm.StatusStopped, vm.StatusStarting)
	// Hooks the recorder doesn't implement dispatch to nobody.
	r.EmitShutdown(ctx)
	r.EmitCollectionPass(ctx, &meter.CollectionResult{})

	if rec.created != 2 || rec.deleted != 1 || rec.changed != 1 {
		t.Errorf("counts = %d/%d/%d", rec.created, rec.deleted, rec.changed)
	}
}

func TestHookErrorsDoNotStopDispatch(t *testing.T) {
	r := NewRegistry()
	failing := &recorder{name: "failing", failWith: errors.New("boom")}
	healthy := &recorder{name: "healthy"}
	if err := r.Register(failing); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(healthy); err != nil {
		t.Fatal(err)
	}

	r.EmitLeaseCreated(context.Background(), &vm.Lease{ID: id.NewLeaseID()})

	if failing.created != 1 || healthy.created != 1 {
		t.Errorf("counts = %d/%d, a failing hook must not block the rest",
			failing.created, healthy.created)
	}
}
