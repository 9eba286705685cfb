package lease

import (
	"context"
	"fmt"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/pricing"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// CreateLeaseRequest carries everything needed to admit a new lease.
type CreateLeaseRequest struct {
	TenantID  string
	Name      string
	Resources types.Resources
	Metadata  map[string]string
}

// CreateLease validates the declared resources, reserves them against the
// tenant's quota, and persists the lease in the stopped state with its
// hourly rate derived from the engine tariff. On a quota rejection
// nothing is created.
func (e *Engine) CreateLease(ctx context.Context, req CreateLeaseRequest) (*vm.Lease, error) {
	if req.TenantID == "" {
		return nil, ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if req.Name == "" {
		return nil, ValidationError{Field: "name", Message: "is required"}
	}
	if err := e.validateResources(req.Resources); err != nil {
		return nil, err
	}

	l := &vm.Lease{
		Entity:     types.NewEntity(),
		ID:         id.NewLeaseID(),
		TenantID:   req.TenantID,
		Name:       req.Name,
		Resources:  req.Resources,
		Status:     vm.StatusStopped,
		HourlyRate: pricing.HourlyRate(e.tariff, req.Resources),
		Metadata:   req.Metadata,
	}

	err := e.reserve(ctx, req.TenantID, req.Resources, true, func(ctx context.Context) error {
		return e.store.CreateLease(ctx, l)
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitLeaseCreated(ctx, l)
	e.logger.Info("lease created",
		"lease", l.ID, "tenant", l.TenantID, "resources", l.Resources.String(),
		"hourly_rate", l.HourlyRate,
	)

	return l.Clone(), nil
}

// GetLease retrieves a lease by ID.
func (e *Engine) GetLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	return e.store.GetLease(ctx, leaseID)
}

// ListLeases lists leases with optional tenant and status filters.
func (e *Engine) ListLeases(ctx context.Context, opts vm.ListOpts) ([]*vm.Lease, error) {
	return e.store.ListLeases(ctx, opts)
}

// ResizeLease changes a lease's declared resources. Only the delta
// between the old and new allocation is reserved, so downsizes never
// fail admission. The new resources and the recomputed hourly rate
// persist as one update, or not at all. Rejected while the lease is in
// an in-flight state.
func (e *Engine) ResizeLease(ctx context.Context, leaseID id.LeaseID, newResources types.Resources) (*vm.Lease, error) {
	if err := e.validateResources(newResources); err != nil {
		return nil, err
	}

	key := leaseID.String()
	e.leaseLocks.Lock(key)
	defer e.leaseLocks.Unlock(key)

	l, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !vm.CanApply(l.Status, vm.EventResize) {
		return nil, &vm.TransitionError{LeaseID: leaseID, Current: l.Status, Event: vm.EventResize}
	}

	old := l.Resources
	delta := newResources.Sub(old)

	err = e.reserve(ctx, l.TenantID, delta, false, func(ctx context.Context) error {
		l.Resources = newResources
		l.HourlyRate = pricing.HourlyRate(e.tariff, newResources)
		l.Touch()
		return e.store.UpdateLease(ctx, l)
	})
	if err != nil {
		return nil, err
	}

	if _, downsized := delta.ClampNonNegative(); downsized {
		e.release(ctx, l.TenantID, delta)
	}

	e.plugins.EmitLeaseResized(ctx, l, old)
	e.logger.Info("lease resized",
		"lease", l.ID, "tenant", l.TenantID,
		"old", old.String(), "new", newResources.String(),
	)

	return l.Clone(), nil
}

// DeleteLease removes a stopped or errored lease together with its usage
// records and releases its declared resources.
func (e *Engine) DeleteLease(ctx context.Context, leaseID id.LeaseID) error {
	key := leaseID.String()
	e.leaseLocks.Lock(key)
	defer e.leaseLocks.Unlock(key)

	l, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		return err
	}
	if !vm.CanApply(l.Status, vm.EventDelete) {
		return &vm.TransitionError{LeaseID: leaseID, Current: l.Status, Event: vm.EventDelete}
	}

	e.tenantLocks.Lock(l.TenantID)
	defer e.tenantLocks.Unlock(l.TenantID)

	if _, err := e.store.DeleteUsage(ctx, leaseID); err != nil {
		return fmt.Errorf("lease: delete usage records for %s: %w", leaseID, err)
	}
	if err := e.store.DeleteLease(ctx, leaseID); err != nil {
		return err
	}

	e.release(ctx, l.TenantID, l.Resources)
	e.plugins.EmitLeaseDeleted(ctx, leaseID, l.TenantID)
	e.logger.Info("lease deleted", "lease", leaseID, "tenant", l.TenantID)

	return nil
}

// StartLease flips a stopped lease to the starting state and dispatches
// the container driver asynchronously. The returned lease snapshot shows
// the in-flight state; the driver's completion resolves it to running or
// error out of band, within the driver timeout.
func (e *Engine) StartLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	snapshot, err := e.beginTransition(ctx, leaseID, vm.EventStart)
	if err != nil {
		return nil, err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		dctx, cancel := context.WithTimeout(context.Background(), e.driverTimeout)
		defer cancel()

		res, callErr := e.driver.Start(dctx, snapshot)
		e.resolveTransition(leaseID, vm.StatusStarting, callErr, func(l *vm.Lease) {
			now := e.now()
			l.Status = vm.StatusRunning
			l.ContainerID = res.ContainerID
			if l.IPAddress == "" {
				l.IPAddress = res.IPAddress
			}
			l.StartedAt = &now
		})
	}()

	return snapshot, nil
}

// StopLease flips a running lease to the stopping state and stops its
// container asynchronously.
func (e *Engine) StopLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	snapshot, err := e.beginTransition(ctx, leaseID, vm.EventStop)
	if err != nil {
		return nil, err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		dctx, cancel := context.WithTimeout(context.Background(), e.driverTimeout)
		defer cancel()

		callErr := e.driver.Stop(dctx, snapshot.ContainerID)
		e.resolveTransition(leaseID, vm.StatusStopping, callErr, func(l *vm.Lease) {
			now := e.now()
			l.Status = vm.StatusStopped
			l.ContainerID = ""
			l.StoppedAt = &now
		})
	}()

	return snapshot, nil
}

// RestartLease restarts a running lease's container in place.
func (e *Engine) RestartLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	snapshot, err := e.beginTransition(ctx, leaseID, vm.EventRestart)
	if err != nil {
		return nil, err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		dctx, cancel := context.WithTimeout(context.Background(), e.driverTimeout)
		defer cancel()

		callErr := e.driver.Restart(dctx, snapshot.ContainerID)
		e.resolveTransition(leaseID, vm.StatusRestarting, callErr, func(l *vm.Lease) {
			now := e.now()
			l.Status = vm.StatusRunning
			l.StartedAt = &now
		})
	}()

	return snapshot, nil
}

// SuspendLease puts a lease on administrative hold. A running container
// is stopped best-effort first; the hold applies even if that stop
// fails. Suspension is synchronous, there is no in-flight state.
func (e *Engine) SuspendLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	key := leaseID.String()
	e.leaseLocks.Lock(key)
	defer e.leaseLocks.Unlock(key)

	l, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !vm.CanApply(l.Status, vm.EventSuspend) {
		return nil, &vm.TransitionError{LeaseID: leaseID, Current: l.Status, Event: vm.EventSuspend}
	}

	from := l.Status
	if l.Status == vm.StatusRunning && l.ContainerID != "" {
		dctx, cancel := context.WithTimeout(ctx, e.driverTimeout)
		err := e.driver.Stop(dctx, l.ContainerID)
		cancel()
		if err != nil {
			e.logger.Warn("suspend: container stop failed", "lease", leaseID, "error", err)
		}
		now := e.now()
		l.StoppedAt = &now
		l.ContainerID = ""
	}

	l.Status = vm.StatusSuspended
	l.Touch()
	if err := e.store.UpdateLease(ctx, l); err != nil {
		return nil, err
	}

	e.plugins.EmitStateChanged(ctx, l, from, vm.StatusSuspended)
	e.logger.Info("lease suspended", "lease", leaseID, "from", from)

	return l.Clone(), nil
}

// ResumeLease lifts an administrative hold, returning the lease to the
// stopped state.
func (e *Engine) ResumeLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	key := leaseID.String()
	e.leaseLocks.Lock(key)
	defer e.leaseLocks.Unlock(key)

	l, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !vm.CanApply(l.Status, vm.EventResume) {
		return nil, &vm.TransitionError{LeaseID: leaseID, Current: l.Status, Event: vm.EventResume}
	}

	l.Status = vm.StatusStopped
	l.Touch()
	if err := e.store.UpdateLease(ctx, l); err != nil {
		return nil, err
	}

	e.plugins.EmitStateChanged(ctx, l, vm.StatusSuspended, vm.StatusStopped)
	e.logger.Info("lease resumed", "lease", leaseID)

	return l.Clone(), nil
}

// beginTransition performs the synchronous half of an asynchronous
// lifecycle operation under the lease's lock: guard check, flip to the
// in-flight state, persist. If the persist fails the lease keeps its
// prior stable state and no driver work is dispatched. The returned
// clone is the snapshot the driver goroutine works from.
func (e *Engine) beginTransition(ctx context.Context, leaseID id.LeaseID, ev vm.Event) (*vm.Lease, error) {
	if e.stopping() {
		return nil, ErrEngineStopped
	}

	key := leaseID.String()
	e.leaseLocks.Lock(key)
	defer e.leaseLocks.Unlock(key)

	l, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !vm.CanApply(l.Status, ev) {
		return nil, &vm.TransitionError{LeaseID: leaseID, Current: l.Status, Event: ev}
	}

	from := l.Status
	l.Status = vm.InFlightFor(ev)
	l.LastError = ""
	l.Touch()
	if err := e.store.UpdateLease(ctx, l); err != nil {
		return nil, err
	}

	e.plugins.EmitStateChanged(ctx, l, from, l.Status)

	return l.Clone(), nil
}

// resolveTransition completes an asynchronous transition: on driver
// success it applies onSuccess, on driver failure (including timeout) it
// lands the lease in the error state with the reason recorded. Either
// way the in-flight state never outlives the bounded driver call. The
// original caller has already returned; failures are recovered here, not
// re-thrown.
func (e *Engine) resolveTransition(leaseID id.LeaseID, inflight vm.Status, callErr error, onSuccess func(*vm.Lease)) {
	ctx, cancel := context.WithTimeout(context.Background(), e.driverTimeout)
	defer cancel()

	key := leaseID.String()
	e.leaseLocks.Lock(key)
	defer e.leaseLocks.Unlock(key)

	l, err := e.store.GetLease(ctx, leaseID)
	if err != nil {
		e.logger.Error("resolve: lease vanished mid-transition",
			"lease", leaseID, "inflight", inflight, "error", err)
		return
	}
	if l.Status != inflight {
		e.logger.Warn("resolve: lease state changed during driver call",
			"lease", leaseID, "expected", inflight, "actual", l.Status)
		return
	}

	from := l.Status
	if callErr != nil {
		l.Status = vm.StatusError
		l.LastError = callErr.Error()
		e.logger.Warn("driver call failed, lease moved to error",
			"lease", leaseID, "inflight", inflight, "error", callErr)
	} else {
		onSuccess(l)
	}

	l.Touch()
	if err := e.store.UpdateLease(ctx, l); err != nil {
		e.logger.Error("resolve: failed to persist transition result",
			"lease", leaseID, "status", l.Status, "error", err)
		return
	}

	e.plugins.EmitStateChanged(ctx, l, from, l.Status)
}

// validateResources enforces the static creation-time bounds.
func (e *Engine) validateResources(r types.Resources) error {
	for _, d := range types.Dimensions {
		v := r.Get(d)
		if v < e.limits.Min.Get(d) {
			return ValidationError{
				Field:   string(d),
				Message: fmt.Sprintf("%d is below the minimum %d", v, e.limits.Min.Get(d)),
			}
		}
		if maxV := e.limits.Max.Get(d); maxV > 0 && v > maxV {
			return ValidationError{
				Field:   string(d),
				Message: fmt.Sprintf("%d exceeds the maximum %d", v, maxV),
			}
		}
	}
	return nil
}
