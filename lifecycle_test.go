package lease_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/lease"
	"github.com/xraph/lease/driver/fake"
	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/pricing"
	"github.com/xraph/lease/quota"
	"github.com/xraph/lease/store/memory"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

var smallVM = types.Resources{CPUCores: 1, RAMMB: 1024, StorageGB: 10}

func newTestEngine(t *testing.T, q quota.Source, opts ...lease.Option) (*lease.Engine, *memory.Store, *fake.Driver) {
	t.Helper()

	st := memory.New()
	d := fake.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]lease.Option{lease.WithLogger(logger)}, opts...)

	return lease.New(st, d, q, opts...), st, d
}

func unlimited() quota.Source {
	return quota.Static(nil, quota.Quota{})
}

func createLease(t *testing.T, e *lease.Engine, tenant string, r types.Resources) *vm.Lease {
	t.Helper()

	l, err := e.CreateLease(context.Background(), lease.CreateLeaseRequest{
		TenantID:  tenant,
		Name:      "vm-" + tenant,
		Resources: r,
	})
	require.NoError(t, err)
	return l
}

func waitStatus(t *testing.T, e *lease.Engine, leaseID id.LeaseID, want vm.Status) *vm.Lease {
	t.Helper()

	var got *vm.Lease
	require.Eventually(t, func() bool {
		l, err := e.GetLease(context.Background(), leaseID)
		if err != nil {
			return false
		}
		got = l
		return l.Status == want
	}, 2*time.Second, 5*time.Millisecond, "lease never reached %s", want)
	return got
}

func TestCreateLease(t *testing.T) {
	e, _, _ := newTestEngine(t, unlimited())

	l := createLease(t, e, "acme", smallVM)

	assert.Equal(t, vm.StatusStopped, l.Status)
	assert.Equal(t, id.PrefixLease, l.ID.Prefix())
	assert.True(t, l.HourlyRate.Equal(pricing.HourlyRate(e.Tariff(), smallVM)))

	stored, err := e.GetLease(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID.String(), stored.ID.String())
}

func TestCreateLeaseValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, unlimited())
	ctx := context.Background()

	_, err := e.CreateLease(ctx, lease.CreateLeaseRequest{Name: "x", Resources: smallVM})
	assert.Error(t, err, "missing tenant")

	_, err = e.CreateLease(ctx, lease.CreateLeaseRequest{TenantID: "acme", Resources: smallVM})
	assert.Error(t, err, "missing name")

	_, err = e.CreateLease(ctx, lease.CreateLeaseRequest{
		TenantID: "acme", Name: "x",
		Resources: types.Resources{CPUCores: 1, RAMMB: 16, StorageGB: 1},
	})
	var verr lease.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ram_mb", verr.Field)
	assert.ErrorIs(t, err, lease.ErrInvalidInput)
}

func TestQuotaRejection(t *testing.T) {
	q := quota.Static(map[string]quota.Quota{
		"acme": {Resources: types.Resources{CPUCores: 2, RAMMB: 8192, StorageGB: 100}},
	}, quota.Quota{})
	e, _, _ := newTestEngine(t, q)
	ctx := context.Background()

	createLease(t, e, "acme", smallVM)
	createLease(t, e, "acme", smallVM)

	_, err := e.CreateLease(ctx, lease.CreateLeaseRequest{
		TenantID: "acme", Name: "one-too-many", Resources: smallVM,
	})
	require.True(t, lease.IsQuotaError(err))

	var qerr *lease.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	require.Len(t, qerr.Breaches, 1)
	assert.Equal(t, types.DimCPU, qerr.Breaches[0].Dimension)
	assert.EqualValues(t, 2, qerr.Breaches[0].InUse)

	// Rejection must not have created anything.
	leases, err := e.ListLeases(ctx, vm.ListOpts{TenantID: "acme"})
	require.NoError(t, err)
	assert.Len(t, leases, 2)
}

func TestMaxLeasesCeiling(t *testing.T) {
	q := quota.Static(map[string]quota.Quota{
		"acme": {MaxLeases: 1},
	}, quota.Quota{})
	e, _, _ := newTestEngine(t, q)

	createLease(t, e, "acme", smallVM)

	_, err := e.CreateLease(context.Background(), lease.CreateLeaseRequest{
		TenantID: "acme", Name: "second", Resources: smallVM,
	})
	var qerr *lease.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, quota.DimLeaseCount, qerr.Breaches[0].Dimension)
}

func TestConcurrentAdmission(t *testing.T) {
	q := quota.Static(map[string]quota.Quota{
		"acme": {Resources: types.Resources{CPUCores: 4, RAMMB: 1 << 20, StorageGB: 10000}},
	}, quota.Quota{})
	e, _, _ := newTestEngine(t, q)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.CreateLease(ctx, lease.CreateLeaseRequest{
				TenantID: "acme", Name: "racer", Resources: smallVM,
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, created, "admission must never exceed the quota")

	usage, count, err := e.CurrentUsage(ctx, "acme")
	require.NoError(t, err)
	assert.EqualValues(t, 4, usage.CPUCores)
	assert.EqualValues(t, 4, count)
}

func TestDeleteReleasesCapacity(t *testing.T) {
	q := quota.Static(map[string]quota.Quota{
		"acme": {Resources: types.Resources{CPUCores: 1, RAMMB: 2048, StorageGB: 20}},
	}, quota.Quota{})
	e, st, _ := newTestEngine(t, q)
	ctx := context.Background()

	l := createLease(t, e, "acme", smallVM)

	_, err := e.CreateLease(ctx, lease.CreateLeaseRequest{
		TenantID: "acme", Name: "blocked", Resources: smallVM,
	})
	require.True(t, lease.IsQuotaError(err))

	require.NoError(t, e.DeleteLease(ctx, l.ID))
	createLease(t, e, "acme", smallVM)

	// Usage records go with the lease.
	records, err := st.QueryUsage(ctx, l.ID, meter.QueryOpts{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStartLease(t *testing.T) {
	e, _, d := newTestEngine(t, unlimited())
	l := createLease(t, e, "acme", smallVM)

	snapshot, err := e.StartLease(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, vm.StatusStarting, snapshot.Status)

	running := waitStatus(t, e, l.ID, vm.StatusRunning)
	assert.NotEmpty(t, running.ContainerID)
	assert.NotEmpty(t, running.IPAddress)
	require.NotNil(t, running.StartedAt)
	assert.True(t, d.Running(running.ContainerID))
}

func TestStartFailureLandsInError(t *testing.T) {
	e, _, d := newTestEngine(t, unlimited())
	l := createLease(t, e, "acme", smallVM)

	d.FailStart(l.ID.String(), errors.New("no capacity on host"))

	_, err := e.StartLease(context.Background(), l.ID)
	require.NoError(t, err)

	errored := waitStatus(t, e, l.ID, vm.StatusError)
	assert.Contains(t, errored.LastError, "no capacity")

	// Deletion is the way out of the error state.
	require.NoError(t, e.DeleteLease(context.Background(), l.ID))
}

func TestStopLease(t *testing.T) {
	e, _, d := newTestEngine(t, unlimited())
	l := createLease(t, e, "acme", smallVM)

	_, err := e.StartLease(context.Background(), l.ID)
	require.NoError(t, err)
	running := waitStatus(t, e, l.ID, vm.StatusRunning)

	_, err = e.StopLease(context.Background(), l.ID)
	require.NoError(t, err)

	stopped := waitStatus(t, e, l.ID, vm.StatusStopped)
	assert.Empty(t, stopped.ContainerID)
	require.NotNil(t, stopped.StoppedAt)
	assert.False(t, d.Running(running.ContainerID))
}

func TestRestartLease(t *testing.T) {
	e, _, _ := newTestEngine(t, unlimited())
	l := createLease(t, e, "acme", smallVM)

	_, err := e.StartLease(context.Background(), l.ID)
	require.NoError(t, err)
	before := waitStatus(t, e, l.ID, vm.StatusRunning)

	snapshot, err := e.RestartLease(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, vm.StatusRestarting, snapshot.Status)

	after := waitStatus(t, e, l.ID, vm.StatusRunning)
	assert.Equal(t, before.ContainerID, after.ContainerID)
}

func TestTransitionGuards(t *testing.T) {
	e, _, _ := newTestEngine(t, unlimited())
	ctx := context.Background()
	l := createLease(t, e, "acme", smallVM)

	_, err := e.StopLease(ctx, l.ID)
	require.True(t, lease.IsStateError(err), "stopping a stopped lease")

	_, err = e.RestartLease(ctx, l.ID)
	require.True(t, lease.IsStateError(err), "restarting a stopped lease")

	_, err = e.StartLease(ctx, l.ID)
	require.NoError(t, err)
	waitStatus(t, e, l.ID, vm.StatusRunning)

	_, err = e.StartLease(ctx, l.ID)
	require.True(t, lease.IsStateError(err), "starting a running lease")

	err = e.DeleteLease(ctx, l.ID)
	require.True(t, lease.IsStateError(err), "deleting a running lease")
}

func TestResizeLease(t *testing.T) {
	q := quota.Static(map[string]quota.Quota{
		"acme": {Resources: types.Resources{CPUCores: 4, RAMMB: 1 << 20, StorageGB: 10000}},
	}, quota.Quota{})
	e, _, _ := newTestEngine(t, q)
	ctx := context.Background()

	l := createLease(t, e, "acme", types.Resources{CPUCores: 2, RAMMB: 2048, StorageGB: 40})

	grown, err := e.ResizeLease(ctx, l.ID, types.Resources{CPUCores: 4, RAMMB: 2048, StorageGB: 40})
	require.NoError(t, err)
	assert.EqualValues(t, 4, grown.Resources.CPUCores)
	assert.True(t, grown.HourlyRate.GreaterThan(l.HourlyRate), "rate recomputed on grow")

	// Over quota: the resize must not change anything.
	_, err = e.ResizeLease(ctx, l.ID, types.Resources{CPUCores: 5, RAMMB: 2048, StorageGB: 40})
	require.True(t, lease.IsQuotaError(err))
	unchanged, err := e.GetLease(ctx, l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, unchanged.Resources.CPUCores)

	// Downsizing always passes and frees capacity for a new lease.
	_, err = e.ResizeLease(ctx, l.ID, types.Resources{CPUCores: 1, RAMMB: 2048, StorageGB: 40})
	require.NoError(t, err)
	createLease(t, e, "acme", types.Resources{CPUCores: 3, RAMMB: 2048, StorageGB: 40})
}

func TestSuspendResume(t *testing.T) {
	e, _, d := newTestEngine(t, unlimited())
	ctx := context.Background()
	l := createLease(t, e, "acme", smallVM)

	_, err := e.StartLease(ctx, l.ID)
	require.NoError(t, err)
	running := waitStatus(t, e, l.ID, vm.StatusRunning)

	suspended, err := e.SuspendLease(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, vm.StatusSuspended, suspended.Status)
	assert.False(t, d.Running(running.ContainerID), "suspend stops the container")

	_, err = e.StartLease(ctx, l.ID)
	require.True(t, lease.IsStateError(err), "suspended leases cannot start")

	resumed, err := e.ResumeLease(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, vm.StatusStopped, resumed.Status)

	_, err = e.StartLease(ctx, l.ID)
	require.NoError(t, err)
	waitStatus(t, e, l.ID, vm.StatusRunning)
}

func TestStoppedEngineRejectsTransitions(t *testing.T) {
	e, _, _ := newTestEngine(t, unlimited())
	l := createLease(t, e, "acme", smallVM)

	require.NoError(t, e.Stop())

	_, err := e.StartLease(context.Background(), l.ID)
	assert.ErrorIs(t, err, lease.ErrEngineStopped)
}

func TestEstimate(t *testing.T) {
	e, _, _ := newTestEngine(t, unlimited())

	est, err := e.Estimate(smallVM)
	require.NoError(t, err)
	assert.True(t, est.HourlyRate.Equal(pricing.HourlyRate(e.Tariff(), smallVM)))
	assert.True(t, est.DailyCost.Equal(est.HourlyRate.Multiply(24)))
	assert.True(t, est.MonthlyCost.Equal(est.HourlyRate.Multiply(24*30)))

	_, err = e.Estimate(types.Resources{})
	assert.Error(t, err, "estimates enforce the same resource bounds as create")
}
