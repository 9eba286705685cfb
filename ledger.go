package lease

import (
	"context"
	"fmt"

	"github.com/xraph/lease/quota"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// The resource ledger decides whether a proposed resource delta fits a
// tenant's quota. Current usage is never an independently mutable
// counter: it is always derived from the set of live lease records, so a
// counter and the data it counts cannot drift apart.

// CurrentUsage returns the sum of declared resources across the tenant's
// non-deleted leases, plus the lease count.
func (e *Engine) CurrentUsage(ctx context.Context, tenantID string) (types.Resources, int64, error) {
	leases, err := e.store.ListLeases(ctx, vm.ListOpts{TenantID: tenantID})
	if err != nil {
		return types.Resources{}, 0, fmt.Errorf("lease: derive usage for tenant %s: %w", tenantID, err)
	}

	var usage types.Resources
	for _, l := range leases {
		usage = usage.Add(l.Resources)
	}
	return usage, int64(len(leases)), nil
}

// reserve evaluates "read current usage, compare to quota, commit" as one
// atomic unit under the tenant's admission lock. commit runs only if the
// delta fits; on rejection nothing is persisted and a QuotaExceededError
// names every breached dimension. Negative delta components never
// contribute to a breach, so downsizes always pass. addLease counts the
// commit as one new lease against the tenant's lease-count ceiling.
//
// A zero quota component means that dimension is not limited.
func (e *Engine) reserve(ctx context.Context, tenantID string, delta types.Resources, addLease bool, commit func(context.Context) error) error {
	e.tenantLocks.Lock(tenantID)
	defer e.tenantLocks.Unlock(tenantID)

	usage, count, err := e.CurrentUsage(ctx, tenantID)
	if err != nil {
		return err
	}

	q, err := e.quotas.Quota(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("lease: quota lookup for tenant %s: %w", tenantID, err)
	}

	var breaches []quota.Breach
	for _, d := range types.Dimensions {
		limit := q.Resources.Get(d)
		if limit <= 0 {
			continue
		}
		if usage.Get(d)+delta.Get(d) > limit {
			breaches = append(breaches, quota.Breach{
				Dimension: d,
				Requested: delta.Get(d),
				InUse:     usage.Get(d),
				Limit:     limit,
			})
		}
	}
	if addLease && q.MaxLeases > 0 && count+1 > q.MaxLeases {
		breaches = append(breaches, quota.Breach{
			Dimension: quota.DimLeaseCount,
			Requested: 1,
			InUse:     count,
			Limit:     q.MaxLeases,
		})
	}

	if len(breaches) > 0 {
		qerr := &quota.ExceededError{TenantID: tenantID, Breaches: breaches}
		e.plugins.EmitQuotaExceeded(ctx, tenantID, qerr)
		e.logger.Debug("admission rejected", "tenant", tenantID, "error", qerr)
		return qerr
	}

	return commit(ctx)
}

// release runs after a lease deletion or downsize. Because usage is
// derived there is nothing to decrement; the call re-derives usage and
// reports an inconsistency if any dimension comes out negative, which
// indicates corrupt lease records rather than a user error.
func (e *Engine) release(ctx context.Context, tenantID string, delta types.Resources) {
	usage, _, err := e.CurrentUsage(ctx, tenantID)
	if err != nil {
		e.logger.Warn("release: cannot verify tenant usage", "tenant", tenantID, "error", err)
		return
	}

	if _, clamped := usage.ClampNonNegative(); clamped {
		e.logger.Error("release: derived tenant usage went negative",
			"tenant", tenantID,
			"usage", usage.String(),
			"released", delta.String(),
		)
	}
}
