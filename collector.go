package lease

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xraph/lease/driver"
	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/pricing"
	"github.com/xraph/lease/vm"
)

// collectWorker runs the periodic metering pass until the engine stops.
// No caller waits on it; results surface through logs, plugins, and the
// usage records themselves.
func (e *Engine) collectWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.collectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.collectInterval)
			result, err := e.CollectAll(ctx)
			cancel()
			if err != nil {
				e.logger.Error("collection pass failed", "error", err)
				continue
			}
			e.logger.Debug("collection pass finished",
				"succeeded", result.Succeeded,
				"failed", result.Failed,
				"skipped", result.Skipped,
				"elapsed_ms", result.Elapsed.Milliseconds(),
			)
		}
	}
}

// SampleOne reads a point-in-time utilization sample for the lease,
// bounded by the driver timeout. On driver error it returns a zero
// sample along with the error so a single unreachable lease never takes
// down a collection pass. The error wraps ErrDriverFailure, so
// IsRetryable reports true for it.
func (e *Engine) SampleOne(ctx context.Context, l *vm.Lease) (driver.UtilizationSample, error) {
	dctx, cancel := context.WithTimeout(ctx, e.driverTimeout)
	defer cancel()

	sample, err := e.driver.Sample(dctx, l.ContainerID)
	if err != nil {
		return driver.UtilizationSample{}, fmt.Errorf("%w: %w", ErrDriverFailure, err)
	}
	return sample, nil
}

// CollectAll meters every lease currently in the running state: one
// utilization sample and one usage record per lease, costed over the
// collection interval. Per-lease failures are counted and reported in
// the result, never aborting the rest of the batch; leases that leave
// the running state between enumeration and sampling are skipped
// cleanly. The returned error is reserved for whole-pass failures
// (enumeration or the batch insert).
func (e *Engine) CollectAll(ctx context.Context) (*meter.CollectionResult, error) {
	start := e.now()
	result := &meter.CollectionResult{StartedAt: start}

	running, err := e.store.ListLeases(ctx, vm.ListOpts{Status: vm.StatusRunning})
	if err != nil {
		return nil, err
	}

	// Round to whole minutes, never below one: truncation would bill
	// zero time for sub-minute collection intervals.
	durationMinutes := int(math.Round(e.collectInterval.Minutes()))
	if durationMinutes < 1 {
		durationMinutes = 1
	}
	records := make([]*meter.UsageRecord, 0, len(running))

	for _, l := range running {
		// Re-read at sampling time: the lease may have transitioned or
		// vanished since enumeration.
		current, err := e.store.GetLease(ctx, l.ID)
		if err != nil || current.Status != vm.StatusRunning {
			result.Skipped++
			continue
		}

		sample, err := e.SampleOne(ctx, current)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, &meter.CollectionError{LeaseID: current.ID, Err: err})
			e.logger.Warn("lease sample failed", "lease", current.ID, "error", err)
			continue
		}

		cost, err := pricing.UsageCost(current, sample, durationMinutes, e.tariff)
		if err != nil {
			// Unreachable with correct creation-time validation; surface
			// loudly instead of writing a zero-cost record.
			result.Failed++
			result.Errors = append(result.Errors, &meter.CollectionError{
				LeaseID: current.ID,
				Err:     fmt.Errorf("%w: %w", ErrCostComputation, err),
			})
			e.logger.Error("usage cost computation failed", "lease", current.ID, "error", err)
			continue
		}

		records = append(records, &meter.UsageRecord{
			ID:              id.NewUsageRecordID(),
			LeaseID:         current.ID,
			TenantID:        current.TenantID,
			CPUPercent:      sample.CPUPercent,
			RAMUsedMB:       sample.RAMUsedMB,
			StorageUsedGB:   sample.StorageUsedGB,
			BandwidthUsedMB: sample.BandwidthUsedMB,
			DurationMinutes: durationMinutes,
			Cost:            cost,
			Timestamp:       e.now(),
		})
		result.Succeeded++
	}

	if err := e.store.InsertUsageRecords(ctx, records); err != nil {
		return nil, err
	}

	result.Elapsed = e.now().Sub(start)
	if len(records) > 0 {
		e.plugins.EmitUsageCollected(ctx, records)
	}
	e.plugins.EmitCollectionPass(ctx, result)

	return result, nil
}

// CollectNow triggers an immediate collection pass outside the periodic
// schedule.
func (e *Engine) CollectNow(ctx context.Context) (*meter.CollectionResult, error) {
	if e.stopping() {
		return nil, ErrEngineStopped
	}
	return e.CollectAll(ctx)
}

// PurgeUsage deletes usage records older than the cutoff, across all
// leases, and returns how many were removed. Retention policy lives with
// the caller; the engine never purges on its own.
func (e *Engine) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	removed, err := e.store.PurgeUsage(ctx, before)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.logger.Info("usage records purged", "removed", removed, "before", before)
	}
	return removed, nil
}
