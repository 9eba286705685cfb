// Package meter defines the immutable usage record the collector writes
// for every running lease on each collection pass.
package meter

import (
	"time"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/types"
)

// UsageRecord is a costed reading of utilization over a fixed interval.
// Records are append-only: the collector is the only writer, and a record
// is never mutated after insert.
type UsageRecord struct {
	ID       id.UsageRecordID `json:"id"`
	LeaseID  id.LeaseID       `json:"lease_id"`
	TenantID string           `json:"tenant_id"`

	CPUPercent      float64 `json:"cpu_percent"`
	RAMUsedMB       float64 `json:"ram_used_mb"`
	StorageUsedGB   float64 `json:"storage_used_gb"`
	BandwidthUsedMB float64 `json:"bandwidth_used_mb"`

	// DurationMinutes is the sampling interval this record covers.
	DurationMinutes int        `json:"duration_minutes"`
	Cost            types.Cost `json:"cost"`
	Timestamp       time.Time  `json:"timestamp"`
}

// QueryOpts selects usage records by time range with optional paging.
// Zero time bounds mean unbounded.
type QueryOpts struct {
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

// CollectionError ties a per-lease collection failure to its lease.
type CollectionError struct {
	LeaseID id.LeaseID
	Err     error
}

func (e *CollectionError) Error() string {
	return "meter: lease " + e.LeaseID.String() + ": " + e.Err.Error()
}

func (e *CollectionError) Unwrap() error { return e.Err }

// CollectionResult summarizes one collection pass. Failures are isolated:
// a lease whose sampling or costing fails is counted and reported here
// without aborting the records written for the rest of the batch.
type CollectionResult struct {
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
	Errors    []*CollectionError `json:"errors,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Elapsed   time.Duration      `json:"elapsed"`
}
