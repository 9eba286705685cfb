package meter

import (
	"context"
	"time"

	"github.com/xraph/lease/id"
)

// Store is the persistence contract for usage records: append-only
// inserts plus range queries, indexed by lease and timestamp.
type Store interface {
	InsertUsageRecords(ctx context.Context, records []*UsageRecord) error
	QueryUsage(ctx context.Context, leaseID id.LeaseID, opts QueryOpts) ([]*UsageRecord, error)
	DeleteUsage(ctx context.Context, leaseID id.LeaseID) (int64, error)
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)
}
