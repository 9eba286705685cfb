// Package lease provides a composable compute-leasing engine for Go
// applications: tenant quota admission, a container-backed lease
// lifecycle, periodic usage metering, and deterministic cost
// aggregation.
//
// The engine is designed as a library, not a service. Import it directly
// into your application. It provides:
//
//   - Atomic per-tenant admission control over CPU, RAM, storage, and
//     bandwidth quotas, derived from live lease records
//   - A lifecycle state machine whose in-flight states always resolve
//     within the bounded container driver timeout
//   - A periodic usage meter that samples running leases and writes
//     immutable, costed usage records
//   - Fixed-point cost math (four decimal places) so aggregations are
//     exact and reproducible
//   - Pluggable storage (in-memory, SQLite, MongoDB) and lifecycle hooks
//
// # Quick Start
//
// Create an engine with a store, a container driver, and a quota source:
//
//	import (
//	    "github.com/xraph/lease"
//	    "github.com/xraph/lease/driver/fake"
//	    "github.com/xraph/lease/quota"
//	    "github.com/xraph/lease/store/memory"
//	    "github.com/xraph/lease/types"
//	)
//
//	quotas := quota.Static(nil, quota.Quota{
//	    Resources: types.Resources{CPUCores: 16, RAMMB: 32768, StorageGB: 500, BandwidthGB: 2000},
//	    MaxLeases: 10,
//	})
//
//	engine := lease.New(memory.New(), fake.New(), quotas)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// Create and run a lease:
//
//	l, err := engine.CreateLease(ctx, lease.CreateLeaseRequest{
//	    TenantID:  "acme",
//	    Name:      "web-1",
//	    Resources: types.Resources{CPUCores: 2, RAMMB: 2048, StorageGB: 40, BandwidthGB: 100},
//	})
//	_, err = engine.StartLease(ctx, l.ID)
//
// The meter samples every running lease on the collection interval and
// writes one usage record each; statistics are recomputed from those
// records on demand:
//
//	stats, err := engine.Statistics(ctx, l.ID, meter.QueryOpts{})
package lease
