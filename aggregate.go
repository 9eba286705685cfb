package lease

import (
	"context"
	"sort"
	"time"

	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// The usage aggregator is read-only: every statistic is recomputed from
// the raw usage records on demand. There are no cached counters that
// could drift from the records they summarize.

// UtilizationSummary holds one value per sampled dimension, used for
// both averages and peaks.
type UtilizationSummary struct {
	CPUPercent      float64 `json:"cpu_percent"`
	RAMUsedMB       float64 `json:"ram_used_mb"`
	StorageUsedGB   float64 `json:"storage_used_gb"`
	BandwidthUsedMB float64 `json:"bandwidth_used_mb"`
}

// Statistics summarizes a lease's usage records over a time range.
type Statistics struct {
	TotalCost            types.Cost         `json:"total_cost"`
	TotalDurationMinutes int                `json:"total_duration_minutes"`
	TotalBandwidthMB     float64            `json:"total_bandwidth_mb"`
	Averages             UtilizationSummary `json:"averages"`
	Peaks                UtilizationSummary `json:"peaks"`
	RecordCount          int                `json:"record_count"`
}

// Statistics computes sums, averages, and maxima over the lease's usage
// records within the query range.
func (e *Engine) Statistics(ctx context.Context, leaseID id.LeaseID, opts meter.QueryOpts) (*Statistics, error) {
	if _, err := e.store.GetLease(ctx, leaseID); err != nil {
		return nil, err
	}

	records, err := e.store.QueryUsage(ctx, leaseID, opts)
	if err != nil {
		return nil, err
	}

	return summarize(e.tariff.Currency, records), nil
}

func summarize(currency string, records []*meter.UsageRecord) *Statistics {
	stats := &Statistics{
		TotalCost:   types.ZeroCost(currency),
		RecordCount: len(records),
	}

	for _, r := range records {
		stats.TotalCost = stats.TotalCost.Add(r.Cost)
		stats.TotalDurationMinutes += r.DurationMinutes
		stats.TotalBandwidthMB += r.BandwidthUsedMB

		stats.Averages.CPUPercent += r.CPUPercent
		stats.Averages.RAMUsedMB += r.RAMUsedMB
		stats.Averages.StorageUsedGB += r.StorageUsedGB
		stats.Averages.BandwidthUsedMB += r.BandwidthUsedMB

		stats.Peaks.CPUPercent = max(stats.Peaks.CPUPercent, r.CPUPercent)
		stats.Peaks.RAMUsedMB = max(stats.Peaks.RAMUsedMB, r.RAMUsedMB)
		stats.Peaks.StorageUsedGB = max(stats.Peaks.StorageUsedGB, r.StorageUsedGB)
		stats.Peaks.BandwidthUsedMB = max(stats.Peaks.BandwidthUsedMB, r.BandwidthUsedMB)
	}

	if n := float64(len(records)); n > 0 {
		stats.Averages.CPUPercent /= n
		stats.Averages.RAMUsedMB /= n
		stats.Averages.StorageUsedGB /= n
		stats.Averages.BandwidthUsedMB /= n
	}

	return stats
}

// Granularity is a calendar bucket size for usage breakdowns.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Bucket is one period of a usage breakdown.
type Bucket struct {
	Period          time.Time  `json:"period"`
	Cost            types.Cost `json:"cost"`
	DurationMinutes int        `json:"duration_minutes"`
	BandwidthMB     float64    `json:"bandwidth_mb"`
	RecordCount     int        `json:"record_count"`
}

// Breakdown groups usage records into calendar buckets by record
// timestamp. Bucketing is always in UTC; weeks start on Monday. Buckets
// with no records are omitted unless dense is set, in which case the gap
// between the first and last occupied bucket is zero-filled. The result
// is ordered by period ascending.
func Breakdown(currency string, records []*meter.UsageRecord, g Granularity, dense bool) []Bucket {
	byPeriod := make(map[time.Time]*Bucket)
	for _, r := range records {
		period := truncate(r.Timestamp.UTC(), g)
		b, ok := byPeriod[period]
		if !ok {
			b = &Bucket{Period: period, Cost: types.ZeroCost(currency)}
			byPeriod[period] = b
		}
		b.Cost = b.Cost.Add(r.Cost)
		b.DurationMinutes += r.DurationMinutes
		b.BandwidthMB += r.BandwidthUsedMB
		b.RecordCount++
	}

	buckets := make([]Bucket, 0, len(byPeriod))
	for _, b := range byPeriod {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Period.Before(buckets[j].Period)
	})

	if dense && len(buckets) > 1 {
		buckets = zeroFill(currency, buckets, g)
	}

	return buckets
}

// LeaseBreakdown queries a lease's usage records and buckets them.
func (e *Engine) LeaseBreakdown(ctx context.Context, leaseID id.LeaseID, opts meter.QueryOpts, g Granularity, dense bool) ([]Bucket, error) {
	if _, err := e.store.GetLease(ctx, leaseID); err != nil {
		return nil, err
	}

	records, err := e.store.QueryUsage(ctx, leaseID, opts)
	if err != nil {
		return nil, err
	}

	return Breakdown(e.tariff.Currency, records, g, dense), nil
}

// LeaseUsage pairs a lease with its statistics in a tenant rollup.
type LeaseUsage struct {
	LeaseID    id.LeaseID  `json:"lease_id"`
	Name       string      `json:"name"`
	Statistics *Statistics `json:"statistics"`
}

// TenantUsage is the rollup of statistics across every lease a tenant
// owns.
type TenantUsage struct {
	TenantID             string       `json:"tenant_id"`
	TotalCost            types.Cost   `json:"total_cost"`
	TotalDurationMinutes int          `json:"total_duration_minutes"`
	TotalBandwidthMB     float64      `json:"total_bandwidth_mb"`
	Leases               []LeaseUsage `json:"leases"`
}

// TenantUsage sums statistics across every lease owned by the tenant
// within the query range.
func (e *Engine) TenantUsage(ctx context.Context, tenantID string, opts meter.QueryOpts) (*TenantUsage, error) {
	leases, err := e.store.ListLeases(ctx, vm.ListOpts{TenantID: tenantID})
	if err != nil {
		return nil, err
	}

	usage := &TenantUsage{
		TenantID:  tenantID,
		TotalCost: types.ZeroCost(e.tariff.Currency),
		Leases:    make([]LeaseUsage, 0, len(leases)),
	}

	for _, l := range leases {
		records, err := e.store.QueryUsage(ctx, l.ID, opts)
		if err != nil {
			return nil, err
		}
		stats := summarize(e.tariff.Currency, records)

		usage.TotalCost = usage.TotalCost.Add(stats.TotalCost)
		usage.TotalDurationMinutes += stats.TotalDurationMinutes
		usage.TotalBandwidthMB += stats.TotalBandwidthMB
		usage.Leases = append(usage.Leases, LeaseUsage{
			LeaseID:    l.ID,
			Name:       l.Name,
			Statistics: stats,
		})
	}

	return usage, nil
}

func truncate(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday-based
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // GranularityDay
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func next(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityHour:
		return t.Add(time.Hour)
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func zeroFill(currency string, sparse []Bucket, g Granularity) []Bucket {
	dense := make([]Bucket, 0, len(sparse))
	for i, b := range sparse {
		if i > 0 {
			for cursor := next(sparse[i-1].Period, g); cursor.Before(b.Period); cursor = next(cursor, g) {
				dense = append(dense, Bucket{Period: cursor, Cost: types.ZeroCost(currency)})
			}
		}
		dense = append(dense, b)
	}
	return dense
}
