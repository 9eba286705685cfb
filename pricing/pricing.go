// Package pricing is the pure cost engine: deterministic functions from
// declared capacity and sampled utilization to monetary cost. No state,
// no I/O.
package pricing

import (
	"fmt"

	"github.com/xraph/lease/driver"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// Utilization factor weights. CPU and RAM dominate; storage is cheaper
// to keep provisioned.
const (
	weightCPU     = 0.4
	weightRAM     = 0.4
	weightStorage = 0.2
)

// Tariff is the configuration-driven rate table. Every rate is per hour
// of declared capacity except BandwidthPerGB, which prices actual
// transfer. All rates must be non-negative so that rates (and therefore
// costs) are monotonic non-decreasing in every resource dimension.
type Tariff struct {
	Currency string `json:"currency" yaml:"currency"`

	CPUCoreHour    float64 `json:"cpu_core_hour" yaml:"cpu_core_hour"`
	RAMGBHour      float64 `json:"ram_gb_hour" yaml:"ram_gb_hour"`
	StorageGBHour  float64 `json:"storage_gb_hour" yaml:"storage_gb_hour"`
	BandwidthPerGB float64 `json:"bandwidth_per_gb" yaml:"bandwidth_per_gb"`
}

// DefaultTariff approximates small-cloud list prices.
var DefaultTariff = Tariff{
	Currency:       "usd",
	CPUCoreHour:    0.012,
	RAMGBHour:      0.005,
	StorageGBHour:  0.0002,
	BandwidthPerGB: 0.01,
}

// Validate rejects negative rates and a missing currency.
func (t Tariff) Validate() error {
	if t.Currency == "" {
		return fmt.Errorf("pricing: tariff currency is required")
	}
	for name, rate := range map[string]float64{
		"cpu_core_hour":    t.CPUCoreHour,
		"ram_gb_hour":      t.RAMGBHour,
		"storage_gb_hour":  t.StorageGBHour,
		"bandwidth_per_gb": t.BandwidthPerGB,
	} {
		if rate < 0 {
			return fmt.Errorf("pricing: tariff rate %s is negative", name)
		}
	}
	return nil
}

// HourlyRate prices one hour of the declared allocation. Monotonic
// non-decreasing in each resource dimension.
func HourlyRate(t Tariff, r types.Resources) types.Cost {
	rate := float64(r.CPUCores)*t.CPUCoreHour +
		float64(r.RAMMB)/1024*t.RAMGBHour +
		float64(r.StorageGB)*t.StorageGBHour
	return types.CostOf(rate, t.Currency)
}

// CostError reports malformed inputs at cost-computation time. With
// correct creation-time validation it is unreachable, so callers treat
// it as a defect and surface it loudly rather than defaulting to zero.
type CostError struct {
	Reason string
}

func (e *CostError) Error() string {
	return "pricing: " + e.Reason
}

// UsageCost converts a utilization sample over an interval into money.
//
// The sampled CPU percentage and the RAM and storage ratios against the
// declared capacity combine into a weighted utilization factor that
// scales the lease's stored hourly rate; transferred bandwidth is priced
// separately per GB. The result is rounded once, half away from zero, to
// four decimal places: identical inputs always produce an identical Cost.
func UsageCost(l *vm.Lease, s driver.UtilizationSample, durationMinutes int, t Tariff) (types.Cost, error) {
	switch {
	case l.Resources.RAMMB <= 0:
		return types.Cost{}, &CostError{Reason: "lease has zero RAM capacity"}
	case l.Resources.StorageGB <= 0:
		return types.Cost{}, &CostError{Reason: "lease has zero storage capacity"}
	case durationMinutes < 0:
		return types.Cost{}, &CostError{Reason: "negative duration"}
	case s.CPUPercent < 0 || s.RAMUsedMB < 0 || s.StorageUsedGB < 0 || s.BandwidthUsedMB < 0:
		return types.Cost{}, &CostError{Reason: "negative utilization sample"}
	case l.HourlyRate.IsNegative():
		return types.Cost{}, &CostError{Reason: "negative hourly rate"}
	}

	cpuUtil := s.CPUPercent / 100
	ramUtil := s.RAMUsedMB / float64(l.Resources.RAMMB)
	storageUtil := s.StorageUsedGB / float64(l.Resources.StorageGB)

	factor := weightCPU*cpuUtil + weightRAM*ramUtil + weightStorage*storageUtil

	timeCost := l.HourlyRate.Float64() * factor / 60 * float64(durationMinutes)
	bandwidthCost := s.BandwidthUsedMB / 1024 * t.BandwidthPerGB

	return types.CostOf(timeCost+bandwidthCost, t.Currency), nil
}
