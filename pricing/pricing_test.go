package pricing

import (
	"errors"
	"testing"

	"github.com/xraph/lease/driver"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

func testLease(ram, storage int64, rate float64) *vm.Lease {
	return &vm.Lease{
		Resources:  types.Resources{CPUCores: 2, RAMMB: ram, StorageGB: storage},
		HourlyRate: types.CostOf(rate, "usd"),
	}
}

func TestUsageCostWorkedExample(t *testing.T) {
	// Half utilization on every axis over a full hour costs exactly half
	// the hourly rate.
	l := testLease(2048, 40, 0.05)
	sample := driver.UtilizationSample{
		CPUPercent:    50,
		RAMUsedMB:     1024,
		StorageUsedGB: 20,
	}

	cost, err := UsageCost(l, sample, 60, DefaultTariff)
	if err != nil {
		t.Fatalf("UsageCost: %v", err)
	}
	if want := types.CostOf(0.025, "usd"); !cost.Equal(want) {
		t.Errorf("cost = %s, want %s", cost, want)
	}
}

func TestUsageCostBandwidth(t *testing.T) {
	// Idle lease, 2 GB transferred: only the bandwidth component bills.
	l := testLease(2048, 40, 0.05)
	sample := driver.UtilizationSample{BandwidthUsedMB: 2048}

	cost, err := UsageCost(l, sample, 60, DefaultTariff)
	if err != nil {
		t.Fatalf("UsageCost: %v", err)
	}
	if want := types.CostOf(0.02, "usd"); !cost.Equal(want) {
		t.Errorf("cost = %s, want %s", cost, want)
	}
}

func TestUsageCostZeroDuration(t *testing.T) {
	l := testLease(2048, 40, 0.05)
	sample := driver.UtilizationSample{CPUPercent: 100, RAMUsedMB: 2048, StorageUsedGB: 40}

	cost, err := UsageCost(l, sample, 0, DefaultTariff)
	if err != nil {
		t.Fatalf("UsageCost: %v", err)
	}
	if !cost.IsZero() {
		t.Errorf("zero duration with no bandwidth should cost nothing, got %s", cost)
	}
}

func TestUsageCostDeterministic(t *testing.T) {
	l := testLease(4096, 80, 0.0732)
	sample := driver.UtilizationSample{
		CPUPercent:      73.5,
		RAMUsedMB:       3011.25,
		StorageUsedGB:   41.7,
		BandwidthUsedMB: 913.4,
	}

	first, err := UsageCost(l, sample, 5, DefaultTariff)
	if err != nil {
		t.Fatalf("UsageCost: %v", err)
	}
	for range 100 {
		again, err := UsageCost(l, sample, 5, DefaultTariff)
		if err != nil {
			t.Fatalf("UsageCost: %v", err)
		}
		if !again.Equal(first) {
			t.Fatalf("identical inputs produced %s then %s", first, again)
		}
	}
}

func TestUsageCostErrors(t *testing.T) {
	good := driver.UtilizationSample{CPUPercent: 10, RAMUsedMB: 100, StorageUsedGB: 1}

	tests := []struct {
		name     string
		lease    *vm.Lease
		sample   driver.UtilizationSample
		duration int
	}{
		{"zero ram capacity", testLease(0, 40, 0.05), good, 5},
		{"zero storage capacity", testLease(2048, 0, 0.05), good, 5},
		{"negative duration", testLease(2048, 40, 0.05), good, -1},
		{"negative sample", testLease(2048, 40, 0.05), driver.UtilizationSample{CPUPercent: -1}, 5},
		{"negative rate", testLease(2048, 40, -0.05), good, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UsageCost(tt.lease, tt.sample, tt.duration, DefaultTariff)
			var ce *CostError
			if !errors.As(err, &ce) {
				t.Errorf("err = %v, want *CostError", err)
			}
		})
	}
}

func TestUsageCostMonotonicInCPU(t *testing.T) {
	l := testLease(2048, 40, 0.05)
	sample := driver.UtilizationSample{RAMUsedMB: 1024, StorageUsedGB: 20}

	prev := types.ZeroCost("usd")
	for cpu := 0.0; cpu <= 100; cpu += 12.5 {
		sample.CPUPercent = cpu
		cost, err := UsageCost(l, sample, 60, DefaultTariff)
		if err != nil {
			t.Fatalf("UsageCost(cpu=%v): %v", cpu, err)
		}
		if cost.LessThan(prev) {
			t.Fatalf("cost decreased from %s to %s at cpu=%v", prev, cost, cpu)
		}
		prev = cost
	}
}

func TestHourlyRateMonotonic(t *testing.T) {
	base := types.Resources{CPUCores: 2, RAMMB: 2048, StorageGB: 40}
	baseRate := HourlyRate(DefaultTariff, base)

	bigger := []types.Resources{
		{CPUCores: 4, RAMMB: 2048, StorageGB: 40},
		{CPUCores: 2, RAMMB: 4096, StorageGB: 40},
		{CPUCores: 2, RAMMB: 2048, StorageGB: 80},
	}
	for _, r := range bigger {
		if rate := HourlyRate(DefaultTariff, r); rate.LessThan(baseRate) {
			t.Errorf("HourlyRate(%s) = %s, below base %s", r, rate, baseRate)
		}
	}
}

func TestTariffValidate(t *testing.T) {
	if err := DefaultTariff.Validate(); err != nil {
		t.Errorf("default tariff should validate: %v", err)
	}

	missing := DefaultTariff
	missing.Currency = ""
	if err := missing.Validate(); err == nil {
		t.Error("missing currency should fail")
	}

	negative := DefaultTariff
	negative.CPUCoreHour = -0.01
	if err := negative.Validate(); err == nil {
		t.Error("negative rate should fail")
	}
}
