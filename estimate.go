package lease

import (
	"github.com/xraph/lease/pricing"
	"github.com/xraph/lease/types"
)

// Estimate is a pricing projection for a prospective allocation,
// assuming full utilization. Actual billed cost scales with the measured
// utilization factor and is usually lower.
type Estimate struct {
	Resources   types.Resources `json:"resources"`
	HourlyRate  types.Cost      `json:"hourly_rate"`
	DailyCost   types.Cost      `json:"daily_cost"`
	MonthlyCost types.Cost      `json:"monthly_cost"`
}

// Estimate prices a prospective resource allocation without creating
// anything. The monthly figure assumes a 30-day month.
func (e *Engine) Estimate(r types.Resources) (*Estimate, error) {
	if err := e.validateResources(r); err != nil {
		return nil, err
	}

	rate := pricing.HourlyRate(e.tariff, r)
	return &Estimate{
		Resources:   r,
		HourlyRate:  rate,
		DailyCost:   rate.Multiply(24),
		MonthlyCost: rate.Multiply(24 * 30),
	}, nil
}
