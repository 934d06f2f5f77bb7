// Package fees computes the tiered platform listing fee. The tier table and
// the minimum fee floor come from configuration, not code.
package fees

import (
	"github.com/jerseyevents/ticketing/internal/config"
	"github.com/shopspring/decimal"
)

const FreeTierName = "Free Event"

var oneHundred = decimal.NewFromInt(100)

type Calculator struct {
	tiers   []config.FeeTier
	minimum decimal.Decimal
}

func NewCalculator(tiers []config.FeeTier, minimum decimal.Decimal) *Calculator {
	return &Calculator{tiers: tiers, minimum: minimum}
}

// TierFor selects the first tier whose ceiling is >= capacity. A capacity at a
// boundary lands in the lower tier. Capacities above every ceiling fall into
// the last tier.
func (c *Calculator) TierFor(capacity int) config.FeeTier {
	for _, t := range c.tiers {
		if capacity <= t.MaxCapacity {
			return t
		}
	}
	return c.tiers[len(c.tiers)-1]
}

// Calculate returns the listing fee and the tier it was priced under.
// Free events always pay zero. Paid events pay
// max(minimum, capacity*unitPrice*percentage), rounded half-up to two places.
func (c *Calculator) Calculate(capacity int, unitPrice decimal.Decimal, free bool) (decimal.Decimal, string) {
	if free || unitPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero.Round(2), FreeTierName
	}

	tier := c.TierFor(capacity)
	revenue := unitPrice.Mul(decimal.NewFromInt(int64(capacity)))
	fee := revenue.Mul(tier.Percentage.Div(oneHundred))
	if fee.LessThan(c.minimum) {
		fee = c.minimum
	}
	return fee.Round(2), tier.Name
}
