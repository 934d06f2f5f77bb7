package fees_test

import (
	"testing"

	"github.com/jerseyevents/ticketing/internal/config"
	"github.com/jerseyevents/ticketing/internal/fees"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testTiers() []config.FeeTier {
	return []config.FeeTier{
		{Name: "Community", MaxCapacity: 50, Percentage: decimal.RequireFromString("4.0")},
		{Name: "Small", MaxCapacity: 200, Percentage: decimal.RequireFromString("3.5")},
		{Name: "Medium", MaxCapacity: 500, Percentage: decimal.RequireFromString("3.0")},
		{Name: "Large", MaxCapacity: 999999, Percentage: decimal.RequireFromString("2.5")},
	}
}

func newCalc() *fees.Calculator {
	return fees.NewCalculator(testTiers(), decimal.RequireFromString("15"))
}

func TestCalculate_PercentageFee(t *testing.T) {
	// capacity=100, price=20, Small tier 3.5% -> max(15, 100*20*0.035) = 70.00
	fee, tier := newCalc().Calculate(100, decimal.RequireFromString("20"), false)
	assert.True(t, fee.Equal(decimal.RequireFromString("70.00")), "fee = %s", fee)
	assert.Equal(t, "Small", tier)
}

func TestCalculate_FreeEvent(t *testing.T) {
	fee, tier := newCalc().Calculate(500, decimal.Zero, false)
	assert.True(t, fee.IsZero())
	assert.Equal(t, fees.FreeTierName, tier)

	fee, tier = newCalc().Calculate(500, decimal.RequireFromString("25"), true)
	assert.True(t, fee.IsZero())
	assert.Equal(t, fees.FreeTierName, tier)
}

func TestCalculate_MinimumFloor(t *testing.T) {
	// 10 seats at 1.00 in Community: 10*1*0.04 = 0.40, floored to 15.
	fee, tier := newCalc().Calculate(10, decimal.RequireFromString("1.00"), false)
	assert.True(t, fee.Equal(decimal.RequireFromString("15.00")), "fee = %s", fee)
	assert.Equal(t, "Community", tier)
}

func TestTierFor_BoundaryTies(t *testing.T) {
	c := newCalc()
	assert.Equal(t, "Community", c.TierFor(50).Name)
	assert.Equal(t, "Small", c.TierFor(51).Name)
	assert.Equal(t, "Small", c.TierFor(200).Name)
	assert.Equal(t, "Medium", c.TierFor(201).Name)
}

func TestTierFor_AboveAllCeilings(t *testing.T) {
	assert.Equal(t, "Large", newCalc().TierFor(5_000_000).Name)
}

func TestCalculate_FloorNeverUndershotForPaid(t *testing.T) {
	c := newCalc()
	for _, capacity := range []int{1, 10, 50, 51, 200, 500, 1000} {
		fee, _ := c.Calculate(capacity, decimal.RequireFromString("0.01"), false)
		assert.True(t, fee.GreaterThanOrEqual(decimal.RequireFromString("15")),
			"capacity %d fee %s below floor", capacity, fee)
	}
}
