package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanType(t *testing.T) {
	got, err := ParsePlanType(" Weekly ")
	require.NoError(t, err)
	assert.Equal(t, PlanTypeWeekly, got)

	_, err = ParsePlanType("monthly")
	assert.ErrorIs(t, err, ErrInvalidPlanType)
}

func TestFindSlab(t *testing.T) {
	plan := Plan{Slabs: []PlanSlab{
		{TripsLabel: "0-60", RentPerDay: decimal.NewFromInt(600)},
		{TripsLabel: "60+", RentPerDay: decimal.NewFromInt(500)},
	}}

	slab, err := FindSlab(plan, " 60+ ")
	require.NoError(t, err)
	assert.True(t, slab.RentPerDay.Equal(decimal.NewFromInt(500)))

	_, err = FindSlab(plan, "100+")
	assert.ErrorIs(t, err, ErrSlabNotFound)
}

func TestNormalizeSlabDefaultsCoverForWeeklyOnly(t *testing.T) {
	slab := PlanSlab{RentPerDay: decimal.NewFromInt(500), WeeklyRent: decimal.NewFromInt(3000), AcceptanceRatePercent: 80}

	weekly := NormalizeSlab(PlanTypeWeekly, slab, DefaultAccidentalCover)
	assert.True(t, weekly.AccidentalCover.Equal(decimal.NewFromInt(105)))
	assert.Equal(t, 80, weekly.AcceptanceRatePercent)

	slab.AccidentalCover = decimal.NewFromInt(90)
	daily := NormalizeSlab(PlanTypeDaily, slab, DefaultAccidentalCover)
	assert.True(t, daily.AccidentalCover.IsZero())
	assert.Zero(t, daily.AcceptanceRatePercent)
}

func TestValidateSlab(t *testing.T) {
	assert.NoError(t, ValidateSlab(PlanSlab{RentPerDay: decimal.NewFromInt(1)}))
	assert.ErrorIs(t, ValidateSlab(PlanSlab{}), ErrInvalidSlab)
	assert.ErrorIs(t, ValidateSlab(PlanSlab{RentPerDay: decimal.NewFromInt(-1)}), ErrInvalidSlab)
	assert.ErrorIs(t, ValidateSlab(PlanSlab{RentPerDay: decimal.NewFromInt(1), AcceptanceRatePercent: 120}), ErrInvalidSlab)
}
