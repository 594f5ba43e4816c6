package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var DefaultAccidentalCover = decimal.NewFromInt(105)

// FindSlab returns the slab whose trips label matches, ignoring case and padding.
func FindSlab(plan Plan, tripsLabel string) (PlanSlab, error) {
	want := strings.TrimSpace(tripsLabel)
	for _, slab := range plan.Slabs {
		if strings.EqualFold(strings.TrimSpace(slab.TripsLabel), want) {
			return slab, nil
		}
	}
	return PlanSlab{}, ErrSlabNotFound
}

// NormalizeSlab rounds money to paise and applies the default accidental
// cover to weekly slabs that omit it. Daily slabs never carry cover.
func NormalizeSlab(planType PlanType, slab PlanSlab, defaultCover decimal.Decimal) PlanSlab {
	slab.TripsLabel = strings.TrimSpace(slab.TripsLabel)
	slab.RentPerDay = slab.RentPerDay.Round(2)
	slab.WeeklyRent = slab.WeeklyRent.Round(2)
	switch planType {
	case PlanTypeWeekly:
		if slab.AccidentalCover.IsZero() {
			slab.AccidentalCover = defaultCover
		}
		slab.AccidentalCover = slab.AccidentalCover.Round(2)
	default:
		slab.AccidentalCover = decimal.Zero
		slab.AcceptanceRatePercent = 0
	}
	return slab
}

func ValidateSlab(slab PlanSlab) error {
	if slab.RentPerDay.IsNegative() || slab.WeeklyRent.IsNegative() || slab.AccidentalCover.IsNegative() {
		return ErrInvalidSlab
	}
	if slab.RentPerDay.IsZero() && slab.WeeklyRent.IsZero() {
		return ErrInvalidSlab
	}
	if slab.AcceptanceRatePercent < 0 || slab.AcceptanceRatePercent > 100 {
		return ErrInvalidSlab
	}
	return nil
}
