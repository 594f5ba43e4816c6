// Package accrual computes rent owed for a selection from its accrual dates.
// Everything here is pure; persisting a snapshot is the caller's job.
package accrual

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/config"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
)

var daysPerWeek = decimal.NewFromInt(7)

type Input struct {
	PlanType        plandomain.PlanType
	RentStartDate   *time.Time
	RentPausedDate  *time.Time
	RentResumedDate *time.Time
	RentPerDay      decimal.Decimal
	WeeklyRent      decimal.Decimal
	AccidentalCover decimal.Decimal
}

type Summary struct {
	RentPerDay decimal.Decimal `json:"rentPerDay"`
	TotalDays  int             `json:"totalDays"`
	TotalDue   decimal.Decimal `json:"totalDue"`
	CoverDue   decimal.Decimal `json:"coverDue"`
	Paused     bool            `json:"paused"`
}

func (s Summary) TotalWithCover() decimal.Decimal {
	return s.TotalDue.Add(s.CoverDue)
}

// Compute returns the accrual snapshot as of asOf. Day boundaries are the
// calendar dates of loc.
func Compute(in Input, asOf time.Time, loc *time.Location, coverPolicy string) Summary {
	summary := Summary{
		RentPerDay: in.RentPerDay,
		TotalDue:   decimal.Zero,
		CoverDue:   decimal.Zero,
	}
	if in.RentStartDate == nil {
		return summary
	}
	start := *in.RentStartDate

	end := asOf
	paused := in.RentPausedDate != nil && in.RentResumedDate == nil
	if paused && !in.RentPausedDate.After(asOf) {
		end = *in.RentPausedDate
		summary.Paused = true
	}

	days := DaysBetween(start, end, loc)

	// Only the most recent pause window is known once accrual has resumed.
	if in.RentPausedDate != nil && in.RentResumedDate != nil {
		windowStart := latest(*in.RentPausedDate, start)
		windowEnd := earliest(*in.RentResumedDate, asOf)
		if windowEnd.After(windowStart) {
			days -= DaysBetween(windowStart, windowEnd, loc)
		}
	}
	if days < 0 {
		days = 0
	}

	summary.TotalDays = days
	summary.TotalDue = in.RentPerDay.Mul(decimal.NewFromInt(int64(days))).Round(2)
	summary.CoverDue = coverDue(in, days, coverPolicy)
	return summary
}

func coverDue(in Input, days int, coverPolicy string) decimal.Decimal {
	if in.PlanType != plandomain.PlanTypeWeekly || !in.AccidentalCover.IsPositive() {
		return decimal.Zero
	}
	switch strings.ToLower(strings.TrimSpace(coverPolicy)) {
	case config.CoverPolicyDaily:
		return in.AccidentalCover.Mul(decimal.NewFromInt(int64(days))).Div(daysPerWeek).Round(2)
	default:
		return in.AccidentalCover
	}
}

// DaysBetween counts whole calendar days from one date to another in loc.
// The result is negative when to falls on an earlier date.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return int(civilDate(to, loc).Sub(civilDate(from, loc)).Hours() / 24)
}

func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UpfrontRent is the first billing period collected when payment starts the
// rent clock: a day for daily plans and a week for weekly plans.
func UpfrontRent(planType plandomain.PlanType, rentPerDay, weeklyRent decimal.Decimal) decimal.Decimal {
	if planType == plandomain.PlanTypeWeekly {
		if weeklyRent.IsPositive() {
			return weeklyRent
		}
		return rentPerDay.Mul(daysPerWeek).Round(2)
	}
	return rentPerDay
}

type Due struct {
	Rent  decimal.Decimal
	Cover decimal.Decimal
}

// DueAt is the rent and cover owed as of asOf, never less than one upfront
// billing period.
func DueAt(in Input, asOf time.Time, loc *time.Location, coverPolicy string) Due {
	summary := Compute(in, asOf, loc, coverPolicy)
	rent := decimal.Max(summary.TotalDue, UpfrontRent(in.PlanType, in.RentPerDay, in.WeeklyRent))

	cover := summary.CoverDue
	if in.PlanType == plandomain.PlanTypeWeekly && in.AccidentalCover.IsPositive() {
		cover = decimal.Max(cover, in.AccidentalCover)
	}
	return Due{Rent: rent, Cover: cover}
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
