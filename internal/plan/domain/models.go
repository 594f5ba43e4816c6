package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PlanType string

const (
	PlanTypeWeekly PlanType = "weekly"
	PlanTypeDaily  PlanType = "daily"
)

func ParsePlanType(value string) (PlanType, error) {
	switch PlanType(strings.ToLower(strings.TrimSpace(value))) {
	case PlanTypeWeekly:
		return PlanTypeWeekly, nil
	case PlanTypeDaily:
		return PlanTypeDaily, nil
	default:
		return "", ErrInvalidPlanType
	}
}

// PlanSlab is one trip-count pricing tier. Selections keep their own copy.
type PlanSlab struct {
	TripsLabel            string          `json:"trips"`
	RentPerDay            decimal.Decimal `json:"rentDay"`
	WeeklyRent            decimal.Decimal `json:"weeklyRent"`
	AccidentalCover       decimal.Decimal `json:"accidentalCover"`
	AcceptanceRatePercent int             `json:"acceptanceRate,omitempty"`
}

type Plan struct {
	ID              snowflake.ID                  `gorm:"primaryKey" json:"id"`
	Code            string                        `gorm:"not null;uniqueIndex" json:"code"`
	Name            string                        `gorm:"not null" json:"name"`
	Type            PlanType                      `gorm:"not null;index" json:"type"`
	SecurityDeposit decimal.Decimal               `gorm:"type:numeric(14,2);not null" json:"securityDeposit"`
	Slabs           datatypes.JSONSlice[PlanSlab] `gorm:"not null" json:"rentSlabs"`
	CreatedAt       time.Time                     `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time                     `gorm:"not null" json:"updatedAt"`
}

func (Plan) TableName() string { return "plans" }
