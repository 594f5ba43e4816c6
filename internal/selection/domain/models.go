package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	"gorm.io/datatypes"
)

// Selection is one subject's enrollment in a rent plan. Ledger slices are
// loaded alongside the row and only ever appended to.
type Selection struct {
	ID              snowflake.ID                             `gorm:"primaryKey" json:"id"`
	SubjectID       *string                                  `gorm:"index" json:"subjectId,omitempty"`
	SubjectType     SubjectType                              `gorm:"not null" json:"subjectType"`
	SubjectMobile   string                                   `gorm:"not null;index" json:"subjectMobile"`
	PlanID          *snowflake.ID                            `json:"planId,omitempty"`
	PlanName        string                                   `gorm:"not null" json:"planName"`
	PlanType        plandomain.PlanType                      `gorm:"not null" json:"planType"`
	SecurityDeposit decimal.Decimal                          `gorm:"type:numeric(14,2);not null" json:"securityDeposit"`
	RentSlabs       datatypes.JSONSlice[plandomain.PlanSlab] `gorm:"not null" json:"rentSlabs"`
	SelectedSlab    datatypes.JSONType[plandomain.PlanSlab]  `gorm:"not null" json:"selectedRentSlab"`
	Status          Status                                   `gorm:"not null;index" json:"status"`
	PaymentStatus   PaymentStatus                            `gorm:"not null" json:"paymentStatus"`
	SelectedDate    time.Time                                `gorm:"not null" json:"selectedDate"`

	RentStartDate   *time.Time      `json:"rentStartDate"`
	RentPausedDate  *time.Time      `json:"rentPausedDate"`
	RentResumedDate *time.Time      `json:"rentResumedDate"`
	RentPerDay      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"rentPerDay"`

	CalculatedDeposit decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"calculatedDeposit"`
	CalculatedRent    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"calculatedRent"`
	CalculatedCover   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"calculatedCover"`
	CalculatedTotal   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"calculatedTotal"`
	CalculatedAt      *time.Time      `json:"calculatedAt,omitempty"`

	ExtraAmount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"extraAmount"`
	ExtraReason      string          `json:"extraReason"`
	AdjustmentAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"adjustmentAmount"`
	AdjustmentReason string          `json:"adjustmentReason"`

	DepositPaid         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"depositPaid"`
	RentPaid            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"rentPaid"`
	ExtraAmountPaid     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"extraAmountPaid"`
	AccidentalCoverPaid decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"accidentalCoverPaid"`
	AdminPaidAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"adminPaidAmount"`

	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`

	DriverPayments []DriverPayment    `gorm:"-" json:"driverPayments"`
	AdminPayments  []AdminPayment     `gorm:"-" json:"adminPayments"`
	Adjustments    []AdjustmentEntry  `gorm:"-" json:"adjustments"`
	ExtraAmounts   []ExtraAmountEntry `gorm:"-" json:"extraAmounts"`
}

func (Selection) TableName() string { return "plan_selections" }

// DriverPayment is one gateway or subject-initiated payment event.
type DriverPayment struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	SelectionID     snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_driver_payments_dedupe,priority:1;uniqueIndex:ux_driver_payments_order,priority:1" json:"-"`
	Date            time.Time       `gorm:"not null" json:"date"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Mode            PaymentMode     `gorm:"not null" json:"mode"`
	Type            PaymentType     `gorm:"not null" json:"type"`
	TransactionID   string          `json:"transactionId,omitempty"`
	MerchantOrderID string          `json:"merchantOrderId,omitempty"`
	PaymentToken    string          `json:"paymentToken,omitempty"`
	Gateway         string          `json:"gateway,omitempty"`
	Status          GatewayStatus   `gorm:"not null" json:"status"`
	// DedupeKey and OrderKey are set on captured entries only, so failed
	// attempts never block a later capture of the same order.
	DedupeKey *string   `gorm:"uniqueIndex:ux_driver_payments_dedupe,priority:2" json:"-"`
	OrderKey  *string   `gorm:"uniqueIndex:ux_driver_payments_order,priority:2" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
}

func (DriverPayment) TableName() string { return "selection_driver_payments" }

// AdminPayment records how one operator-entered amount was split across buckets.
type AdminPayment struct {
	ID                  snowflake.ID    `gorm:"primaryKey" json:"id"`
	SelectionID         snowflake.ID    `gorm:"not null;index" json:"-"`
	Date                time.Time       `gorm:"not null" json:"date"`
	Amount              decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Mode                PaymentMode     `gorm:"not null" json:"mode"`
	Type                PaymentType     `gorm:"not null" json:"type"`
	DepositPaid         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"depositPaid"`
	RentPaid            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"rentPaid"`
	AccidentalCoverPaid decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"accidentalCoverPaid"`
	ExtraAmountPaid     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"extraAmountPaid"`
	Reference           string          `gorm:"not null;uniqueIndex" json:"reference"`
	CreatedAt           time.Time       `gorm:"not null" json:"-"`
}

func (AdminPayment) TableName() string { return "selection_admin_payments" }

type AdjustmentEntry struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	SelectionID snowflake.ID    `gorm:"not null;index" json:"-"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Reason      string          `gorm:"not null" json:"reason"`
	Date        time.Time       `gorm:"not null" json:"date"`
}

func (AdjustmentEntry) TableName() string { return "selection_adjustments" }

type ExtraAmountEntry struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	SelectionID snowflake.ID    `gorm:"not null;index" json:"-"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Reason      string          `gorm:"not null" json:"reason"`
	Date        time.Time       `gorm:"not null" json:"date"`
}

func (ExtraAmountEntry) TableName() string { return "selection_extra_amounts" }

// DedupeKey identifies a gateway payment for replay detection.
func DedupeKey(transactionID, merchantOrderID string) string {
	if key := strings.TrimSpace(transactionID); key != "" {
		return key
	}
	return strings.TrimSpace(merchantOrderID)
}

func (s *Selection) Slab() plandomain.PlanSlab {
	return s.SelectedSlab.Data()
}

func (s *Selection) AccrualInput() accrual.Input {
	slab := s.Slab()
	rentPerDay := s.RentPerDay
	if s.RentStartDate == nil {
		rentPerDay = slab.RentPerDay
	}
	return accrual.Input{
		PlanType:        s.PlanType,
		RentStartDate:   s.RentStartDate,
		RentPausedDate:  s.RentPausedDate,
		RentResumedDate: s.RentResumedDate,
		RentPerDay:      rentPerDay,
		WeeklyRent:      slab.WeeklyRent,
		AccidentalCover: slab.AccidentalCover,
	}
}

// HasCaptured reports whether a captured driver payment shares either the
// transaction id or the merchant order id.
func (s *Selection) HasCaptured(transactionID, merchantOrderID string) bool {
	transactionID = strings.TrimSpace(transactionID)
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	for _, p := range s.DriverPayments {
		if p.Status != GatewayStatusCaptured {
			continue
		}
		if transactionID != "" && p.TransactionID == transactionID {
			return true
		}
		if merchantOrderID != "" && p.MerchantOrderID == merchantOrderID {
			return true
		}
	}
	return false
}

// MarkCaptured sets the unique keys that keep a transaction or order from
// being captured twice.
func (p *DriverPayment) MarkCaptured() {
	if p.TransactionID != "" {
		txID := p.TransactionID
		p.DedupeKey = &txID
	}
	if p.MerchantOrderID != "" {
		orderID := p.MerchantOrderID
		p.OrderKey = &orderID
	}
}

// HasAttempt reports whether an entry with the same key and status was already recorded.
func (s *Selection) HasAttempt(key string, status GatewayStatus) bool {
	if key == "" {
		return false
	}
	for _, p := range s.DriverPayments {
		if p.Status == status && DedupeKey(p.TransactionID, p.MerchantOrderID) == key {
			return true
		}
	}
	return false
}

func (s *Selection) TotalPaid() decimal.Decimal {
	return s.DepositPaid.Add(s.RentPaid).Add(s.AccidentalCoverPaid).Add(s.ExtraAmountPaid)
}

// Outstanding is the last computed total minus everything paid so far.
func (s *Selection) Outstanding() decimal.Decimal {
	return s.CalculatedTotal.Sub(s.TotalPaid())
}

// StartClock locks the daily rate and starts billing on the first successful payment.
func (s *Selection) StartClock(at time.Time) bool {
	if s.RentStartDate != nil {
		return false
	}
	start := at.UTC()
	s.RentStartDate = &start
	s.RentPerDay = s.Slab().RentPerDay
	return true
}
