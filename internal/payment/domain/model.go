package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	"gorm.io/datatypes"
)

// EventRecord is one gateway callback as received, kept for replay detection.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Gateway         string         `json:"gateway" gorm:"not null;uniqueIndex:ux_gateway_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"not null;uniqueIndex:ux_gateway_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"not null"`
	SelectionID     snowflake.ID   `json:"selection_id" gorm:"not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "gateway_events" }

// GatewayOutcome is the normalized result of a gateway transaction.
type GatewayOutcome struct {
	TransactionID   string          `json:"transactionId"`
	MerchantOrderID string          `json:"merchantOrderId"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	Type            string          `json:"type"`
	PaymentToken    string          `json:"paymentToken"`
	Gateway         string          `json:"gateway"`
	OccurredAt      *time.Time      `json:"occurredAt,omitempty"`
}

// GatewayEvent is what an adapter extracts from a verified callback.
type GatewayEvent struct {
	Gateway         string
	ProviderEventID string
	EventType       string
	SelectionID     snowflake.ID
	Outcome         GatewayOutcome
	RawPayload      []byte
}

type ManualPayment struct {
	PaymentMode string
	PaymentType string
	// PaidAmount defaults to the outstanding total when nil.
	PaidAmount *decimal.Decimal
}

type ChargeRequest struct {
	Amount decimal.Decimal
	Reason string
}

// Result carries the selection after a payment was applied. Duplicate is set
// when the payment had already been recorded and nothing changed.
type Result struct {
	Selection selectiondomain.Selection `json:"selection"`
	Duplicate bool                      `json:"duplicate"`
}
