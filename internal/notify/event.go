package notify

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys consumed by the notification service.
const (
	EventPaymentCaptured   = "selection.payment_captured"
	EventPaymentFailed     = "selection.payment_failed"
	EventPaymentRecorded   = "selection.payment_recorded"
	EventWalletTransaction = "wallet.transaction_recorded"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Subject    string         `json:"subject"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id. subject is the selection id or wallet phone.
func NewEvent(eventType, subject string, occurredAt time.Time, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Subject:    subject,
		Payload:    payload,
	}
}
