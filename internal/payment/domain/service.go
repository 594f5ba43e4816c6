package domain

import (
	"context"
	"errors"
	"net/http"

	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
)

// Reconciler applies money movements to a selection.
type Reconciler interface {
	ConfirmGatewayPayment(ctx context.Context, selectionID string, outcome GatewayOutcome) (Result, error)
	ConfirmManualPayment(ctx context.Context, selectionID string, req ManualPayment) (Result, error)
	RecordAdjustment(ctx context.Context, selectionID string, req ChargeRequest) (selectiondomain.Selection, error)
	RecordExtraCharge(ctx context.Context, selectionID string, req ChargeRequest) (selectiondomain.Selection, error)
}

// WebhookService authenticates raw gateway callbacks and forwards them to the Reconciler.
type WebhookService interface {
	Ingest(ctx context.Context, gateway string, payload []byte, headers http.Header) (Result, error)
}

var (
	ErrInvalidGateway        = errors.New("invalid_gateway")
	ErrProviderNotFound      = errors.New("payment_provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_gateway_config")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidSelectionRef   = errors.New("invalid_selection_reference")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrRateLimited           = errors.New("webhook_rate_limited")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidTransactionID  = errors.New("invalid_transaction_id")
	ErrNothingOutstanding    = errors.New("nothing_outstanding")
	ErrInvalidReason         = errors.New("invalid_reason")
	ErrServiceUnavailable    = errors.New("payment_service_unavailable")
)
