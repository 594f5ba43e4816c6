package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
)

type CreateSelectionRequest struct {
	SubjectMobile    string
	SubjectID        string
	SubjectType      string
	PlanID           string
	PlanName         string
	PlanType         string
	SecurityDeposit  decimal.Decimal
	RentSlabs        []plandomain.PlanSlab
	SelectedRentSlab plandomain.PlanSlab
}

type ListSelectionRequest struct {
	SubjectID     string
	SubjectMobile string
	Status        string
}

type RentSummary struct {
	SelectionID snowflake.ID `json:"selectionId"`
	AsOf        time.Time    `json:"asOf"`
	accrual.Summary
}

// MutateFunc edits a freshly loaded selection in place. Returning ErrNoChange
// leaves storage untouched and hands back the loaded state.
type MutateFunc func(selection *Selection) error

type Service interface {
	Create(ctx context.Context, req CreateSelectionRequest) (Selection, error)
	Get(ctx context.Context, id string) (Selection, error)
	List(ctx context.Context, req ListSelectionRequest) ([]Selection, error)
	RentSummary(ctx context.Context, id string, asOf *time.Time) (RentSummary, error)
	Recompute(ctx context.Context, id string) (Selection, error)
	PauseAccrual(ctx context.Context, id string, pausedAt *time.Time) (Selection, error)
	ResumeAccrual(ctx context.Context, id string, resumedAt *time.Time) (Selection, error)
	Transition(ctx context.Context, id string, target string) (Selection, error)

	// Mutate runs fn under the per-selection optimistic write protocol.
	Mutate(ctx context.Context, id snowflake.ID, fn MutateFunc) (Selection, error)
	// ApplyDues refreshes the calculated* snapshot on a loaded selection.
	ApplyDues(selection *Selection, asOf time.Time)
}

var (
	ErrInvalidSelectionID     = errors.New("invalid_selection_id")
	ErrInvalidSubjectMobile   = errors.New("invalid_subject_mobile")
	ErrInvalidSubjectType     = errors.New("invalid_subject_type")
	ErrInvalidSubject         = errors.New("invalid_subject")
	ErrInvalidPlanName        = errors.New("invalid_plan_name")
	ErrInvalidPlanID          = errors.New("invalid_plan_id")
	ErrInvalidSecurityDeposit = errors.New("invalid_security_deposit")
	ErrInvalidSelectedSlab    = errors.New("invalid_selected_rent_slab")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidPaymentMode     = errors.New("invalid_payment_mode")
	ErrInvalidPaymentType     = errors.New("invalid_payment_type")
	ErrInvalidGatewayStatus   = errors.New("invalid_gateway_status")
	ErrInvalidAsOf            = errors.New("invalid_as_of")
	ErrInvalidTransition      = errors.New("invalid_status_transition")
	ErrSelectionClosed        = errors.New("selection_closed")
	ErrNotFound               = errors.New("selection_not_found")

	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrNoChange               = errors.New("no_change")
)
