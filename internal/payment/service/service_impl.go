package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	"github.com/smallbiznis/fleetrent/internal/clock"
	"github.com/smallbiznis/fleetrent/internal/notify"
	obsmetrics "github.com/smallbiznis/fleetrent/internal/observability/metrics"
	"github.com/smallbiznis/fleetrent/internal/payment/allocation"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Engine       *accrual.Engine
	SelectionSvc selectiondomain.Service
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
	Publisher    notify.Publisher    `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	engine       *accrual.Engine
	selectionSvc selectiondomain.Service
	obsMetrics   *obsmetrics.Metrics
	publisher    notify.Publisher
}

func NewService(p Params) paymentdomain.Reconciler {
	return &Service{
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		engine:       p.Engine,
		selectionSvc: p.SelectionSvc,
		obsMetrics:   p.ObsMetrics,
		publisher:    p.Publisher,
	}
}

// ConfirmGatewayPayment records a gateway outcome. Captured payments move the
// deposit or rent bucket once per dedupe key; other outcomes are audit entries.
func (s *Service) ConfirmGatewayPayment(ctx context.Context, selectionID string, outcome paymentdomain.GatewayOutcome) (paymentdomain.Result, error) {
	id, err := parseSelectionID(selectionID)
	if err != nil {
		return paymentdomain.Result{}, err
	}

	status, err := selectiondomain.ParseGatewayStatus(outcome.Status)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	paymentType := selectiondomain.PaymentTypeRent
	if strings.TrimSpace(outcome.Type) != "" {
		paymentType, err = selectiondomain.ParsePaymentType(outcome.Type)
		if err != nil {
			return paymentdomain.Result{}, err
		}
	}
	key := selectiondomain.DedupeKey(outcome.TransactionID, outcome.MerchantOrderID)
	if key == "" {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidTransactionID
	}
	if !outcome.Amount.IsPositive() {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidAmount
	}
	amount := outcome.Amount.Round(2)
	gateway := strings.ToLower(strings.TrimSpace(outcome.Gateway))

	duplicate := false
	selection, err := s.selectionSvc.Mutate(ctx, id, func(selection *selectiondomain.Selection) error {
		duplicate = false
		now := s.clock.Now()
		paidAt := now
		if outcome.OccurredAt != nil && !outcome.OccurredAt.IsZero() {
			paidAt = outcome.OccurredAt.UTC()
		}

		entry := selectiondomain.DriverPayment{
			ID:              s.genID.Generate(),
			SelectionID:     selection.ID,
			Date:            paidAt,
			Amount:          amount,
			Mode:            selectiondomain.PaymentModeOnline,
			Type:            paymentType,
			TransactionID:   strings.TrimSpace(outcome.TransactionID),
			MerchantOrderID: strings.TrimSpace(outcome.MerchantOrderID),
			PaymentToken:    strings.TrimSpace(outcome.PaymentToken),
			Gateway:         gateway,
			Status:          status,
			CreatedAt:       now,
		}

		if status != selectiondomain.GatewayStatusCaptured {
			if selection.HasAttempt(key, status) {
				duplicate = true
				return selectiondomain.ErrNoChange
			}
			selection.DriverPayments = append(selection.DriverPayments, entry)
			if status == selectiondomain.GatewayStatusFailed && selection.PaymentStatus == selectiondomain.PaymentStatusPending {
				selection.PaymentStatus = selectiondomain.PaymentStatusFailed
			}
			return nil
		}

		if selection.HasCaptured(entry.TransactionID, entry.MerchantOrderID) {
			duplicate = true
			return selectiondomain.ErrNoChange
		}

		entry.MarkCaptured()
		selection.DriverPayments = append(selection.DriverPayments, entry)

		selection.StartClock(now)
		if paymentType.IsDeposit() {
			selection.DepositPaid = selection.DepositPaid.Add(amount)
		} else {
			selection.RentPaid = selection.RentPaid.Add(amount)
		}
		selection.PaymentStatus = selectiondomain.PaymentStatusCompleted
		s.selectionSvc.ApplyDues(selection, now)
		return nil
	})
	if err != nil {
		return paymentdomain.Result{}, err
	}

	if duplicate {
		s.obsMetrics.RecordDuplicateEvent(ctx, gateway)
		s.log.Info("duplicate gateway payment ignored",
			zap.String("selection_id", id.String()),
			zap.String("dedupe_key", key),
			zap.String("status", string(status)),
		)
		return paymentdomain.Result{Selection: selection, Duplicate: true}, nil
	}

	s.obsMetrics.RecordPaymentEvent(ctx, gateway, string(status))
	eventType := notify.EventPaymentFailed
	if status == selectiondomain.GatewayStatusCaptured {
		s.obsMetrics.RecordPaymentApplied(ctx, "gateway", string(paymentType))
		eventType = notify.EventPaymentCaptured
	}
	if status == selectiondomain.GatewayStatusCaptured || status == selectiondomain.GatewayStatusFailed {
		s.publish(notify.NewEvent(eventType, id.String(), s.clock.Now(), map[string]any{
			"subjectMobile": selection.SubjectMobile,
			"amount":        amount.StringFixed(2),
			"type":          string(paymentType),
			"transactionId": key,
			"gateway":       gateway,
		}))
	}

	s.log.Info("gateway payment recorded",
		zap.String("selection_id", id.String()),
		zap.String("dedupe_key", key),
		zap.String("status", string(status)),
		zap.String("amount", amount.String()),
	)
	return paymentdomain.Result{Selection: selection}, nil
}

// ConfirmManualPayment splits an operator-entered amount over the selection's
// buckets in fixed priority and records a single admin payment.
func (s *Service) ConfirmManualPayment(ctx context.Context, selectionID string, req paymentdomain.ManualPayment) (paymentdomain.Result, error) {
	id, err := parseSelectionID(selectionID)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	mode, err := selectiondomain.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	paymentType := selectiondomain.PaymentTypeRent
	if strings.TrimSpace(req.PaymentType) != "" {
		paymentType, err = selectiondomain.ParsePaymentType(req.PaymentType)
		if err != nil {
			return paymentdomain.Result{}, err
		}
	}
	if req.PaidAmount != nil && !req.PaidAmount.IsPositive() {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidAmount
	}

	var recorded selectiondomain.AdminPayment
	selection, err := s.selectionSvc.Mutate(ctx, id, func(selection *selectiondomain.Selection) error {
		now := s.clock.Now()
		s.selectionSvc.ApplyDues(selection, now)

		var amount decimal.Decimal
		if req.PaidAmount != nil {
			amount = req.PaidAmount.Round(2)
		} else {
			amount = selection.Outstanding()
			if !amount.IsPositive() {
				return paymentdomain.ErrNothingOutstanding
			}
		}

		split := allocation.Plan(manualSteps(selection), amount)
		deposit := split.Get(allocation.BucketDeposit)
		rent := split.Get(allocation.BucketRent)
		cover := split.Get(allocation.BucketCover)
		extra := split.Get(allocation.BucketExtra)
		overflow := split.Get(allocation.BucketOverflow)

		selection.DepositPaid = selection.DepositPaid.Add(deposit)
		selection.RentPaid = selection.RentPaid.Add(rent)
		selection.AccidentalCoverPaid = selection.AccidentalCoverPaid.Add(cover)
		selection.ExtraAmountPaid = selection.ExtraAmountPaid.Add(extra).Add(overflow)
		selection.AdminPaidAmount = selection.AdminPaidAmount.Add(amount)

		if overflow.IsPositive() {
			reason := s.engine.Policy().OverpaymentReason
			selection.ExtraAmount = selection.ExtraAmount.Add(overflow)
			selection.ExtraReason = reason
			selection.ExtraAmounts = append(selection.ExtraAmounts, selectiondomain.ExtraAmountEntry{
				ID:          s.genID.Generate(),
				SelectionID: selection.ID,
				Amount:      overflow,
				Reason:      reason,
				Date:        now,
			})
		}

		recorded = selectiondomain.AdminPayment{
			ID:                  s.genID.Generate(),
			SelectionID:         selection.ID,
			Date:                now,
			Amount:              amount,
			Mode:                mode,
			Type:                paymentType,
			DepositPaid:         deposit,
			RentPaid:            rent,
			AccidentalCoverPaid: cover,
			ExtraAmountPaid:     extra.Add(overflow),
			Reference:           ulid.Make().String(),
			CreatedAt:           now,
		}
		selection.AdminPayments = append(selection.AdminPayments, recorded)

		selection.StartClock(now)
		if selection.PaymentStatus != selectiondomain.PaymentStatusCompleted {
			selection.PaymentStatus = selectiondomain.PaymentStatusCompleted
		}
		s.selectionSvc.ApplyDues(selection, now)
		return nil
	})
	if err != nil {
		return paymentdomain.Result{}, err
	}

	s.obsMetrics.RecordPaymentApplied(ctx, "manual", string(paymentType))
	s.publish(notify.NewEvent(notify.EventPaymentRecorded, id.String(), s.clock.Now(), map[string]any{
		"subjectMobile": selection.SubjectMobile,
		"amount":        recorded.Amount.StringFixed(2),
		"mode":          string(mode),
		"reference":     recorded.Reference,
	}))

	s.log.Info("manual payment recorded",
		zap.String("selection_id", id.String()),
		zap.String("reference", recorded.Reference),
		zap.String("amount", recorded.Amount.String()),
		zap.String("deposit", recorded.DepositPaid.String()),
		zap.String("rent", recorded.RentPaid.String()),
	)
	return paymentdomain.Result{Selection: selection}, nil
}

// RecordAdjustment sets the running adjustment on the selection. Negative
// amounts are discounts.
func (s *Service) RecordAdjustment(ctx context.Context, selectionID string, req paymentdomain.ChargeRequest) (selectiondomain.Selection, error) {
	id, err := parseSelectionID(selectionID)
	if err != nil {
		return selectiondomain.Selection{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return selectiondomain.Selection{}, paymentdomain.ErrInvalidReason
	}
	amount := req.Amount.Round(2)
	if amount.IsZero() {
		return selectiondomain.Selection{}, paymentdomain.ErrInvalidAmount
	}

	selection, err := s.selectionSvc.Mutate(ctx, id, func(selection *selectiondomain.Selection) error {
		if selection.Status.Terminal() {
			return selectiondomain.ErrSelectionClosed
		}
		now := s.clock.Now()
		selection.AdjustmentAmount = selection.AdjustmentAmount.Add(amount)
		selection.AdjustmentReason = reason
		selection.Adjustments = append(selection.Adjustments, selectiondomain.AdjustmentEntry{
			ID:          s.genID.Generate(),
			SelectionID: selection.ID,
			Amount:      amount,
			Reason:      reason,
			Date:        now,
		})
		s.selectionSvc.ApplyDues(selection, now)
		return nil
	})
	if err != nil {
		return selectiondomain.Selection{}, err
	}

	s.obsMetrics.RecordSelectionCharge(ctx, "adjustment")
	return selection, nil
}

func (s *Service) RecordExtraCharge(ctx context.Context, selectionID string, req paymentdomain.ChargeRequest) (selectiondomain.Selection, error) {
	id, err := parseSelectionID(selectionID)
	if err != nil {
		return selectiondomain.Selection{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return selectiondomain.Selection{}, paymentdomain.ErrInvalidReason
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return selectiondomain.Selection{}, paymentdomain.ErrInvalidAmount
	}

	selection, err := s.selectionSvc.Mutate(ctx, id, func(selection *selectiondomain.Selection) error {
		if selection.Status.Terminal() {
			return selectiondomain.ErrSelectionClosed
		}
		now := s.clock.Now()
		selection.ExtraAmount = selection.ExtraAmount.Add(amount)
		selection.ExtraReason = reason
		selection.ExtraAmounts = append(selection.ExtraAmounts, selectiondomain.ExtraAmountEntry{
			ID:          s.genID.Generate(),
			SelectionID: selection.ID,
			Amount:      amount,
			Reason:      reason,
			Date:        now,
		})
		s.selectionSvc.ApplyDues(selection, now)
		return nil
	})
	if err != nil {
		return selectiondomain.Selection{}, err
	}

	s.obsMetrics.RecordSelectionCharge(ctx, "extra_charge")
	return selection, nil
}

// manualSteps lists the open balance of each bucket in payment priority.
func manualSteps(selection *selectiondomain.Selection) []allocation.Step {
	extraOpen := selection.ExtraAmount.
		Add(selection.AdjustmentAmount).
		Sub(selection.ExtraAmountPaid)
	return []allocation.Step{
		allocation.Bounded(allocation.BucketDeposit, selection.SecurityDeposit.Sub(selection.DepositPaid)),
		allocation.Bounded(allocation.BucketRent, selection.CalculatedRent.Sub(selection.RentPaid)),
		allocation.Bounded(allocation.BucketCover, selection.CalculatedCover.Sub(selection.AccidentalCoverPaid)),
		allocation.Bounded(allocation.BucketExtra, extraOpen),
		allocation.Unbounded(allocation.BucketOverflow),
	}
}

func (s *Service) publish(event notify.Event) {
	notify.PublishAsync(s.publisher, s.log, event)
}

func parseSelectionID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, selectiondomain.ErrInvalidSelectionID
	}
	return id, nil
}
