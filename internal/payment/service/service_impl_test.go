package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	"github.com/smallbiznis/fleetrent/internal/clock"
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/notify"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
	paymentservice "github.com/smallbiznis/fleetrent/internal/payment/service"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	selectionrepo "github.com/smallbiznis/fleetrent/internal/selection/repository"
	selectionservice "github.com/smallbiznis/fleetrent/internal/selection/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events chan notify.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan notify.Event, 16)}
}

func (p *recordingPublisher) Publish(ctx context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events <- event
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) next(t *testing.T) notify.Event {
	t.Helper()
	select {
	case event := <-p.events:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return notify.Event{}
	}
}

type harness struct {
	db           *gorm.DB
	clock        *clock.FakeClock
	selectionSvc selectiondomain.Service
	svc          paymentdomain.Reconciler
	publisher    *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(start)
	engine := accrual.NewEngineWith(time.UTC, config.NewStaticRentPolicyHolder(config.DefaultRentPolicy()))

	selectionSvc := selectionservice.New(selectionservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   selectionrepo.Provide(),
		Cfg:    config.Config{Rent: config.RentConfig{OptimisticRetries: 3}},
		Clock:  clk,
		Engine: engine,
	})
	publisher := newRecordingPublisher()
	svc := paymentservice.NewService(paymentservice.Params{
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Engine:       engine,
		SelectionSvc: selectionSvc,
		Publisher:    publisher,
	})
	return &harness{db: db, clock: clk, selectionSvc: selectionSvc, svc: svc, publisher: publisher}
}

func (h *harness) createWeekly(t *testing.T) selectiondomain.Selection {
	t.Helper()
	slab := plandomain.PlanSlab{
		TripsLabel: "60+",
		RentPerDay: decimal.NewFromInt(500),
		WeeklyRent: decimal.NewFromInt(3000),
	}
	created, err := h.selectionSvc.Create(context.Background(), selectiondomain.CreateSelectionRequest{
		SubjectMobile:    "9876543210",
		PlanName:         "Gold Weekly",
		PlanType:         "weekly",
		SecurityDeposit:  decimal.NewFromInt(5000),
		RentSlabs:        []plandomain.PlanSlab{slab},
		SelectedRentSlab: slab,
	})
	require.NoError(t, err)
	return created
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func captured(tx string, value int64) paymentdomain.GatewayOutcome {
	return paymentdomain.GatewayOutcome{
		TransactionID: tx,
		Amount:        decimal.NewFromInt(value),
		Status:        "captured",
		Type:          "rent",
		Gateway:       "phonepe",
	}
}

func TestManualPaymentFillsDepositThenRent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	result, err := h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{
		PaymentMode: "cash",
		PaidAmount:  amount(5500),
	})
	require.NoError(t, err)

	got := result.Selection
	assert.False(t, result.Duplicate)
	assert.True(t, got.DepositPaid.Equal(decimal.NewFromInt(5000)))
	assert.True(t, got.RentPaid.Equal(decimal.NewFromInt(500)))
	assert.True(t, got.AccidentalCoverPaid.IsZero())
	assert.True(t, got.AdminPaidAmount.Equal(decimal.NewFromInt(5500)))
	require.NotNil(t, got.RentStartDate)
	assert.True(t, got.RentStartDate.Equal(start))
	assert.True(t, got.RentPerDay.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, selectiondomain.PaymentStatusCompleted, got.PaymentStatus)

	require.Len(t, got.AdminPayments, 1)
	entry := got.AdminPayments[0]
	assert.Equal(t, selectiondomain.PaymentModeCash, entry.Mode)
	assert.True(t, entry.DepositPaid.Equal(decimal.NewFromInt(5000)))
	assert.True(t, entry.RentPaid.Equal(decimal.NewFromInt(500)))
	assert.True(t, entry.AccidentalCoverPaid.IsZero())
	assert.True(t, entry.ExtraAmountPaid.IsZero())
	assert.NotEmpty(t, entry.Reference)

	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_admin_payments", 1)

	event := h.publisher.next(t)
	assert.Equal(t, notify.EventPaymentRecorded, event.Type)
	assert.Equal(t, sel.ID.String(), event.Subject)

	h.clock.AdvanceDays(3)
	summary, err := h.selectionSvc.RentSummary(ctx, sel.ID.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalDays)
	assert.True(t, summary.TotalDue.Equal(decimal.NewFromInt(1500)))
}

func TestManualOverpaymentBecomesExtraAmount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	result, err := h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{
		PaymentMode: "online",
		PaidAmount:  amount(9000),
	})
	require.NoError(t, err)

	got := result.Selection
	assert.True(t, got.DepositPaid.Equal(decimal.NewFromInt(5000)))
	assert.True(t, got.RentPaid.Equal(decimal.NewFromInt(3000)))
	assert.True(t, got.AccidentalCoverPaid.Equal(decimal.NewFromInt(105)))
	assert.True(t, got.ExtraAmount.Equal(decimal.NewFromInt(895)))
	assert.True(t, got.ExtraAmountPaid.Equal(decimal.NewFromInt(895)))
	assert.Equal(t, "overpayment", got.ExtraReason)
	require.Len(t, got.ExtraAmounts, 1)
	assert.Equal(t, "overpayment", got.ExtraAmounts[0].Reason)
	assert.True(t, got.TotalPaid().Equal(got.AdminPaidAmount))
	assert.True(t, got.Outstanding().IsZero(), got.Outstanding().String())
}

func TestManualPaymentDefaultsToOutstanding(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	result, err := h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{PaymentMode: "cash"})
	require.NoError(t, err)
	assert.True(t, result.Selection.AdminPaidAmount.Equal(decimal.NewFromInt(8105)))
	assert.True(t, result.Selection.Outstanding().IsZero())

	_, err = h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{PaymentMode: "cash"})
	assert.ErrorIs(t, err, paymentdomain.ErrNothingOutstanding)
}

func TestManualPaymentBucketsMatchLedger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	var last selectiondomain.Selection
	for _, paid := range []int64{1200, 4300, 2000, 700, 150} {
		result, err := h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{
			PaymentMode: "cash",
			PaidAmount:  amount(paid),
		})
		require.NoError(t, err)
		last = result.Selection
		h.clock.AdvanceDays(1)
	}

	deposit, rent, cover, extra, total := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, entry := range last.AdminPayments {
		deposit = deposit.Add(entry.DepositPaid)
		rent = rent.Add(entry.RentPaid)
		cover = cover.Add(entry.AccidentalCoverPaid)
		extra = extra.Add(entry.ExtraAmountPaid)
		total = total.Add(entry.Amount)
	}
	assert.Len(t, last.AdminPayments, 5)
	assert.True(t, last.DepositPaid.Equal(deposit))
	assert.True(t, last.RentPaid.Equal(rent))
	assert.True(t, last.AccidentalCoverPaid.Equal(cover))
	assert.True(t, last.ExtraAmountPaid.Equal(extra))
	assert.True(t, last.AdminPaidAmount.Equal(total))
	assert.True(t, total.Equal(decimal.NewFromInt(8350)))
	assert.True(t, last.RentStartDate.Equal(start), "clock starts on the first payment only")
}

func TestManualPaymentValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	_, err := h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{PaymentMode: "cash", PaidAmount: amount(0)})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{PaymentMode: "cheque", PaidAmount: amount(10)})
	assert.ErrorIs(t, err, selectiondomain.ErrInvalidPaymentMode)

	_, err = h.svc.ConfirmManualPayment(ctx, sel.ID.String(), paymentdomain.ManualPayment{PaymentMode: "cash", PaymentType: "tip", PaidAmount: amount(10)})
	assert.ErrorIs(t, err, selectiondomain.ErrInvalidPaymentType)

	_, err = h.svc.ConfirmManualPayment(ctx, "12345", paymentdomain.ManualPayment{PaymentMode: "cash", PaidAmount: amount(10)})
	assert.ErrorIs(t, err, selectiondomain.ErrNotFound)

	_, err = h.svc.ConfirmManualPayment(ctx, "abc", paymentdomain.ManualPayment{PaymentMode: "cash", PaidAmount: amount(10)})
	assert.ErrorIs(t, err, selectiondomain.ErrInvalidSelectionID)

	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_admin_payments", 0)
}

func TestGatewayReplayCreditsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	first, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), captured("tx1", 1000))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), captured("tx1", 1000))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.True(t, second.Selection.RentPaid.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, first.Selection.Version, second.Selection.Version)
	require.Len(t, second.Selection.DriverPayments, 1)
	assert.Equal(t, "tx1", second.Selection.DriverPayments[0].TransactionID)
	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_driver_payments", 1)

	event := h.publisher.next(t)
	assert.Equal(t, notify.EventPaymentCaptured, event.Type)
	assert.Equal(t, "tx1", event.Payload["transactionId"])
}

func TestGatewayCaptureMatchesOrderOrTransaction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	byOrder := paymentdomain.GatewayOutcome{
		MerchantOrderID: "M1",
		Amount:          decimal.NewFromInt(1000),
		Status:          "captured",
		Gateway:         "phonepe",
	}
	first, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), byOrder)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// The same order reported again with its transaction id.
	withTx := byOrder
	withTx.TransactionID = "T1"
	second, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), withTx)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.True(t, second.Selection.RentPaid.Equal(decimal.NewFromInt(1000)))

	// A transaction id already captured under another order is a replay too.
	first, err = h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), captured("T2", 500))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	otherOrder := captured("T2", 500)
	otherOrder.MerchantOrderID = "M2"
	second, err = h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), otherOrder)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.True(t, second.Selection.RentPaid.Equal(decimal.NewFromInt(1500)))
	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_driver_payments WHERE status = 'captured'", 2)
}

func TestCapturedOrderIsUniquePerSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	result, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), paymentdomain.GatewayOutcome{
		MerchantOrderID: "M7",
		Amount:          decimal.NewFromInt(1000),
		Status:          "captured",
		Gateway:         "phonepe",
	})
	require.NoError(t, err)
	require.Len(t, result.Selection.DriverPayments, 1)
	require.NotNil(t, result.Selection.DriverPayments[0].OrderKey)
	assert.Nil(t, result.Selection.DriverPayments[0].DedupeKey)

	orderKey := "M7"
	txKey := "T7"
	err = h.db.Create(&selectiondomain.DriverPayment{
		ID:              result.Selection.DriverPayments[0].ID + 1,
		SelectionID:     sel.ID,
		Date:            start,
		Amount:          decimal.NewFromInt(1000),
		Mode:            selectiondomain.PaymentModeOnline,
		Type:            selectiondomain.PaymentTypeRent,
		TransactionID:   txKey,
		MerchantOrderID: orderKey,
		Status:          selectiondomain.GatewayStatusCaptured,
		DedupeKey:       &txKey,
		OrderKey:        &orderKey,
		CreatedAt:       start,
	}).Error
	assert.Error(t, err)
}

func TestConcurrentGatewayCapturesCreditOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []paymentdomain.Result
		errs    []error
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), captured("tx1", 1000))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, result)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, results, deliveries)
	duplicates := 0
	for _, result := range results {
		if result.Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, deliveries-1, duplicates)

	loaded, err := h.selectionSvc.Get(ctx, sel.ID.String())
	require.NoError(t, err)
	assert.True(t, loaded.RentPaid.Equal(decimal.NewFromInt(1000)))
	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_driver_payments WHERE status = 'captured'", 1)
}

func TestGatewayCaptureStartsClockAndLocksRate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	h.clock.Advance(2 * time.Hour)
	result, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), paymentdomain.GatewayOutcome{
		MerchantOrderID: "order-1",
		Amount:          decimal.NewFromInt(5000),
		Status:          "captured",
		Type:            "security",
		Gateway:         "PhonePe",
	})
	require.NoError(t, err)

	got := result.Selection
	require.NotNil(t, got.RentStartDate)
	assert.True(t, got.RentStartDate.Equal(start.Add(2*time.Hour)))
	assert.True(t, got.RentPerDay.Equal(decimal.NewFromInt(500)))
	assert.True(t, got.DepositPaid.Equal(decimal.NewFromInt(5000)))
	assert.True(t, got.RentPaid.IsZero())
	assert.Equal(t, selectiondomain.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, "phonepe", got.DriverPayments[0].Gateway)

	// A later capture keeps the original start date.
	h.clock.AdvanceDays(2)
	result, err = h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), captured("tx2", 1000))
	require.NoError(t, err)
	assert.True(t, result.Selection.RentStartDate.Equal(start.Add(2*time.Hour)))
}

func TestGatewayCaptureStartsClockAtConfirmation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	paidAt := start.Add(-36 * time.Hour)
	outcome := captured("tx5", 3000)
	outcome.OccurredAt = &paidAt

	result, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), outcome)
	require.NoError(t, err)
	got := result.Selection
	require.NotNil(t, got.RentStartDate)
	assert.True(t, got.RentStartDate.Equal(start))
	require.Len(t, got.DriverPayments, 1)
	assert.True(t, got.DriverPayments[0].Date.Equal(paidAt))
}

func TestGatewayFailureIsAuditOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	failed := captured("tx9", 3000)
	failed.Status = "failed"

	result, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), failed)
	require.NoError(t, err)
	got := result.Selection
	assert.True(t, got.RentPaid.IsZero())
	assert.Nil(t, got.RentStartDate)
	assert.Equal(t, selectiondomain.PaymentStatusFailed, got.PaymentStatus)
	require.Len(t, got.DriverPayments, 1)
	assert.Nil(t, got.DriverPayments[0].DedupeKey)
	assert.Equal(t, notify.EventPaymentFailed, h.publisher.next(t).Type)

	replay, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), failed)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	// The same order may still capture after a failed attempt.
	result, err = h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), captured("tx9", 3000))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.True(t, result.Selection.RentPaid.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, selectiondomain.PaymentStatusCompleted, result.Selection.PaymentStatus)
	assert.Len(t, result.Selection.DriverPayments, 2)

	// Failures after completion do not regress the payment status.
	late := captured("tx10", 100)
	late.Status = "failed"
	result, err = h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), late)
	require.NoError(t, err)
	assert.Equal(t, selectiondomain.PaymentStatusCompleted, result.Selection.PaymentStatus)
}

func TestGatewayValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	zero := captured("tx1", 0)
	_, err := h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), zero)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), captured(" ", 10))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransactionID)

	badStatus := captured("tx1", 10)
	badStatus.Status = "settled"
	_, err = h.svc.ConfirmGatewayPayment(ctx, sel.ID.String(), badStatus)
	assert.ErrorIs(t, err, selectiondomain.ErrInvalidGatewayStatus)

	_, err = h.svc.ConfirmGatewayPayment(ctx, "777", captured("tx1", 10))
	assert.ErrorIs(t, err, selectiondomain.ErrNotFound)
}

func TestRecordAdjustmentAndExtraCharge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	adjusted, err := h.svc.RecordAdjustment(ctx, sel.ID.String(), paymentdomain.ChargeRequest{
		Amount: decimal.NewFromInt(-100),
		Reason: "loyalty",
	})
	require.NoError(t, err)
	assert.True(t, adjusted.AdjustmentAmount.Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, "loyalty", adjusted.AdjustmentReason)
	require.Len(t, adjusted.Adjustments, 1)
	assert.True(t, adjusted.CalculatedTotal.Equal(decimal.NewFromInt(8005)))

	charged, err := h.svc.RecordExtraCharge(ctx, sel.ID.String(), paymentdomain.ChargeRequest{
		Amount: decimal.NewFromInt(250),
		Reason: "traffic challan",
	})
	require.NoError(t, err)
	assert.True(t, charged.ExtraAmount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "traffic challan", charged.ExtraReason)
	require.Len(t, charged.ExtraAmounts, 1)
	assert.True(t, charged.CalculatedTotal.Equal(decimal.NewFromInt(8255)))

	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_adjustments", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_extra_amounts", 1)
}

func TestChargeValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sel := h.createWeekly(t)

	_, err := h.svc.RecordAdjustment(ctx, sel.ID.String(), paymentdomain.ChargeRequest{Amount: decimal.Zero, Reason: "x"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = h.svc.RecordAdjustment(ctx, sel.ID.String(), paymentdomain.ChargeRequest{Amount: decimal.NewFromInt(5), Reason: " "})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidReason)

	_, err = h.svc.RecordExtraCharge(ctx, sel.ID.String(), paymentdomain.ChargeRequest{Amount: decimal.NewFromInt(-5), Reason: "fine"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = h.selectionSvc.Transition(ctx, sel.ID.String(), "cancelled")
	require.NoError(t, err)

	_, err = h.svc.RecordExtraCharge(ctx, sel.ID.String(), paymentdomain.ChargeRequest{Amount: decimal.NewFromInt(5), Reason: "fine"})
	assert.ErrorIs(t, err, selectiondomain.ErrSelectionClosed)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&selectiondomain.Selection{},
		&selectiondomain.DriverPayment{},
		&selectiondomain.AdminPayment{},
		&selectiondomain.AdjustmentEntry{},
		&selectiondomain.ExtraAmountEntry{},
		&paymentdomain.EventRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}
