package webhook_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	"github.com/smallbiznis/fleetrent/internal/clock"
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/payment/adapters"
	"github.com/smallbiznis/fleetrent/internal/payment/adapters/phonepe"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/fleetrent/internal/payment/repository"
	paymentservice "github.com/smallbiznis/fleetrent/internal/payment/service"
	"github.com/smallbiznis/fleetrent/internal/payment/webhook"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	selectionrepo "github.com/smallbiznis/fleetrent/internal/selection/repository"
	selectionservice "github.com/smallbiznis/fleetrent/internal/selection/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	username = "fleet"
	password = "s3cret"
)

type harness struct {
	db           *gorm.DB
	node         *snowflake.Node
	selectionSvc selectiondomain.Service
	svc          paymentdomain.WebhookService
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC))
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
	reconciler := paymentservice.NewService(paymentservice.Params{
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Engine:       engine,
		SelectionSvc: selectionSvc,
	})
	registry, err := adapters.NewRegistry(adapters.Credentials(cfg), phonepe.NewFactory())
	require.NoError(t, err)
	svc := webhook.NewService(webhook.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       paymentrepo.Provide(),
		Adapters:   registry,
		Reconciler: reconciler,
	})
	return &harness{db: db, node: node, selectionSvc: selectionSvc, svc: svc}
}

func configured() config.Config {
	return config.Config{PhonePe: config.PhonePeConfig{
		MerchantID:      "FLEETMID",
		WebhookUsername: username,
		WebhookPassword: password,
	}}
}

func (h *harness) createDaily(t *testing.T) selectiondomain.Selection {
	t.Helper()
	slab := plandomain.PlanSlab{TripsLabel: "any", RentPerDay: decimal.NewFromInt(650)}
	created, err := h.selectionSvc.Create(context.Background(), selectiondomain.CreateSelectionRequest{
		SubjectMobile:    "9000000001",
		PlanName:         "Daily Flex",
		PlanType:         "daily",
		SecurityDeposit:  decimal.NewFromInt(2000),
		SelectedRentSlab: slab,
	})
	require.NoError(t, err)
	return created
}

func validHeaders() http.Header {
	sum := sha256.Sum256([]byte(username + ":" + password))
	headers := http.Header{}
	headers.Set("Authorization", hex.EncodeToString(sum[:]))
	return headers
}

func completed(selectionID snowflake.ID, orderID string, paise int64) []byte {
	return []byte(fmt.Sprintf(`{"event":"checkout.order.completed","payload":{"orderId":%q,"merchantOrderId":"M-%s","state":"COMPLETED","amount":%d,"metaInfo":{"udf1":%q},"paymentDetails":[{"paymentMode":"UPI_INTENT","transactionId":"T-%s","timestamp":1743494400000,"amount":%d,"state":"COMPLETED"}]}}`,
		orderID, orderID, paise, selectionID.String(), orderID, paise))
}

func TestIngestAppliesCapturedPayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, configured())
	sel := h.createDaily(t)

	result, err := h.svc.Ingest(ctx, "PhonePe", completed(sel.ID, "OMO1", 65000), validHeaders())
	require.NoError(t, err)

	got := result.Selection
	assert.True(t, got.RentPaid.Equal(decimal.NewFromInt(650)))
	require.Len(t, got.DriverPayments, 1)
	assert.Equal(t, "T-OMO1", got.DriverPayments[0].TransactionID)
	assert.Equal(t, "phonepe", got.DriverPayments[0].Gateway)
	require.NotNil(t, got.RentStartDate)
	assert.True(t, got.RentStartDate.Equal(time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, got.DriverPayments[0].Date.Equal(time.UnixMilli(1743494400000)))

	assertCount(t, h.db, "SELECT COUNT(1) FROM gateway_events WHERE processed_at IS NOT NULL", 1)
}

func TestIngestReplayIsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, configured())
	sel := h.createDaily(t)
	payload := completed(sel.ID, "OMO2", 65000)

	_, err := h.svc.Ingest(ctx, "phonepe", payload, validHeaders())
	require.NoError(t, err)

	_, err = h.svc.Ingest(ctx, "phonepe", payload, validHeaders())
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)

	loaded, err := h.selectionSvc.Get(ctx, sel.ID.String())
	require.NoError(t, err)
	assert.True(t, loaded.RentPaid.Equal(decimal.NewFromInt(650)))
	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_driver_payments", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM gateway_events", 1)
}

func TestIngestResumesUnprocessedEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, configured())
	sel := h.createDaily(t)
	payload := completed(sel.ID, "OMO3", 130000)

	// Stored by an earlier delivery that failed before processing.
	require.NoError(t, h.db.Create(&paymentdomain.EventRecord{
		ID:              h.node.Generate(),
		Gateway:         "phonepe",
		ProviderEventID: "checkout.order.completed:OMO3",
		EventType:       "checkout.order.completed",
		SelectionID:     sel.ID,
		Payload:         payload,
		ReceivedAt:      time.Now().UTC(),
	}).Error)

	result, err := h.svc.Ingest(ctx, "phonepe", payload, validHeaders())
	require.NoError(t, err)
	assert.True(t, result.Selection.RentPaid.Equal(decimal.NewFromInt(1300)))
	assertCount(t, h.db, "SELECT COUNT(1) FROM gateway_events WHERE processed_at IS NOT NULL", 1)
}

func TestIngestRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, configured())
	sel := h.createDaily(t)
	payload := completed(sel.ID, "OMO4", 65000)

	bad := http.Header{}
	bad.Set("Authorization", "deadbeef")
	_, err := h.svc.Ingest(ctx, "phonepe", payload, bad)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	_, err = h.svc.Ingest(ctx, "razorpay", payload, validHeaders())
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, err = h.svc.Ingest(ctx, " ", payload, validHeaders())
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidGateway)

	_, err = h.svc.Ingest(ctx, "phonepe", []byte("{"), validHeaders())
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = h.svc.Ingest(ctx, "phonepe", []byte(`{"event":"pg.refund.accepted","payload":{}}`), validHeaders())
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	assertCount(t, h.db, "SELECT COUNT(1) FROM gateway_events", 0)
}

func TestIngestUnknownSelectionLeavesEventPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, configured())

	_, err := h.svc.Ingest(ctx, "phonepe", completed(h.node.Generate(), "OMO5", 65000), validHeaders())
	assert.ErrorIs(t, err, selectiondomain.ErrNotFound)

	assertCount(t, h.db, "SELECT COUNT(1) FROM gateway_events WHERE processed_at IS NULL", 1)
}

func TestIngestWithoutCredentials(t *testing.T) {
	h := newHarness(t, config.Config{})

	_, err := h.svc.Ingest(context.Background(), "phonepe", []byte(`{}`), validHeaders())
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
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
