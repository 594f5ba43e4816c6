package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	"github.com/smallbiznis/fleetrent/internal/clock"
	"github.com/smallbiznis/fleetrent/internal/config"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	"github.com/smallbiznis/fleetrent/internal/selection/domain"
	"github.com/smallbiznis/fleetrent/internal/selection/repository"
	"github.com/smallbiznis/fleetrent/internal/selection/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type harness struct {
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
	svc   domain.Service
}

func newHarness(t *testing.T, retries int) *harness {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(start)
	engine := accrual.NewEngineWith(time.UTC, config.NewStaticRentPolicyHolder(config.DefaultRentPolicy()))

	svc := service.New(service.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Cfg:    config.Config{Rent: config.RentConfig{OptimisticRetries: retries}},
		Clock:  clk,
		Engine: engine,
	})
	return &harness{db: db, clock: clk, node: node, svc: svc}
}

func weeklyRequest(mobile string) domain.CreateSelectionRequest {
	slab := plandomain.PlanSlab{
		TripsLabel: "60+",
		RentPerDay: decimal.NewFromInt(500),
		WeeklyRent: decimal.NewFromInt(3000),
	}
	return domain.CreateSelectionRequest{
		SubjectMobile:    mobile,
		SubjectID:        "drv_1",
		PlanName:         "Gold Weekly",
		PlanType:         "weekly",
		SecurityDeposit:  decimal.NewFromInt(5000),
		RentSlabs:        []plandomain.PlanSlab{slab},
		SelectedRentSlab: slab,
	}
}

func (h *harness) startClock(t *testing.T, id snowflake.ID) {
	t.Helper()
	_, err := h.svc.Mutate(context.Background(), id, func(s *domain.Selection) error {
		s.StartClock(h.clock.Now())
		return nil
	})
	require.NoError(t, err)
}

func TestCreateWeeklySelectionStartsIdle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest(" 9876543210 "))
	require.NoError(t, err)

	assert.Equal(t, "9876543210", created.SubjectMobile)
	assert.Equal(t, domain.StatusActive, created.Status)
	assert.Equal(t, domain.PaymentStatusPending, created.PaymentStatus)
	assert.Equal(t, domain.SubjectTypeDriver, created.SubjectType)
	assert.Nil(t, created.RentStartDate)
	assert.True(t, created.Slab().AccidentalCover.Equal(decimal.NewFromInt(105)))
	assert.True(t, created.CalculatedTotal.Equal(decimal.NewFromInt(8105)), created.CalculatedTotal.String())
	assert.NotNil(t, created.DriverPayments)

	summary, err := h.svc.RentSummary(ctx, created.ID.String(), nil)
	require.NoError(t, err)
	assert.True(t, summary.RentPerDay.Equal(decimal.NewFromInt(500)))
	assert.Zero(t, summary.TotalDays)
	assert.True(t, summary.TotalDue.IsZero())

	loaded, err := h.svc.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Gold Weekly", loaded.PlanName)
	assert.Equal(t, "60+", loaded.Slab().TripsLabel)
	assert.Empty(t, loaded.DriverPayments)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	req := weeklyRequest("")
	_, err := h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidSubjectMobile)

	req = weeklyRequest("9876543210")
	req.PlanType = "monthly"
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlanType)

	req = weeklyRequest("9876543210")
	req.SelectedRentSlab = plandomain.PlanSlab{TripsLabel: "0"}
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidSelectedSlab)

	req = weeklyRequest("9876543210")
	req.SubjectType = "manager"
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidSubjectType)

	req = weeklyRequest("9876543210")
	req.SecurityDeposit = decimal.NewFromInt(-1)
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidSecurityDeposit)

	assertCount(t, h.db, "SELECT COUNT(1) FROM plan_selections", 0)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	first, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)
	h.clock.AdvanceDays(1)
	second, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, weeklyRequest("9000000000"))
	require.NoError(t, err)

	items, err := h.svc.List(ctx, domain.ListSelectionRequest{SubjectMobile: "9876543210"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)

	bySubject, err := h.svc.List(ctx, domain.ListSelectionRequest{SubjectID: "drv_1"})
	require.NoError(t, err)
	assert.Len(t, bySubject, 3)

	_, err = h.svc.List(ctx, domain.ListSelectionRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidSubject)
}

func TestGetUnknownSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	_, err := h.svc.Get(ctx, h.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidSelectionID)

	_, err = h.svc.RentSummary(ctx, h.node.Generate().String(), nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccrualAfterThreeDays(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)
	h.startClock(t, created.ID)

	asOf := start.AddDate(0, 0, 3)
	summary, err := h.svc.RentSummary(ctx, created.ID.String(), &asOf)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalDays)
	assert.True(t, summary.TotalDue.Equal(decimal.NewFromInt(1500)))
}

func TestPauseFreezesAccrualAndEarliestWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)

	// Not started yet: nothing to pause.
	notStarted, err := h.svc.PauseAccrual(ctx, created.ID.String(), nil)
	require.NoError(t, err)
	assert.Nil(t, notStarted.RentPausedDate)

	h.startClock(t, created.ID)

	pausedAt := start.AddDate(0, 0, 3)
	paused, err := h.svc.PauseAccrual(ctx, created.ID.String(), &pausedAt)
	require.NoError(t, err)
	require.NotNil(t, paused.RentPausedDate)

	later := start.AddDate(0, 0, 5)
	again, err := h.svc.PauseAccrual(ctx, created.ID.String(), &later)
	require.NoError(t, err)
	assert.Equal(t, paused.Version, again.Version)
	assert.True(t, again.RentPausedDate.Equal(pausedAt))

	asOf := start.AddDate(0, 0, 10)
	summary, err := h.svc.RentSummary(ctx, created.ID.String(), &asOf)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalDays)
	assert.True(t, summary.Paused)

	earlier := start.AddDate(0, 0, 2)
	moved, err := h.svc.PauseAccrual(ctx, created.ID.String(), &earlier)
	require.NoError(t, err)
	assert.True(t, moved.RentPausedDate.Equal(earlier))
}

func TestPauseBeforeStartClampsToStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)
	h.startClock(t, created.ID)

	before := start.AddDate(0, 0, -4)
	paused, err := h.svc.PauseAccrual(ctx, created.ID.String(), &before)
	require.NoError(t, err)
	assert.True(t, paused.RentPausedDate.Equal(start))
}

func TestResumeExcludesPausedWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)
	h.startClock(t, created.ID)

	pausedAt := start.AddDate(0, 0, 3)
	_, err = h.svc.PauseAccrual(ctx, created.ID.String(), &pausedAt)
	require.NoError(t, err)

	resumedAt := start.AddDate(0, 0, 6)
	resumed, err := h.svc.ResumeAccrual(ctx, created.ID.String(), &resumedAt)
	require.NoError(t, err)
	require.NotNil(t, resumed.RentResumedDate)

	asOf := start.AddDate(0, 0, 10)
	summary, err := h.svc.RentSummary(ctx, created.ID.String(), &asOf)
	require.NoError(t, err)
	assert.Equal(t, 7, summary.TotalDays)
	assert.False(t, summary.Paused)

	// Resuming twice changes nothing.
	again, err := h.svc.ResumeAccrual(ctx, created.ID.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, resumed.Version, again.Version)
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)
	id := created.ID.String()

	got, err := h.svc.Transition(ctx, id, "inactive")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, got.Status)

	got, err = h.svc.Transition(ctx, id, "active")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)

	got, err = h.svc.Transition(ctx, id, "completed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	_, err = h.svc.Transition(ctx, id, "active")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.svc.Transition(ctx, id, "archived")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = h.svc.PauseAccrual(ctx, id, nil)
	assert.ErrorIs(t, err, domain.ErrSelectionClosed)
}

func TestMutateRetriesAfterVersionConflict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)

	attempts := 0
	updated, err := h.svc.Mutate(ctx, created.ID, func(s *domain.Selection) error {
		attempts++
		if attempts == 1 {
			// Another writer lands between our read and our write.
			if err := h.db.Exec("UPDATE plan_selections SET version = version + 1 WHERE id = ?", s.ID).Error; err != nil {
				return err
			}
		}
		s.Adjustments = append(s.Adjustments, domain.AdjustmentEntry{
			ID:          h.node.Generate(),
			SelectionID: s.ID,
			Amount:      decimal.NewFromInt(-200),
			Reason:      "waiver",
			Date:        h.clock.Now(),
		})
		s.AdjustmentAmount = s.AdjustmentAmount.Add(decimal.NewFromInt(-200))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.AdjustmentAmount.Equal(decimal.NewFromInt(-200)))
	assertCount(t, h.db, "SELECT COUNT(1) FROM selection_adjustments", 1)
}

func TestMutateSurfacesConflictWhenBudgetSpent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)

	_, err = h.svc.Mutate(ctx, created.ID, func(s *domain.Selection) error {
		if err := h.db.Exec("UPDATE plan_selections SET version = version + 1 WHERE id = ?", s.ID).Error; err != nil {
			return err
		}
		s.ExtraAmount = decimal.NewFromInt(50)
		return nil
	})
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification), "got %v", err)

	loaded, err := h.svc.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.True(t, loaded.ExtraAmount.IsZero())
}

func TestMutateNoChangeSkipsWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)

	got, err := h.svc.Mutate(ctx, created.ID, func(*domain.Selection) error { return domain.ErrNoChange })
	require.NoError(t, err)
	assert.Equal(t, created.Version, got.Version)

	_, err = h.svc.Mutate(ctx, h.node.Generate(), func(*domain.Selection) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecomputeStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	created, err := h.svc.Create(ctx, weeklyRequest("9876543210"))
	require.NoError(t, err)
	h.startClock(t, created.ID)

	h.clock.AdvanceDays(10)
	got, err := h.svc.Recompute(ctx, created.ID.String())
	require.NoError(t, err)

	assert.True(t, got.CalculatedRent.Equal(decimal.NewFromInt(5000)), got.CalculatedRent.String())
	assert.True(t, got.CalculatedTotal.Equal(decimal.NewFromInt(10105)), got.CalculatedTotal.String())
	require.NotNil(t, got.CalculatedAt)
	assert.True(t, got.CalculatedAt.Equal(h.clock.Now()))
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
		&domain.Selection{},
		&domain.DriverPayment{},
		&domain.AdminPayment{},
		&domain.AdjustmentEntry{},
		&domain.ExtraAmountEntry{},
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
