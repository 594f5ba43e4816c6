package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	"github.com/smallbiznis/fleetrent/internal/clock"
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/observability/metrics"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	"github.com/smallbiznis/fleetrent/internal/ratelimit"
	"github.com/smallbiznis/fleetrent/internal/selection/domain"
	"github.com/smallbiznis/fleetrent/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Cfg     config.Config
	Clock   clock.Clock
	Engine  *accrual.Engine
	Guard   *ratelimit.MutationGuard  `optional:"true"`
	Metrics *metrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	engine  *accrual.Engine
	guard   *ratelimit.MutationGuard
	metrics *metrics.ReconcileMetrics
	retries int
}

func New(p Params) domain.Service {
	retries := p.Cfg.Rent.OptimisticRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("selection.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		engine:  p.Engine,
		guard:   p.Guard,
		metrics: p.Metrics,
		retries: retries,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSelectionRequest) (domain.Selection, error) {
	mobile := strings.TrimSpace(req.SubjectMobile)
	if mobile == "" {
		return domain.Selection{}, domain.ErrInvalidSubjectMobile
	}

	planType, err := plandomain.ParsePlanType(req.PlanType)
	if err != nil {
		return domain.Selection{}, err
	}

	planName := strings.TrimSpace(req.PlanName)
	if planName == "" {
		return domain.Selection{}, domain.ErrInvalidPlanName
	}

	subjectType, err := domain.ParseSubjectType(req.SubjectType)
	if err != nil {
		return domain.Selection{}, err
	}

	if req.SecurityDeposit.IsNegative() {
		return domain.Selection{}, domain.ErrInvalidSecurityDeposit
	}

	var planID *snowflake.ID
	if raw := strings.TrimSpace(req.PlanID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			return domain.Selection{}, domain.ErrInvalidPlanID
		}
		planID = &parsed
	}

	defaultCover := s.engine.Policy().DefaultAccidentalCover
	slab := plandomain.NormalizeSlab(planType, req.SelectedRentSlab, defaultCover)
	if err := plandomain.ValidateSlab(slab); err != nil {
		return domain.Selection{}, domain.ErrInvalidSelectedSlab
	}

	slabs := make([]plandomain.PlanSlab, 0, len(req.RentSlabs))
	for _, item := range req.RentSlabs {
		slabs = append(slabs, plandomain.NormalizeSlab(planType, item, defaultCover))
	}

	var subjectID *string
	if raw := strings.TrimSpace(req.SubjectID); raw != "" {
		subjectID = &raw
	}

	now := s.clock.Now()
	selection := domain.Selection{
		ID:                  s.genID.Generate(),
		SubjectID:           subjectID,
		SubjectType:         subjectType,
		SubjectMobile:       mobile,
		PlanID:              planID,
		PlanName:            planName,
		PlanType:            planType,
		SecurityDeposit:     req.SecurityDeposit.Round(2),
		RentSlabs:           slabs,
		SelectedSlab:        datatypes.NewJSONType(slab),
		Status:              domain.StatusActive,
		PaymentStatus:       domain.PaymentStatusPending,
		SelectedDate:        now,
		RentPerDay:          slab.RentPerDay,
		ExtraAmount:         decimal.Zero,
		AdjustmentAmount:    decimal.Zero,
		DepositPaid:         decimal.Zero,
		RentPaid:            decimal.Zero,
		ExtraAmountPaid:     decimal.Zero,
		AccidentalCoverPaid: decimal.Zero,
		AdminPaidAmount:     decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.ApplyDues(&selection, now)

	if err := s.repo.Insert(ctx, s.db, &selection); err != nil {
		return domain.Selection{}, err
	}
	emptyLedgers(&selection)

	s.log.Info("selection created",
		zap.String("selection_id", selection.ID.String()),
		zap.String("plan_type", string(planType)),
	)
	return selection, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Selection, error) {
	selectionID, err := parseID(id)
	if err != nil {
		return domain.Selection{}, err
	}

	item, err := s.load(ctx, s.db, selectionID)
	if err != nil {
		return domain.Selection{}, err
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSelectionRequest) ([]domain.Selection, error) {
	filter := domain.ListFilter{
		SubjectID:     strings.TrimSpace(req.SubjectID),
		SubjectMobile: strings.TrimSpace(req.SubjectMobile),
	}
	if filter.SubjectID == "" && filter.SubjectMobile == "" {
		return nil, domain.ErrInvalidSubject
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	selections := make([]domain.Selection, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if err := s.repo.LoadLedgers(ctx, s.db, item); err != nil {
			return nil, err
		}
		selections = append(selections, *item)
	}
	return selections, nil
}

func (s *Service) RentSummary(ctx context.Context, id string, asOf *time.Time) (domain.RentSummary, error) {
	selectionID, err := parseID(id)
	if err != nil {
		return domain.RentSummary{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, selectionID)
	if err != nil {
		return domain.RentSummary{}, err
	}
	if item == nil {
		return domain.RentSummary{}, domain.ErrNotFound
	}

	at := s.clock.Now()
	if asOf != nil {
		if asOf.IsZero() {
			return domain.RentSummary{}, domain.ErrInvalidAsOf
		}
		at = asOf.UTC()
	}

	return domain.RentSummary{
		SelectionID: item.ID,
		AsOf:        at,
		Summary:     s.engine.Summarize(item.AccrualInput(), at),
	}, nil
}

func (s *Service) Recompute(ctx context.Context, id string) (domain.Selection, error) {
	selectionID, err := parseID(id)
	if err != nil {
		return domain.Selection{}, err
	}
	return s.Mutate(ctx, selectionID, func(selection *domain.Selection) error {
		s.ApplyDues(selection, s.clock.Now())
		return nil
	})
}

// PauseAccrual freezes accrual at pausedAt. The earliest pause date of the
// current window wins; later calls are no-ops.
func (s *Service) PauseAccrual(ctx context.Context, id string, pausedAt *time.Time) (domain.Selection, error) {
	selectionID, err := parseID(id)
	if err != nil {
		return domain.Selection{}, err
	}
	at := s.clock.Now()
	if pausedAt != nil && !pausedAt.IsZero() {
		at = pausedAt.UTC()
	}

	return s.Mutate(ctx, selectionID, func(selection *domain.Selection) error {
		if selection.Status.Terminal() {
			return domain.ErrSelectionClosed
		}
		if selection.RentStartDate == nil {
			return domain.ErrNoChange
		}

		floor := *selection.RentStartDate
		resumed := selection.RentResumedDate
		if resumed != nil && resumed.After(floor) {
			floor = *resumed
		}
		if at.Before(floor) {
			at = floor
		}

		if selection.RentPausedDate != nil && resumed == nil {
			if !at.Before(*selection.RentPausedDate) {
				return domain.ErrNoChange
			}
		}

		// A new window replaces the previous one once accrual had resumed.
		selection.RentPausedDate = &at
		selection.RentResumedDate = nil
		return nil
	})
}

func (s *Service) ResumeAccrual(ctx context.Context, id string, resumedAt *time.Time) (domain.Selection, error) {
	selectionID, err := parseID(id)
	if err != nil {
		return domain.Selection{}, err
	}
	at := s.clock.Now()
	if resumedAt != nil && !resumedAt.IsZero() {
		at = resumedAt.UTC()
	}

	return s.Mutate(ctx, selectionID, func(selection *domain.Selection) error {
		if selection.Status.Terminal() {
			return domain.ErrSelectionClosed
		}
		if selection.RentPausedDate == nil || selection.RentResumedDate != nil {
			return domain.ErrNoChange
		}
		if at.Before(*selection.RentPausedDate) {
			at = *selection.RentPausedDate
		}
		selection.RentResumedDate = &at
		return nil
	})
}

func (s *Service) Transition(ctx context.Context, id string, target string) (domain.Selection, error) {
	selectionID, err := parseID(id)
	if err != nil {
		return domain.Selection{}, err
	}
	status, err := domain.ParseStatus(target)
	if err != nil {
		return domain.Selection{}, err
	}

	return s.Mutate(ctx, selectionID, func(selection *domain.Selection) error {
		if selection.Status == status {
			return domain.ErrNoChange
		}
		if !selection.Status.CanTransition(status) {
			return domain.ErrInvalidTransition
		}
		selection.Status = status
		return nil
	})
}

// ApplyDues stores a fresh snapshot of what the subject owes as of asOf.
func (s *Service) ApplyDues(selection *domain.Selection, asOf time.Time) {
	due := s.engine.DueAt(selection.AccrualInput(), asOf)
	at := asOf.UTC()

	selection.CalculatedDeposit = selection.SecurityDeposit
	selection.CalculatedRent = due.Rent
	selection.CalculatedCover = due.Cover
	selection.CalculatedTotal = selection.SecurityDeposit.
		Add(due.Rent).
		Add(due.Cover).
		Add(selection.ExtraAmount).
		Add(selection.AdjustmentAmount)
	selection.CalculatedAt = &at
}

// Mutate loads the selection, applies fn and writes it back guarded by the
// row version. New ledger entries appended by fn are inserted in the same
// transaction. Version conflicts are retried with a fresh read.
func (s *Service) Mutate(ctx context.Context, id snowflake.ID, fn domain.MutateFunc) (domain.Selection, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveDuration(metrics.EntitySelection, time.Since(started))
	}()

	var result domain.Selection
	err := s.guard.Do(ctx, metrics.EntitySelection, id.String(), func(ctx context.Context) error {
		return db.RetryOnConflict(ctx, s.retries, isConflict, func(attempt int) error {
			s.metrics.IncAttempt(metrics.EntitySelection)

			updated, err := s.mutateOnce(ctx, id, fn)
			if isConflict(err) {
				s.metrics.IncConflict(metrics.EntitySelection)
				s.log.Debug("selection version conflict",
					zap.String("selection_id", id.String()),
					zap.Int("attempt", attempt),
				)
			}
			if err != nil {
				return err
			}
			result = updated
			return nil
		})
	})
	if err != nil {
		s.metrics.IncFailure(metrics.EntitySelection, err, isConflict(err))
		return domain.Selection{}, err
	}
	return result, nil
}

func (s *Service) mutateOnce(ctx context.Context, id snowflake.ID, fn domain.MutateFunc) (domain.Selection, error) {
	selection, err := s.load(ctx, s.db, id)
	if err != nil {
		return domain.Selection{}, err
	}

	expected := selection.Version
	loadedDriver := len(selection.DriverPayments)
	loadedAdmin := len(selection.AdminPayments)
	loadedAdjustments := len(selection.Adjustments)
	loadedExtras := len(selection.ExtraAmounts)

	if err := fn(selection); err != nil {
		if errors.Is(err, domain.ErrNoChange) {
			return *selection, nil
		}
		return domain.Selection{}, err
	}
	selection.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.UpdateVersioned(ctx, tx, selection, expected)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrConcurrentModification
		}
		if err := s.repo.InsertDriverPayments(ctx, tx, selection.DriverPayments[loadedDriver:]); err != nil {
			return err
		}
		if err := s.repo.InsertAdminPayments(ctx, tx, selection.AdminPayments[loadedAdmin:]); err != nil {
			return err
		}
		if err := s.repo.InsertAdjustments(ctx, tx, selection.Adjustments[loadedAdjustments:]); err != nil {
			return err
		}
		return s.repo.InsertExtraAmounts(ctx, tx, selection.ExtraAmounts[loadedExtras:])
	})
	if err != nil {
		// A concurrent writer inserted the same dedupe key first.
		if db.IsDuplicateKeyErr(err) {
			return domain.Selection{}, domain.ErrConcurrentModification
		}
		return domain.Selection{}, err
	}

	selection.Version = expected + 1
	return *selection, nil
}

func (s *Service) load(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Selection, error) {
	item, err := s.repo.FindByID(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.repo.LoadLedgers(ctx, conn, item); err != nil {
		return nil, err
	}
	return item, nil
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConcurrentModification)
}

func emptyLedgers(selection *domain.Selection) {
	selection.DriverPayments = []domain.DriverPayment{}
	selection.AdminPayments = []domain.AdminPayment{}
	selection.Adjustments = []domain.AdjustmentEntry{}
	selection.ExtraAmounts = []domain.ExtraAmountEntry{}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidSelectionID
	}
	return id, nil
}
