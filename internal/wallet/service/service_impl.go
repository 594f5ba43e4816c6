package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/clock"
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/notify"
	"github.com/smallbiznis/fleetrent/internal/observability/metrics"
	"github.com/smallbiznis/fleetrent/internal/ratelimit"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	"github.com/smallbiznis/fleetrent/internal/wallet/domain"
	"github.com/smallbiznis/fleetrent/pkg/db"
	"github.com/smallbiznis/fleetrent/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Cfg        config.Config
	Clock      clock.Clock
	Guard      *ratelimit.MutationGuard  `optional:"true"`
	Metrics    *metrics.ReconcileMetrics `optional:"true"`
	ObsMetrics *metrics.Metrics          `optional:"true"`
	Publisher  notify.Publisher          `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	guard      *ratelimit.MutationGuard
	metrics    *metrics.ReconcileMetrics
	obsMetrics *metrics.Metrics
	publisher  notify.Publisher
	retries    int
}

func New(p Params) domain.Service {
	retries := p.Cfg.Rent.OptimisticRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		guard:      p.Guard,
		metrics:    p.Metrics,
		obsMetrics: p.ObsMetrics,
		publisher:  p.Publisher,
		retries:    retries,
	}
}

func (s *Service) Credit(ctx context.Context, phone string, amount decimal.Decimal, description string) (domain.Result, error) {
	return s.Apply(ctx, domain.ApplyRequest{
		Phone:       phone,
		Type:        string(domain.TransactionTypeCredit),
		Amount:      amount,
		Description: description,
	})
}

// Debit never checks the balance; wallets may go negative.
func (s *Service) Debit(ctx context.Context, phone string, amount decimal.Decimal, description string) (domain.Result, error) {
	return s.Apply(ctx, domain.ApplyRequest{
		Phone:       phone,
		Type:        string(domain.TransactionTypeDebit),
		Amount:      amount,
		Description: description,
	})
}

func (s *Service) Apply(ctx context.Context, req domain.ApplyRequest) (domain.Result, error) {
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return domain.Result{}, domain.ErrInvalidPhone
	}
	txType, err := domain.ParseTransactionType(req.Type)
	if err != nil {
		return domain.Result{}, err
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return domain.Result{}, domain.ErrInvalidAmount
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Result{}, domain.ErrInvalidDescription
	}
	subjectType, err := selectiondomain.ParseSubjectType(req.SubjectType)
	if err != nil {
		return domain.Result{}, domain.ErrInvalidSubjectType
	}

	started := time.Now()
	defer func() {
		s.metrics.ObserveDuration(metrics.EntityWallet, time.Since(started))
	}()

	var result domain.Result
	err = s.guard.Do(ctx, metrics.EntityWallet, phone, func(ctx context.Context) error {
		return db.RetryOnConflict(ctx, s.retries, isConflict, func(attempt int) error {
			s.metrics.IncAttempt(metrics.EntityWallet)

			applied, err := s.applyOnce(ctx, phone, string(subjectType), txType, amount, description)
			if isConflict(err) {
				s.metrics.IncConflict(metrics.EntityWallet)
				s.log.Debug("wallet version conflict", zap.String("phone", phone), zap.Int("attempt", attempt))
			}
			if err != nil {
				return err
			}
			result = applied
			return nil
		})
	})
	if err != nil {
		s.metrics.IncFailure(metrics.EntityWallet, err, isConflict(err))
		return domain.Result{}, err
	}

	s.obsMetrics.RecordWalletTransaction(ctx, string(txType))
	notify.PublishAsync(s.publisher, s.log, notify.NewEvent(notify.EventWalletTransaction, phone, result.Transaction.CreatedAt, map[string]any{
		"type":         string(txType),
		"amount":       amount.StringFixed(2),
		"balanceAfter": result.Transaction.BalanceAfter.StringFixed(2),
		"reference":    result.Transaction.Reference,
		"description":  description,
	}))
	s.log.Info("wallet transaction recorded",
		zap.String("phone", phone),
		zap.String("type", string(txType)),
		zap.String("amount", amount.String()),
		zap.String("reference", result.Transaction.Reference),
	)
	return result, nil
}

func (s *Service) applyOnce(
	ctx context.Context,
	phone string,
	subjectType string,
	txType domain.TransactionType,
	amount decimal.Decimal,
	description string,
) (domain.Result, error) {
	wallet, err := s.loadOrCreate(ctx, phone, subjectType)
	if err != nil {
		return domain.Result{}, err
	}

	now := s.clock.Now()
	expected := wallet.Version
	tx := domain.Transaction{
		ID:          s.genID.Generate(),
		WalletID:    wallet.ID,
		Amount:      amount,
		Description: description,
		Type:        txType,
		Reference:   ulid.Make().String(),
		CreatedAt:   now,
	}
	wallet.Balance = wallet.Balance.Add(tx.Signed())
	wallet.UpdatedAt = now
	tx.BalanceAfter = wallet.Balance

	// History is read inside the transaction so a failed read rolls the entry back.
	var transactions []domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(conn *gorm.DB) error {
		rows, err := s.repo.UpdateVersioned(ctx, conn, wallet, expected)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrConcurrentModification
		}
		if err := s.repo.InsertTransaction(ctx, conn, &tx); err != nil {
			return err
		}
		transactions, err = s.repo.ListAllTransactions(ctx, conn, wallet.ID)
		return err
	})
	if err != nil {
		return domain.Result{}, err
	}
	wallet.Version = expected + 1
	wallet.Transactions = transactions
	return domain.Result{Wallet: *wallet, Transaction: tx}, nil
}

// loadOrCreate opens a wallet on first use. A concurrent first use loses the
// unique phone race and is retried as a conflict.
func (s *Service) loadOrCreate(ctx context.Context, phone, subjectType string) (*domain.Wallet, error) {
	wallet, err := s.repo.FindByPhone(ctx, s.db, phone)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	now := s.clock.Now()
	wallet = &domain.Wallet{
		ID:          s.genID.Generate(),
		Phone:       phone,
		SubjectType: subjectType,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, wallet); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrConcurrentModification
		}
		return nil, err
	}
	return wallet, nil
}

func (s *Service) Get(ctx context.Context, phone string) (domain.Wallet, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.Wallet{}, domain.ErrInvalidPhone
	}
	wallet, err := s.repo.FindByPhone(ctx, s.db, phone)
	if err != nil {
		return domain.Wallet{}, err
	}
	if wallet == nil {
		return domain.Wallet{}, domain.ErrNotFound
	}
	transactions, err := s.repo.ListAllTransactions(ctx, s.db, wallet.ID)
	if err != nil {
		return domain.Wallet{}, err
	}
	wallet.Transactions = transactions
	return *wallet, nil
}

func (s *Service) ListTransactions(ctx context.Context, req domain.ListTransactionsRequest) (domain.ListTransactionsResponse, error) {
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return domain.ListTransactionsResponse{}, domain.ErrInvalidPhone
	}
	page := req.Pagination.Normalize()

	var beforeID *snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return domain.ListTransactionsResponse{}, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListTransactionsResponse{}, pagination.ErrInvalidPageToken
		}
		beforeID = &id
	}

	wallet, err := s.repo.FindByPhone(ctx, s.db, phone)
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}
	if wallet == nil {
		return domain.ListTransactionsResponse{}, domain.ErrNotFound
	}

	items, err := s.repo.ListTransactions(ctx, s.db, wallet.ID, beforeID, page.PageSize+1)
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, page.PageSize, func(tx *domain.Transaction) pagination.Cursor {
		return pagination.Cursor{
			ID:        tx.ID.String(),
			CreatedAt: tx.CreatedAt.Format(time.RFC3339),
		}
	})
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}

	transactions := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		transactions = append(transactions, *item)
	}
	return domain.ListTransactionsResponse{Transactions: transactions, PageInfo: pageInfo}, nil
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConcurrentModification)
}
