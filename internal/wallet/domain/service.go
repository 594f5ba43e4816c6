package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/pkg/db/pagination"
)

type ApplyRequest struct {
	Phone       string
	Type        string
	Amount      decimal.Decimal
	Description string
	// SubjectType is only used when the wallet is created.
	SubjectType string
}

type Result struct {
	Wallet      Wallet      `json:"wallet"`
	Transaction Transaction `json:"transaction"`
}

type ListTransactionsRequest struct {
	Phone string
	pagination.Pagination
}

type ListTransactionsResponse struct {
	Transactions []Transaction       `json:"transactions"`
	PageInfo     pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Credit(ctx context.Context, phone string, amount decimal.Decimal, description string) (Result, error)
	Debit(ctx context.Context, phone string, amount decimal.Decimal, description string) (Result, error)
	Apply(ctx context.Context, req ApplyRequest) (Result, error)
	Get(ctx context.Context, phone string) (Wallet, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

var (
	ErrInvalidPhone           = errors.New("invalid_phone")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidDescription     = errors.New("invalid_description")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInvalidSubjectType     = errors.New("invalid_subject_type")
	ErrNotFound               = errors.New("wallet_not_found")
	ErrConcurrentModification = errors.New("concurrent_modification")
)
