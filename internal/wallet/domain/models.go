package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

func ParseTransactionType(value string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(value))) {
	case TransactionTypeCredit:
		return TransactionTypeCredit, nil
	case TransactionTypeDebit:
		return TransactionTypeDebit, nil
	default:
		return "", ErrInvalidTransactionType
	}
}

// Wallet is a per-phone running balance. Balance may be negative.
type Wallet struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	Phone       string          `gorm:"not null;uniqueIndex" json:"phone"`
	SubjectType string          `gorm:"not null" json:"subjectType"`
	Balance     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balance"`
	Version     int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt   time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updatedAt"`

	Transactions []Transaction `gorm:"-" json:"transactions"`
}

func (Wallet) TableName() string { return "wallets" }

type Transaction struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	WalletID     snowflake.ID    `gorm:"not null;index" json:"-"`
	Amount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Description  string          `gorm:"not null" json:"description"`
	Type         TransactionType `gorm:"not null" json:"type"`
	Reference    string          `gorm:"not null;uniqueIndex" json:"reference"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balanceAfter"`
	CreatedAt    time.Time       `gorm:"not null" json:"date"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

// Signed returns the amount with the sign it contributes to the balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TransactionTypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
