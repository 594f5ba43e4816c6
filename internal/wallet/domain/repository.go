package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*Wallet, error)
	Insert(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	// UpdateVersioned writes balance and bumps the version when it still equals expected.
	UpdateVersioned(ctx context.Context, db *gorm.DB, wallet *Wallet, expected int64) (int64, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) error
	ListAllTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]Transaction, error)
	// ListTransactions returns up to limit rows, newest first, with id below beforeID when set.
	ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID, beforeID *snowflake.ID, limit int) ([]*Transaction, error)
}
