package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fleetrent/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).
		Where("phone = ?", phone).
		Limit(1).
		Find(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).Create(wallet).Error
}

func (r *repo) UpdateVersioned(ctx context.Context, db *gorm.DB, wallet *domain.Wallet, expected int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		wallet.Balance,
		wallet.UpdatedAt,
		wallet.ID,
		expected,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) ListAllTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]domain.Transaction, error) {
	items := []domain.Transaction{}
	err := db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID, beforeID *snowflake.ID, limit int) ([]*domain.Transaction, error) {
	var items []*domain.Transaction
	stmt := db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if beforeID != nil {
		stmt = stmt.Where("id < ?", *beforeID)
	}
	err := stmt.
		Order("id desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
