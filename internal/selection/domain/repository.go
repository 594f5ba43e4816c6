package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, selection *Selection) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Selection, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Selection, error)
	LoadLedgers(ctx context.Context, db *gorm.DB, selection *Selection) error

	// UpdateVersioned writes the mutable columns if the stored version still
	// equals expected, bumping it by one. It returns the affected row count.
	UpdateVersioned(ctx context.Context, db *gorm.DB, selection *Selection, expected int64) (int64, error)

	InsertDriverPayments(ctx context.Context, db *gorm.DB, entries []DriverPayment) error
	InsertAdminPayments(ctx context.Context, db *gorm.DB, entries []AdminPayment) error
	InsertAdjustments(ctx context.Context, db *gorm.DB, entries []AdjustmentEntry) error
	InsertExtraAmounts(ctx context.Context, db *gorm.DB, entries []ExtraAmountEntry) error
}

type ListFilter struct {
	SubjectID     string
	SubjectMobile string
	Status        Status
}
