package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fleetrent/internal/selection/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, selection *domain.Selection) error {
	return db.WithContext(ctx).Create(selection).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Selection, error) {
	var selection domain.Selection
	err := db.WithContext(ctx).
		Model(&domain.Selection{}).
		Where("id = ?", id).
		Limit(1).
		Find(&selection).Error
	if err != nil {
		return nil, err
	}
	if selection.ID == 0 {
		return nil, nil
	}
	return &selection, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Selection, error) {
	var selections []*domain.Selection
	stmt := db.WithContext(ctx).Model(&domain.Selection{})
	if filter.SubjectID != "" {
		stmt = stmt.Where("subject_id = ?", filter.SubjectID)
	}
	if filter.SubjectMobile != "" {
		stmt = stmt.Where("subject_mobile = ?", filter.SubjectMobile)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	err := stmt.
		Order("selected_date desc, id desc").
		Find(&selections).Error
	if err != nil {
		return nil, err
	}
	return selections, nil
}

func (r *repo) LoadLedgers(ctx context.Context, db *gorm.DB, selection *domain.Selection) error {
	driverPayments := []domain.DriverPayment{}
	if err := db.WithContext(ctx).
		Where("selection_id = ?", selection.ID).
		Order("date asc, id asc").
		Find(&driverPayments).Error; err != nil {
		return err
	}

	adminPayments := []domain.AdminPayment{}
	if err := db.WithContext(ctx).
		Where("selection_id = ?", selection.ID).
		Order("date asc, id asc").
		Find(&adminPayments).Error; err != nil {
		return err
	}

	adjustments := []domain.AdjustmentEntry{}
	if err := db.WithContext(ctx).
		Where("selection_id = ?", selection.ID).
		Order("date asc, id asc").
		Find(&adjustments).Error; err != nil {
		return err
	}

	extraAmounts := []domain.ExtraAmountEntry{}
	if err := db.WithContext(ctx).
		Where("selection_id = ?", selection.ID).
		Order("date asc, id asc").
		Find(&extraAmounts).Error; err != nil {
		return err
	}

	selection.DriverPayments = driverPayments
	selection.AdminPayments = adminPayments
	selection.Adjustments = adjustments
	selection.ExtraAmounts = extraAmounts
	return nil
}

func (r *repo) UpdateVersioned(ctx context.Context, db *gorm.DB, s *domain.Selection, expected int64) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE plan_selections SET
			status = ?, payment_status = ?,
			rent_start_date = ?, rent_paused_date = ?, rent_resumed_date = ?, rent_per_day = ?,
			calculated_deposit = ?, calculated_rent = ?, calculated_cover = ?, calculated_total = ?, calculated_at = ?,
			extra_amount = ?, extra_reason = ?, adjustment_amount = ?, adjustment_reason = ?,
			deposit_paid = ?, rent_paid = ?, extra_amount_paid = ?, accidental_cover_paid = ?, admin_paid_amount = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		s.Status, s.PaymentStatus,
		s.RentStartDate, s.RentPausedDate, s.RentResumedDate, s.RentPerDay,
		s.CalculatedDeposit, s.CalculatedRent, s.CalculatedCover, s.CalculatedTotal, s.CalculatedAt,
		s.ExtraAmount, s.ExtraReason, s.AdjustmentAmount, s.AdjustmentReason,
		s.DepositPaid, s.RentPaid, s.ExtraAmountPaid, s.AccidentalCoverPaid, s.AdminPaidAmount,
		s.UpdatedAt,
		s.ID, expected,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) InsertDriverPayments(ctx context.Context, db *gorm.DB, entries []domain.DriverPayment) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entries).Error
}

func (r *repo) InsertAdminPayments(ctx context.Context, db *gorm.DB, entries []domain.AdminPayment) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entries).Error
}

func (r *repo) InsertAdjustments(ctx context.Context, db *gorm.DB, entries []domain.AdjustmentEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entries).Error
}

func (r *repo) InsertExtraAmounts(ctx context.Context, db *gorm.DB, entries []domain.ExtraAmountEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entries).Error
}
