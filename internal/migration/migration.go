package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	walletdomain "github.com/smallbiznis/fleetrent/internal/wallet/domain"
	"github.com/smallbiznis/fleetrent/pkg/db"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema. All rent tables are
// created on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&plandomain.Plan{},
		&selectiondomain.Selection{},
		&selectiondomain.DriverPayment{},
		&selectiondomain.AdminPayment{},
		&selectiondomain.AdjustmentEntry{},
		&selectiondomain.ExtraAmountEntry{},
		&paymentdomain.EventRecord{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
	}
}

// AutoMigrate builds the schema from the models for dialects without
// versioned SQL (sqlite and mysql).
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Apply picks the migration strategy for the configured database type.
func Apply(conn *gorm.DB, dbType string) error {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", db.TypePostgres:
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	case db.TypeSQLite, db.TypeMySQL:
		return AutoMigrate(conn)
	default:
		return fmt.Errorf("unsupported database type %q", dbType)
	}
}
