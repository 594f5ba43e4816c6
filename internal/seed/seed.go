package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/plan/domain"
	"github.com/smallbiznis/fleetrent/internal/plan/repository"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

type planFile struct {
	Plans []planEntry `mapstructure:"plans"`
}

type planEntry struct {
	Code            string      `mapstructure:"code"`
	Name            string      `mapstructure:"name"`
	Type            string      `mapstructure:"type"`
	SecurityDeposit float64     `mapstructure:"securityDeposit"`
	RentSlabs       []slabEntry `mapstructure:"rentSlabs"`
}

type slabEntry struct {
	Trips           string  `mapstructure:"trips"`
	RentDay         float64 `mapstructure:"rentDay"`
	WeeklyRent      float64 `mapstructure:"weeklyRent"`
	AccidentalCover float64 `mapstructure:"accidentalCover"`
	AcceptanceRate  int     `mapstructure:"acceptanceRate"`
}

// SeedPlans upserts the plan catalog from a yaml file keyed by plan code.
// Re-running it with the same file leaves the catalog unchanged.
func SeedPlans(ctx context.Context, db *gorm.DB, node *snowflake.Node, path string, defaultCover decimal.Decimal) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return 0, fmt.Errorf("read plan seed: %w", err)
	}

	var file planFile
	if err := v.Unmarshal(&file); err != nil {
		return 0, fmt.Errorf("decode plan seed: %w", err)
	}

	plans := make([]*domain.Plan, 0, len(file.Plans))
	for i, entry := range file.Plans {
		plan, err := buildPlan(entry, defaultCover)
		if err != nil {
			return 0, fmt.Errorf("plan %d: %w", i, err)
		}
		plans = append(plans, plan)
	}

	repo := repository.Provide()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range plans {
			plan.ID = node.Generate()
			if err := repo.Upsert(ctx, tx, plan); err != nil {
				return fmt.Errorf("upsert plan %s: %w", plan.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(plans), nil
}

func buildPlan(entry planEntry, defaultCover decimal.Decimal) (*domain.Plan, error) {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return nil, domain.ErrInvalidPlanName
	}
	planType, err := domain.ParsePlanType(entry.Type)
	if err != nil {
		return nil, err
	}
	code := slug.Make(strings.TrimSpace(entry.Code))
	if code == "" {
		code = slug.Make(name)
	}
	deposit := decimal.NewFromFloat(entry.SecurityDeposit).Round(2)
	if deposit.IsNegative() {
		return nil, domain.ErrInvalidDeposit
	}
	if len(entry.RentSlabs) == 0 {
		return nil, domain.ErrInvalidSlab
	}

	slabs := make([]domain.PlanSlab, 0, len(entry.RentSlabs))
	for _, raw := range entry.RentSlabs {
		slab := domain.NormalizeSlab(planType, domain.PlanSlab{
			TripsLabel:            raw.Trips,
			RentPerDay:            decimal.NewFromFloat(raw.RentDay),
			WeeklyRent:            decimal.NewFromFloat(raw.WeeklyRent),
			AccidentalCover:       decimal.NewFromFloat(raw.AccidentalCover),
			AcceptanceRatePercent: raw.AcceptanceRate,
		}, defaultCover)
		if err := domain.ValidateSlab(slab); err != nil {
			return nil, err
		}
		slabs = append(slabs, slab)
	}

	return &domain.Plan{
		Code:            code,
		Name:            name,
		Type:            planType,
		SecurityDeposit: deposit,
		Slabs:           slabs,
	}, nil
}
