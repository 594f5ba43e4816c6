package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, policy *config.RentPolicyHolder, log *zap.Logger) error {
		if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}

		if cfg.Rent.PlanSeedFile == "" {
			return nil
		}
		count, err := seed.SeedPlans(context.Background(), conn, node, cfg.Rent.PlanSeedFile, policy.Get().DefaultAccidentalCover)
		if err != nil {
			return err
		}
		log.Named("migrations").Info("plan catalog seeded",
			zap.String("file", cfg.Rent.PlanSeedFile),
			zap.Int("plans", count),
		)
		return nil
	}),
)
