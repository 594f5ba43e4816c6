package main

import (
	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fleetrent/internal/accrual"
	"github.com/smallbiznis/fleetrent/internal/clock"
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/migration"
	"github.com/smallbiznis/fleetrent/internal/notify"
	"github.com/smallbiznis/fleetrent/internal/observability"
	"github.com/smallbiznis/fleetrent/internal/payment"
	"github.com/smallbiznis/fleetrent/internal/plan"
	"github.com/smallbiznis/fleetrent/internal/ratelimit"
	"github.com/smallbiznis/fleetrent/internal/selection"
	"github.com/smallbiznis/fleetrent/internal/server"
	"github.com/smallbiznis/fleetrent/internal/wallet"
	"github.com/smallbiznis/fleetrent/pkg/db"
	"go.uber.org/fx"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		accrual.Module,
		ratelimit.Module,
		notify.Module,
		plan.Module,
		selection.Module,
		payment.Module,
		wallet.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
