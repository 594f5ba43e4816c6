package payment

import (
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/payment/adapters"
	"github.com/smallbiznis/fleetrent/internal/payment/adapters/phonepe"
	"github.com/smallbiznis/fleetrent/internal/payment/repository"
	paymentservice "github.com/smallbiznis/fleetrent/internal/payment/service"
	"github.com/smallbiznis/fleetrent/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(newRegistry),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

func newRegistry(cfg config.Config, log *zap.Logger) (*adapters.Registry, error) {
	registry, err := adapters.NewRegistry(adapters.Credentials(cfg), phonepe.NewFactory())
	if err != nil {
		return nil, err
	}
	log.Info("payment gateways registered", zap.Strings("gateways", registry.Gateways()))
	return registry, nil
}
