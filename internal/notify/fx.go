package notify

import (
	"context"
	"strings"

	"github.com/smallbiznis/fleetrent/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(NewPublisher),
)

// NewPublisher falls back to logging when the broker is not configured or
// cannot be reached at startup.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	var publisher Publisher
	if strings.TrimSpace(cfg.RabbitMQ.URL) == "" {
		publisher = NewLogPublisher(log)
	} else {
		amqpPublisher, err := NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, events will only be logged", zap.Error(err))
			publisher = NewLogPublisher(log)
		} else {
			publisher = amqpPublisher
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}

// PublishAsync publishes without blocking the caller; failures are logged.
func PublishAsync(publisher Publisher, log *zap.Logger, event Event) {
	if publisher == nil {
		return
	}
	go func() {
		if err := publisher.Publish(context.Background(), event); err != nil {
			log.Warn("publish event failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
		}
	}()
}
