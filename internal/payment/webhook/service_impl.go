package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fleetrent/internal/clock"
	obsmetrics "github.com/smallbiznis/fleetrent/internal/observability/metrics"
	"github.com/smallbiznis/fleetrent/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
	"github.com/smallbiznis/fleetrent/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Reconciler paymentdomain.Reconciler
	Limiter    *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	reconciler paymentdomain.Reconciler
	limiter    *ratelimit.WebhookLimiter
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		adapters:   p.Adapters,
		reconciler: p.Reconciler,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest authenticates a raw callback, stores it once per provider event id
// and hands the normalized outcome to the reconciler.
func (s *Service) Ingest(ctx context.Context, gateway string, payload []byte, headers http.Header) (paymentdomain.Result, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if gateway == "" {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidGateway
	}
	adapter, err := s.adapters.Adapter(gateway)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	if !json.Valid(payload) {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidPayload
	}

	if err := s.allow(ctx, gateway); err != nil {
		return paymentdomain.Result{}, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("gateway callback rejected", zap.String("gateway", gateway), zap.Error(err))
		return paymentdomain.Result{}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("gateway callback ignored", zap.String("gateway", gateway))
		}
		return paymentdomain.Result{}, err
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Gateway:         gateway,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.EventType,
		SelectionID:     event.SelectionID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, gateway, event.ProviderEventID)
		if err != nil {
			return paymentdomain.Result{}, err
		}
		if stored == nil {
			return paymentdomain.Result{}, paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.obsMetrics.RecordDuplicateEvent(ctx, gateway)
			return paymentdomain.Result{}, paymentdomain.ErrEventAlreadyProcessed
		}
	}

	outcome := event.Outcome
	outcome.Gateway = gateway
	result, err := s.reconciler.ConfirmGatewayPayment(ctx, event.SelectionID.String(), outcome)
	if err != nil {
		return paymentdomain.Result{}, err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return paymentdomain.Result{}, err
	}
	return result, nil
}

func (s *Service) allow(ctx context.Context, gateway string) error {
	if !s.limiter.Enabled() {
		return nil
	}
	res, err := s.limiter.Allow(ctx, gateway)
	if err != nil {
		// Fail open.
		s.log.Warn("webhook rate limiter unavailable", zap.String("gateway", gateway), zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return paymentdomain.ErrRateLimited
	}
	return nil
}
