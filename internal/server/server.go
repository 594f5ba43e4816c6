package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/observability"
	obsmiddleware "github.com/smallbiznis/fleetrent/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fleetrent/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fleetrent/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
	plandomain "github.com/smallbiznis/fleetrent/internal/plan/domain"
	selectiondomain "github.com/smallbiznis/fleetrent/internal/selection/domain"
	walletdomain "github.com/smallbiznis/fleetrent/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if obsCfg.MetricsPath != "" {
		r.GET(obsCfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine       *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	PlanSvc      plandomain.Service
	SelectionSvc selectiondomain.Service
	Reconciler   paymentdomain.Reconciler
	WebhookSvc   paymentdomain.WebhookService
	WalletSvc    walletdomain.Service
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	planSvc      plandomain.Service
	selectionSvc selectiondomain.Service
	reconciler   paymentdomain.Reconciler
	webhookSvc   paymentdomain.WebhookService
	walletSvc    walletdomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:       p.Engine,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		planSvc:      p.PlanSvc,
		selectionSvc: p.SelectionSvc,
		reconciler:   p.Reconciler,
		webhookSvc:   p.WebhookSvc,
		walletSvc:    p.WalletSvc,
	}
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/plans", s.ListPlans)
		api.GET("/plans/:id", s.GetPlan)
		api.GET("/plans/code/:code", s.GetPlanByCode)

		api.POST("/selections", s.CreateSelection)
		api.GET("/selections", s.ListSelections)
		api.GET("/selections/:id", s.GetSelection)
		api.GET("/selections/:id/rent-summary", s.GetRentSummary)
		api.POST("/selections/:id/recompute", s.RecomputeSelection)
		api.POST("/selections/:id/confirm-payment", s.ConfirmManualPayment)
		api.POST("/selections/:id/gateway-payments", s.ConfirmGatewayPayment)
		api.POST("/selections/:id/adjustments", s.RecordAdjustment)
		api.POST("/selections/:id/extra-charges", s.RecordExtraCharge)
		api.POST("/selections/:id/pause", s.PauseAccrual)
		api.POST("/selections/:id/resume", s.ResumeAccrual)
		api.POST("/selections/:id/status", s.TransitionSelection)

		api.GET("/wallets/:phone", s.GetWallet)
		api.GET("/wallets/:phone/transactions", s.ListWalletTransactions)
		api.POST("/wallets/:phone/transactions", s.CreateWalletTransaction)
	}

	s.engine.POST("/webhooks/payments/:gateway", GatewayContext(), s.HandlePaymentWebhook)
}
