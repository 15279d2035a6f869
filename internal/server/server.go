package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	authjwt "github.com/smallbiznis/munitax/internal/auth/jwt"
	"github.com/smallbiznis/munitax/internal/authorization"
	"github.com/smallbiznis/munitax/internal/config"
	ledgerdomain "github.com/smallbiznis/munitax/internal/ledger/domain"
	"github.com/smallbiznis/munitax/internal/observability"
	obsmiddleware "github.com/smallbiznis/munitax/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/munitax/internal/observability/metrics"
	obstracing "github.com/smallbiznis/munitax/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/munitax/internal/payment/domain"
	taxdomain "github.com/smallbiznis/munitax/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if httpMetrics.Enabled() {
		r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))
	}

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	verifier   *authjwt.Verifier
	authzSvc   authorization.Service
	paymentSvc paymentdomain.Service
	ledgerSvc  ledgerdomain.Service
	taxSvc     taxdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Verifier   *authjwt.Verifier
	AuthzSvc   authorization.Service
	PaymentSvc paymentdomain.Service
	LedgerSvc  ledgerdomain.Service
	TaxSvc     taxdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		verifier:   p.Verifier,
		authzSvc:   p.AuthzSvc,
		paymentSvc: p.PaymentSvc,
		ledgerSvc:  p.LedgerSvc,
		taxSvc:     p.TaxSvc,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Tax categories --------
	api.GET("/tax-categories", s.Authorize(authorization.ObjectTaxCategory, authorization.ActionTaxCategoryView), s.ListTaxCategories)
	api.POST("/tax-categories", s.Authorize(authorization.ObjectTaxCategory, authorization.ActionTaxCategoryManage), s.CreateTaxCategory)

	// -------- Tax accounts --------
	api.GET("/tax-account", s.Authorize(authorization.ObjectTaxAccount, authorization.ActionTaxAccountView), s.GetTaxAccountSummary)
	api.GET("/tax-accounts/:id", s.Authorize(authorization.ObjectTaxAccount, authorization.ActionTaxAccountView), s.GetTaxAccount)

	// -------- Payments --------
	api.POST("/payments", s.Authorize(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.CreatePayment)
	api.GET("/payments", s.Authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)
	api.GET("/payments/:id", s.Authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPayment)
	api.POST("/payments/control-number/submit", s.Authorize(authorization.ObjectPayment, authorization.ActionPaymentSubmit), s.SubmitControlNumber)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired())

	admin.POST("/payments/:id/approve", s.Authorize(authorization.ObjectPayment, authorization.ActionPaymentApprove), s.ApprovePayment)
	admin.POST("/payments/:id/reject", s.Authorize(authorization.ObjectPayment, authorization.ActionPaymentReject), s.RejectPayment)
	admin.POST("/payments/:id/complete", s.Authorize(authorization.ObjectPayment, authorization.ActionPaymentComplete), s.CompletePayment)

	admin.PATCH("/tax-accounts/:id", s.Authorize(authorization.ObjectTaxAccount, authorization.ActionTaxAccountAdjust), s.AdjustTaxAccount)

	admin.PATCH("/tax-categories/:id", s.Authorize(authorization.ObjectTaxCategory, authorization.ActionTaxCategoryManage), s.UpdateTaxCategory)
	admin.POST("/tax-categories/:id/disable", s.Authorize(authorization.ObjectTaxCategory, authorization.ActionTaxCategoryManage), s.DisableTaxCategory)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
