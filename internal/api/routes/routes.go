package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/zynpay/zynpay_service/internal/api/handlers"
	"github.com/zynpay/zynpay_service/internal/api/middleware"
	"github.com/zynpay/zynpay_service/internal/infrastructure/di"
	"github.com/zynpay/zynpay_service/pkg/idempotency"
	"github.com/zynpay/zynpay_service/pkg/tracing"
)

// Version is reported by /health. Overridden at build time with -ldflags.
var Version = "dev"

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	router := gin.New()

	// Global middleware - order matters
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(container.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BearerToken())

	healthHandler := handlers.NewHealthHandler(container.HealthChecks(), container.ZapLog, Version)
	paymentHandlers := handlers.NewPaymentHandlers(
		container.PricingService,
		container.LedgerReader,
		container.Executor,
		container.RecipientService,
		container.Keystore,
		container.ZapLog,
	)
	settlementHandlers := handlers.NewSettlementHandlers(container.Coordinator, container.Backend, container.Keystore, container.ZapLog)
	recipientHandlers := handlers.NewRecipientHandlers(container.RecipientService, container.ZapLog)
	authHandlers := handlers.NewAuthHandlers(container.Backend, container.ZapLog)
	rpcHandlers := handlers.NewRPCHandlers(container.Gateway, container.ZapLog)

	// Health checks (no auth required)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation (development only)
	if container.Config.Environment != "production" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Repeated Idempotency-Key headers replay the first response instead of
	// submitting a second transaction
	idempotent := idempotency.MiddlewareWithTTL(
		container.Cache,
		time.Duration(container.Config.Server.IdempotencyTTL)*time.Second,
		container.ZapLog,
	)
	// routes that sign with service-held keys need a session the backend accepts
	session := middleware.RequireSession(container.Backend, container.Cache, container.ZapLog)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/rates/:chainId/:symbol", paymentHandlers.GetRate)
		v1.GET("/balances/:chainId/:account/:token", paymentHandlers.GetBalance)

		payments := v1.Group("/payments")
		{
			payments.GET("/:chainId/:account", paymentHandlers.ListPayments)

			actions := payments.Group("", middleware.RequireBearer(), session, idempotent)
			actions.POST("/send", paymentHandlers.Send)
			actions.POST("/claim", paymentHandlers.Claim)
			actions.POST("/reimburse", paymentHandlers.Reimburse)
		}

		v1.GET("/actions", paymentHandlers.ListActions)
		v1.GET("/actions/:id", paymentHandlers.GetAction)

		v1.GET("/recipients/resolve", recipientHandlers.Resolve)
		addressBook := v1.Group("/address-book", middleware.RequireBearer())
		{
			addressBook.GET("", recipientHandlers.List)
			addressBook.POST("", recipientHandlers.Add)
			addressBook.POST("/from-invoice", recipientHandlers.AddFromInvoice)
			addressBook.GET("/:nickname", recipientHandlers.Get)
			addressBook.PATCH("/:nickname", recipientHandlers.Update)
			addressBook.DELETE("/:nickname", recipientHandlers.Delete)
		}

		invoices := v1.Group("/invoices", middleware.RequireBearer())
		{
			invoices.GET("", settlementHandlers.ListInvoices)
			invoices.POST("", settlementHandlers.CreateInvoice)
			invoices.GET("/:id", settlementHandlers.GetInvoice)
			invoices.POST("/:id/pay", session, idempotent, settlementHandlers.PayInvoice)
		}

		v1.GET("/splits/even-share", settlementHandlers.EvenShare)
		splits := v1.Group("/splits", middleware.RequireBearer())
		{
			splits.GET("/initiated", settlementHandlers.ListInitiatedSplits)
			splits.GET("/participating", settlementHandlers.ListParticipatingSplits)
			splits.POST("", settlementHandlers.CreateSplit)
			splits.GET("/:splitId", settlementHandlers.GetSplit)
			splits.POST("/:splitId/pay", session, idempotent, settlementHandlers.PaySplitShare)
		}

		reconciliations := v1.Group("/reconciliations", middleware.RequireBearer())
		{
			reconciliations.GET("", settlementHandlers.ListReconciliations)
			reconciliations.POST("/:id/retry", session, settlementHandlers.RetryReconciliation)
		}

		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandlers.Login)
			auth.POST("/register", authHandlers.Register)
			auth.POST("/forgot-password", authHandlers.ForgotPassword)
			auth.POST("/reset-password", authHandlers.ResetPassword)
			auth.GET("/ping", middleware.RequireBearer(), authHandlers.Ping)
		}

		v1.POST("/rpc/:chainId", rpcHandlers.Proxy)
	}

	return router
}
