package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/config"
	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/middleware"
	"github.com/roomviz/roomviz-backend/pkg/cache"
)

// RouteDeps holds everything SetupRoutes wires into handlers.
type RouteDeps struct {
	Config            *config.Config
	Logger            *zap.Logger
	Auth              *middleware.AuthMiddleware
	RateCounter       cache.WindowCounter // nil disables rate limiting
	Catalog           *credits.Catalog
	UserService       core.UserService
	BillingService    core.BillingService
	GenerationService core.GenerationService
}

// SetupRoutes configures all the application routes. Global middleware
// (logging, recovery, CORS) is applied by the caller.
func SetupRoutes(router *gin.Engine, deps RouteDeps) {
	logger := deps.Logger
	authMW := deps.Auth

	authHandler := NewAuthHandler(deps.UserService, logger)
	userHandler := NewUserHandler(deps.UserService, deps.Catalog, logger)
	generationHandler := NewGenerationHandler(deps.GenerationService, logger)
	billingHandler := NewBillingHandler(deps.BillingService, logger)
	adminHandler := NewAdminHandler(deps.UserService, logger)

	var rateLimit gin.HandlerFunc
	if deps.Config != nil {
		rateLimit = middleware.RateLimit(deps.RateCounter, "generations",
			deps.Config.GenerationRateLimit, deps.Config.GenerationRateWindow, logger)
	} else {
		rateLimit = middleware.RateLimit(nil, "", 0, 0, logger)
	}

	apiV1 := router.Group("/api/v1")
	{
		userGroup := apiV1.Group("/users", authMW.VerifyToken())
		{
			userGroup.POST("/initialize", authHandler.InitializeUserProfile)
			userGroup.GET("/me", userHandler.GetCurrentUserProfile)
		}

		apiV1.GET("/credits", authMW.VerifyToken(), userHandler.GetCredits)
		apiV1.GET("/credits/packages", userHandler.GetCatalog)

		generationGroup := apiV1.Group("/generations", authMW.VerifyToken())
		{
			generationGroup.POST("", rateLimit, generationHandler.Generate)
			generationGroup.GET("", generationHandler.ListGenerations)
		}

		billingGroup := apiV1.Group("/billing")
		{
			billingGroup.POST("/checkout", authMW.VerifyToken(), billingHandler.CreateCheckoutSession)
			billingGroup.POST("/portal", authMW.VerifyToken(), billingHandler.CreatePortalSession)
			// Public: authenticated by the Stripe-Signature header.
			billingGroup.POST("/webhooks/stripe", billingHandler.HandleStripeWebhook)
		}

		adminGroup := apiV1.Group("/admin", authMW.VerifyToken(), authMW.RequireAdmin())
		{
			adminGroup.GET("/users/:userId", adminHandler.GetUser)
			adminGroup.POST("/users/:userId/credits", adminHandler.AdjustCredits)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	logger.Info("API routes configured under /api/v1 and /health")
}
