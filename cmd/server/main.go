package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/api"
	"github.com/roomviz/roomviz-backend/internal/billing"
	"github.com/roomviz/roomviz-backend/internal/config"
	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/generator"
	"github.com/roomviz/roomviz-backend/internal/middleware"
	"github.com/roomviz/roomviz-backend/pkg/cache"
	"github.com/roomviz/roomviz-backend/pkg/mailer"
	"github.com/roomviz/roomviz-backend/pkg/messagequeue"
)

func main() {
	if os.Getenv("GIN_MODE") != "release" {
		// Missing .env is fine; the real environment wins.
		_ = godotenv.Load()
	}

	// --- 1. Logger ---
	var zapLogger *zap.Logger
	var err error
	if os.Getenv("GIN_MODE") == "release" {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()

	// --- 2. Configuration and catalog ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load application configuration", zap.Error(err))
	}
	catalog, err := config.LoadCatalog(appConfig.CatalogPath)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load credit catalog", zap.String("path", appConfig.CatalogPath), zap.Error(err))
	}
	zapLogger.Info("Configuration loaded",
		zap.String("storage", appConfig.StorageDriver),
		zap.Int("creditPackages", len(catalog.Packages())))

	// --- 3. Firebase (auth is always required) ---
	initCtx, cancelInitCtx := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelInitCtx()
	clients, err := db.InitFirebase(initCtx, appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Firebase Admin SDK", zap.Error(err))
	}
	defer clients.Close()

	// --- 4. Repositories ---
	var (
		accountRepo    db.AccountRepository
		generationRepo db.GenerationRepository
		auditRepo      db.AuditRepository
	)
	switch appConfig.StorageDriver {
	case config.StorageMemory:
		zapLogger.Warn("Using in-memory storage; data is lost on restart")
		store := db.NewMemoryStore()
		accountRepo, generationRepo, auditRepo = store.Accounts(), store.Generations(), store.Audit()
	default:
		accountRepo = db.NewFirestoreAccountRepository(clients.Firestore)
		generationRepo = db.NewFirestoreGenerationRepository(clients.Firestore, zapLogger)
		auditRepo = db.NewFirestoreAuditRepository(clients.Firestore)
	}

	// --- 5. Optional infrastructure ---
	var publisher core.LedgerPublisher = core.NopPublisher{}
	if appConfig.RabbitMQURL != "" {
		mq, err := messagequeue.NewRabbitMQService(messagequeue.NewRabbitMQServiceConfig{
			URL:    appConfig.RabbitMQURL,
			Logger: zapLogger,
		})
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mq.Close()
		publisher = core.NewQueueLedgerPublisher(mq, appConfig.LedgerExchange)
		zapLogger.Info("Ledger events enabled", zap.String("exchange", appConfig.LedgerExchange))
	}

	var alerter core.OperatorAlerter = core.NopAlerter{}
	if appConfig.AlertsEnabled() {
		m, err := mailer.New(mailer.Config{
			Host:     appConfig.SMTPHost,
			Port:     appConfig.SMTPPort,
			Username: appConfig.SMTPUser,
			Password: appConfig.SMTPPass,
			From:     appConfig.AlertSender,
		})
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Invalid SMTP configuration", zap.Error(err))
		}
		alerter = core.NewMailAlerter(m, appConfig.OperatorEmail, zapLogger)
	} else {
		zapLogger.Warn("Operator alerts disabled: SMTP_HOST, ALERT_SENDER or OPERATOR_EMAIL not set")
	}

	var rateCounter cache.WindowCounter
	if appConfig.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(initCtx, cache.NewRedisCacheConfig{URL: appConfig.RedisURL, Logger: zapLogger})
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
		rateCounter = redisCache
	} else {
		zapLogger.Warn("Generation rate limiting disabled: REDIS_URL not set")
	}

	// --- 6. Services ---
	auditService := core.NewAuditService(auditRepo)
	userService := core.NewUserService(accountRepo, auditService, catalog, publisher, appConfig.SignupBonusCredits, zapLogger)
	billingService := core.NewBillingService(core.BillingServiceDeps{
		Accounts:        accountRepo,
		Gateway:         billing.NewStripeGateway(appConfig.StripeSecretKey),
		Verifier:        billing.NewVerifier(appConfig.StripeWebhookSecret),
		Catalog:         catalog,
		Audit:           auditService,
		Publisher:       publisher,
		Alerter:         alerter,
		SuccessURL:      appConfig.CheckoutSuccessURL,
		CancelURL:       appConfig.CheckoutCancelURL,
		PortalReturnURL: appConfig.PortalReturnURL,
		Logger:          zapLogger,
	})
	generationService := core.NewGenerationService(core.GenerationServiceDeps{
		Accounts:    accountRepo,
		Generations: generationRepo,
		Generator: generator.NewClient(appConfig.GeneratorURL, appConfig.GeneratorAPIKey,
			&http.Client{Timeout: appConfig.GenerationTimeout + 5*time.Second}, zapLogger),
		Audit:     auditService,
		Publisher: publisher,
		Alerter:   alerter,
		Timeout:   appConfig.GenerationTimeout,
		Logger:    zapLogger,
	})

	// --- 7. HTTP engine ---
	if strings.ToLower(appConfig.GinMode) == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware(appConfig))

	api.SetupRoutes(router, api.RouteDeps{
		Config:            appConfig,
		Logger:            zapLogger,
		Auth:              middleware.NewAuthMiddleware(clients.Auth, zapLogger),
		RateCounter:       rateCounter,
		Catalog:           catalog,
		UserService:       userService,
		BillingService:    billingService,
		GenerationService: generationService,
	})

	// --- 8. Serve ---
	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	zapLogger.Info("Starting HTTP server...", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitChannel
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Generations can run up to GENERATION_TIMEOUT; let in-flight ones finish.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), appConfig.GenerationTimeout+5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting gracefully.")
}
