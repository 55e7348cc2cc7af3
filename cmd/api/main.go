package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "ricemill/api/swagger" // swagger docs
	"ricemill/internal/config"
	"ricemill/internal/database"
	"ricemill/internal/handler"
	"ricemill/internal/middleware"
	"ricemill/internal/repository"
	"ricemill/internal/scheduler"
	"ricemill/internal/service"
	"ricemill/internal/websocket"
	"ricemill/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// @title           Rice Mill Production API
// @version         1.0
// @description     Production orders, milling batches and yield analytics for a rice mill.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env", "configs/production.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database, logger.Named(log, "database"))
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logger.Named(log, "websocket"))
	go wsHub.Run(ctx)

	// Repository -> Service -> Handler
	txManager := repository.NewTransactionManager(db)
	orderRepo := repository.NewProductionOrderRepository(db)
	batchRepo := repository.NewProductionBatchRepository(db)
	seqRepo := repository.NewSequenceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	refs := repository.NewReferenceRepository(db)

	analyticsCache := cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL)
	events := service.NewFlushingPublisher(wsHub, analyticsCache)
	orderService := service.NewProductionOrderService(orderRepo, seqRepo, auditRepo, refs, txManager, events, logger.Named(log, "orders"))
	batchService := service.NewProductionBatchService(batchRepo, orderRepo, seqRepo, auditRepo, refs, txManager, events, logger.Named(log, "batches"))
	analyticsService := service.NewYieldAnalyticsService(batchRepo, refs, service.AnalyticsSettings{
		LowYieldThreshold:  cfg.Analytics.LowYieldThreshold,
		HighYieldThreshold: cfg.Analytics.HighYieldThreshold,
		RankingSize:        cfg.Analytics.RankingSize,
		DefaultRangeDays:   cfg.Analytics.DefaultRangeDays,
	}, logger.Named(log, "analytics"))
	auditService := service.NewAuditService(auditRepo, logger.Named(log, "audit"))
	roleService := service.NewRoleService(repository.NewRoleRepository(db), txManager, logger.Named(log, "roles"))

	if err := roleService.SeedDefaultRolesAndPermissions(ctx); err != nil {
		log.Fatal("failed to seed roles", zap.Error(err))
	}
	middleware.InitAuth(cfg.Auth.JWTSecret, roleService, cfg.Auth.PermissionTTL)

	digest, err := scheduler.NewScheduler(cfg.Digest, orderService, batchService, analyticsService, wsHub, logger.Named(log, "scheduler"))
	if err != nil {
		log.Fatal("failed to create scheduler", zap.Error(err))
	}
	if err := digest.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer digest.Stop()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger.Named(log, "http")))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c)
	})

	api := router.Group("")
	handler.NewProductionOrderHandler(orderService).RegisterRoutes(api)
	handler.NewProductionBatchHandler(batchService).RegisterRoutes(api)
	handler.NewYieldAnalyticsHandler(analyticsService, analyticsCache, cfg.Server.CacheTTL).RegisterRoutes(api)
	handler.NewAuditHandler(auditService).RegisterRoutes(api)
	handler.NewRoleHandler(roleService).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
