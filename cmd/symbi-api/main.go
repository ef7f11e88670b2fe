package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/symbi-app/symbi-api/api/swagger"
	"github.com/symbi-app/symbi-api/internal/genai"
	"github.com/symbi-app/symbi-api/internal/handler"
	"github.com/symbi-app/symbi-api/internal/middleware"
	"github.com/symbi-app/symbi-api/internal/models"
	"github.com/symbi-app/symbi-api/internal/repository"
	"github.com/symbi-app/symbi-api/internal/service"
	"github.com/symbi-app/symbi-api/pkg/cache"
	"github.com/symbi-app/symbi-api/pkg/config"
	"github.com/symbi-app/symbi-api/pkg/database"
	"github.com/symbi-app/symbi-api/pkg/logger"
	corsmiddleware "github.com/symbi-app/symbi-api/pkg/middleware/cors"
	reqidmiddleware "github.com/symbi-app/symbi-api/pkg/middleware/requestid"
	"github.com/symbi-app/symbi-api/pkg/storage"
)

// @title Symbi API
// @version 1.0.0
// @description Virtual pet backend: health data classification, mood history and evolution
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	fileStore, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init file storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	downloadPath := cfg.APIPrefix + "/downloads"

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	petRepo := repository.NewPetRepository(db)
	observationRepo := repository.NewObservationRepository(db)
	thresholdRepo := repository.NewThresholdRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Summary.CacheTTL, logr, true)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "symbi-api",
	})

	classifierSvc := service.NewClassificationService(service.DefaultStateRules(), metricsSvc, logr)
	thresholdSvc := service.NewThresholdService(thresholdRepo, models.StepThresholds{
		SadThreshold:    cfg.Thresholds.DefaultSad,
		ActiveThreshold: cfg.Thresholds.DefaultActive,
	}, cacheSvc, logr)

	var generator service.AppearanceGenerator
	if cfg.GenAI.Enabled {
		generator, err = genai.NewGenerator(cfg.GenAI, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to init appearance generator", "error", err)
		}
	} else {
		generator = genai.NewStaticGenerator()
	}

	evolutionSvc := service.NewEvolutionService(
		petRepo,
		observationRepo,
		generator,
		fileStore,
		signer,
		downloadPath,
		cacheSvc,
		metricsSvc,
		logr,
		cfg.Evolution.DaysRequired,
		cfg.Evolution.QueueBuffer,
	)

	healthSvc := service.NewHealthService(
		observationRepo,
		petRepo,
		thresholdSvc,
		classifierSvc,
		cacheSvc,
		cfg.Summary.CacheTTL,
		validate,
		logr,
	)
	petSvc := service.NewPetService(petRepo, healthSvc, evolutionSvc, evolutionSvc, validate, logr)
	exportSvc := service.NewExportService(
		observationRepo,
		petRepo,
		fileStore,
		signer,
		downloadPath,
		logr,
		cfg.Exports.Enabled,
	)

	authHandler := handler.NewAuthHandler(authSvc)
	petHandler := handler.NewPetHandler(petSvc)
	healthHandler := handler.NewHealthHandler(healthSvc)
	thresholdHandler := handler.NewThresholdHandler(thresholdSvc)
	evolutionHandler := handler.NewEvolutionHandler(evolutionSvc, petSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		}

		api.GET("/downloads", exportHandler.Download)

		protected := api.Group("")
		protected.Use(middleware.JWT(authSvc))
		{
			protected.POST("/pets", petHandler.Create)
			protected.GET("/pets", petHandler.List)
			protected.GET("/pets/:id", petHandler.Get)
			protected.GET("/pets/:id/status", petHandler.Status)

			protected.POST("/pets/:id/health", healthHandler.Sync)
			protected.GET("/pets/:id/history", healthHandler.History)
			protected.GET("/pets/:id/summary", healthHandler.Summary)

			protected.GET("/thresholds", thresholdHandler.Get)
			protected.PUT("/thresholds", thresholdHandler.Update)

			if cfg.Evolution.Enabled {
				protected.GET("/pets/:id/evolution", evolutionHandler.Status)
				protected.POST("/pets/:id/evolution", evolutionHandler.Trigger)
				protected.GET("/pets/:id/evolution/records", evolutionHandler.Records)
			}

			if cfg.Exports.Enabled {
				protected.POST("/pets/:id/export", exportHandler.Generate)
			}
		}
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if cfg.Evolution.Enabled {
		evolutionSvc.Start(workerCtx)
		defer evolutionSvc.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
