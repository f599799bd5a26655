package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/exam-committee-api/api/swagger"
	"github.com/noah-isme/exam-committee-api/internal/handler"
	"github.com/noah-isme/exam-committee-api/internal/middleware"
	"github.com/noah-isme/exam-committee-api/internal/models"
	"github.com/noah-isme/exam-committee-api/internal/repository"
	"github.com/noah-isme/exam-committee-api/internal/service"
	"github.com/noah-isme/exam-committee-api/pkg/cache"
	"github.com/noah-isme/exam-committee-api/pkg/config"
	"github.com/noah-isme/exam-committee-api/pkg/database"
	"github.com/noah-isme/exam-committee-api/pkg/jobs"
	"github.com/noah-isme/exam-committee-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/exam-committee-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/exam-committee-api/pkg/middleware/requestid"
	"github.com/noah-isme/exam-committee-api/pkg/storage"
)

// @title Exam Committee API
// @version 1.0.0
// @description Exam-committee proposal drafting and four-stage approval workflow
// @BasePath /api
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Reference.CacheTTL, logr, cfg.Reference.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	referenceSvc := service.NewReferenceService(referenceRepo, cacheSvc, cfg.Reference.CacheTTL, logr)

	downloadsBase := cfg.APIPrefix + "/downloads"
	proposalOpts := []service.ProposalServiceOption{service.WithProposalMetrics(metricsSvc)}

	var (
		summarySvc   *service.SummaryService
		summaryQueue *jobs.Queue
	)
	if cfg.Summaries.Enabled {
		docStorage, err := storage.NewLocalStorage(cfg.Summaries.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare summary storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Summaries.SignedURLSecret, cfg.Summaries.SignedURLTTL)
		summarySvc = service.NewSummaryService(proposalRepo, docStorage, signer, metricsSvc, logr, downloadsBase)
		summaryQueue = jobs.NewQueue(service.SummaryJobType, summarySvc.Handle, jobs.QueueConfig{
			Workers:     cfg.Summaries.WorkerConcurrency,
			MaxRetries:  cfg.Summaries.WorkerRetries,
			JobTimeout:  cfg.Summaries.JobTimeout,
			OnExhausted: summarySvc.Abandoned,
			Logger:      logr,
		})
		summarySvc.SetQueue(summaryQueue)
		summaryQueue.Start(ctx)
		defer summaryQueue.Stop()
		proposalOpts = append(proposalOpts, service.WithApprovalNotifier(summarySvc))
	}
	proposalSvc := service.NewProposalService(proposalRepo, userRepo, validate, logr, proposalOpts...)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"cache":    cacheRepo,
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	referenceHandler := handler.NewReferenceHandler(referenceSvc)
	var proposalHandler *handler.ProposalHandler
	if summarySvc != nil {
		proposalHandler = handler.NewProposalHandler(proposalSvc, summarySvc)
	} else {
		proposalHandler = handler.NewProposalHandler(proposalSvc, nil)
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

		if summarySvc != nil {
			downloads := handler.NewDownloadHandler(summarySvc)
			api.GET("/downloads/:token",
				middleware.Audit(userRepo, logr, models.AuditActionSummaryFetch, "proposal_summary"),
				downloads.Download)
		}

		secured := api.Group("")
		secured.Use(middleware.JWT(authSvc))
		chairman := middleware.RequireRoles(models.RoleChairman)

		reference := secured.Group("/reference")
		reference.Use(middleware.WithResponseMeta())
		reference.GET("/teachers", referenceHandler.Teachers)
		reference.GET("/courses", referenceHandler.Courses)
		reference.GET("/externals", referenceHandler.Externals)
		reference.GET("/defaults", chairman, proposalHandler.Defaults)

		proposals := secured.Group("/proposals")
		proposals.POST("", chairman, proposalHandler.Create)
		proposals.GET("", proposalHandler.List)
		proposals.GET("/export", proposalHandler.Export)
		proposals.GET("/:id", proposalHandler.Get)
		proposals.PUT("/:id", chairman, proposalHandler.Update)
		proposals.DELETE("/:id", chairman, proposalHandler.Delete)
		proposals.POST("/:id/sign", proposalHandler.Sign)
		proposals.POST("/:id/cancel", middleware.RequireRoles(models.RoleDean, models.RoleVC, models.RoleController), proposalHandler.Cancel)
		proposals.POST("/:id/summary-link",
			middleware.Audit(userRepo, logr, models.AuditActionSummaryLink, "proposal_summary"),
			proposalHandler.SummaryLink)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
