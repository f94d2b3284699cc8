package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gradebook-api/api/swagger"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/cache"
	"github.com/noah-isme/gradebook-api/pkg/config"
	"github.com/noah-isme/gradebook-api/pkg/database"
	"github.com/noah-isme/gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/requestid"
)

// @title Gradebook API
// @version 1.0.0
// @description Report-card template versioning, propagation and batch toggles
// @BasePath /
// @schemes http

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
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := newRouter(cfg, db, redisClient, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func newRouter(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *gin.Engine {
	validate := validator.New()
	metrics := service.NewMetricsService()
	batch := service.BatchOptionsFromConfig(cfg.Batch)

	templateRepo := repository.NewTemplateRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	overrideRepo := repository.NewOverrideRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "gradebook:")

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Templates.SnapshotCacheTTL, logr, cfg.Templates.SnapshotCacheEnabled)
	templateSvc := service.NewTemplateService(templateRepo, assignmentRepo, cacheSvc, metrics, validate, logr)
	bindingSvc := service.NewBindingService(assignmentRepo, templateSvc, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, overrideRepo, templateSvc, templateSvc, validate, logr)
	propagationSvc := service.NewPropagationService(templateSvc, assignmentRepo, metrics, batch, logr)
	rollbackSvc := service.NewRollbackService(templateSvc, assignmentRepo, metrics, batch, logr)
	guard := service.NewRollbackGuard(cacheRepo, rollbackSvc, cfg.Templates.RollbackConfirmWindow, nil, logr)
	distributionSvc := service.NewDistributionService(templateSvc, assignmentRepo)
	levelOrder := service.NewLevelOrder(cfg.Templates.LevelOrder)
	toggleSvc := service.NewBatchToggleService(classRepo, enrollmentRepo, assignmentRepo, overrideRepo, templateSvc, levelOrder, metrics, batch, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	templateHandler := handler.NewTemplateHandler(templateSvc, propagationSvc, rollbackSvc, guard, distributionSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc, bindingSvc)
	toggleHandler := handler.NewToggleHandler(toggleSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
	staff := append([]models.UserRole{models.RoleSubAdmin, models.RoleTeacher}, admins...)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))

	templates := api.Group("/templates")
	templates.GET("/:id", middleware.RequireRoles(staff...), templateHandler.Get)
	templates.GET("/:id/versions", middleware.RequireRoles(staff...), templateHandler.History)
	templates.GET("/:id/versions/:version", middleware.RequireRoles(staff...), templateHandler.Snapshot)
	templates.GET("/:id/distribution", middleware.RequireRoles(admins...), templateHandler.Distribution)
	templates.GET("/:id/distribution/export", middleware.RequireRoles(admins...), templateHandler.ExportDistribution)
	templates.GET("/:id/rollback-candidates", middleware.RequireRoles(admins...), templateHandler.RollbackCandidates)
	templates.POST("", middleware.RequireRoles(admins...), templateHandler.Create)
	templates.POST("/:id/versions", middleware.RequireRoles(admins...), templateHandler.CommitVersion)
	templates.POST("/:id/propagate", middleware.RequireRoles(admins...), templateHandler.Propagate)
	// Immediate rollback for non-interactive callers; interactive clients use /rollback/confirm.
	templates.POST("/:id/rollback", middleware.RequireRoles(admins...), templateHandler.Rollback)
	templates.POST("/:id/rollback/confirm", middleware.RequireRoles(admins...), templateHandler.ConfirmRollback)

	assignments := api.Group("/assignments")
	assignments.POST("", middleware.RequireRoles(admins...), assignmentHandler.Assign)
	assignments.GET("/:id", middleware.RequireRoles(staff...), assignmentHandler.Get)
	assignments.GET("/:id/effective", middleware.RequireRoles(staff...), assignmentHandler.Effective)
	assignments.PUT("/:id/toggles", middleware.RequireRoles(staff...), assignmentHandler.SetToggles)
	assignments.GET("/:id/overrides/:key", middleware.RequireRoles(staff...), assignmentHandler.GetOverride)
	assignments.PUT("/:id/overrides/:key", middleware.RequireRoles(staff...), assignmentHandler.SetOverride)

	toggles := api.Group("/toggles")
	toggles.POST("/batch", middleware.RequireRoles(admins...), toggleHandler.Mutate)
	toggles.GET("/summary", middleware.RequireRoles(admins...), toggleHandler.Summary)

	return r
}
