package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edupanel/student-records-api/api/swagger"
	"github.com/edupanel/student-records-api/internal/handler"
	"github.com/edupanel/student-records-api/internal/middleware"
	"github.com/edupanel/student-records-api/internal/models"
	"github.com/edupanel/student-records-api/internal/repository"
	"github.com/edupanel/student-records-api/internal/service"
	"github.com/edupanel/student-records-api/pkg/cache"
	"github.com/edupanel/student-records-api/pkg/config"
	"github.com/edupanel/student-records-api/pkg/database"
	"github.com/edupanel/student-records-api/pkg/export"
	"github.com/edupanel/student-records-api/pkg/logger"
	corsmiddleware "github.com/edupanel/student-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edupanel/student-records-api/pkg/middleware/requestid"
)

// @title Student Records API
// @version 1.0.0
// @description Administration backend for browser-based student record management.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Dashboard.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	studentRepo := repository.NewStudentRepository(db, logr)
	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cacheRepo != nil)
	activitySvc := service.NewActivityService(activityRepo, logr)
	dashboardSvc := service.NewDashboardService(studentRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)
	studentSvc := service.NewStudentService(studentRepo, activitySvc, dashboardSvc, nil, logr)
	importSvc := service.NewImportService(studentRepo, nil, activitySvc, dashboardSvc, metricsSvc, logr)
	userSvc := service.NewUserService(userRepo, activitySvc, nil, logr)
	exportSvc := service.NewExportService(studentRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)
	authSvc := service.NewAuthService(userRepo, activitySvc, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "student-records-api",
	})

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	importHandler := handler.NewImportHandler(importSvc, cfg.Import.MaxFileSizeBytes)
	exportHandler := handler.NewExportHandler(exportSvc)
	userHandler := handler.NewUserHandler(userSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.PUT("/password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authSvc))
	{
		students := protected.Group("/students")
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", studentHandler.Create)
		students.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), studentHandler.Update)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), studentHandler.Delete)
		students.POST("/resequence", middleware.RequireRoles(models.RoleAdmin), studentHandler.Resequence)

		students.POST("/import/csv", importHandler.ImportCSV)
		students.POST("/import/text", importHandler.ImportText)
		students.POST("/import/bulk", importHandler.ImportBulk)

		students.GET("/template", exportHandler.Template)
		students.GET("/export/csv", exportHandler.RosterCSV)
		students.GET("/export/pdf", exportHandler.RosterPDF)

		users := protected.Group("/users", middleware.RequireRoles(models.RoleAdmin))
		users.GET("", userHandler.List)
		users.PUT("/:id", userHandler.Update)
		users.GET("/stats", userHandler.Stats)

		protected.GET("/activity", middleware.RequireRoles(models.RoleAdmin), activityHandler.List)

		protected.GET("/dashboard/summary", middleware.WithResponseMeta(), dashboardHandler.Summary)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
