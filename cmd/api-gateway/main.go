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

	_ "github.com/noah-isme/campus-events-api/api/swagger"
	"github.com/noah-isme/campus-events-api/internal/handler"
	"github.com/noah-isme/campus-events-api/internal/middleware"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/cache"
	"github.com/noah-isme/campus-events-api/pkg/config"
	"github.com/noah-isme/campus-events-api/pkg/database"
	"github.com/noah-isme/campus-events-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-events-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-events-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-events-api/pkg/storage"
)

// @title Campus Events API
// @version 1.0.0
// @description Event management, registration and QR attendance for campus communities
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

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(database.URL(cfg.Database)); err != nil {
			logr.Fatal("migrations failed", zap.Error(err))
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("postgres connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and write fallback disabled", zap.Error(err))
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
	}

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("export storage init failed", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cacheRepo != nil {
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-events-api",
	})

	fallbackEnabled := cfg.Fallback.Enabled && cacheRepo != nil
	var eventSvc *service.EventService
	if fallbackEnabled {
		eventSvc = service.NewEventService(eventRepo, userRepo, cacheSvc, cacheRepo, metricsSvc, validate, logr, true)
	} else {
		eventSvc = service.NewEventService(eventRepo, userRepo, cacheSvc, nil, metricsSvc, validate, logr, false)
	}
	var registrationSvc *service.RegistrationService
	var attendanceSvc *service.AttendanceService
	if fallbackEnabled {
		registrationSvc = service.NewRegistrationService(eventRepo, userRepo, cacheSvc, cacheRepo, metricsSvc, logr, true)
		attendanceSvc = service.NewAttendanceService(eventRepo, cacheSvc, cacheRepo, metricsSvc, logr, true)
	} else {
		registrationSvc = service.NewRegistrationService(eventRepo, userRepo, cacheSvc, nil, metricsSvc, logr, false)
		attendanceSvc = service.NewAttendanceService(eventRepo, cacheSvc, nil, metricsSvc, logr, false)
	}
	sweeperSvc := service.NewSweeperService(eventRepo, archiveRepo, cacheSvc, metricsSvc, logr, service.SweeperConfig{
		Interval:      cfg.Sweeper.Interval,
		RunOnStart:    cfg.Sweeper.RunOnStart,
		RetentionDays: cfg.Sweeper.RetentionDays,
	})
	recommendationSvc := service.NewRecommendationService(eventRepo, logr)
	exportSvc := service.NewExportService(eventRepo, archiveRepo, exportJobRepo, store, signer, logr, service.ExportConfig{
		WorkerConcurrency: cfg.Exports.WorkerConcurrency,
		WorkerRetries:     cfg.Exports.WorkerRetries,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Demo.Enabled {
		accounts := []service.DemoAccount{
			{Email: cfg.Demo.StudentEmail, Password: cfg.Demo.StudentPassword, FullName: "Demo Student", Role: models.RoleStudent},
			{Email: cfg.Demo.OrganizerEmail, Password: cfg.Demo.OrganizerPassword, FullName: "Demo Organizer", Role: models.RoleOrganizer},
		}
		if err := authSvc.EnsureDemoAccounts(ctx, accounts); err != nil {
			logr.Warn("demo account seeding failed", zap.Error(err))
		}
	}

	exportSvc.Start(ctx)
	defer exportSvc.Stop()

	if cfg.Sweeper.Enabled {
		sweeperSvc.Start(ctx)
	}
	if fallbackEnabled {
		go replayLoop(ctx, eventSvc, cacheRepo, metricsSvc, logr)
	}
	go cleanupLoop(ctx, store, cfg.Exports, logr)

	r := buildRouter(cfg, logr, routerDeps{
		auth:         handler.NewAuthHandler(authSvc),
		events:       handler.NewEventHandler(eventSvc),
		registration: handler.NewRegistrationHandler(registrationSvc),
		recommend:    handler.NewRecommendationHandler(recommendationSvc),
		attendance:   handler.NewAttendanceHandler(attendanceSvc),
		archive:      handler.NewArchiveHandler(sweeperSvc),
		exports:      handler.NewExportHandler(exportSvc),
		metrics:      handler.NewMetricsHandler(metricsSvc, db, cacheRepo),
		authService:  authSvc,
		metricsSvc:   metricsSvc,
	})

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

type routerDeps struct {
	auth         *handler.AuthHandler
	events       *handler.EventHandler
	registration *handler.RegistrationHandler
	recommend    *handler.RecommendationHandler
	attendance   *handler.AttendanceHandler
	archive      *handler.ArchiveHandler
	exports      *handler.ExportHandler
	metrics      *handler.MetricsHandler
	authService  *service.AuthService
	metricsSvc   *service.MetricsService
}

func buildRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metricsSvc))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", deps.auth.Signup)
	auth.POST("/login", deps.auth.Login)
	auth.POST("/refresh", deps.auth.Refresh)
	auth.POST("/logout", middleware.JWT(deps.authService), deps.auth.Logout)
	auth.GET("/me", middleware.JWT(deps.authService), deps.auth.Me)
	auth.PUT("/me", middleware.JWT(deps.authService), deps.auth.UpdateProfile)

	events := api.Group("/events")
	events.GET("", middleware.OptionalJWT(deps.authService), deps.events.List)
	events.GET("/:id", middleware.OptionalJWT(deps.authService), deps.events.Get)
	events.GET("/recommendations", middleware.JWT(deps.authService), deps.recommend.List)

	manage := api.Group("/events", middleware.JWT(deps.authService), middleware.RequireRoles(models.RoleOrganizer))
	manage.POST("", deps.events.Create)
	manage.PUT("/:id", deps.events.Update)
	manage.DELETE("/:id", deps.events.Delete)
	manage.GET("/:id/roster", deps.exports.EventRoster)

	registrations := api.Group("/events", middleware.JWT(deps.authService), middleware.RequireRoles(models.RoleStudent))
	registrations.POST("/:id/register", deps.registration.Register)
	registrations.DELETE("/:id/register", deps.registration.Unregister)
	registrations.GET("/:id/registration", deps.registration.Registration)

	attendance := api.Group("/attendance", middleware.JWT(deps.authService), middleware.RequireRoles(models.RoleOrganizer))
	attendance.POST("/verify", deps.attendance.Verify)

	archive := api.Group("/archive", middleware.JWT(deps.authService), middleware.RequireRoles(models.RoleOrganizer))
	archive.GET("", deps.archive.List)
	archive.GET("/:id", deps.archive.Get)
	archive.DELETE("/:id", deps.archive.Delete)
	archive.POST("/sweep", deps.archive.Sweep)

	api.GET("/exports/download", deps.exports.Download)
	exports := api.Group("/exports", middleware.JWT(deps.authService), middleware.RequireRoles(models.RoleOrganizer))
	exports.GET("", deps.exports.ListJobs)
	exports.GET("/:id", deps.exports.JobStatus)
	exports.POST("/archive", deps.exports.RequestArchiveReport)

	return r
}

// replayLoop periodically drains journaled writes back into the primary
// store and keeps the pending-write gauge current.
func replayLoop(ctx context.Context, events *service.EventService, cacheRepo *repository.CacheRepository, metrics *service.MetricsService, logr *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := events.ReplayPendingWrites(ctx); err != nil {
				logr.Warn("pending write replay failed", zap.Error(err))
			}
			if depth, err := cacheRepo.PendingWriteCount(ctx); err == nil {
				metrics.SetPendingWrites(depth)
			}
		}
	}
}

// cleanupLoop removes export files older than the signed URL TTL.
func cleanupLoop(ctx context.Context, store *storage.LocalStorage, cfg config.ExportsConfig, logr *zap.Logger) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(cfg.SignedURLTTL)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("removed stale export files", zap.Int("count", len(removed)))
			}
		}
	}
}
