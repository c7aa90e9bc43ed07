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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sccms-api/api/swagger"
	"github.com/noah-isme/sccms-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sccms-api/internal/middleware"
	"github.com/noah-isme/sccms-api/internal/repository"
	"github.com/noah-isme/sccms-api/internal/scheduler"
	"github.com/noah-isme/sccms-api/internal/service"
	"github.com/noah-isme/sccms-api/pkg/cache"
	"github.com/noah-isme/sccms-api/pkg/config"
	"github.com/noah-isme/sccms-api/pkg/database"
	"github.com/noah-isme/sccms-api/pkg/jobs"
	"github.com/noah-isme/sccms-api/pkg/logger"
	"github.com/noah-isme/sccms-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sccms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sccms-api/pkg/middleware/requestid"
	"github.com/noah-isme/sccms-api/pkg/storage"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

// @title SCCMS API
// @version 1.0.0
// @description Summer camp course management: courses, applications, placements, night shifts, reports and exports.
// @BasePath /api/v1
// @schemes http https
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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
	}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logr.Sugar().Warnw("invalid timezone, falling back to local", "timezone", cfg.Scheduler.Timezone, "error", err)
		loc = time.Local
	}

	metricsSvc := service.NewMetricsService()
	validate := validation.New()

	// repositories
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	volunteerRepo := repository.NewVolunteerRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	groupRepo := repository.NewStudentGroupRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	shiftRepo := repository.NewNightShiftRepository(db)
	reportRepo := repository.NewReportRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	sender, err := mailer.New(cfg.Mail, cfg.AppName, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init mailer", "error", err)
	}

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, applicationRepo, courseRepo, sender, auditRepo, metricsSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, service.DashboardSources{
		Applications: applicationRepo,
		Groups:       groupRepo,
		Teams:        teamRepo,
		Reports:      reportRepo,
		NightShifts:  shiftRepo,
	}, cacheSvc, cfg.Dashboard.CacheTTL, auditRepo, metricsSvc, validate, logr)
	studentSvc := service.NewPersonService(studentRepo, auditRepo, validate, logr)
	volunteerSvc := service.NewPersonService(volunteerRepo, auditRepo, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, courseRepo, studentRepo, volunteerRepo, notificationSvc, cacheSvc, auditRepo, metricsSvc, validate, logr)
	placementSvc := service.NewPlacementService(teamRepo, groupRepo, applicationRepo, courseRepo, roomRepo, cacheSvc, auditRepo, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, courseRepo, cacheSvc, auditRepo, validate, logr)
	shiftSvc := service.NewNightShiftService(shiftRepo, courseRepo, roomRepo, userRepo, notificationSvc, cacheSvc, auditRepo, metricsSvc, validate, logr)
	reportSvc := service.NewReportService(reportRepo, courseRepo, groupRepo, applicationRepo, shiftRepo, notificationSvc, cacheSvc, auditRepo, metricsSvc, validate, logr, service.ReportConfig{
		DueGrace: cfg.Reports.DueGrace,
		Location: loc,
	})

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "dir", cfg.Exports.StorageDir, "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(courseRepo, applicationRepo, reportRepo, shiftRepo, exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.ResultTTL,
		Location:  loc,
	}, logr)
	exportJobSvc := service.NewExportJobService(exportJobRepo, courseRepo, exportSvc, validate, logr, service.ExportJobConfig{
		ResultTTL:  cfg.Exports.ResultTTL,
		MaxRetries: cfg.Exports.WorkerRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emailQueue := jobs.NewQueue("email", notificationSvc.HandleEmail, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnGiveUp:   notificationSvc.EmailGiveUp,
	})
	notificationSvc.SetQueue(emailQueue)
	emailQueue.Start(ctx)
	defer emailQueue.Stop()
	notificationSvc.RecoverPendingEmails(ctx)

	if cfg.Exports.Enabled {
		worker := service.NewExportWorker(exportJobRepo, exportSvc, cfg.Exports.WorkerRetries, metricsSvc, logr)
		exportQueue := jobs.NewQueue("export", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportJobSvc.SetQueue(exportQueue)
		exportQueue.Start(ctx)
		defer exportQueue.Stop()
		exportJobSvc.RecoverPendingJobs(ctx)
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(scheduler.Config{
			DailyReportsSpec:   cfg.Scheduler.DailyReportsSpec,
			ShiftRemindersSpec: cfg.Scheduler.ShiftRemindersSpec,
			ExportCleanupSpec:  cfg.Scheduler.ExportCleanupSpec,
			Location:           loc,
		}, scheduler.Deps{
			Courses:   courseRepo,
			Reports:   reportSvc,
			Reminders: shiftSvc,
			Exports:   exportJobSvc,
		}, metricsSvc, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to configure scheduler", "error", err)
		}
		sched.Start()
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Courses:       handler.NewCourseHandler(courseSvc),
		Students:      handler.NewPersonHandler(studentSvc),
		Volunteers:    handler.NewPersonHandler(volunteerSvc),
		Applications:  handler.NewApplicationHandler(applicationSvc),
		Placement:     handler.NewPlacementHandler(placementSvc),
		Rooms:         handler.NewRoomHandler(roomSvc),
		NightShifts:   handler.NewNightShiftHandler(shiftSvc),
		Reports:       handler.NewReportHandler(reportSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Exports:       handler.NewExportHandler(exportSvc, exportJobSvc),
		Workflow:      handler.NewWorkflowHandler(),
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		_ = cacheRepo.Close()
	}
}
