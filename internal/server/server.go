package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful/plateful/internal/config"
	"github.com/plateful/plateful/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Auth       *service.AuthService
	Dedup      *service.DedupEngine
	Scanners   *service.ScannerRegistry
	ScanEngine *service.ScanDecisionEngine
	Scheduler  *service.SlotScheduler
	Executor   *service.PostingExecutor
	Monitoring *service.MonitoringService
	Reconciler *service.Reconciler
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	srv := NewServerWithDB(cfg, db, logger)
	return srv, nil
}

// NewServerWithDB wires the services around an existing database handle.
func NewServerWithDB(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *Server {
	auth := service.NewAuthService(logger, cfg.Auth.CronSecret, cfg.Auth.TOTPSecret)
	dedup := service.NewDedupEngine(db, logger)
	scanners := service.NewScannerRegistry(logger)
	scanEngine := service.NewScanDecisionEngine(db, &cfg.Scan, scanners, logger)
	scheduler := service.NewSlotScheduler(db, &cfg.Schedule, dedup, logger)
	monitoring := service.NewMonitoringService(db, logger)
	reconciler := service.NewReconciler(&cfg.Reconciler, db, monitoring, logger)

	var publisher service.Publisher = service.NopPublisher{}
	if cfg.Publisher.WebhookURL != "" {
		publisher = service.NewWebhookPublisher(&cfg.Publisher)
	}
	executor := service.NewPostingExecutor(db, &cfg.Schedule, &cfg.Publisher, scheduler, publisher, logger)

	router := gin.New()

	srv := &Server{
		Config:     cfg,
		DB:         db,
		Router:     router,
		Logger:     logger,
		Auth:       auth,
		Dedup:      dedup,
		Scanners:   scanners,
		ScanEngine: scanEngine,
		Scheduler:  scheduler,
		Executor:   executor,
		Monitoring: monitoring,
		Reconciler: reconciler,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Auth-Code")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := s.Router.Group("/api/v1")
	{
		cron := api.Group("/cron", s.Auth.CronMiddleware())
		{
			cron.POST("/post", s.handleCronPost)
			cron.GET("/post", s.handleCronInfo)
		}

		schedule := api.Group("/schedule", s.Auth.AdminMiddleware())
		{
			schedule.GET("/upcoming", s.handleUpcomingSchedule)
			schedule.POST("/batch", s.handleScheduleBatch)
			schedule.PUT("/content/:id", s.handleUpdateScheduledContent)
		}

		scan := api.Group("/scan", s.Auth.AdminMiddleware())
		{
			scan.GET("/decision", s.handleScanDecision)
			scan.POST("/run", s.handleScanRun)
		}

		monitoring := api.Group("/monitoring", s.Auth.AdminMiddleware())
		{
			monitoring.GET("/errors", s.handleRecentErrors)
			monitoring.GET("/stats", s.handleRecentStats)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start reconciler
	if err := s.Reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop reconciler first
	s.Reconciler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
