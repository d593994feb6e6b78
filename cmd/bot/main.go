package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/nia-ops/warden/internal/approval"
	"github.com/nia-ops/warden/internal/badge"
	"github.com/nia-ops/warden/internal/commands"
	"github.com/nia-ops/warden/internal/config"
	"github.com/nia-ops/warden/internal/platform"
	larkgw "github.com/nia-ops/warden/internal/platform/lark"
	"github.com/nia-ops/warden/internal/repository"
	"github.com/nia-ops/warden/internal/roster"
	"github.com/nia-ops/warden/internal/scheduler"
	"github.com/nia-ops/warden/internal/sticky"
	"github.com/nia-ops/warden/internal/webhook"
	"github.com/nia-ops/warden/migrations"
	"github.com/nia-ops/warden/pkg/database"
	"github.com/nia-ops/warden/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Local development credentials live in .env; absence is fine.
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting community management bot",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(migrations.Files); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	officerRepo := repository.NewOfficerRepository(db.DB, logger)
	punishmentRepo := repository.NewPunishmentRepository(db.DB, logger)
	memberRoleRepo := repository.NewMemberRoleRepository(db.DB, logger)

	// Initialize the Lark-backed platform gateway
	larkClient := larkgw.NewClient(larkgw.Config{
		AppID:             cfg.Lark.AppID,
		AppSecret:         cfg.Lark.AppSecret,
		VerificationToken: cfg.Lark.VerificationToken,
		EncryptKey:        cfg.Lark.EncryptKey,
		Timeout:           cfg.Lark.APITimeout,
	}, logger)
	gateway := larkgw.NewGateway(larkClient, memberRoleRepo, logger)

	// Event plumbing and background services
	dispatcher := platform.NewDispatcher()
	sched := scheduler.New(logger)
	defer sched.Close()

	approvals := approval.NewService(approval.Config{
		ReviewChannelID:    cfg.Bot.ReviewChannelID,
		ApproverCapability: cfg.Bot.ApproverCapability,
		LeaveCapability:    cfg.Bot.LeaveCapability,
		RequestTTL:         cfg.Bot.RequestTTL,
	}, gateway, dispatcher, sched, logger)

	stickies := sticky.NewRegistry(gateway, dispatcher, cfg.Bot.StickyIdle, logger)

	rosterBook := roster.NewWorkbook(
		cfg.Roster.WorkbookPath,
		cfg.Roster.EmployeeSheet,
		cfg.Roster.MasterSheet,
		nil,
		logger,
	)

	badges := badge.NewGenerator(cfg.Badge.RendererURL, cfg.Badge.AgencyLine, cfg.Badge.OutputDir, logger)

	router := commands.NewRouter(commands.Config{
		Prefix:          cfg.Bot.CommandPrefix,
		AdminCapability: cfg.Bot.AdminCapability,
		AgencyName:      cfg.Bot.AgencyName,
	}, commands.Deps{
		Gateway:     gateway,
		Dispatcher:  dispatcher,
		Approval:    approvals,
		Sticky:      stickies,
		Punishments: punishmentRepo,
		Officers:    officerRepo,
		Roster:      rosterBook,
		Badges:      badges,
		Logger:      logger,
	})

	// Webhook ingestion
	webhookVerifier := webhook.NewVerifier(cfg.Lark.VerificationToken, cfg.Lark.EncryptKey, logger)
	webhookHandler := webhook.NewHandler(webhookVerifier, router, cfg.Lark.BotOpenID, logger)

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(logger))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"service":          "warden",
			"pending_requests": approvals.PendingCount(),
			"time":             time.Now().Format(time.RFC3339),
		})
	})

	engine.POST(cfg.Lark.WebhookPath, webhookHandler.Handle)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
