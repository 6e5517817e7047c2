package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatelink/estatelink-backend/internal/config"
	"github.com/estatelink/estatelink-backend/internal/database"
	"github.com/estatelink/estatelink-backend/internal/directory"
	"github.com/estatelink/estatelink-backend/internal/handlers"
	"github.com/estatelink/estatelink-backend/internal/middleware"
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/internal/routes"
	"github.com/estatelink/estatelink-backend/internal/services"
	"github.com/estatelink/estatelink-backend/pkg/logger"
)

func main() {
	// 0. Load Config & Initialize Logger
	config.LoadConfig()

	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}
	logger.Init(env)

	logger.Info().Str("environment", env).Msg("Starting EstateLink Backend...")

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. Connect Database & Redis
	database.Connect()
	database.InitRedis()

	// 2. Run Migrations
	logger.Info().Msg("Running database migrations...")
	tableModels := []interface{}{
		&models.Estate{},
		&models.User{},
		&models.Conversation{},
		&models.Participant{},
		&models.Message{},
		&models.Reaction{},
		&models.Notification{},
	}
	for _, m := range tableModels {
		if err := database.DB.AutoMigrate(m); err != nil {
			logger.Fatal().Err(err).Msgf("Failed to migrate table for %T", m)
		}
	}
	logger.Info().Msg("Database migrations complete")

	// 3. Build the messaging core. These instances live and die with the
	// process; nothing else holds them.
	users := directory.NewUsers(database.DB)
	estates := directory.NewEstates(database.DB)
	access := services.NewAccessPolicy(database.DB)
	store := services.NewConversationStore(database.DB, access, estates)
	presence := services.NewPresenceRegistry()
	notifier := services.NewStoreNotifier(database.DB)
	fanout := services.NewFanoutRouter(store, presence, notifier)

	typingTTL := time.Duration(config.AppConfig.TypingTTLSeconds) * time.Second
	typing := services.NewTypingTracker(typingTTL, func(userID, conversationID string) {
		fanout.Typing(conversationID, userID, false)
	})

	gateway := handlers.NewGateway(users, estates, store, access, presence, typing, fanout)

	chatHandler := handlers.NewChatHandler(store, users, fanout)
	estateHandler := handlers.NewEstateHandler(store, access, users, estates, presence, fanout)
	notificationHandler := handlers.NewNotificationHandler(database.DB)

	// 4. Setup Router
	r := gin.New()

	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware())

	// Exempt /socket.io from rate limiting
	r.Use(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 10 && c.Request.URL.Path[:10] == "/socket.io" {
			c.Next()
			return
		}
		middleware.GeneralRateLimit()(c)
	})

	// 5. Register Routes
	api := r.Group("/api")
	{
		routes.RegisterChatRoutes(api, chatHandler)
		routes.RegisterEstateRoutes(api, estateHandler)
		routes.RegisterNotificationRoutes(api, notificationHandler)
	}

	// Health check with DB and Redis status
	r.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		redisStatus := "ok"

		sqlDB, err := database.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			dbStatus = "error"
		}

		if database.Redis != nil {
			if _, err := database.Redis.Ping(context.Background()).Result(); err != nil {
				redisStatus = "error"
			}
		} else {
			redisStatus = "not configured"
		}

		status := "ok"
		if dbStatus != "ok" || (redisStatus != "ok" && redisStatus != "not configured") {
			status = "degraded"
		}

		c.JSON(200, gin.H{
			"status": status,
			"checks": gin.H{
				"database": dbStatus,
				"redis":    redisStatus,
			},
		})
	})

	// 6. Mount the socket gateway
	gateway.Serve()
	defer gateway.Close()

	r.GET("/socket.io/*any", handlers.SocketHandler(gateway.Server()))
	r.POST("/socket.io/*any", handlers.SocketHandler(gateway.Server()))

	// 7. Start Server with graceful shutdown
	port := config.AppConfig.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Str("env", env).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
