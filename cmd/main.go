package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"referral-api/internal/auth"
	"referral-api/internal/cache"
	"referral-api/internal/config"
	"referral-api/internal/database"
	"referral-api/internal/handlers"
	"referral-api/internal/mailer"
	"referral-api/internal/services"
	"referral-api/internal/verifier"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to the cache
	cacheClient, err := cache.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer cacheClient.Close()

	// External collaborators
	hunterClient := verifier.NewHunterClient(cfg.Hunter.APIKey, cfg.Hunter.BaseURL)
	mailClient := mailer.NewMailer(&cfg.SMTP)

	// Initialize services
	codeService := services.NewCodeService(database.GetDB(), cacheClient, logger)
	userService := services.NewUserService(database.GetDB(), hunterClient, codeService, mailClient, logger)
	referralService := services.NewReferralService(database.GetDB())
	authService := services.NewAuthService(database.GetDB(), logger)

	// Initialize handlers
	handlers.RegisterValidators()
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService, cfg.Limits)
	codeHandler := handlers.NewCodeHandler(codeService, cfg.Limits)
	referralHandler := handlers.NewReferralHandler(referralService)
	emailHandler := handlers.NewEmailHandler(userService)

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Authentication routes (public)
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/token", authHandler.Login)
		authRoutes.POST("/refresh", authHandler.Refresh)
	}

	// Registration (public)
	router.POST("/api/users", userHandler.Register)

	// Referrals by referer id (public)
	router.GET("/api/referer/:user_id", referralHandler.GetByReferer)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.GET("/code", codeHandler.GetOwn)
		api.POST("/code", codeHandler.Create)
		api.PATCH("/code/:id", codeHandler.Update)
		api.DELETE("/code/:id", codeHandler.Delete)

		api.GET("/referrals", referralHandler.GetOwnReferrals)
		api.GET("/send-code-email", emailHandler.SendCode)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
