package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"blackjack-backend/internal/config"
	"blackjack-backend/internal/handlers"
	"blackjack-backend/internal/logger"
	"blackjack-backend/internal/middleware"
	"blackjack-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, limiter, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Fatalw("Failed to open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer store.Close()

	jwtService := services.NewJWTService(cfg)
	userService := services.NewUserService(store, jwtService, cfg.StartingWallet, logg)
	gameEngine := services.NewGameEngine(store,
		services.WithLogger(logg),
		services.WithMinWallet(cfg.MinWallet),
	)

	wsHandler := handlers.NewWebSocketHandler(userService, logg)
	defer wsHandler.Close()
	gameEngine.SetBroadcaster(wsHandler)

	authHandler := handlers.NewAuthHandler(userService, logg)
	userHandler := handlers.NewUserHandler(userService, logg)
	gameHandler := handlers.NewGameHandler(gameEngine, logg)
	turnHandler := handlers.NewTurnHandler(gameEngine, logg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logg))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": cfg.StoreDriver})
	})

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	protected := router.Group("/api")
	protected.Use(
		middleware.AuthMiddleware(jwtService),
		middleware.RateLimitMiddleware(limiter, cfg.RateLimitPerMinute, logg),
	)
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.PATCH("/me", userHandler.UpdateCurrentUser)
		protected.DELETE("/me", userHandler.DeleteCurrentUser)
		protected.GET("/users", userHandler.ListUsers)
		protected.GET("/wallet/transactions", userHandler.ListTransactions)

		protected.GET("/ws", wsHandler.HandleWebSocket)

		games := protected.Group("/games")
		{
			games.POST("", gameHandler.CreateGame)
			games.GET("", gameHandler.ListGames)
			games.GET("/:id", gameHandler.GetGame)
			games.DELETE("/:id", gameHandler.DeleteGame)
			games.POST("/:id/finish", gameHandler.FinishGame)
			games.POST("/:id/turns", gameHandler.CreateTurn)
		}

		turns := protected.Group("/turns")
		{
			turns.GET("/:id", turnHandler.GetTurn)
			turns.PATCH("/:id/wage", turnHandler.Wage)
			turns.PATCH("/:id/hit", turnHandler.Hit)
			turns.PATCH("/:id/stand", turnHandler.Stand)
			turns.PATCH("/:id/settle", turnHandler.Settle)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logg.Infow("Server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatalw("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	logg.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Errorw("Graceful shutdown failed", "error", err)
	}
}

// openStore picks the persistence backend. Postgres has no rate limit
// counters of its own, so an in-process limiter covers it.
func openStore(ctx context.Context, cfg *config.Config, logg *zap.SugaredLogger) (services.Store, services.RateLimiter, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		store, err := services.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logg.Info("Database connected and migrated")
		return store, services.NewMemoryStore(), nil

	case config.StoreMemory:
		logg.Warn("Using in-memory store, state is lost on restart")
		store := services.NewMemoryStore()
		return store, store, nil

	default:
		store, err := services.NewRedisStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}
