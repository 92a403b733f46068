package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	ctx := context.Background()

	provider := buildProvider(ctx, cfg, logger)

	var records repository.GradingRecordRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := db.AutoMigrate(&models.GradingRecord{}); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		records = repository.NewGradingRecordRepository(db)
	} else {
		logger.Info().Msg("database url not set, grading audit trail disabled")
	}

	var redisClient *redis.Client
	var limiterStorage fiber.Storage
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL, 3*time.Second)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		limiterStorage = middleware.NewRedisStorage(redisClient, "gema:ratelimit:")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	events := service.NewGradeEventPublisher(redisClient, cfg.EventsRedisChannel, natsConn, cfg.EventsNATSSubject)

	validate := validator.New(validator.WithRequiredStructEnabled())

	gradingService := service.NewGradingService(provider, records, events, logger, service.GradingConfig{
		ProviderTimeout: cfg.AITimeout,
		MaxCodeChars:    cfg.MaxCodeChars,
	})
	gradingHandler := handler.NewGradingHandler(gradingService, validate, logger)

	// two provider calls plus slack
	requestTimeout := 2*cfg.AITimeout + 10*time.Second
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})

	deps := router.Dependencies{
		GradingHandler: gradingHandler,
		GradingService: gradingService,
		RateLimiter:    middleware.RateLimit("grading", cfg.RateLimitMax, cfg.RateLimitWindow, limiterStorage),
	}
	if cfg.JWTSecret != "" {
		deps.JWTMiddleware = middleware.JWTProtected(cfg.JWTSecret)
		deps.RoleMiddleware = middleware.RequireRole("teacher", "admin")
	} else {
		logger.Warn().Msg("jwt secret not set, grading endpoint is unauthenticated")
	}
	router.Register(app, cfg, deps)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

// buildProvider returns nil when the provider cannot be configured; grading
// requests then fail with a configuration error instead of the process exiting.
func buildProvider(ctx context.Context, cfg config.Config, logger zerolog.Logger) ai.Provider {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		provider, err := ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:  cfg.ProviderAPIKey(),
			Model:   cfg.AIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  logger,
		})
		if err != nil {
			logger.Error().Err(err).Str("provider", cfg.AIProvider).Msg("grading provider unavailable")
			return nil
		}
		return provider
	default:
		provider, err := ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey: cfg.ProviderAPIKey(),
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			logger.Error().Err(err).Str("provider", cfg.AIProvider).Msg("grading provider unavailable")
			return nil
		}
		return provider
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
