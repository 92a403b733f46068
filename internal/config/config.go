package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	LogLevel           string
	AIProvider         string
	AIModel            string
	GeminiAPIKey       string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	AITimeout          time.Duration
	MaxCodeChars       int
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	EventsRedisChannel string
	EventsNATSSubject  string
	RateLimitMax       int
	RateLimitWindow    time.Duration
	JWTSecret          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ProviderAPIKey returns the credential for the selected provider.
func (c Config) ProviderAPIKey() string {
	if c.AIProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("grading.max_code_chars", 20000)
	v.SetDefault("events.redis_channel", "gema.grading")
	v.SetDefault("events.nats_subject", "gema.grading")
	v.SetDefault("rate_limit.max", 20)
	v.SetDefault("rate_limit.window", "1m")

	timeout, err := parseDuration(v.GetString("ai.timeout"), "ai timeout")
	if err != nil {
		return Config{}, err
	}

	window, err := parseDuration(v.GetString("rate_limit.window"), "rate limit window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		LogLevel:           strings.ToLower(v.GetString("log.level")),
		AIProvider:         strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		AIModel:            v.GetString("ai.model"),
		GeminiAPIKey:       v.GetString("gemini_api_key"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		OpenAIBaseURL:      v.GetString("openai_base_url"),
		AITimeout:          timeout,
		MaxCodeChars:       v.GetInt("grading.max_code_chars"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		EventsRedisChannel: v.GetString("events.redis_channel"),
		EventsNATSSubject:  v.GetString("events.nats_subject"),
		RateLimitMax:       v.GetInt("rate_limit.max"),
		RateLimitWindow:    window,
		JWTSecret:          v.GetString("jwt.secret"),
	}

	switch cfg.AIProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}

	if cfg.MaxCodeChars < 0 {
		cfg.MaxCodeChars = 0
	}

	return cfg, nil
}

func parseDuration(value, name string) (time.Duration, error) {
	duration, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return duration, nil
}
