package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	Provider         string
	AstriaAPIKey     string
	AstriaBaseURL    string
	AstriaTuneID     int
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	WebhookSecret    string
	WebhookBaseURL   string
	StoragePath      string
	StorageBaseURL   string
	GeoIPDBPath      string
	AllowedOrigins   []string
	GenerateLimit    int
	PollInterval     time.Duration
	PollMaxAttempts  int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Provider:         strings.ToLower(getEnv("PROVIDER", "astria")),
		AstriaAPIKey:     os.Getenv("ASTRIA_API_KEY"),
		AstriaBaseURL:    getEnv("ASTRIA_BASE_URL", "https://api.astria.ai"),
		AstriaTuneID:     getEnvInt("ASTRIA_TUNE_ID", 0),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		WebhookBaseURL:   os.Getenv("WEBHOOK_BASE_URL"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", "http://localhost:"+getEnv("PORT", "8080")+"/static"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),
		GenerateLimit:    getEnvInt("GENERATE_RATE_LIMIT", 10),
		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		PollMaxAttempts:  getEnvInt("POLL_MAX_ATTEMPTS", 30),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// API keys are allowed to be empty here; they can also live in the
	// integration_tokens table and are resolved at startup.
	switch cfg.Provider {
	case "astria":
		if cfg.AstriaTuneID <= 0 {
			return nil, fmt.Errorf("ASTRIA_TUNE_ID is required when PROVIDER=astria")
		}
	case "gemini":
	default:
		return nil, fmt.Errorf("unsupported PROVIDER %q", cfg.Provider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
