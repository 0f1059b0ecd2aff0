package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Telegram Bot
	BotToken    string
	AdminChatID int64
	WebAppURL   string

	// Database
	DatabaseURL string

	// Web Server
	WebBind     string
	CatalogPath string
	CORSOrigin  string

	// Session
	JWTSecret      string
	RelayToken     string
	InitDataMaxAge time.Duration

	LogLevel string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		BotToken:    os.Getenv("BOT_TOKEN"),
		WebAppURL:   os.Getenv("WEBAPP_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WebBind:     getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		CatalogPath: getEnvDefault("CATALOG_PATH", "public/products.json"),
		JWTSecret:   getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		RelayToken:  os.Getenv("RELAY_TOKEN"),
		LogLevel:    getEnvDefault("LOG_LEVEL", "info"),
	}
	cfg.CORSOrigin = extractBaseURL(cfg.WebAppURL)

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RelayToken == "" {
		return nil, fmt.Errorf("RELAY_TOKEN is required")
	}

	var err error
	if cfg.AdminChatID, err = getEnvInt64("ADMIN_CHAT_ID", 0); err != nil {
		return nil, err
	}
	if cfg.InitDataMaxAge, err = getEnvDuration("INIT_DATA_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Storefront configures the terminal storefront client.
type Storefront struct {
	ShopURL    string
	InitData   string
	CartPath   string
	RelayURL   string
	RelayToken string

	PollInterval    time.Duration
	PollAttempts    int
	ContextTimeout  time.Duration
	MaxPayloadChars int
	CloseDelay      time.Duration

	LogLevel string
}

func LoadStorefront() (*Storefront, error) {
	_ = godotenv.Load()

	cfg := &Storefront{
		ShopURL:    getEnvDefault("SHOP_URL", "http://localhost:3000"),
		InitData:   os.Getenv("INIT_DATA"),
		CartPath:   getEnvDefault("CART_PATH", "cart.json"),
		RelayURL:   os.Getenv("RELAY_URL"),
		RelayToken: os.Getenv("RELAY_TOKEN"),
		LogLevel:   getEnvDefault("LOG_LEVEL", "warn"),
	}
	if cfg.RelayURL != "" && cfg.RelayToken == "" {
		return nil, fmt.Errorf("RELAY_TOKEN is required when RELAY_URL is set")
	}

	var err error
	if cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", 300*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PollAttempts, err = getEnvInt("POLL_ATTEMPTS", 15); err != nil {
		return nil, err
	}
	if cfg.ContextTimeout, err = getEnvDuration("CONTEXT_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxPayloadChars, err = getEnvInt("MAX_PAYLOAD_CHARS", 3800); err != nil {
		return nil, err
	}
	if cfg.CloseDelay, err = getEnvDuration("CLOSE_DELAY", 1200*time.Millisecond); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func extractBaseURL(webAppURL string) string {
	// e.g., "https://shop.example.com/app/index.html" -> "https://shop.example.com"
	parsed, err := url.Parse(webAppURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "*"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
