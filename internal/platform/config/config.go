package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type APIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type AnalyticsConfig struct {
	Enabled bool
	NATSURL string
}

type AppConfig struct {
	LogLevel       string
	LogFile        string
	ProductID      string
	SearchDebounce time.Duration
	API            APIConfig
	Analytics      AnalyticsConfig
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set in the environment win.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		LogLevel:       strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogFile:        strings.TrimSpace(os.Getenv("LOG_FILE")),
		ProductID:      strings.TrimSpace(os.Getenv("MARKET_PRODUCT_ID")),
		SearchDebounce: envDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
		API: APIConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MARKET_API_URL")), "/"),
			Token:   strings.TrimSpace(os.Getenv("MARKET_TOKEN")),
			Timeout: envDuration("HTTP_TIMEOUT", 10*time.Second),
		},
		Analytics: AnalyticsConfig{
			Enabled: envBool("ANALYTICS_ENABLED", false),
			NATSURL: strings.TrimSpace(os.Getenv("NATS_URL")),
		},
	}
	if cfg.API.BaseURL == "" {
		return AppConfig{}, errors.New("MARKET_API_URL is required")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "market-comments.log"
	}
	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
