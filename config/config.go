// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/zenibako/prodsheet-golang/sheet"
)

type Config struct {
	// Redis Configuration. Empty keeps the session local-only.
	RedisURL string
	// Local store
	Store     string
	StorePath string
	// Page geometry, in pixels
	PageHeight  int
	PageWidth   int
	PagePadding int
	// Auto-fit
	AutoFitRetryDelay time.Duration
	AutoFitMaxRetries int
	PresenceTTL       time.Duration
	Author            string
	LogLevel          string
}

func Load() Config {
	return Config{
		RedisURL:          getenv("PRODSHEET_REDIS_URL", ""),
		Store:             getenv("PRODSHEET_STORE", "sqlite"),
		StorePath:         getenv("PRODSHEET_STORE_PATH", ""),
		PageHeight:        getenvInt("PRODSHEET_PAGE_HEIGHT", sheet.DefaultPageHeight),
		PageWidth:         getenvInt("PRODSHEET_PAGE_WIDTH", sheet.DefaultPageWidth),
		PagePadding:       getenvInt("PRODSHEET_PAGE_PADDING", sheet.DefaultPagePadding),
		AutoFitRetryDelay: time.Duration(getenvInt("PRODSHEET_AUTOFIT_RETRY_MS", 50)) * time.Millisecond,
		AutoFitMaxRetries: getenvInt("PRODSHEET_AUTOFIT_MAX_RETRIES", 20),
		PresenceTTL:       time.Duration(getenvInt("PRODSHEET_PRESENCE_TTL_SECONDS", 30)) * time.Second,
		Author:            getenv("PRODSHEET_AUTHOR", getenv("USER", "")),
		LogLevel:          getenv("PRODSHEET_LOG_LEVEL", "info"),
	}
}

// UsableHeight is the page height left for a block once padding is taken off.
func (c Config) UsableHeight() float64 {
	return float64(c.PageHeight - c.PagePadding)
}

// ContentWidth is the page width left for text once padding is taken off
// both sides.
func (c Config) ContentWidth() float64 {
	return float64(c.PageWidth - 2*c.PagePadding)
}

// RetryPolicy is the auto-fit retry policy.
func (c Config) RetryPolicy() sheet.RetryPolicy {
	return sheet.RetryPolicy{Delay: c.AutoFitRetryDelay, MaxRetries: c.AutoFitMaxRetries}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
