package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"marketglass/internal/domain"
)

type Config struct {
	HTTPPort string
	APIKey   string
	RedisURL string

	ScrapeTimeoutSecs  int
	CacheTTLSecs       int
	AllowStale         bool
	RateLimitPerMin    int
	RateLimitWindowSec int

	EnabledSources []domain.SourceID
}

func Load() *Config {
	cfg := &Config{
		APIKey:   os.Getenv("API_KEY"),
		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
	}

	if cfg.APIKey == "" {
		log.Println("Warning: API_KEY not set, endpoints are unauthenticated")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, running without the snapshot tier")
	}

	cfg.HTTPPort = strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}

	cfg.ScrapeTimeoutSecs = 12
	if v := strings.TrimSpace(os.Getenv("SCRAPE_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScrapeTimeoutSecs = n
		}
	}

	cfg.CacheTTLSecs = 90
	if v := strings.TrimSpace(os.Getenv("CACHE_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSecs = n
		}
	}

	cfg.AllowStale = true
	if v := strings.TrimSpace(os.Getenv("ALLOW_STALE")); v != "" {
		cfg.AllowStale = !strings.EqualFold(v, "false")
	}

	cfg.RateLimitPerMin = 60
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPM")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPerMin = n
		}
	}

	cfg.RateLimitWindowSec = 60
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitWindowSec = n
		}
	}

	cfg.EnabledSources = parseSources(os.Getenv("ENABLED_SOURCES"))

	return cfg
}

// parseSources reads a comma-separated source list, dropping unknown ids
// with a warning. Empty input enables every source.
func parseSources(raw string) []domain.SourceID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]domain.SourceID(nil), domain.Sources...)
	}

	var enabled []domain.SourceID
	seen := make(map[domain.SourceID]struct{})
	for _, part := range strings.Split(raw, ",") {
		id := domain.SourceID(strings.ToLower(strings.TrimSpace(part)))
		if id == "" {
			continue
		}
		if !id.IsValid() {
			log.Printf("Warning: unknown source %q in ENABLED_SOURCES, skipping", id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		enabled = append(enabled, id)
	}
	if len(enabled) == 0 {
		log.Println("Warning: ENABLED_SOURCES resolved to nothing, enabling all sources")
		return append([]domain.SourceID(nil), domain.Sources...)
	}
	return enabled
}
