package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/hl7fhir/internal/platform/middleware"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	MLLPAddr       string        `mapstructure:"MLLP_ADDR"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	ConsoleEnabled bool          `mapstructure:"CONSOLE_ENABLED"`
	MetricsEnabled bool          `mapstructure:"METRICS_ENABLED"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "3000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("MLLP_ADDR", "")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("CONSOLE_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("MLLP_ADDR")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("CONSOLE_ENABLED")
	v.BindEnv("METRICS_ENABLED")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// CORS_ORIGINS is a comma separated list; trim around each origin.
	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RateLimit returns the per-client limiter settings. RATE_LIMIT_RPS=0 turns
// limiting off.
func (c *Config) RateLimit() middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = c.RateLimitRPS
	rl.BurstSize = c.RateLimitBurst
	return rl
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the zerolog level named by LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is usable before any listener is
// opened.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if _, err := middleware.ParseLimit(c.BodyLimit); err != nil {
		return fmt.Errorf("BODY_LIMIT: %w", err)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %g", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is on, got %d", c.RateLimitBurst)
	}
	if c.MLLPAddr != "" && c.MLLPAddr == ":"+c.Port {
		return fmt.Errorf("MLLP_ADDR %q collides with the HTTP port", c.MLLPAddr)
	}
	return nil
}
