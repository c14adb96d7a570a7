// Package config loads API settings from defaults, an optional YAML file and
// the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the API.
type Config struct {
	Environment string        `yaml:"environment"`
	HTTPAddr    string        `yaml:"http_addr"`
	GRPCAddr    string        `yaml:"grpc_addr"`
	DatabaseDSN string        `yaml:"database_dsn"`
	RedisAddr   string        `yaml:"redis_addr"`
	LogLevel    string        `yaml:"log_level"`
	Auth        AuthConfig    `yaml:"auth"`
	Admin       AdminConfig   `yaml:"admin"`
	HTTP        HTTPConfig    `yaml:"http"`
	RateLimit   RateLimitConf `yaml:"rate_limit"`
}

// AuthConfig holds token settings. The session lifetime is fixed at
// auth.SessionTTL and is not configurable.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// AdminConfig holds the primary administrator provisioned by bootstrap-admin.
type AdminConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// HTTPConfig holds server limits and CORS origins.
type HTTPConfig struct {
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RateLimitConf is the per-client request budget. With a Redis address the
// budget is RequestsPerWindow per Window shared across instances; otherwise
// an in-process token bucket of PerSecond/Burst is used.
type RateLimitConf struct {
	PerSecond         float64       `yaml:"per_second"`
	Burst             int           `yaml:"burst"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Environment: "production",
		HTTPAddr:    ":8080",
		GRPCAddr:    ":9090",
		LogLevel:    "info",
		Auth: AuthConfig{
			Issuer: "estatecrm",
		},
		Admin: AdminConfig{
			Username: "admin",
			Email:    "admin@estatecrm.local",
		},
		HTTP: HTTPConfig{
			AllowedOrigins:  []string{"http://localhost:3000"},
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConf{
			PerSecond:         20,
			Burst:             40,
			RequestsPerWindow: 600,
			Window:            time.Minute,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CRM_ENV", &cfg.Environment)
	str("CRM_HTTP_ADDR", &cfg.HTTPAddr)
	str("CRM_GRPC_ADDR", &cfg.GRPCAddr)
	str("CRM_PG_DSN", &cfg.DatabaseDSN)
	str("CRM_REDIS_ADDR", &cfg.RedisAddr)
	str("CRM_LOG_LEVEL", &cfg.LogLevel)
	str("CRM_AUTH_SECRET", &cfg.Auth.Secret)
	str("CRM_AUTH_ISSUER", &cfg.Auth.Issuer)
	str("CRM_ADMIN_USERNAME", &cfg.Admin.Username)
	str("CRM_ADMIN_EMAIL", &cfg.Admin.Email)
	if v, ok := lookup("CRM_ADMIN_PASSWORD"); ok && v != "" {
		cfg.Admin.Password = v
	}
	if v, ok := lookup("CRM_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("CRM_RATE_LIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CRM_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.PerSecond = f
	}
	if v, ok := lookup("CRM_RATE_LIMIT_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRM_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDevelopment reports whether weak defaults are tolerated.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "development", "dev", "local":
		return true
	}
	return false
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if err := ValidateSecret(c.Auth.Secret, c.IsDevelopment()); err != nil {
		errs = append(errs, err)
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	return errors.Join(errs...)
}
