// Package config holds the application settings and the loaders that build
// them from defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Session store backends.
const (
	SessionStoreDB    = "db"
	SessionStoreRedis = "redis"
)

// Config is the full set of knobs the application factory understands.
type Config struct {
	Testing   bool   `yaml:"testing"`
	SecretKey string `yaml:"secret_key"`
	Addr      string `yaml:"addr"`
	LogLevel  string `yaml:"log_level"`

	// DatabaseURL accepts "sqlite://" (private in-memory database),
	// "sqlite:///abs/path.db", "sqlite://rel.db" or a bare file path.
	DatabaseURL string `yaml:"database_url"`

	// ElasticsearchURL enables the search integration. Empty disables it.
	ElasticsearchURL  string `yaml:"elasticsearch_url"`
	SearchIndexPrefix string `yaml:"search_index_prefix"`

	SessionStore         string        `yaml:"session_store"`
	RedisURL             string        `yaml:"redis_url"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	RememberTTL          time.Duration `yaml:"remember_ttl"`
	SessionSweepSchedule string        `yaml:"session_sweep_schedule"`

	PostsPerPage       int `yaml:"posts_per_page"`
	LoginRatePerMinute int `yaml:"login_rate_per_minute"`

	// MetricsPassword protects /metrics with basic auth when set.
	MetricsPassword string `yaml:"metrics_password"`

	Google GoogleConfig `yaml:"google"`
}

// GoogleConfig configures the optional "Sign in with Google" flow. The
// endpoint overrides exist so the flow can be pointed at a fake provider.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"userinfo_url"`
}

// Default returns production defaults. SecretKey is intentionally empty and
// must be provided by the file or the environment.
func Default() *Config {
	return &Config{
		Addr:                 "127.0.0.1:5000",
		LogLevel:             "info",
		DatabaseURL:          "sqlite://microblog.db",
		SearchIndexPrefix:    "microblog-",
		SessionStore:         SessionStoreDB,
		SessionTTL:           24 * time.Hour,
		RememberTTL:          30 * 24 * time.Hour,
		SessionSweepSchedule: "@every 15m",
		PostsPerPage:         25,
		LoginRatePerMinute:   10,
	}
}

// Testing returns the configuration used by the test suites: in-memory
// database, search disabled, no background jobs.
func Testing() *Config {
	cfg := Default()
	cfg.Testing = true
	cfg.SecretKey = "testing-secret"
	cfg.LogLevel = "error"
	cfg.DatabaseURL = "sqlite://"
	cfg.ElasticsearchURL = ""
	cfg.SessionSweepSchedule = ""
	cfg.LoginRatePerMinute = 1000
	return cfg
}

// Load builds a config from defaults, the YAML file at path (if any) and the
// environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = resolveConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first problem found in the config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%w: database_url is required", ErrInvalid)
	}
	if !c.Testing && strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrInvalid)
	}
	switch c.SessionStore {
	case SessionStoreDB:
	case SessionStoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("%w: redis_url is required for the redis session store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown session_store %q", ErrInvalid, c.SessionStore)
	}
	if c.PostsPerPage <= 0 {
		return fmt.Errorf("%w: posts_per_page must be positive", ErrInvalid)
	}
	if c.SessionTTL <= 0 || c.RememberTTL <= 0 {
		return fmt.Errorf("%w: session ttls must be positive", ErrInvalid)
	}
	return nil
}

// SearchEnabled reports whether a search backend is configured.
func (c *Config) SearchEnabled() bool {
	return strings.TrimSpace(c.ElasticsearchURL) != ""
}

// GoogleEnabled reports whether Google sign-in can be offered.
func (c *Config) GoogleEnabled() bool {
	return strings.TrimSpace(c.Google.ClientID) != "" && strings.TrimSpace(c.Google.ClientSecret) != ""
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	setString("SECRET_KEY", &cfg.SecretKey)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("ELASTICSEARCH_URL", &cfg.ElasticsearchURL)
	setString("MICROBLOG_ADDR", &cfg.Addr)
	setString("MICROBLOG_LOG_LEVEL", &cfg.LogLevel)
	setString("MICROBLOG_SESSION_STORE", &cfg.SessionStore)
	setString("REDIS_URL", &cfg.RedisURL)
	setString("MICROBLOG_METRICS_PASSWORD", &cfg.MetricsPassword)
	setString("GOOGLE_CLIENT_ID", &cfg.Google.ClientID)
	setString("GOOGLE_CLIENT_SECRET", &cfg.Google.ClientSecret)

	if v := strings.TrimSpace(os.Getenv("POSTS_PER_PAGE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: POSTS_PER_PAGE: %v", ErrInvalid, err)
		}
		cfg.PostsPerPage = n
	}
	return nil
}

func resolveConfigPath() string {
	if explicit := strings.TrimSpace(os.Getenv("MICROBLOG_CONFIG")); explicit != "" {
		return explicit
	}

	candidates := []string{
		"microblog.yaml",
		"config/microblog.yaml",
		"/etc/microblog/microblog.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "microblog", "microblog.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
