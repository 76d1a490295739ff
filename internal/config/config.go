package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maltehedderich/toolgate-go/internal/ratelimit"
)

// Config represents the complete gate configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Upstream      UpstreamConfig      `yaml:"upstream" json:"upstream"`
	Admin         AdminConfig         `yaml:"admin" json:"admin"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig contains public HTTP server configuration
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" json:"http_port"`
	RPCPath         string        `yaml:"rpc_path" json:"rpc_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	MaxBodySize     int64         `yaml:"max_body_size" json:"max_body_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level           string            `yaml:"level" json:"level"`
	Format          string            `yaml:"format" json:"format"` // json or text
	Output          string            `yaml:"output" json:"output"` // stdout, stderr, or file path
	ComponentLevels map[string]string `yaml:"component_levels" json:"component_levels"`
}

// RateLimitConfig contains the rate limiting and abuse protection
// configuration. The fail-open/fail-closed split is not configurable:
// the blocklist path always fails closed and the counter paths always
// fail open.
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Backend string `yaml:"backend" json:"backend"` // memory, redis, or dynamodb

	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`

	DynamoDBTable  string `yaml:"dynamodb_table" json:"dynamodb_table"`
	DynamoDBRegion string `yaml:"dynamodb_region" json:"dynamodb_region"`

	RequestsPerMinute int64   `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int64   `yaml:"requests_per_hour" json:"requests_per_hour"`
	BurstAllowance    int64   `yaml:"burst_allowance" json:"burst_allowance"`
	CostPerMinute     float64 `yaml:"cost_per_minute" json:"cost_per_minute"`
	CostPerHour       float64 `yaml:"cost_per_hour" json:"cost_per_hour"`

	BlockDuration    time.Duration `yaml:"block_duration" json:"block_duration"`
	MaxBlockDuration time.Duration `yaml:"max_block_duration" json:"max_block_duration"`
	StoreTimeout     time.Duration `yaml:"store_timeout" json:"store_timeout"`

	// Costs maps tool names to their cost rows. Tools absent from the map
	// are charged the default cost of 1.
	Costs map[string]ratelimit.ToolCost `yaml:"costs" json:"costs"`
}

// UpstreamConfig describes the tool backend that allowed requests are
// dispatched to.
type UpstreamConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// AdminConfig contains the administrative listener configuration. The
// admin surface is never mounted on the public router; it gets its own
// listener, bound to loopback by default.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	MetricsEnabled    bool    `yaml:"metrics_enabled" json:"metrics_enabled"`
	MetricsAddr       string  `yaml:"metrics_addr" json:"metrics_addr"`
	MetricsPath       string  `yaml:"metrics_path" json:"metrics_path"`
	HealthPath        string  `yaml:"health_path" json:"health_path"`
	ReadinessPath     string  `yaml:"readiness_path" json:"readiness_path"`
	LivenessPath      string  `yaml:"liveness_path" json:"liveness_path"`
	TracingEnabled    bool    `yaml:"tracing_enabled" json:"tracing_enabled"`
	TracingEndpoint   string  `yaml:"tracing_endpoint" json:"tracing_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// Load loads configuration from file with environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	cfg.setDefaults()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()

	return cfg, nil
}

// Get returns the global configuration
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	// Server defaults
	c.Server.HTTPPort = 8080
	c.Server.RPCPath = "/rpc"
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.WriteTimeout = 30 * time.Second
	c.Server.IdleTimeout = 120 * time.Second
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	c.Server.MaxBodySize = 1 << 20    // 1 MB

	// Logging defaults
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	c.Logging.Output = "stdout"

	// Rate limit defaults
	c.RateLimit.Enabled = true
	c.RateLimit.Backend = "memory"
	c.RateLimit.RequestsPerMinute = 60
	c.RateLimit.RequestsPerHour = 1000
	c.RateLimit.BurstAllowance = 5
	c.RateLimit.CostPerMinute = 50
	c.RateLimit.CostPerHour = 200
	c.RateLimit.BlockDuration = 24 * time.Hour
	c.RateLimit.MaxBlockDuration = 30 * 24 * time.Hour
	c.RateLimit.StoreTimeout = 50 * time.Millisecond

	// Upstream defaults
	c.Upstream.Timeout = 30 * time.Second

	// Admin defaults
	c.Admin.Enabled = true
	c.Admin.Addr = "127.0.0.1:9091"

	// Observability defaults
	c.Observability.MetricsEnabled = true
	c.Observability.MetricsAddr = ":9090"
	c.Observability.MetricsPath = "/metrics"
	c.Observability.HealthPath = "/_health"
	c.Observability.ReadinessPath = "/_health/ready"
	c.Observability.LivenessPath = "/_health/live"
	c.Observability.TracingEnabled = false
	c.Observability.TracingSampleRate = 1.0
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if !strings.HasPrefix(c.Server.RPCPath, "/") {
		return fmt.Errorf("invalid RPC path: %s", c.Server.RPCPath)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("max body size must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'text')", c.Logging.Format)
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if c.RateLimit.RedisAddr == "" {
				return fmt.Errorf("rate limit backend is redis but redis address not specified")
			}
		case "dynamodb":
			if c.RateLimit.DynamoDBTable == "" {
				return fmt.Errorf("rate limit backend is dynamodb but table not specified")
			}
			if c.RateLimit.DynamoDBRegion == "" {
				return fmt.Errorf("rate limit backend is dynamodb but region not specified")
			}
		default:
			return fmt.Errorf("invalid rate limit backend: %s (must be 'memory', 'redis', or 'dynamodb')", c.RateLimit.Backend)
		}

		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("requests per minute must be positive")
		}
		if c.RateLimit.RequestsPerHour <= 0 {
			return fmt.Errorf("requests per hour must be positive")
		}
		if c.RateLimit.BurstAllowance < 0 {
			return fmt.Errorf("burst allowance must not be negative")
		}
		if c.RateLimit.CostPerMinute <= 0 {
			return fmt.Errorf("cost per minute must be positive")
		}
		if c.RateLimit.CostPerHour <= 0 {
			return fmt.Errorf("cost per hour must be positive")
		}
		if c.RateLimit.BlockDuration <= 0 {
			return fmt.Errorf("block duration must be positive")
		}
		if c.RateLimit.MaxBlockDuration < c.RateLimit.BlockDuration {
			return fmt.Errorf("max block duration must not be shorter than block duration")
		}
		if c.RateLimit.StoreTimeout <= 0 {
			return fmt.Errorf("store timeout must be positive")
		}

		// Cost rows are validated by the table constructor
		if _, err := ratelimit.NewCostTable(c.RateLimit.Costs); err != nil {
			return fmt.Errorf("invalid cost table: %w", err)
		}
	}

	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream URL is required")
	}
	if !strings.HasPrefix(c.Upstream.URL, "http://") && !strings.HasPrefix(c.Upstream.URL, "https://") {
		return fmt.Errorf("invalid upstream URL: %s", c.Upstream.URL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}

	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("admin enabled but address not specified")
	}

	return nil
}

// CostTable builds the validated cost table from the configuration.
func (c *Config) CostTable() (*ratelimit.CostTable, error) {
	return ratelimit.NewCostTable(c.RateLimit.Costs)
}

// Limits returns the configured per-client ceilings.
func (c *Config) Limits() ratelimit.Limits {
	return ratelimit.Limits{
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		RequestsPerHour:   c.RateLimit.RequestsPerHour,
		BurstAllowance:    c.RateLimit.BurstAllowance,
		CostPerMinute:     c.RateLimit.CostPerMinute,
		CostPerHour:       c.RateLimit.CostPerHour,
	}
}

// loadFromFile loads configuration from a file (YAML or JSON)
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Environment variables are prefixed with TOOLGATE_
func applyEnvOverrides(cfg *Config) error {
	prefix := "TOOLGATE_"

	if val := os.Getenv(prefix + "HTTP_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT: %w", err)
		}
		cfg.Server.HTTPPort = port
	}
	if val := os.Getenv(prefix + "RPC_PATH"); val != "" {
		cfg.Server.RPCPath = val
	}

	if val := os.Getenv(prefix + "LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(prefix + "LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv(prefix + "RATE_LIMIT_BACKEND"); val != "" {
		cfg.RateLimit.Backend = val
	}
	if val := os.Getenv(prefix + "REDIS_ADDR"); val != "" {
		cfg.RateLimit.RedisAddr = val
	}
	if val := os.Getenv(prefix + "REDIS_PASSWORD"); val != "" {
		cfg.RateLimit.RedisPassword = val
	}
	if val := os.Getenv(prefix + "REDIS_DB"); val != "" {
		db, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RateLimit.RedisDB = db
	}
	if val := os.Getenv(prefix + "DYNAMODB_TABLE"); val != "" {
		cfg.RateLimit.DynamoDBTable = val
	}
	if val := os.Getenv(prefix + "DYNAMODB_REGION"); val != "" {
		cfg.RateLimit.DynamoDBRegion = val
	}

	if val := os.Getenv(prefix + "UPSTREAM_URL"); val != "" {
		cfg.Upstream.URL = val
	}

	if val := os.Getenv(prefix + "ADMIN_ADDR"); val != "" {
		cfg.Admin.Addr = val
	}

	if val := os.Getenv(prefix + "TRACING_ENDPOINT"); val != "" {
		cfg.Observability.TracingEndpoint = val
		cfg.Observability.TracingEnabled = true
	}

	return nil
}
