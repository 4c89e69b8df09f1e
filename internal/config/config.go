package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Token       TokenConfig       `yaml:"token"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Retry       RetryConfig       `yaml:"retry"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Metering    MeteringConfig    `yaml:"metering"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig is optional: with an empty URL, usage metering is disabled
// and invocations are served without persistence.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type CredentialsConfig struct {
	// File holds the tenant -> credential-set mapping. When empty, only the
	// default tenant is available, assembled from AMAZON_* env vars.
	File string `yaml:"file"`
}

type GatewayConfig struct {
	// APIKeys are caller keys in "id:secret" form. Merged with the
	// GATEWAY_API_KEYS env var (comma-separated pairs).
	APIKeys []string `yaml:"api_keys"`
}

type UpstreamConfig struct {
	// AuthEndpoint is the LWA token exchange URL.
	AuthEndpoint string `yaml:"auth_endpoint"`
	// Endpoint is the SP-API base URL for the configured region.
	Endpoint string        `yaml:"endpoint"`
	Region   string        `yaml:"region"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TokenConfig struct {
	// SafetyMargin is how long before expiry a cached token stops being
	// handed out and a refresh is forced instead.
	SafetyMargin time.Duration `yaml:"safety_margin"`
}

// OperationLimit is the token-bucket shape for one upstream operation kind.
type OperationLimit struct {
	Capacity   float64 `yaml:"capacity"`
	RefillRate float64 `yaml:"refill_rate"` // tokens per second
}

type RateLimitConfig struct {
	Catalog OperationLimit `yaml:"catalog"`
	Pricing OperationLimit `yaml:"pricing"`
	Listing OperationLimit `yaml:"listing"`
}

// ForOperation returns the limit for the given operation kind. Unknown kinds
// get the catalog limit, the most conservative of the defaults.
func (r RateLimitConfig) ForOperation(kind string) OperationLimit {
	switch kind {
	case "pricing":
		return r.Pricing
	case "listing":
		return r.Listing
	default:
		return r.Catalog
	}
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"` // randomization factor, 0.2 = ±20%
}

type DispatchConfig struct {
	// WaitCeiling bounds how long an invocation may wait for a rate-limit
	// token before the denial is surfaced to the caller.
	WaitCeiling time.Duration `yaml:"wait_ceiling"`
}

type MeteringConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			AuthEndpoint: "https://api.amazon.com/auth/o2/token",
			Endpoint:     "https://sellingpartnerapi-eu.amazon.com",
			Region:       "eu-west-1",
			Timeout:      30 * time.Second,
		},
		Token: TokenConfig{
			SafetyMargin: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Catalog: OperationLimit{Capacity: 10, RefillRate: 5},
			Pricing: OperationLimit{Capacity: 20, RefillRate: 10},
			Listing: OperationLimit{Capacity: 5, RefillRate: 2},
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
			Jitter:      0.2,
		},
		Dispatch: DispatchConfig{
			WaitCeiling: 5 * time.Second,
		},
		Metering: MeteringConfig{
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AMZTEC_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("AMZTEC_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AMZTEC_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AMZTEC_CREDENTIALS_FILE"); v != "" {
		cfg.Credentials.File = v
	}
	if v := os.Getenv("GATEWAY_API_KEYS"); v != "" {
		for _, pair := range strings.Split(v, ",") {
			pair = strings.TrimSpace(pair)
			if pair != "" {
				cfg.Gateway.APIKeys = append(cfg.Gateway.APIKeys, pair)
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("retry.jitter must be in [0,1), got %g", c.Retry.Jitter)
	}
	if c.Token.SafetyMargin < 0 {
		return fmt.Errorf("token.safety_margin must not be negative")
	}
	for _, ol := range []struct {
		name  string
		limit OperationLimit
	}{
		{"catalog", c.RateLimit.Catalog},
		{"pricing", c.RateLimit.Pricing},
		{"listing", c.RateLimit.Listing},
	} {
		if ol.limit.Capacity <= 0 || ol.limit.RefillRate <= 0 {
			return fmt.Errorf("rate_limit.%s: capacity and refill_rate must be positive", ol.name)
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) MigrationsSource() string {
	return "file://migrations"
}

func (c *Config) DatabaseURLForMigrate() string {
	url := c.Database.URL
	if !strings.Contains(url, "sslmode=") {
		if strings.Contains(url, "?") {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}
	return url
}
