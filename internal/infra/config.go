package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"quoter_go/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Secrets can be overridden through
// environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Polymarket struct {
			RestURL    string `yaml:"rest_url"`
			WSURL      string `yaml:"ws_url"`
			Address    string `yaml:"address"`
			APIKey     string `yaml:"api_key"`
			APISecret  string `yaml:"api_secret"`
			Passphrase string `yaml:"passphrase"`
		} `yaml:"polymarket"`
	} `yaml:"api"`

	Market struct {
		AssetID        string          `yaml:"asset_id"`
		MarketAddress  string          `yaml:"market_address"`
		MinSpread      decimal.Decimal `yaml:"min_spread"`
		TickSize       decimal.Decimal `yaml:"tick_size"`
		OrderSize      decimal.Decimal `yaml:"order_size"`
		BalanceFloor   decimal.Decimal `yaml:"balance_floor"`
		QuoteRefreshMS int             `yaml:"quote_refresh_ms"`
		MaxOrderAgeSec int             `yaml:"max_order_age_sec"`
		PriceEpsilon   decimal.Decimal `yaml:"price_epsilon"`
		SizeEpsilon    decimal.Decimal `yaml:"size_epsilon"`
	} `yaml:"market"`

	Execution struct {
		Workers         int     `yaml:"workers"`
		CallTimeoutMS   int     `yaml:"call_timeout_ms"`
		MaxAttempts     int     `yaml:"max_attempts"`
		RetryDelayMS    int     `yaml:"retry_delay_ms"`
		RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
		RateLimitBurst  int     `yaml:"rate_limit_burst"`
	} `yaml:"execution"`

	Balance struct {
		PollIntervalSec int `yaml:"poll_interval_sec"`
	} `yaml:"balance"`

	Engine struct {
		OutcomeWaitMS      int `yaml:"outcome_wait_ms"`
		ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
	} `yaml:"engine"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides for secrets and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.API.Polymarket.RestURL == "" || !strings.HasPrefix(c.API.Polymarket.RestURL, "http") {
		return fmt.Errorf("invalid REST URL: %s", c.API.Polymarket.RestURL)
	}
	if c.API.Polymarket.WSURL == "" || (!strings.HasPrefix(c.API.Polymarket.WSURL, "ws://") && !strings.HasPrefix(c.API.Polymarket.WSURL, "wss://")) {
		return fmt.Errorf("invalid WS URL: %s", c.API.Polymarket.WSURL)
	}
	if err := c.BandConfig().Validate(); err != nil {
		return err
	}
	if c.Execution.Workers <= 0 {
		return fmt.Errorf("execution workers must be positive")
	}
	if c.Execution.CallTimeoutMS <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	if c.Balance.PollIntervalSec <= 0 {
		return fmt.Errorf("balance poll interval must be positive")
	}
	return nil
}

// BandConfig converts the market section into the immutable policy config.
func (c *Config) BandConfig() domain.BandConfig {
	return domain.BandConfig{
		AssetID:              c.Market.AssetID,
		MarketAddress:        c.Market.MarketAddress,
		MinSpread:            c.Market.MinSpread,
		TickSize:             c.Market.TickSize,
		OrderSize:            c.Market.OrderSize,
		BalanceFloor:         c.Market.BalanceFloor,
		QuoteRefreshInterval: time.Duration(c.Market.QuoteRefreshMS) * time.Millisecond,
		MaxOrderAge:          time.Duration(c.Market.MaxOrderAgeSec) * time.Second,
		PriceEpsilon:         c.Market.PriceEpsilon,
		SizeEpsilon:          c.Market.SizeEpsilon,
	}
}

// overrideWithEnv replaces credential values when environment variables exist.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("QUOTER_POLY_ADDRESS"); addr != "" {
		cfg.API.Polymarket.Address = addr
	}
	if key := os.Getenv("QUOTER_POLY_API_KEY"); key != "" {
		cfg.API.Polymarket.APIKey = key
	}
	if secret := os.Getenv("QUOTER_POLY_API_SECRET"); secret != "" {
		cfg.API.Polymarket.APISecret = secret
	}
	if pass := os.Getenv("QUOTER_POLY_PASSPHRASE"); pass != "" {
		cfg.API.Polymarket.Passphrase = pass
	}
}
