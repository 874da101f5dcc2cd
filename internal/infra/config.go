package infra

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds every setting of the application. Deployment-specific
// values can be overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Run struct {
		ElectricityUSDPerKWh float64 `yaml:"electricity_usd_per_kwh"`
		PoolFeePct           float64 `yaml:"pool_fee_pct"`
		HostingUSDPerDay     float64 `yaml:"hosting_usd_per_day"`
		MaxConcurrentFetches int     `yaml:"max_concurrent_fetches"`
		CandidateCoinCap     int     `yaml:"candidate_coin_cap"`
		BatchSize            int     `yaml:"batch_size"`
		// Schedule is a standard 5-field cron spec. Empty means the
		// pipeline only runs when triggered explicitly.
		Schedule string `yaml:"schedule"`
	} `yaml:"run"`

	Providers struct {
		Price struct {
			BinanceURL   string `yaml:"binance_url"`
			CoinGeckoURL string `yaml:"coingecko_url"`
			TimeoutSec   int    `yaml:"timeout_sec"`
		} `yaml:"price"`
		CoinEstimator struct {
			BaseURL        string `yaml:"base_url"`
			TimeoutSec     int    `yaml:"timeout_sec"`
			PositiveTTLSec int    `yaml:"positive_ttl_sec"`
			NegativeTTLSec int    `yaml:"negative_ttl_sec"`
		} `yaml:"coin_estimator"`
		Aggregator struct {
			URL            string `yaml:"url"`
			TimeoutSec     int    `yaml:"timeout_sec"`
			PositiveTTLSec int    `yaml:"positive_ttl_sec"`
			NegativeTTLSec int    `yaml:"negative_ttl_sec"`
		} `yaml:"aggregator"`
	} `yaml:"providers"`

	Server struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
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
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills zero values with workable defaults.
func (c *Config) applyDefaults() {
	if c.Run.MaxConcurrentFetches <= 0 {
		c.Run.MaxConcurrentFetches = 6
	}
	if c.Run.CandidateCoinCap <= 0 {
		c.Run.CandidateCoinCap = 25
	}
	if c.Run.BatchSize <= 0 {
		c.Run.BatchSize = 1000
	}
	if c.Providers.Price.TimeoutSec <= 0 {
		c.Providers.Price.TimeoutSec = 10
	}
	if c.Providers.CoinEstimator.TimeoutSec <= 0 {
		c.Providers.CoinEstimator.TimeoutSec = 10
	}
	if c.Providers.CoinEstimator.PositiveTTLSec <= 0 {
		c.Providers.CoinEstimator.PositiveTTLSec = 600
	}
	if c.Providers.CoinEstimator.NegativeTTLSec <= 0 {
		c.Providers.CoinEstimator.NegativeTTLSec = 60
	}
	if c.Providers.Aggregator.TimeoutSec <= 0 {
		c.Providers.Aggregator.TimeoutSec = 10
	}
	if c.Providers.Aggregator.PositiveTTLSec <= 0 {
		c.Providers.Aggregator.PositiveTTLSec = 600
	}
	if c.Providers.Aggregator.NegativeTTLSec <= 0 {
		c.Providers.Aggregator.NegativeTTLSec = 60
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8090"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/profit.db"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Run.ElectricityUSDPerKWh < 0 {
		return fmt.Errorf("electricity price must not be negative")
	}
	if c.Run.PoolFeePct < 0 || c.Run.PoolFeePct > 100 {
		return fmt.Errorf("pool fee percent must be within [0, 100]")
	}
	if c.Run.HostingUSDPerDay < 0 {
		return fmt.Errorf("hosting fee must not be negative")
	}
	if c.Providers.CoinEstimator.BaseURL == "" ||
		(!hasPrefix(c.Providers.CoinEstimator.BaseURL, "http://") && !hasPrefix(c.Providers.CoinEstimator.BaseURL, "https://")) {
		return fmt.Errorf("invalid coin estimator base URL: %s", c.Providers.CoinEstimator.BaseURL)
	}
	if c.Providers.Aggregator.URL == "" ||
		(!hasPrefix(c.Providers.Aggregator.URL, "http://") && !hasPrefix(c.Providers.Aggregator.URL, "https://")) {
		return fmt.Errorf("invalid aggregator URL: %s", c.Providers.Aggregator.URL)
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv overrides settings with environment variables when present.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("PROFIT_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("PROFIT_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if v := os.Getenv("PROFIT_ELECTRICITY_USD_PER_KWH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Run.ElectricityUSDPerKWh = f
		}
	}
	if v := os.Getenv("PROFIT_SCHEDULE"); v != "" {
		cfg.Run.Schedule = v
	}
}
