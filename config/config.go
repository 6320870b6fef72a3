// Package config resolves the poolbot configuration from a YAML file, an
// optional .env file and the environment. Secrets are read from the
// environment only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/logger"
)

const (
	PlatformBinance  = "binance"
	PlatformBybit    = "bybit"
	PlatformSimulate = "simulate"
)

// Config typed configuration.
type Config struct {
	Platform      string
	Pair          domain.Pair
	PollInterval  time.Duration
	KlineInterval string
	KlineLimit    int
	// OrderFraction share of the free quote balance spent on an entry.
	OrderFraction decimal.Decimal
	// MinOrderBase smallest base quantity worth selling.
	MinOrderBase decimal.Decimal

	Strategy StrategyConfig
	Risk     RiskConfig
	Ledger   LedgerConfig
	Database DatabaseConfig
	API      APIConfig
	State    StateConfig
	Simulate SimulateConfig
	Paystack PaystackConfig
	Log      logger.Config

	Secrets Secrets
}

type StrategyConfig struct {
	FastEMA       int
	SlowEMA       int
	RSI           int
	RSICeiling    decimal.Decimal
	ATR           int
	ATRMultiplier decimal.Decimal
	Bollinger     int
}

type RiskConfig struct {
	MaxDrawdown decimal.Decimal
	Cooldown    time.Duration
}

type LedgerConfig struct {
	WithdrawalFee decimal.Decimal
	MinDeposit    decimal.Decimal
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

type APIConfig struct {
	Addr string
}

type StateConfig struct {
	Dir     string
	Persist bool
}

type SimulateConfig struct {
	InitialQuote decimal.Decimal
}

type PaystackConfig struct {
	BaseURL string
}

// Secrets credentials taken from the environment.
type Secrets struct {
	BinanceAPIKey    string
	BinanceAPISecret string
	BybitAPIKey      string
	BybitAPISecret   string
	PaystackSecret   string
}

// ConfigTmp raw YAML document. Numbers are kept as strings so decimals keep their precision.
type ConfigTmp struct {
	Platform      string `yaml:"platform,omitempty"`
	Pair          string `yaml:"pair,omitempty"`
	PollInterval  string `yaml:"poll_interval,omitempty"`
	KlineInterval string `yaml:"kline_interval,omitempty"`
	KlineLimit    string `yaml:"kline_limit,omitempty"`
	OrderFraction string `yaml:"order_fraction,omitempty"`
	MinOrderBase  string `yaml:"min_order_base,omitempty"`

	Strategy struct {
		FastEMA       string `yaml:"fast_ema,omitempty"`
		SlowEMA       string `yaml:"slow_ema,omitempty"`
		RSI           string `yaml:"rsi,omitempty"`
		RSICeiling    string `yaml:"rsi_ceiling,omitempty"`
		ATR           string `yaml:"atr,omitempty"`
		ATRMultiplier string `yaml:"atr_multiplier,omitempty"`
		Bollinger     string `yaml:"bollinger,omitempty"`
	} `yaml:"strategy,omitempty"`

	Risk struct {
		MaxDrawdown string `yaml:"max_drawdown,omitempty"`
		Cooldown    string `yaml:"cooldown,omitempty"`
	} `yaml:"risk,omitempty"`

	Ledger struct {
		WithdrawalFee string `yaml:"withdrawal_fee,omitempty"`
		MinDeposit    string `yaml:"min_deposit,omitempty"`
	} `yaml:"ledger,omitempty"`

	Database struct {
		URL          string `yaml:"url,omitempty"`
		MaxOpenConns string `yaml:"max_open_conns,omitempty"`
	} `yaml:"database,omitempty"`

	API struct {
		Addr string `yaml:"addr,omitempty"`
	} `yaml:"api,omitempty"`

	State struct {
		Dir     string `yaml:"dir,omitempty"`
		Persist *bool  `yaml:"persist,omitempty"`
	} `yaml:"state,omitempty"`

	Simulate struct {
		InitialQuote string `yaml:"initial_quote,omitempty"`
	} `yaml:"simulate,omitempty"`

	Paystack struct {
		BaseURL string `yaml:"base_url,omitempty"`
	} `yaml:"paystack,omitempty"`

	Log struct {
		Level      string `yaml:"level,omitempty"`
		File       string `yaml:"file,omitempty"`
		MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
		MaxBackups int    `yaml:"max_backups,omitempty"`
		MaxAgeDays int    `yaml:"max_age_days,omitempty"`
		Compress   bool   `yaml:"compress,omitempty"`
		Console    bool   `yaml:"console,omitempty"`
	} `yaml:"log,omitempty"`
}

// Load reads the optional .env file and the optional YAML file and applies defaults.
// Empty paths are skipped. A missing default .env file is not an error.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "load env file %s", envFile)
		}
	}

	var tmp ConfigTmp
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &tmp); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg, err := tmp.parse()
	if err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c ConfigTmp) parse() (Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.Platform = strings.ToLower(strings.TrimSpace(orDefault(c.Platform, PlatformBinance)))
	switch cfg.Platform {
	case PlatformBinance, PlatformBybit, PlatformSimulate:
	default:
		return Config{}, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}

	if cfg.Pair, err = domain.ParsePair(orDefault(c.Pair, "BTC_USDT")); err != nil {
		return Config{}, fmt.Errorf("incorrect 'pair' param in yaml config: %w", err)
	}
	if cfg.PollInterval, err = parseDuration("poll_interval", c.PollInterval, 60*time.Second); err != nil {
		return Config{}, err
	}
	cfg.KlineInterval = orDefault(c.KlineInterval, "4h")
	if cfg.KlineLimit, err = parseInt("kline_limit", c.KlineLimit, 250); err != nil {
		return Config{}, err
	}
	if cfg.OrderFraction, err = parseDecimal("order_fraction", c.OrderFraction, "0.99"); err != nil {
		return Config{}, err
	}
	if !cfg.OrderFraction.IsPositive() || cfg.OrderFraction.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("incorrect 'order_fraction' param in yaml config: %s is outside (0, 1]", cfg.OrderFraction)
	}
	if cfg.MinOrderBase, err = parseDecimal("min_order_base", c.MinOrderBase, "0.0001"); err != nil {
		return Config{}, err
	}

	s := c.Strategy
	if cfg.Strategy.FastEMA, err = parseInt("strategy.fast_ema", s.FastEMA, 50); err != nil {
		return Config{}, err
	}
	if cfg.Strategy.SlowEMA, err = parseInt("strategy.slow_ema", s.SlowEMA, 200); err != nil {
		return Config{}, err
	}
	if cfg.Strategy.FastEMA >= cfg.Strategy.SlowEMA {
		return Config{}, fmt.Errorf("incorrect strategy params: fast_ema %d must be below slow_ema %d", cfg.Strategy.FastEMA, cfg.Strategy.SlowEMA)
	}
	if cfg.Strategy.RSI, err = parseInt("strategy.rsi", s.RSI, 14); err != nil {
		return Config{}, err
	}
	if cfg.Strategy.RSICeiling, err = parseDecimal("strategy.rsi_ceiling", s.RSICeiling, "75"); err != nil {
		return Config{}, err
	}
	if cfg.Strategy.ATR, err = parseInt("strategy.atr", s.ATR, 14); err != nil {
		return Config{}, err
	}
	if cfg.Strategy.ATRMultiplier, err = parseDecimal("strategy.atr_multiplier", s.ATRMultiplier, "2"); err != nil {
		return Config{}, err
	}
	if cfg.Strategy.Bollinger, err = parseInt("strategy.bollinger", s.Bollinger, 20); err != nil {
		return Config{}, err
	}

	if cfg.Risk.MaxDrawdown, err = parseDecimal("risk.max_drawdown", c.Risk.MaxDrawdown, "0.05"); err != nil {
		return Config{}, err
	}
	if !cfg.Risk.MaxDrawdown.IsPositive() || !cfg.Risk.MaxDrawdown.LessThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("incorrect 'risk.max_drawdown' param in yaml config: %s is outside (0, 1)", cfg.Risk.MaxDrawdown)
	}
	if cfg.Risk.Cooldown, err = parseDuration("risk.cooldown", c.Risk.Cooldown, 24*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.Ledger.WithdrawalFee, err = parseDecimal("ledger.withdrawal_fee", c.Ledger.WithdrawalFee, "0.35"); err != nil {
		return Config{}, err
	}
	if cfg.Ledger.WithdrawalFee.IsNegative() || !cfg.Ledger.WithdrawalFee.LessThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("incorrect 'ledger.withdrawal_fee' param in yaml config: %s is outside [0, 1)", cfg.Ledger.WithdrawalFee)
	}
	if cfg.Ledger.MinDeposit, err = parseDecimal("ledger.min_deposit", c.Ledger.MinDeposit, "3.00"); err != nil {
		return Config{}, err
	}

	cfg.Database.URL = c.Database.URL
	if cfg.Database.MaxOpenConns, err = parseInt("database.max_open_conns", c.Database.MaxOpenConns, 10); err != nil {
		return Config{}, err
	}

	cfg.API.Addr = orDefault(c.API.Addr, ":8000")
	cfg.State.Dir = orDefault(c.State.Dir, "./wal")
	cfg.State.Persist = c.State.Persist == nil || *c.State.Persist

	if cfg.Simulate.InitialQuote, err = parseDecimal("simulate.initial_quote", c.Simulate.InitialQuote, "10000"); err != nil {
		return Config{}, err
	}
	cfg.Paystack.BaseURL = c.Paystack.BaseURL

	cfg.Log = logger.Config{
		Level:      orDefault(c.Log.Level, "info"),
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
		Console:    c.Log.Console,
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Secrets = Secrets{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: firstNonEmpty(os.Getenv("BINANCE_API_SECRET"), os.Getenv("BINANCE_SECRET_KEY")),
		BybitAPIKey:      os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret:   os.Getenv("BYBIT_API_SECRET"),
		PaystackSecret:   os.Getenv("PAYSTACK_SECRET_KEY"),
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// RequireExchangeCredentials fails with ErrConfiguration when a live platform has no keys.
func (c Config) RequireExchangeCredentials() error {
	switch c.Platform {
	case PlatformBinance:
		if c.Secrets.BinanceAPIKey == "" || c.Secrets.BinanceAPISecret == "" {
			return errors.Wrap(domain.ErrConfiguration, "BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
	case PlatformBybit:
		if c.Secrets.BybitAPIKey == "" || c.Secrets.BybitAPISecret == "" {
			return errors.Wrap(domain.ErrConfiguration, "BYBIT_API_KEY and BYBIT_API_SECRET environment variables must be set")
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDecimal(name, raw, def string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(orDefault(raw, def))
	if err != nil {
		return decimal.Zero, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	return d, nil
}

func parseInt(name, raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be an integer), error: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config: %d must be positive", name, n)
	}
	return n, nil
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (e.g. 60s), error: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config: %s must be positive", name, d)
	}
	return d, nil
}
