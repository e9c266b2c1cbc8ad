package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"zone_bot/internal/execution"
	"zone_bot/internal/helper"
	"zone_bot/internal/models"
	mdservice "zone_bot/internal/modules/marketdata/service"
	venues "zone_bot/internal/modules/venues/service"
	"zone_bot/pkg/tracing"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs/"
	defaultConfigFile = "values_local.yaml"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
		// Подтверждать входы кнопкой в чате (хеджи и закрытия идут без подтверждения).
		ConfirmEntries bool          `yaml:"confirm_entries"`
		ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	} `yaml:"telegram"`

	DB      string `yaml:"db_dsn"`
	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	Tracing tracing.Config `yaml:"tracing"`

	// safe | mid | aggr — поверх strategy из файла
	Preset   string              `yaml:"preset"`
	Strategy models.ZoneSettings `yaml:"strategy"`

	Runner     Runner           `yaml:"runner"`
	Execution  execution.Config `yaml:"execution"`
	MarketData mdservice.Config `yaml:"market_data"`

	Alpaca  venues.AlpacaConfig  `yaml:"alpaca"`
	Gateway venues.GatewayConfig `yaml:"gateway"`
}

type Runner struct {
	Symbols []string `yaml:"symbols"`
	// интервал последней цены и интервал исторического прогрева
	Interval        string        `yaml:"interval"`
	InitialInterval string        `yaml:"initial_interval"`
	InitialBars     int           `yaml:"initial_bars"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	OrderQty        float64       `yaml:"order_qty"`
	WarmupParallel  int           `yaml:"warmup_parallel"`
	// WatchlistMax > 0 — на старте добавить движущиеся тикеры дешевле WatchlistPriceLimit
	WatchlistMax        int     `yaml:"watchlist_max"`
	WatchlistPriceLimit float64 `yaml:"watchlist_price_limit"`
}

func Default() Config {
	cfg := Config{
		LogLevel: "info",
		Preset:   "",
		Strategy: models.ZoneSettings{
			RSIPeriod:        14,
			EntryLow:         30,
			EntryHigh:        70,
			ProfitTargetPct:  5,
			LossThresholdPct: 2,
			MaxTrades:        5,
			Mode:             models.StrategyThreshold,
		},
		Runner: Runner{
			Interval:        "1min",
			InitialInterval: "daily",
			InitialBars:     30,
			PollInterval:    60 * time.Second,
			OrderQty:        1,
			WarmupParallel:  4,
		},
		Execution: execution.Config{
			PollInterval:  2 * time.Second,
			OrderTimeout:  2 * time.Minute,
			CancelTimeout: 10 * time.Second,
			TickSize:      0.01,
		},
		MarketData: mdservice.Config{
			BaseURL: "https://www.alphavantage.co",
			Timeout: 15 * time.Second,
		},
		Alpaca: venues.AlpacaConfig{
			BaseURL: "https://paper-api.alpaca.markets",
			Timeout: 10 * time.Second,
		},
		Gateway: venues.GatewayConfig{
			BaseURL: "http://127.0.0.1:5000",
			WSURL:   "ws://127.0.0.1:5000/ws",
			Timeout: 10 * time.Second,
		},
	}
	cfg.Service.Host = "0.0.0.0"
	cfg.Service.AdminPort = 8081
	cfg.Telegram.ConfirmTimeout = 30 * time.Second
	cfg.Tracing.Host = "127.0.0.1"
	cfg.Tracing.Port = 6831
	return cfg
}

// NewConfig: дефолты → configs/<CONFIG_FILE> → пресет → env. .env подхватывается, если есть.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	env := viper.New()
	env.AutomaticEnv()

	name := env.GetString(configFilePathENV)
	explicit := name != ""
	if !explicit {
		name = defaultConfigFile
	}

	cfg, err := Load(configDir+name, explicit)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load читает yaml поверх дефолтов и применяет пресет.
// Отсутствие файла — ошибка, только если required.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}

	if cfg.Preset != "" {
		p, ok := models.Presets[cfg.Preset]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", cfg.Preset)
		}
		p.Apply(&cfg.Strategy)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, env *viper.Viper) {
	cfg.LogLevel = getenvDefault(env, "LOG_LEVEL", cfg.LogLevel)

	cfg.Telegram.Token = getenvDefault(env, "TELEGRAM_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.ChatID = int64FromEnv(env, "TELEGRAM_CHAT_ID", cfg.Telegram.ChatID)
	cfg.Telegram.ConfirmEntries = boolFromEnv(env, "CONFIRM_ENTRIES", cfg.Telegram.ConfirmEntries)
	cfg.DB = getenvDefault(env, "DATABASE_DSN", cfg.DB)

	zs := &cfg.Strategy
	zs.RSIPeriod = intFromEnv(env, "RSI_PERIOD", zs.RSIPeriod)
	zs.EntryLow = floatFromEnv(env, "ENTRY_RSI_LOW", zs.EntryLow)
	zs.EntryHigh = floatFromEnv(env, "ENTRY_RSI_HIGH", zs.EntryHigh)
	zs.ProfitTargetPct = floatFromEnv(env, "PROFIT_TARGET_PCT", zs.ProfitTargetPct)
	zs.LossThresholdPct = floatFromEnv(env, "LOSS_THRESHOLD_PCT", zs.LossThresholdPct)
	zs.MaxTrades = intFromEnv(env, "MAX_TRADES", zs.MaxTrades)
	zs.Mode = models.StrategyMode(getenvDefault(env, "STRATEGY_MODE", string(zs.Mode)))

	if s := env.GetString("SYMBOLS"); s != "" {
		cfg.Runner.Symbols = strings.Split(s, ",")
	}
	cfg.Runner.PollInterval = durationFromEnv(env, "POLL_INTERVAL", cfg.Runner.PollInterval)
	cfg.Runner.OrderQty = floatFromEnv(env, "ORDER_QTY", cfg.Runner.OrderQty)
	cfg.Execution.OrderTimeout = durationFromEnv(env, "ORDER_TIMEOUT", cfg.Execution.OrderTimeout)
	cfg.Execution.MarketOrders = boolFromEnv(env, "MARKET_ORDERS", cfg.Execution.MarketOrders)

	cfg.MarketData.APIKey = getenvDefault(env, "ALPHAVANTAGE_API_KEY", cfg.MarketData.APIKey)
	cfg.Alpaca.APIKey = getenvDefault(env, "ALPACA_API_KEY", cfg.Alpaca.APIKey)
	cfg.Alpaca.APISecret = getenvDefault(env, "ALPACA_SECRET_KEY", cfg.Alpaca.APISecret)
	cfg.Alpaca.BaseURL = getenvDefault(env, "ALPACA_BASE_URL", cfg.Alpaca.BaseURL)
	cfg.Gateway.Token = getenvDefault(env, "GATEWAY_TOKEN", cfg.Gateway.Token)
	cfg.Gateway.Account = getenvDefault(env, "GATEWAY_ACCOUNT", cfg.Gateway.Account)
	cfg.Tracing.Enabled = boolFromEnv(env, "TRACING_ENABLED", cfg.Tracing.Enabled)
}

// Validate проверяет то, без чего движок считает ерунду.
func (c *Config) Validate() error {
	zs := c.Strategy
	switch {
	case zs.RSIPeriod <= 1:
		return fmt.Errorf("strategy.rsi_period must be > 1, got %d", zs.RSIPeriod)
	case zs.EntryLow >= zs.EntryHigh:
		return fmt.Errorf("strategy.entry_rsi_low (%v) must be < entry_rsi_high (%v)", zs.EntryLow, zs.EntryHigh)
	case zs.ProfitTargetPct <= 0:
		return fmt.Errorf("strategy.profit_target_pct must be > 0 (percent, 5 = 5%%)")
	case zs.LossThresholdPct <= 0:
		return fmt.Errorf("strategy.loss_threshold_pct must be > 0 (percent, 2 = 2%%)")
	case zs.MaxTrades <= 0:
		return fmt.Errorf("strategy.max_trades must be > 0")
	}
	if zs.Mode != models.StrategyThreshold && zs.Mode != models.StrategyReversal {
		return fmt.Errorf("strategy.strategy_mode must be threshold|reversal, got %q", zs.Mode)
	}

	syms := c.Runner.Symbols[:0]
	for _, s := range c.Runner.Symbols {
		if s = helper.NormSymbol(s); s != "" {
			syms = append(syms, s)
		}
	}
	c.Runner.Symbols = syms
	if len(c.Runner.Symbols) == 0 && c.Runner.WatchlistMax <= 0 {
		return errors.New("runner.symbols is empty and watchlist is off")
	}
	if c.Runner.PollInterval <= 0 {
		return errors.New("runner.poll_interval must be > 0")
	}
	if c.Runner.OrderQty <= 0 {
		return errors.New("runner.order_qty must be > 0")
	}
	if c.Runner.InitialBars < c.Strategy.RSIPeriod {
		c.Runner.InitialBars = c.Strategy.RSIPeriod
	}
	c.Runner.Interval = helper.NormTF(c.Runner.Interval)
	c.Runner.InitialInterval = helper.NormTF(c.Runner.InitialInterval)
	return nil
}

func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.AdminPort)
}

func getenvDefault(env *viper.Viper, key, def string) string {
	if v := env.GetString(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(env *viper.Viper, key string, def int) int {
	if v := env.GetString(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func int64FromEnv(env *viper.Viper, key string, def int64) int64 {
	if v := env.GetString(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(env *viper.Viper, key string, def float64) float64 {
	if v := env.GetString(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(env *viper.Viper, key string, def bool) bool {
	switch strings.ToLower(env.GetString(key)) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return def
}

func durationFromEnv(env *viper.Viper, key string, def time.Duration) time.Duration {
	if v := env.GetString(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
