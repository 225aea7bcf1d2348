package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"QuantBench/internal/model"
)

// ErrMissingCredentials is returned when the selected data source has no API keys.
var ErrMissingCredentials = errors.New("missing credentials")

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	} `yaml:"log"`
	Data struct {
		Source        string `yaml:"source" default:"alpaca" validate:"oneof=alpaca fmp mock"`
		CacheDir      string `yaml:"cache_dir" default:"data/cache"`
		Timeframe     string `yaml:"timeframe" default:"5Min"`
		NoCache       bool   `yaml:"no_cache"`
		Workers       int    `yaml:"workers" default:"4" validate:"min=1,max=32"`
		ExtendedHours bool   `yaml:"extended_hours"` // keep pre/post-market intraday bars
		Resample      string `yaml:"resample"`       // coarser target timeframe, empty disables
	} `yaml:"data"`
	Alpaca struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		BaseURL   string `yaml:"base_url" default:"https://paper-api.alpaca.markets" validate:"url"`
		DataURL   string `yaml:"data_url" validate:"omitempty,url"`
		Feed      string `yaml:"feed" default:"iex" validate:"oneof=iex sip"`
	} `yaml:"alpaca"`
	FMP struct {
		APIKey            string `yaml:"api_key"`
		BaseURL           string `yaml:"base_url" default:"https://financialmodelingprep.com" validate:"url"`
		RequestsPerMinute int    `yaml:"requests_per_minute" default:"250" validate:"min=1"`
	} `yaml:"fmp"`
	Features Features   `yaml:"features"`
	Strategy Strategy   `yaml:"strategy"`
	Backtest Backtest   `yaml:"backtest"`
	Walk     WalkConfig `yaml:"walkforward"`
	Observe  struct {
		Cron        string   `yaml:"cron" default:"0 * 9-16 * * 1-5" validate:"required"`
		Symbols     []string `yaml:"symbols"`
		Timeframe   string   `yaml:"timeframe" default:"1Min"`
		Lookback    int      `yaml:"lookback" default:"200" validate:"min=20"`
		Concurrency int      `yaml:"concurrency" default:"4" validate:"min=1,max=32"`
		StateFile   string   `yaml:"state_file" default:"data/observe_state.json"`
		MetricsAddr string   `yaml:"metrics_addr"`
	} `yaml:"observe"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath   string `yaml:"sqlite_path" default:"data/quantbench.db"`
		TradeLogPath string `yaml:"trade_log_path" default:"data/trades.csv"`
	} `yaml:"database"`
	ReportDir string `yaml:"report_dir" default:"data/reports"`
	Proxy     string `yaml:"proxy"`
}

// Features configures the feature-engineering windows.
type Features struct {
	RSIPeriod       int `yaml:"rsi_period" default:"14" validate:"min=2"`
	VolumeWindow    int `yaml:"volume_window" default:"20" validate:"min=2"`
	ParkinsonWindow int `yaml:"parkinson_window" default:"20" validate:"min=2"`
	ATRPeriod       int `yaml:"atr_period" default:"14" validate:"min=1"`
	EMAPeriod       int `yaml:"ema_period" default:"20" validate:"min=2"`
}

// Strategy configures signal generation.
type Strategy struct {
	Hysteresis struct {
		Upper float64 `yaml:"upper" default:"55" validate:"gt=0,lt=100"`
		Lower float64 `yaml:"lower" default:"45" validate:"gt=0,lt=100"`
	} `yaml:"hysteresis"`
	ORB struct {
		RangeMinutes    int     `yaml:"range_minutes" default:"15" validate:"min=1"`
		TargetR         float64 `yaml:"target_r" default:"2" validate:"gt=0"`
		MaxEntryMinutes int     `yaml:"max_entry_minutes" default:"120" validate:"min=1"`
	} `yaml:"orb"`
	VWAP struct {
		MinVolZ   float64 `yaml:"min_vol_z" default:"1.5"`
		TargetPct float64 `yaml:"target_pct" default:"0.004" validate:"gt=0"`
		StopPct   float64 `yaml:"stop_pct" default:"0.003" validate:"gt=0"`
	} `yaml:"vwap"`
	Reclaim struct {
		Lookback    int     `yaml:"lookback" default:"20" validate:"min=2"`
		ReclaimBars int     `yaml:"reclaim_bars" default:"3" validate:"min=1"`
		TargetR     float64 `yaml:"target_r" default:"2" validate:"gt=0"`
	} `yaml:"reclaim"`
	Gate struct {
		ModelPath string  `yaml:"model_path"`
		Threshold float64 `yaml:"threshold" default:"0.6" validate:"gt=0,lte=1"`
	} `yaml:"gate"`
}

// Backtest configures the trade simulator.
type Backtest struct {
	InitialCapital    float64 `yaml:"initial_capital" default:"100000" validate:"gt=0"`
	RiskPercent       float64 `yaml:"risk_percent" default:"1" validate:"gt=0,lte=100"`
	MaxPositionPct    float64 `yaml:"max_position_pct" default:"25" validate:"gt=0,lte=100"`
	FrictionBps       float64 `yaml:"friction_bps" default:"5" validate:"gte=0"`
	FlatFee           float64 `yaml:"flat_fee" validate:"gte=0"`
	CloseAtSessionEnd bool    `yaml:"close_at_session_end" default:"true"`
}

// WalkConfig configures the rolling walk-forward backtester.
type WalkConfig struct {
	InSampleDays    int      `yaml:"in_sample_days" default:"60" validate:"min=1"`
	OutOfSampleDays int      `yaml:"out_of_sample_days" default:"20" validate:"min=1"`
	RetrainEvery    int      `yaml:"retrain_every" default:"1" validate:"min=1"`
	WeightStep      float64  `yaml:"weight_step" default:"0.25" validate:"gt=0,lte=1"`
	MinBars         int      `yaml:"min_bars" default:"30" validate:"min=1"`
	Horizon         int      `yaml:"horizon" default:"5" validate:"min=1"`
	Threshold       float64  `yaml:"threshold" default:"0.5"`
	Factors         []string `yaml:"factors" default:"[\"rsi\",\"vol_z\",\"ret_1\",\"parkinson\"]" validate:"min=1,dive,required"`
}

// Load reads config from a YAML (or JSON) file, then applies .env and environment overrides.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"ALPACA_API_KEY", &c.Alpaca.APIKey},
		{"ALPACA_SECRET_KEY", &c.Alpaca.APISecret},
		{"APCA_API_DATA_URL", &c.Alpaca.DataURL},
		{"FMP_API_KEY", &c.FMP.APIKey},
		{"TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken},
		{"TELEGRAM_CHAT_ID", &c.Telegram.ChatID},
		{"QB_CACHE_DIR", &c.Data.CacheDir},
		{"QB_SQLITE_PATH", &c.Database.SQLitePath},
		{"QB_LOG_LEVEL", &c.Log.Level},
		{"HTTPS_PROXY", &c.Proxy},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("QB_SYMBOLS"); v != "" {
		c.Observe.Symbols = strings.Split(v, ",")
	}
}

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if c.Strategy.Hysteresis.Lower >= c.Strategy.Hysteresis.Upper {
		return fmt.Errorf("strategy.hysteresis.lower (%.2f) must be below upper (%.2f)",
			c.Strategy.Hysteresis.Lower, c.Strategy.Hysteresis.Upper)
	}
	if c.Walk.MinBars < 2 {
		return fmt.Errorf("walkforward.min_bars must be at least 2")
	}
	if _, err := c.BarTimeframe(); err != nil {
		return err
	}
	return nil
}

// BarTimeframe is the timeframe commands work on: data.resample when set,
// otherwise data.timeframe.
func (c *Config) BarTimeframe() (model.Timeframe, error) {
	tf, err := model.ParseTimeframe(c.Data.Timeframe)
	if err != nil {
		return "", fmt.Errorf("data.timeframe: %w", err)
	}
	if c.Data.Resample == "" {
		return tf, nil
	}
	target, err := model.ParseTimeframe(c.Data.Resample)
	if err != nil {
		return "", fmt.Errorf("data.resample: %w", err)
	}
	if target.Duration() < tf.Duration() {
		return "", fmt.Errorf("data.resample (%s) is finer than data.timeframe (%s)", target, tf)
	}
	return target, nil
}

// ValidateWalkForward checks that an out-of-sample window can hold
// walkforward.min_bars bars at the configured timeframe. Without it every
// window would be skipped.
func (c *Config) ValidateWalkForward() error {
	tf, err := c.BarTimeframe()
	if err != nil {
		return err
	}
	perDay := 1
	if tf.Intraday() {
		perDay = int(math.Ceil(390 / tf.Duration().Minutes()))
	}
	if n := c.Walk.OutOfSampleDays * perDay; n < c.Walk.MinBars {
		return fmt.Errorf("walkforward.out_of_sample_days %d at %s gives about %d bars, below walkforward.min_bars %d",
			c.Walk.OutOfSampleDays, tf, n, c.Walk.MinBars)
	}
	return nil
}

// RequireCredentials reports ErrMissingCredentials when source needs keys that are not set.
func (c *Config) RequireCredentials(source string) error {
	switch source {
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("%w: ALPACA_API_KEY and ALPACA_SECRET_KEY are required", ErrMissingCredentials)
		}
	case "fmp":
		if c.FMP.APIKey == "" {
			return fmt.Errorf("%w: FMP_API_KEY is required", ErrMissingCredentials)
		}
	}
	return nil
}
