package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"QuantBench/internal/backtest"
	"QuantBench/internal/collector"
	"QuantBench/internal/config"
	"QuantBench/internal/features"
	"QuantBench/internal/logger"
	"QuantBench/internal/model"
	"QuantBench/internal/notifier"
	"QuantBench/internal/recorder"
	"QuantBench/internal/universe"
	"QuantBench/internal/walkforward"
)

const (
	modeSimulation = "simulation"
	modeObserve    = "observe"
	modeLive       = "live"
)

// dataFlags returns the flags of every command that loads bars.
func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "symbol to load (repeatable, comma separated)"},
		&cli.StringFlag{Name: "universe", Usage: "file with symbols (.txt one per line, or .html table)"},
		&cli.StringFlag{Name: "start", Usage: "first trading date, YYYY-MM-DD (default: 30 days before end)"},
		&cli.StringFlag{Name: "end", Usage: "last trading date, YYYY-MM-DD (default: today)"},
		&cli.StringFlag{Name: "timeframe", Aliases: []string{"tf"}, Usage: "bar timeframe: 1Min, 5Min, 15Min, 1Hour, 1Day"},
		&cli.StringFlag{Name: "source", Usage: "data source: alpaca, fmp or mock"},
		&cli.StringFlag{Name: "mode", Value: modeSimulation, Usage: "simulation, observe or live"},
		&cli.BoolFlag{Name: "no-cache", Usage: "bypass the parquet bar cache"},
		&cli.BoolFlag{Name: "extended-hours", Usage: "keep pre- and post-market intraday bars"},
		&cli.StringFlag{Name: "resample", Usage: "aggregate loaded bars into a coarser timeframe"},
	}
}

func withDataFlags(extra ...cli.Flag) []cli.Flag {
	return append(dataFlags(), extra...)
}

func checkMode(mode string) error {
	switch mode {
	case modeSimulation, modeObserve:
		return nil
	case modeLive:
		return cli.Exit(ErrLiveModeUnsupported.Error(), 1)
	default:
		return cli.Exit(fmt.Sprintf("unknown mode %q", mode), 1)
	}
}

// runMode returns the innermost --mode that was set explicitly, so both
// "quantbench --mode live fetch" and "quantbench fetch --mode live" count.
func runMode(c *cli.Context) string {
	for _, ctx := range c.Lineage() {
		if ctx.IsSet("mode") {
			return ctx.String("mode")
		}
	}
	return modeSimulation
}

// env is the per-invocation wiring shared by commands.
type env struct {
	cfg *config.Config
}

// setup loads config, applies flag overrides, validates and starts logging.
func setup(c *cli.Context) (*env, error) {
	if err := checkMode(runMode(c)); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("source"); v != "" {
		cfg.Data.Source = v
	}
	if v := c.String("timeframe"); v != "" {
		cfg.Data.Timeframe = v
	}
	if c.Bool("no-cache") {
		cfg.Data.NoCache = true
	}
	if c.Bool("extended-hours") {
		cfg.Data.ExtendedHours = true
	}
	if v := c.String("resample"); v != "" {
		cfg.Data.Resample = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	if _, err := logger.New(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return &env{cfg: cfg}, nil
}

func (e *env) timeframe() (model.Timeframe, error) {
	return model.ParseTimeframe(e.cfg.Data.Timeframe)
}

// resampleTarget is the configured resample timeframe; ok is false when unset.
func (e *env) resampleTarget() (tf model.Timeframe, ok bool, err error) {
	if e.cfg.Data.Resample == "" {
		return "", false, nil
	}
	tf, err = model.ParseTimeframe(e.cfg.Data.Resample)
	return tf, err == nil, err
}

func (e *env) fetcher() (collector.Fetcher, error) {
	if err := e.cfg.RequireCredentials(e.cfg.Data.Source); err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	switch e.cfg.Data.Source {
	case "alpaca":
		a := e.cfg.Alpaca
		return collector.NewAlpacaFetcher(a.APIKey, a.APISecret, a.DataURL, a.Feed), nil
	case "fmp":
		return collector.NewFMPFetcher(e.cfg.FMP.BaseURL, e.cfg.FMP.APIKey, e.cfg.Proxy, e.cfg.FMP.RequestsPerMinute), nil
	default:
		return &collector.MockFetcher{}, nil
	}
}

func (e *env) collector(useCache bool) (*collector.Collector, error) {
	f, err := e.fetcher()
	if err != nil {
		return nil, err
	}
	var cache collector.Cache
	if useCache && !e.cfg.Data.NoCache {
		cache = collector.NewParquetCache(e.cfg.Data.CacheDir)
	}
	zap.S().Infof("data source: %s", f.Name())
	col := collector.NewCollector(f, cache, e.cfg.Data.Workers)
	col.ExtendedHours = e.cfg.Data.ExtendedHours
	return col, nil
}

func (e *env) recorder() recorder.Recorder {
	if e.cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	r, err := recorder.NewSQLiteRecorder(e.cfg.Database.SQLitePath)
	if err != nil {
		zap.S().Warnf("init sqlite recorder failed, using noop: %v", err)
		return recorder.NewNoopRecorder()
	}
	return r
}

func (e *env) notifier() notifier.Notifier {
	t := e.cfg.Telegram
	if t.BotToken == "" || t.ChatID == "" {
		return notifier.NoopNotifier{}
	}
	return notifier.NewTelegramNotifier(t.BotToken, t.ChatID, e.cfg.Proxy)
}

func (e *env) featureParams() features.Params {
	f := e.cfg.Features
	return features.Params{
		RSIPeriod:       f.RSIPeriod,
		VolumeWindow:    f.VolumeWindow,
		ParkinsonWindow: f.ParkinsonWindow,
		ATRPeriod:       f.ATRPeriod,
		EMAPeriod:       f.EMAPeriod,
	}
}

func (e *env) backtestConfig(strategyName string) backtest.Config {
	b := e.cfg.Backtest
	return backtest.Config{
		Strategy:          strategyName,
		InitialCapital:    b.InitialCapital,
		RiskPercent:       b.RiskPercent,
		MaxPositionPct:    b.MaxPositionPct,
		FrictionBps:       b.FrictionBps,
		FlatFee:           b.FlatFee,
		CloseAtSessionEnd: b.CloseAtSessionEnd,
	}
}

func (e *env) walkConfig() walkforward.Config {
	w := e.cfg.Walk
	return walkforward.Config{
		InSampleDays:    w.InSampleDays,
		OutOfSampleDays: w.OutOfSampleDays,
		RetrainEvery:    w.RetrainEvery,
		WeightStep:      w.WeightStep,
		MinBars:         w.MinBars,
		Horizon:         w.Horizon,
		Threshold:       w.Threshold,
		FrictionBps:     e.cfg.Backtest.FrictionBps,
		Factors:         w.Factors,
	}
}

// symbols resolves --symbol, then --universe, then the configured observe list.
func (e *env) symbols(c *cli.Context) ([]string, error) {
	var raw []string
	for _, s := range c.StringSlice("symbol") {
		raw = append(raw, strings.Split(s, ",")...)
	}
	if len(raw) == 0 && c.String("universe") != "" {
		syms, err := universe.FromFile(c.String("universe"))
		if err != nil {
			return nil, cli.Exit(err.Error(), 1)
		}
		raw = syms
	}
	if len(raw) == 0 {
		raw = e.cfg.Observe.Symbols
	}
	syms := universe.Normalize(raw)
	if len(syms) == 0 {
		return nil, cli.Exit("no symbols: pass --symbol or --universe", 1)
	}
	return syms, nil
}

// dateRange parses --start/--end as exchange-local dates. The end date is
// inclusive, so the returned end is midnight after it.
func dateRange(c *cli.Context, now time.Time) (time.Time, time.Time, error) {
	loc := model.MarketLocation()
	lt := now.In(loc)
	end := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if v := c.String("end"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, cli.Exit(fmt.Sprintf("invalid --end %q", v), 1)
		}
		end = d.AddDate(0, 0, 1)
	}
	start := end.AddDate(0, 0, -30)
	if v := c.String("start"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return time.Time{}, time.Time{}, cli.Exit(fmt.Sprintf("invalid --start %q", v), 1)
		}
		start = d
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, cli.Exit("--start must be before --end", 1)
	}
	return start, end, nil
}
