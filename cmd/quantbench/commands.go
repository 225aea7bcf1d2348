package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"QuantBench/internal/backtest"
	"QuantBench/internal/collector"
	"QuantBench/internal/features"
	"QuantBench/internal/gate"
	"QuantBench/internal/metrics"
	"QuantBench/internal/model"
	"QuantBench/internal/notifier"
	"QuantBench/internal/recorder"
	"QuantBench/internal/report"
	"QuantBench/internal/scheduler"
	"QuantBench/internal/state"
	"QuantBench/internal/strategy"
	"QuantBench/internal/universe"
	"QuantBench/internal/walkforward"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:   "fetch",
		Usage:  "download bars into the local cache",
		Flags:  withDataFlags(),
		Action: runFetch,
	}
}

func featuresCommand() *cli.Command {
	return &cli.Command{
		Name:  "features",
		Usage: "compute the feature frame and write it as a JSON report",
		Flags: withDataFlags(
			&cli.IntFlag{Name: "tail", Value: 50, Usage: "number of most recent rows to write (0 for all)"},
		),
		Action: runFeatures,
	}
}

func backtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "simulate a strategy over historical bars",
		Flags: withDataFlags(
			&cli.StringFlag{Name: "strategy", Value: "rsi", Usage: "rsi, orb, vwap or reclaim"},
		),
		Action: runBacktest,
	}
}

func walkforwardCommand() *cli.Command {
	return &cli.Command{
		Name:   "walkforward",
		Usage:  "rolling in-sample weight optimisation with out-of-sample evaluation",
		Flags:  withDataFlags(),
		Action: runWalkForward,
	}
}

func observeCommand() *cli.Command {
	return &cli.Command{
		Name:   "observe",
		Usage:  "evaluate RSI hysteresis on a schedule and notify on transitions",
		Flags:  withDataFlags(&cli.BoolFlag{Name: "once", Usage: "run a single tick and exit"}),
		Action: runObserve,
	}
}

func parityCommand() *cli.Command {
	return &cli.Command{
		Name:  "parity",
		Usage: "check research and reference feature pipelines agree",
		Flags: withDataFlags(
			&cli.Float64Flag{Name: "tol", Value: 1e-6, Usage: "absolute tolerance"},
		),
		Action: runParity,
	}
}

func universeCommand() *cli.Command {
	return &cli.Command{
		Name:  "universe",
		Usage: "print the symbols of a universe file or page",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "universe file (.txt or .html)"},
			&cli.StringFlag{Name: "url", Usage: "HTML page with a constituents table"},
			&cli.StringFlag{Name: "column", Value: "Symbol", Usage: "header of the symbol column"},
		},
		Action: runUniverse,
	}
}

// loadAll loads every requested symbol; it fails only when nothing loaded.
func loadAll(c *cli.Context, e *env) (map[string]*model.Series, []string, error) {
	syms, err := e.symbols(c)
	if err != nil {
		return nil, nil, err
	}
	tf, err := e.timeframe()
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}
	start, end, err := dateRange(c, time.Now())
	if err != nil {
		return nil, nil, err
	}
	col, err := e.collector(true)
	if err != nil {
		return nil, nil, err
	}
	target, resample, err := e.resampleTarget()
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 1)
	}
	series, skipped, loadErr := col.LoadMany(c.Context, syms, tf, start, end)
	if len(series) == 0 {
		return nil, nil, cli.Exit(fmt.Sprintf("no data loaded: %v", loadErr), 1)
	}
	if resample {
		for sym, s := range series {
			r, err := collector.ResampleSeries(s, target)
			if err != nil {
				return nil, nil, cli.Exit(err.Error(), 1)
			}
			series[sym] = r
		}
	}
	if len(skipped) > 0 {
		zap.S().Warnf("skipped %d/%d symbols: %s", len(skipped), len(syms), strings.Join(skipped, ","))
	}
	ordered := make([]string, 0, len(series))
	for _, s := range syms {
		if _, ok := series[s]; ok {
			ordered = append(ordered, s)
		}
	}
	return series, ordered, nil
}

func runFetch(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	series, order, err := loadAll(c, e)
	if err != nil {
		return err
	}
	for _, sym := range order {
		s := series[sym]
		first, last := s.Bars[0].Time, s.Bars[len(s.Bars)-1].Time
		fmt.Printf("%-8s %6d bars %4d sessions  %s → %s\n", sym, len(s.Bars), len(collector.SplitSessions(s.Bars)),
			first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	return nil
}

func runFeatures(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	series, order, err := loadAll(c, e)
	if err != nil {
		return err
	}
	for _, sym := range order {
		frame, err := features.Compute(series[sym], e.featureParams())
		if err != nil {
			zap.S().Warnf("features %s: %v", sym, err)
			metrics.SymbolsSkipped.WithLabelValues("features").Inc()
			continue
		}
		rows := frameRows(frame, c.Int("tail"))
		path, err := report.WriteJSON(e.cfg.ReportDir, "features_"+sym, rows)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		zap.S().Infof("%s: %d rows written to %s", sym, len(rows), path)
	}
	return nil
}

// frameRows flattens the last tail rows for JSON output; NaN becomes null.
func frameRows(f *features.Frame, tail int) []map[string]any {
	from := 0
	if tail > 0 && f.Len() > tail {
		from = f.Len() - tail
	}
	rows := make([]map[string]any, 0, f.Len()-from)
	for i := from; i < f.Len(); i++ {
		row := map[string]any{"time": f.Times[i].Format(time.RFC3339), "close": f.Closes[i]}
		for k, v := range f.Row(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[k] = nil
				continue
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows
}

// buildStrategy maps a --strategy name onto a configured event strategy.
// "rsi" is state driven and returns nil.
func buildStrategy(e *env, name string) (strategy.Strategy, error) {
	s := e.cfg.Strategy
	switch name {
	case "rsi":
		return nil, nil
	case "orb":
		return strategy.ORB{RangeMinutes: s.ORB.RangeMinutes, TargetR: s.ORB.TargetR, MaxEntryMinutes: s.ORB.MaxEntryMinutes}, nil
	case "vwap":
		return strategy.VWAPScalp{MinVolZ: s.VWAP.MinVolZ, TargetPct: s.VWAP.TargetPct, StopPct: s.VWAP.StopPct}, nil
	case "reclaim":
		r := &strategy.Reclaim{Lookback: s.Reclaim.Lookback, ReclaimBars: s.Reclaim.ReclaimBars, TargetR: s.Reclaim.TargetR}
		if s.Gate.ModelPath != "" {
			m, err := gate.Load(s.Gate.ModelPath)
			if err != nil {
				return nil, err
			}
			zap.S().Infof("gate model loaded: %d trees, threshold %.2f", m.Trees(), s.Gate.Threshold)
			r.Gate = &gate.Filter{Model: m, Threshold: s.Gate.Threshold}
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func runBacktest(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	name := c.String("strategy")
	strat, err := buildStrategy(e, name)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	series, order, err := loadAll(c, e)
	if err != nil {
		return err
	}

	rec := e.recorder()
	defer rec.Close()
	tradeLog := recorder.NewTradeLog(e.cfg.Database.TradeLogPath)
	n := e.notifier()
	cfg := e.backtestConfig(name)

	for _, sym := range order {
		s := series[sym]
		frame, err := features.Compute(s, e.featureParams())
		if err != nil {
			zap.S().Warnf("backtest %s: %v", sym, err)
			metrics.SymbolsSkipped.WithLabelValues("backtest").Inc()
			continue
		}

		var res *backtest.Result
		if strat == nil {
			h := strategy.Hysteresis{Upper: e.cfg.Strategy.Hysteresis.Upper, Lower: e.cfg.Strategy.Hysteresis.Lower}
			states, _, serr := strategy.RSIHysteresis(frame, h)
			if serr != nil {
				return cli.Exit(serr.Error(), 1)
			}
			res, err = backtest.RunStates(s, states, cfg)
		} else {
			entries, serr := strat.Entries(s, frame)
			if serr != nil {
				zap.S().Warnf("backtest %s: %v", sym, serr)
				metrics.SymbolsSkipped.WithLabelValues("backtest").Inc()
				continue
			}
			if r, ok := strat.(*strategy.Reclaim); ok && r.Gate != nil {
				zap.S().Infof("%s: gate vetoed %d reclaim candidates", sym, r.Vetoed)
			}
			res, err = backtest.Run(s, entries, cfg)
		}
		if err != nil {
			zap.S().Warnf("backtest %s: %v", sym, err)
			metrics.SymbolsSkipped.WithLabelValues("backtest").Inc()
			continue
		}
		persistBacktest(c.Context, e, rec, tradeLog, n, res)
	}
	return nil
}

func persistBacktest(ctx context.Context, e *env, rec recorder.Recorder, tl *recorder.TradeLog, n notifier.Notifier, res *backtest.Result) {
	params, _ := json.Marshal(res.Config)
	st := res.Stats
	if err := rec.RecordRun(&recorder.RunSummary{
		RunID: res.RunID, Kind: "backtest", Symbol: res.Symbol, Strategy: res.Strategy,
		Start: res.Start, End: res.End, Trades: st.Trades, HitRate: st.HitRate,
		NetPnL: st.NetPnL, MaxDrawdown: st.MaxDrawdown, Sharpe: st.Sharpe, Params: string(params),
	}); err != nil {
		zap.S().Errorf("record run: %v", err)
	}
	if err := rec.RecordTrades(res.RunID, res.Trades); err != nil {
		zap.S().Errorf("record trades: %v", err)
	}
	if err := tl.Append(res.RunID, res.Trades); err != nil {
		zap.S().Errorf("append trade log: %v", err)
	}
	if path, err := report.WriteJSON(e.cfg.ReportDir, fmt.Sprintf("backtest_%s_%s_%s", res.Symbol, res.Strategy, res.RunID[:8]), res); err != nil {
		zap.S().Errorf("write report: %v", err)
	} else {
		zap.S().Infof("report written to %s", path)
	}

	msg := notifier.FormatBacktestReport(res)
	fmt.Println(notifier.PlainText(msg))
	if err := n.Send(ctx, msg); err != nil {
		zap.S().Errorf("send notification: %v", err)
	}
}

func runWalkForward(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	if err := e.cfg.ValidateWalkForward(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	series, order, err := loadAll(c, e)
	if err != nil {
		return err
	}
	rec := e.recorder()
	defer rec.Close()
	n := e.notifier()
	cfg := e.walkConfig()

	for _, sym := range order {
		rep, err := walkforward.Run(series[sym], e.featureParams(), cfg)
		if err != nil {
			zap.S().Warnf("walkforward %s: %v", sym, err)
			metrics.SymbolsSkipped.WithLabelValues("walkforward").Inc()
			continue
		}
		params, _ := json.Marshal(cfg)
		s := series[sym]
		if err := rec.RecordRun(&recorder.RunSummary{
			RunID: rep.RunID, Kind: "walkforward", Symbol: sym, Strategy: "alpha",
			Start: s.Bars[0].Time, End: s.Bars[len(s.Bars)-1].Time,
			Trades: rep.OOSTrades, HitRate: rep.OOSHitRate, NetPnL: rep.OOSNetReturn, Params: string(params),
		}); err != nil {
			zap.S().Errorf("record run: %v", err)
		}
		if err := rec.RecordWindows(rep.RunID, windowRecords(rep.Windows)); err != nil {
			zap.S().Errorf("record windows: %v", err)
		}
		if path, err := report.WriteJSON(e.cfg.ReportDir, fmt.Sprintf("walkforward_%s_%s", sym, rep.RunID[:8]), rep); err != nil {
			zap.S().Errorf("write report: %v", err)
		} else {
			zap.S().Infof("report written to %s", path)
		}
		msg := notifier.FormatWalkForwardReport(rep)
		fmt.Println(notifier.PlainText(msg))
		if err := n.Send(c.Context, msg); err != nil {
			zap.S().Errorf("send notification: %v", err)
		}
	}
	return nil
}

func windowRecords(ws []walkforward.Window) []recorder.WindowRecord {
	out := make([]recorder.WindowRecord, len(ws))
	for i, w := range ws {
		out[i] = recorder.WindowRecord{
			Index: w.Index, ISStart: w.ISStart, ISEnd: w.ISEnd, OOSStart: w.OOSStart, OOSEnd: w.OOSEnd,
			Weights: w.Weights.String(), Retrained: w.Retrained, Skipped: w.Skipped,
			ISHitRate: w.IS.HitRate, ISNetReturn: w.IS.NetReturn,
			OOSTrades: w.OOS.Trades, OOSHitRate: w.OOS.HitRate, OOSNetReturn: w.OOS.NetReturn,
		}
	}
	return out
}

func runObserve(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	syms, err := e.symbols(c)
	if err != nil {
		return err
	}
	tf, err := model.ParseTimeframe(e.cfg.Observe.Timeframe)
	if c.String("timeframe") != "" {
		tf, err = e.timeframe()
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	col, err := e.collector(false)
	if err != nil {
		return err
	}
	sm, err := state.NewManager(e.cfg.Observe.StateFile)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load observe state: %v", err), 1)
	}
	rec := e.recorder()
	defer rec.Close()

	var clock scheduler.Clock = scheduler.AlwaysOpen{}
	if e.cfg.Data.Source == "alpaca" {
		a := e.cfg.Alpaca
		clock = scheduler.NewAlpacaClock(a.APIKey, a.APISecret, a.BaseURL)
	}

	h := e.cfg.Strategy.Hysteresis
	sched := scheduler.NewScheduler(c.Context, col, sm, e.notifier(), rec, clock, scheduler.Options{
		Symbols:     syms,
		Timeframe:   tf,
		Lookback:    e.cfg.Observe.Lookback,
		RSIPeriod:   e.cfg.Features.RSIPeriod,
		Concurrency: e.cfg.Observe.Concurrency,
		Hysteresis:  strategy.Hysteresis{Upper: h.Upper, Lower: h.Lower},
	})

	if c.Bool("once") {
		res, err := sched.Tick(c.Context)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		for _, o := range res.Observations {
			fmt.Printf("%-8s %10.2f  RSI %5.1f  %-5s %s\n", o.Symbol, o.Price, o.RSI, o.State, o.Action)
		}
		return nil
	}

	if addr := e.cfg.Observe.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(c.Context, addr); err != nil {
				zap.S().Errorf("metrics server: %v", err)
			}
		}()
	}
	if err := sched.Register(e.cfg.Observe.Cron); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	sched.Start()
	defer sched.Stop()

	zap.S().Infof("observing %s on %q. Press Ctrl+C to stop.", strings.Join(syms, ","), e.cfg.Observe.Cron)
	<-c.Context.Done()
	zap.S().Info("shutdown signal received, stopping...")
	return nil
}

func runParity(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	series, order, err := loadAll(c, e)
	if err != nil {
		return err
	}
	failed := 0
	for _, sym := range order {
		a, err := features.Compute(series[sym], e.featureParams())
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		b, err := features.ComputeReference(series[sym], e.featureParams())
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		mm, err := features.Compare(a, b, c.Float64("tol"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if len(mm) == 0 {
			fmt.Printf("%-8s ok (%d rows)\n", sym, a.Len())
			continue
		}
		failed++
		fmt.Printf("%-8s %d mismatches\n", sym, len(mm))
		for i, m := range mm {
			if i == 10 {
				fmt.Printf("  ... %d more\n", len(mm)-10)
				break
			}
			fmt.Printf("  %s\n", m)
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("feature parity failed for %d symbols", failed), 1)
	}
	return nil
}

func runUniverse(c *cli.Context) error {
	if _, err := setup(c); err != nil {
		return err
	}
	var (
		syms []string
		err  error
	)
	switch {
	case c.String("file") != "":
		syms, err = universe.FromFile(c.String("file"))
	case c.String("url") != "":
		syms, err = fetchUniverse(c.Context, c.String("url"), c.String("column"))
	default:
		return cli.Exit("pass --file or --url", 1)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	sort.Strings(syms)
	for _, s := range syms {
		fmt.Println(s)
	}
	return nil
}

func fetchUniverse(ctx context.Context, url, column string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "quantbench/1.0")
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch universe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch universe: status %d", resp.StatusCode)
	}
	return universe.FromHTML(resp.Body, column)
}
