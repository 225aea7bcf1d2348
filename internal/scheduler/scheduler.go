package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"QuantBench/internal/calculator"
	"QuantBench/internal/collector"
	"QuantBench/internal/metrics"
	"QuantBench/internal/model"
	"QuantBench/internal/notifier"
	"QuantBench/internal/recorder"
	"QuantBench/internal/state"
	"QuantBench/internal/strategy"
)

// Options configures the observe loop.
type Options struct {
	Symbols     []string
	Timeframe   model.Timeframe
	Lookback    int
	RSIPeriod   int
	Concurrency int
	Hysteresis  strategy.Hysteresis
}

// TickResult summarises one observe tick.
type TickResult struct {
	Open         bool
	Observations []model.Observation
	Skipped      []string
}

// Scheduler runs the observe loop on a cron schedule.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	State     *state.Manager
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Clock     Clock
	Opts      Options
	Now       func() time.Time
	Ctx       context.Context

	tickMu sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, col *collector.Collector, sm *state.Manager, n notifier.Notifier, rec recorder.Recorder, clock Clock, opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLocation(model.MarketLocation())),
		Collector: col,
		State:     sm,
		Notifier:  n,
		Recorder:  rec,
		Clock:     clock,
		Opts:      opts,
		Now:       time.Now,
		Ctx:       ctx,
	}
}

// Register schedules Tick on spec (six fields, seconds first).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.runTick); err != nil {
		return fmt.Errorf("register observe task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	zap.S().Infof("scheduler started, observing %d symbols", len(s.Opts.Symbols))
}

// Stop stops the cron scheduler and waits for a running tick.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	zap.S().Info("scheduler stopped")
}

func (s *Scheduler) runTick() {
	if _, err := s.Tick(s.Ctx); err != nil {
		zap.S().Errorf("observe tick: %v", err)
	}
}

// Tick evaluates every symbol once if the market is open. Symbol failures
// are logged, counted and skipped. Overlapping ticks are dropped.
func (s *Scheduler) Tick(ctx context.Context) (*TickResult, error) {
	if !s.tickMu.TryLock() {
		zap.S().Warn("previous observe tick still running, skipping")
		return &TickResult{}, nil
	}
	defer s.tickMu.Unlock()

	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	open, err := s.Clock.IsOpen(ctx)
	if err != nil {
		return nil, err
	}
	res := &TickResult{Open: open}
	if !open {
		zap.S().Debug("market closed, nothing to observe")
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Opts.Concurrency)
	for _, sym := range s.Opts.Symbols {
		sym := sym
		g.Go(func() error {
			obs, err := s.observe(gctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.S().Warnf("observe %s skipped: %v", sym, err)
				metrics.SymbolsSkipped.WithLabelValues("observe").Inc()
				res.Skipped = append(res.Skipped, sym)
				return nil
			}
			res.Observations = append(res.Observations, *obs)
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

func (s *Scheduler) observe(ctx context.Context, symbol string) (*model.Observation, error) {
	now := s.Now()
	end := now.Truncate(time.Minute)
	start := end.AddDate(0, 0, -lookbackDays(s.Opts.Timeframe, s.Opts.Lookback))

	series, err := s.Collector.Load(ctx, symbol, s.Opts.Timeframe, start, end)
	if err != nil {
		return nil, err
	}
	bars := series.Bars
	if len(bars) > s.Opts.Lookback {
		bars = bars[len(bars)-s.Opts.Lookback:]
	}
	if len(bars) <= s.Opts.RSIPeriod {
		return nil, fmt.Errorf("only %d bars, need more than %d", len(bars), s.Opts.RSIPeriod)
	}

	rsiSeries := calculator.RSISeries(calculator.Closes(bars), s.Opts.RSIPeriod)
	rsi := rsiSeries[len(rsiSeries)-1]
	last := bars[len(bars)-1]

	prev := s.State.Get(series.Symbol)
	next, action := s.Opts.Hysteresis.Step(prev.State, rsi)
	if _, err := s.State.Apply(series.Symbol, next, last.Close, now); err != nil {
		return nil, err
	}

	obs := &model.Observation{Symbol: series.Symbol, Price: last.Close, RSI: rsi, State: next, Action: action}
	metrics.Observations.Inc()
	if err := s.Recorder.RecordObservation(obs, now); err != nil {
		zap.S().Errorf("record observation %s: %v", symbol, err)
	}
	if action != model.Hold {
		metrics.Transitions.WithLabelValues(string(action)).Inc()
		zap.S().Infof("%s %s at %.2f (RSI %.1f)", series.Symbol, action, last.Close, rsi)
		if err := s.Notifier.Send(ctx, notifier.FormatTransition(obs, now)); err != nil {
			zap.S().Errorf("send notification: %v", err)
		}
	}
	return obs, nil
}

// lookbackDays converts a bar count into calendar days of history to request,
// padded for weekends and holidays.
func lookbackDays(tf model.Timeframe, bars int) int {
	if !tf.Intraday() {
		return int(math.Ceil(float64(bars)*7.0/5.0)) + 5
	}
	perSession := 390 / tf.Duration().Minutes()
	return int(math.Ceil(float64(bars)/perSession))*7/5 + 4
}
