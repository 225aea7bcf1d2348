// Package backtest simulates single-position long trading over a bar series.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"QuantBench/internal/model"
)

// ErrNoBars is returned when a run is started on an empty series.
var ErrNoBars = errors.New("backtest: series has no bars")

// Config controls sizing, friction and session handling.
type Config struct {
	Strategy          string
	InitialCapital    float64
	RiskPercent       float64
	MaxPositionPct    float64
	FrictionBps       float64
	FlatFee           float64
	CloseAtSessionEnd bool
}

// Result is the outcome of one simulation.
type Result struct {
	RunID    string
	Symbol   string
	Strategy string
	Start    time.Time
	End      time.Time
	Config   Config
	Trades   []model.Trade
	Equity   []float64
	Skipped  int
	Stats    Stats
}

// PositionSize returns whole shares risking riskPct of capital between entry
// and stop, capped at maxPositionPct of capital in notional. A stop at or
// above entry sizes to zero.
func PositionSize(capital, riskPct, entry, stop, maxPositionPct float64) float64 {
	if capital <= 0 || entry <= 0 || stop >= entry {
		return 0
	}
	shares := math.Floor(capital * riskPct / 100 / (entry - stop))
	if maxPositionPct > 0 {
		shares = math.Min(shares, math.Floor(capital*maxPositionPct/100/entry))
	}
	return math.Max(shares, 0)
}

// TradeCost is the flat fee plus friction on entry and exit notional.
func TradeCost(cfg Config, shares, entry, exit float64) decimal.Decimal {
	notional := decimal.NewFromFloat(shares * entry).Add(decimal.NewFromFloat(shares * exit))
	bps := decimal.NewFromFloat(cfg.FrictionBps).Div(decimal.NewFromInt(10000))
	return decimal.NewFromFloat(cfg.FlatFee).Add(notional.Mul(bps))
}

// Run simulates event entries. At most one position is open; entries that
// arrive while a position is open are skipped. On each bar the stop is
// checked before the target.
func Run(series *model.Series, entries []model.Entry, cfg Config) (*Result, error) {
	if series == nil || len(series.Bars) == 0 {
		return nil, ErrNoBars
	}
	byIndex := make(map[int]model.Entry, len(entries))
	sorted := append([]model.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for _, e := range sorted {
		if e.Index < 0 || e.Index >= len(series.Bars) {
			return nil, fmt.Errorf("entry index %d out of range", e.Index)
		}
		if _, dup := byIndex[e.Index]; !dup {
			byIndex[e.Index] = e
		}
	}
	return simulate(series, byIndex, nil, cfg), nil
}

// RunStates simulates a state-driven strategy: enter at the close of a
// FLAT to LONG bar, exit at the close of a LONG to FLAT bar.
func RunStates(series *model.Series, states []model.PositionState, cfg Config) (*Result, error) {
	if series == nil || len(series.Bars) == 0 {
		return nil, ErrNoBars
	}
	if len(states) != len(series.Bars) {
		return nil, fmt.Errorf("have %d states for %d bars", len(states), len(series.Bars))
	}
	entries := make(map[int]model.Entry)
	exits := make([]bool, len(states))
	prev := model.Flat
	for i, s := range states {
		switch {
		case s == model.Long && prev != model.Long:
			entries[i] = model.Entry{Index: i, Price: series.Bars[i].Close, Reason: "state long"}
		case s != model.Long && prev == model.Long:
			exits[i] = true
		}
		prev = s
	}
	return simulate(series, entries, exits, cfg), nil
}

type ledger struct {
	cfg      Config
	symbol   string
	capital  decimal.Decimal
	position *model.Position
	trades   []model.Trade
}

func (l *ledger) open(e model.Entry, t time.Time) bool {
	capital := l.capital.InexactFloat64()
	var shares float64
	if e.Stop > 0 {
		shares = PositionSize(capital, l.cfg.RiskPercent, e.Price, e.Stop, l.cfg.MaxPositionPct)
	} else if e.Price > 0 {
		shares = math.Floor(capital * l.cfg.MaxPositionPct / 100 / e.Price)
	}
	if shares <= 0 {
		return false
	}
	l.position = &model.Position{
		Symbol:     l.symbol,
		EntryIndex: e.Index,
		EntryTime:  t,
		EntryPrice: e.Price,
		Stop:       e.Stop,
		Target:     e.Target,
		Shares:     shares,
		Reason:     e.Reason,
	}
	return true
}

func (l *ledger) close(price float64, t time.Time, reason model.ExitReason) {
	p := l.position
	gross := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.EntryPrice)).Mul(decimal.NewFromFloat(p.Shares))
	cost := TradeCost(l.cfg, p.Shares, p.EntryPrice, price)
	net := gross.Sub(cost)
	l.capital = l.capital.Add(net)
	l.trades = append(l.trades, model.Trade{
		Symbol:     l.symbol,
		Strategy:   l.cfg.Strategy,
		EntryTime:  p.EntryTime,
		ExitTime:   t,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		Shares:     p.Shares,
		GrossPnL:   gross.InexactFloat64(),
		Cost:       cost.InexactFloat64(),
		NetPnL:     net.InexactFloat64(),
		ExitReason: reason,
		Note:       p.Reason,
	})
	l.position = nil
}

func (l *ledger) markToMarket(price float64) float64 {
	eq := l.capital
	if p := l.position; p != nil {
		eq = eq.Add(decimal.NewFromFloat(price - p.EntryPrice).Mul(decimal.NewFromFloat(p.Shares)))
	}
	return eq.InexactFloat64()
}

func simulate(series *model.Series, entries map[int]model.Entry, exits []bool, cfg Config) *Result {
	bars := series.Bars
	loc := model.MarketLocation()
	lastOfSession := make([]bool, len(bars))
	for _, s := range model.Sessions(bars, loc) {
		lastOfSession[s.End-1] = true
	}
	intraday := series.Timeframe.Intraday()

	l := &ledger{cfg: cfg, symbol: series.Symbol, capital: decimal.NewFromFloat(cfg.InitialCapital)}
	equity := make([]float64, len(bars))
	skipped := 0

	for i, b := range bars {
		if p := l.position; p != nil && i > p.EntryIndex {
			switch {
			case p.Stop > 0 && b.Low <= p.Stop:
				l.close(math.Min(p.Stop, b.Open), b.Time, model.ExitStop)
			case p.Target > 0 && b.High >= p.Target:
				l.close(math.Max(p.Target, b.Open), b.Time, model.ExitTarget)
			case exits != nil && exits[i]:
				l.close(b.Close, b.Time, model.ExitSignal)
			}
		}

		sessionEnd := cfg.CloseAtSessionEnd && intraday && lastOfSession[i]
		if e, ok := entries[i]; ok {
			switch {
			case l.position != nil, sessionEnd, i == len(bars)-1:
				skipped++
			case !l.open(e, b.Time):
				skipped++
			}
		}

		if l.position != nil && l.position.EntryIndex < i {
			switch {
			case sessionEnd:
				l.close(b.Close, b.Time, model.ExitSessionEnd)
			case i == len(bars)-1:
				l.close(b.Close, b.Time, model.ExitEndOfData)
			}
		}
		equity[i] = l.markToMarket(b.Close)
	}

	res := &Result{
		RunID:    uuid.NewString(),
		Symbol:   series.Symbol,
		Strategy: cfg.Strategy,
		Start:    bars[0].Time,
		End:      bars[len(bars)-1].Time,
		Config:   cfg,
		Trades:   l.trades,
		Equity:   equity,
		Skipped:  skipped,
	}
	res.Stats = ComputeStats(l.trades, equity, cfg.InitialCapital, BarsPerYear(series.Timeframe))
	return res
}
