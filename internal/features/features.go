// Package features turns a bar series into named per-bar feature columns.
package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"QuantBench/internal/calculator"
	"QuantBench/internal/model"
)

// Column names produced by Compute.
const (
	RSI       = "rsi"
	VolumeZ   = "vol_z"
	ATR       = "atr"
	Parkinson = "parkinson"
	VWAP      = "vwap"
	EMA       = "ema"
	Return1   = "ret_1"
	MACDHist  = "macd_hist"
)

// ErrUnknownColumn is returned when a requested column does not exist.
var ErrUnknownColumn = errors.New("unknown feature column")

// Params controls the lookbacks used by Compute.
type Params struct {
	RSIPeriod       int
	VolumeWindow    int
	ParkinsonWindow int
	ATRPeriod       int
	EMAPeriod       int
}

// DefaultParams returns the lookbacks used when none are configured.
func DefaultParams() Params {
	return Params{RSIPeriod: 14, VolumeWindow: 20, ParkinsonWindow: 20, ATRPeriod: 14, EMAPeriod: 20}
}

func (p Params) validate() error {
	if p.RSIPeriod <= 0 || p.VolumeWindow < 2 || p.ParkinsonWindow <= 0 || p.ATRPeriod <= 0 || p.EMAPeriod <= 0 {
		return fmt.Errorf("invalid feature params %+v", p)
	}
	return nil
}

// Frame is a column-oriented table of features aligned with the source bars.
type Frame struct {
	Symbol string
	Times  []time.Time
	Closes []float64

	order   []string
	columns map[string][]float64
}

// NewFrame creates an empty frame over the given timestamps and closes.
func NewFrame(symbol string, times []time.Time, closes []float64) *Frame {
	return &Frame{Symbol: symbol, Times: times, Closes: closes, columns: make(map[string][]float64)}
}

// Set adds or replaces a column. Values must be aligned with the frame rows.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != f.Len() {
		return fmt.Errorf("column %s has %d rows, frame has %d", name, len(values), f.Len())
	}
	if _, ok := f.columns[name]; !ok {
		f.order = append(f.order, name)
	}
	f.columns[name] = values
	return nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Times) }

// Names returns column names in insertion order.
func (f *Frame) Names() []string {
	return append([]string(nil), f.order...)
}

// Column returns the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	c, ok := f.columns[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownColumn)
	}
	return c, nil
}

// Row returns every feature value at row i.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.order))
	for _, name := range f.order {
		row[name] = f.columns[name][i]
	}
	return row
}

// ForwardReturn is the simple return from close i to close i+h.
func (f *Frame) ForwardReturn(i, h int) (float64, bool) {
	j := i + h
	if h <= 0 || i < 0 || j >= len(f.Closes) || f.Closes[i] <= 0 {
		return 0, false
	}
	return f.Closes[j]/f.Closes[i] - 1, true
}

// Compute derives the standard feature set from a series.
func Compute(series *model.Series, p Params) (*Frame, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if series == nil || len(series.Bars) == 0 {
		return nil, errors.New("compute features: empty series")
	}
	bars := series.Bars
	closes := calculator.Closes(bars)
	times := make([]time.Time, len(bars))
	for i, b := range bars {
		times[i] = b.Time
	}

	f := NewFrame(series.Symbol, times, closes)
	cols := []struct {
		name   string
		values []float64
	}{
		{RSI, calculator.RSISeries(closes, p.RSIPeriod)},
		{VolumeZ, calculator.ZScoreSeries(calculator.Volumes(bars), p.VolumeWindow)},
		{ATR, calculator.ATRSeries(bars, p.ATRPeriod)},
		{Parkinson, calculator.ParkinsonSeries(bars, p.ParkinsonWindow)},
		{VWAP, calculator.VWAPSeries(bars, model.MarketLocation())},
		{EMA, calculator.EMASeries(closes, p.EMAPeriod)},
		{Return1, simpleReturns(closes)},
		{MACDHist, calculator.MACDHistogram(closes, 12, 26, 9)},
	}
	for _, c := range cols {
		if err := f.Set(c.name, c.values); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ComputeReference builds the columns that have an independent implementation
// (RSI via gct-ta) so the two pipelines can be checked against each other.
func ComputeReference(series *model.Series, p Params) (*Frame, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if series == nil || len(series.Bars) == 0 {
		return nil, errors.New("compute reference features: empty series")
	}
	closes := calculator.Closes(series.Bars)
	times := make([]time.Time, len(series.Bars))
	for i, b := range series.Bars {
		times[i] = b.Time
	}
	f := NewFrame(series.Symbol, times, closes)
	if err := f.Set(RSI, calculator.ReferenceRSI(closes, p.RSIPeriod)); err != nil {
		return nil, err
	}
	return f, nil
}

func simpleReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	out[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = closes[i]/closes[i-1] - 1
	}
	return out
}
