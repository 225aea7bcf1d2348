package recorder

import (
	"time"

	"QuantBench/internal/model"
)

// RunSummary is the headline of one backtest or walk-forward run.
type RunSummary struct {
	RunID       string
	Kind        string // "backtest" or "walkforward"
	Symbol      string
	Strategy    string
	Start       time.Time
	End         time.Time
	Trades      int
	HitRate     float64
	NetPnL      float64
	MaxDrawdown float64
	Sharpe      float64
	Params      string // JSON-encoded run parameters
}

// WindowRecord is one walk-forward window.
type WindowRecord struct {
	Index        int
	ISStart      string
	ISEnd        string
	OOSStart     string
	OOSEnd       string
	Weights      string
	Retrained    bool
	Skipped      bool
	ISHitRate    float64
	ISNetReturn  float64
	OOSTrades    int
	OOSHitRate   float64
	OOSNetReturn float64
}

// Recorder persists run history for later analysis.
type Recorder interface {
	RecordRun(run *RunSummary) error
	RecordTrades(runID string, trades []model.Trade) error
	RecordWindows(runID string, windows []WindowRecord) error
	RecordObservation(obs *model.Observation, at time.Time) error
	Close() error
}
