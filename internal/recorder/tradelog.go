package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"QuantBench/internal/model"
)

var tradeLogHeader = []string{
	"run_id", "symbol", "strategy", "entry_time", "exit_time", "entry_price", "exit_price",
	"shares", "gross_pnl", "cost", "net_pnl", "exit_reason", "note",
}

// TradeLog appends closed trades to a CSV file. The header is written only
// when the file is new or empty.
type TradeLog struct {
	Path string
	mu   sync.Mutex
}

// NewTradeLog creates a trade log at path.
func NewTradeLog(path string) *TradeLog {
	return &TradeLog{Path: path}
}

// Append writes trades for runID.
func (l *TradeLog) Append(runID string, trades []model.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create trade log dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(tradeLogHeader); err != nil {
			return err
		}
	}
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, t := range trades {
		rec := []string{
			runID, t.Symbol, t.Strategy,
			t.EntryTime.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339),
			ff(t.EntryPrice), ff(t.ExitPrice), ff(t.Shares),
			ff(t.GrossPnL), ff(t.Cost), ff(t.NetPnL),
			string(t.ExitReason), t.Note,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
