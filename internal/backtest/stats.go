package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"QuantBench/internal/model"
)

// Stats summarises a run. ProfitFactor is 0 when there are no losing trades.
type Stats struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	HitRate      float64 `json:"hit_rate"`
	GrossPnL     float64 `json:"gross_pnl"`
	NetPnL       float64 `json:"net_pnl"`
	TotalCost    float64 `json:"total_cost"`
	ReturnPct    float64 `json:"return_pct"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Sharpe       float64 `json:"sharpe"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
}

// BarsPerYear is the annualisation factor for a timeframe, assuming 252
// sessions of 390 regular-hours minutes.
func BarsPerYear(tf model.Timeframe) float64 {
	if !tf.Intraday() || tf.Duration() <= 0 {
		return 252
	}
	return 252 * 390 / tf.Duration().Minutes()
}

// ComputeStats derives trade and equity statistics.
func ComputeStats(trades []model.Trade, equity []float64, initialCapital, barsPerYear float64) Stats {
	var s Stats
	gross, net, cost := decimal.Zero, decimal.Zero, decimal.Zero
	winSum, lossSum := decimal.Zero, decimal.Zero
	for _, t := range trades {
		gross = gross.Add(decimal.NewFromFloat(t.GrossPnL))
		n := decimal.NewFromFloat(t.NetPnL)
		net = net.Add(n)
		cost = cost.Add(decimal.NewFromFloat(t.Cost))
		if t.Winner() {
			s.Wins++
			winSum = winSum.Add(n)
		} else {
			s.Losses++
			lossSum = lossSum.Add(n)
		}
	}
	s.Trades = len(trades)
	s.GrossPnL = gross.InexactFloat64()
	s.NetPnL = net.InexactFloat64()
	s.TotalCost = cost.InexactFloat64()
	if s.Trades > 0 {
		s.HitRate = float64(s.Wins) / float64(s.Trades)
	}
	if s.Wins > 0 {
		s.AvgWin = winSum.Div(decimal.NewFromInt(int64(s.Wins))).InexactFloat64()
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(s.Losses))).InexactFloat64()
	}
	if !lossSum.IsZero() {
		s.ProfitFactor = winSum.Div(lossSum.Abs()).InexactFloat64()
	}
	if initialCapital > 0 {
		s.ReturnPct = s.NetPnL / initialCapital * 100
	}
	s.MaxDrawdown = MaxDrawdown(equity)
	s.Sharpe = Sharpe(equity, barsPerYear)
	return s
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
func MaxDrawdown(equity []float64) float64 {
	peak, maxDD := math.Inf(-1), 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-e)/peak)
		}
	}
	return maxDD
}

// Sharpe is the annualised mean over standard deviation of per-bar equity returns.
func Sharpe(equity []float64, barsPerYear float64) float64 {
	if len(equity) < 3 {
		return 0
	}
	var sum, sum2, n float64
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		r := equity[i]/equity[i-1] - 1
		sum += r
		sum2 += r * r
		n++
	}
	if n < 2 {
		return 0
	}
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance <= 1e-20 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(barsPerYear)
}
