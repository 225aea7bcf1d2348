package notifier

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"QuantBench/internal/backtest"
	"QuantBench/internal/model"
	"QuantBench/internal/walkforward"
)

var htmlTag = regexp.MustCompile(`</?[a-z]+>`)

// PlainText strips the HTML markup the formatters add for Telegram.
func PlainText(msg string) string {
	return htmlTag.ReplaceAllString(msg, "")
}

// FormatBacktestReport summarises a backtest run.
func FormatBacktestReport(res *backtest.Result) string {
	var b strings.Builder
	st := res.Stats

	b.WriteString(fmt.Sprintf("📊 <b>Backtest %s</b> | %s\n", res.Symbol, res.Strategy))
	b.WriteString(fmt.Sprintf("%s → %s\n\n", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02")))

	b.WriteString(fmt.Sprintf("Trades: %d (W %d / L %d, skipped %d)\n", st.Trades, st.Wins, st.Losses, res.Skipped))
	b.WriteString(fmt.Sprintf("Hit rate: %.1f%%\n", st.HitRate*100))
	b.WriteString(fmt.Sprintf("Net P&L: %+.2f (gross %+.2f, costs %.2f)\n", st.NetPnL, st.GrossPnL, st.TotalCost))
	b.WriteString(fmt.Sprintf("Return: %+.2f%%\n", st.ReturnPct))
	b.WriteString(fmt.Sprintf("Avg win/loss: %+.2f / %+.2f\n", st.AvgWin, st.AvgLoss))
	if st.ProfitFactor > 0 {
		b.WriteString(fmt.Sprintf("Profit factor: %.2f\n", st.ProfitFactor))
	}
	b.WriteString(fmt.Sprintf("Max drawdown: %.2f%% | Sharpe: %.2f\n", st.MaxDrawdown*100, st.Sharpe))
	b.WriteString(fmt.Sprintf("\nrun %s", res.RunID))
	return b.String()
}

// FormatWalkForwardReport summarises a walk-forward run, one line per window.
func FormatWalkForwardReport(rep *walkforward.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔁 <b>Walk-forward %s</b>\n\n", rep.Symbol))
	for _, w := range rep.Windows {
		if w.Skipped {
			b.WriteString(fmt.Sprintf("  #%d %s..%s skipped: %s\n", w.Index, w.OOSStart, w.OOSEnd, w.SkipReason))
			continue
		}
		mark := ""
		if w.Retrained {
			mark = "*"
		}
		b.WriteString(fmt.Sprintf("  #%d%s %s..%s hit %.0f%% (%d) net %+.4f [%s]\n",
			w.Index, mark, w.OOSStart, w.OOSEnd, w.OOS.HitRate*100, w.OOS.Trades, w.OOS.NetReturn, w.Weights))
	}
	b.WriteString("  ─────────────────\n")
	b.WriteString(fmt.Sprintf("OOS hit rate: %.1f%% over %d trades\n", rep.OOSHitRate*100, rep.OOSTrades))
	b.WriteString(fmt.Sprintf("OOS net: %+.4f | IS net: %+.4f\n", rep.OOSNetReturn, rep.ISNetReturn))
	b.WriteString(fmt.Sprintf("WFE: %.2f | skipped windows: %d\n", rep.WFE, rep.Skipped))
	return b.String()
}

// FormatTransition reports an observe-mode state change.
func FormatTransition(obs *model.Observation, at time.Time) string {
	icon := "⚪"
	switch obs.Action {
	case model.EnterLong:
		icon = "🟢"
	case model.ExitLong:
		icon = "🔴"
	}
	return fmt.Sprintf("%s <b>%s</b> %s @ %.2f (RSI %.1f) | %s",
		icon, obs.Symbol, obs.Action, obs.Price, obs.RSI, at.In(model.MarketLocation()).Format("2006-01-02 15:04 MST"))
}
