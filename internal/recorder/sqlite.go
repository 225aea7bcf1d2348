package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"QuantBench/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	zap.S().Infof("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id       TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			kind         TEXT NOT NULL,
			symbol       TEXT,
			strategy     TEXT,
			start_ts     INTEGER,
			end_ts       INTEGER,
			trades       INTEGER,
			hit_rate     REAL,
			net_pnl      REAL,
			max_drawdown REAL,
			sharpe       REAL,
			params       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			symbol      TEXT,
			strategy    TEXT,
			entry_ts    INTEGER,
			exit_ts     INTEGER,
			entry_price REAL,
			exit_price  REAL,
			shares      REAL,
			gross_pnl   REAL,
			cost        REAL,
			net_pnl     REAL,
			exit_reason TEXT,
			note        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,

		`CREATE TABLE IF NOT EXISTS wf_windows (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL,
			window_index   INTEGER,
			is_start       TEXT,
			is_end         TEXT,
			oos_start      TEXT,
			oos_end        TEXT,
			weights        TEXT,
			retrained      INTEGER,
			skipped        INTEGER,
			is_hit_rate    REAL,
			is_net_return  REAL,
			oos_trades     INTEGER,
			oos_hit_rate   REAL,
			oos_net_return REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wf_run ON wf_windows(run_id)`,

		`CREATE TABLE IF NOT EXISTS observations (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			symbol    TEXT,
			price     REAL,
			rsi       REAL,
			state     TEXT,
			action    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_obs_ts ON observations(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(run *RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO runs
		(run_id, timestamp, kind, symbol, strategy, start_ts, end_ts,
		 trades, hit_rate, net_pnl, max_drawdown, sharpe, params)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.RunID, time.Now().Unix(), run.Kind, run.Symbol, run.Strategy,
		run.Start.Unix(), run.End.Unix(),
		run.Trades, run.HitRate, run.NetPnL, run.MaxDrawdown, run.Sharpe, run.Params,
	)
	return err
}

// RecordTrades inserts all trades of a run in one transaction.
func (r *SQLiteRecorder) RecordTrades(runID string, trades []model.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO trades
		(run_id, symbol, strategy, entry_ts, exit_ts, entry_price, exit_price,
		 shares, gross_pnl, cost, net_pnl, exit_reason, note)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.Exec(runID, t.Symbol, t.Strategy, t.EntryTime.Unix(), t.ExitTime.Unix(),
			t.EntryPrice, t.ExitPrice, t.Shares, t.GrossPnL, t.Cost, t.NetPnL,
			string(t.ExitReason), t.Note); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordWindows(runID string, windows []WindowRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	for _, w := range windows {
		if _, err := tx.Exec(`INSERT INTO wf_windows
			(run_id, window_index, is_start, is_end, oos_start, oos_end, weights,
			 retrained, skipped, is_hit_rate, is_net_return, oos_trades, oos_hit_rate, oos_net_return)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			runID, w.Index, w.ISStart, w.ISEnd, w.OOSStart, w.OOSEnd, w.Weights,
			w.Retrained, w.Skipped, w.ISHitRate, w.ISNetReturn,
			w.OOSTrades, w.OOSHitRate, w.OOSNetReturn,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert window: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordObservation(obs *model.Observation, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO observations
		(timestamp, symbol, price, rsi, state, action)
		VALUES (?,?,?,?,?,?)`,
		at.Unix(), obs.Symbol, obs.Price, obs.RSI, string(obs.State), string(obs.Action),
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	zap.S().Info("closing sqlite recorder")
	return r.db.Close()
}
