package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// RunStore 管理 backtest_runs/trades/equity 表。
type RunStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewRunStore(root string) (*RunStore, error) {
	if root == "" {
		return nil, fmt.Errorf("run store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureRunSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &RunStore{db: db, path: path}, nil
}

func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureRunSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			code TEXT NOT NULL,
			status TEXT NOT NULL,
			days INTEGER NOT NULL,
			initial_capital INTEGER NOT NULL,
			final_equity INTEGER NOT NULL DEFAULT 0,
			return_pct REAL NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			sharpe_ratio REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			params_json TEXT NOT NULL,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			price INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			commission INTEGER NOT NULL,
			profit INTEGER NOT NULL DEFAULT 0,
			profit_rate REAL NOT NULL DEFAULT 0,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_equity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			equity INTEGER NOT NULL,
			cash INTEGER NOT NULL,
			position_value INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON backtest_equity(run_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录。
func (s *RunStore) InsertRun(ctx context.Context, run Run) error {
	paramsJSON, err := run.MarshalParams()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, strategy, code, status, days, initial_capital, final_equity, return_pct,
			win_rate, max_drawdown, sharpe_ratio, trades, params_json, message, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Code, run.Status, run.Days, run.InitialCapital,
		run.FinalEquity, run.TotalReturnPct, run.WinRatePct, run.MaxDrawdownPct,
		run.SharpeRatio, run.TotalTrades, string(paramsJSON), run.Message, now, now,
		nullableTime(run.CompletedAt))
	return err
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// UpdateRunStatus 仅更新状态与提示。
func (s *RunStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, message=?, updated_at=?, completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// CompleteRun 在一个事务里写入汇总指标、成交明细和资金曲线。
func (s *RunStore) CompleteRun(ctx context.Context, id string, result BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, final_equity=?, return_pct=?, win_rate=?, max_drawdown=?,
		    sharpe_ratio=?, trades=?, updated_at=?, completed_at=?
		WHERE id=?`,
		RunStatusDone, result.FinalEquity, result.TotalReturnPct, result.WinRatePct,
		result.MaxDrawdownPct, result.SharpeRatio, result.TotalTrades, now, now, id); err != nil {
		return err
	}
	for _, tr := range result.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades (run_id, ts, type, price, quantity, commission, profit, profit_rate)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, tr.Timestamp, tr.Type, tr.Price, tr.Quantity, tr.Commission, tr.Profit, tr.ProfitRate); err != nil {
			return err
		}
	}
	for _, pt := range result.EquityCurve {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_equity (run_id, ts, equity, cash, position_value)
			VALUES (?, ?, ?, ?, ?)`,
			id, pt.Timestamp, pt.Equity, pt.Cash, pt.PositionValue); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRun 按 ID 读取一条 run。
func (s *RunStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, code, status, days, initial_capital, final_equity, return_pct,
		       win_rate, max_drawdown, sharpe_ratio, trades, params_json, message,
		       created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

// ListRuns 按创建时间倒序返回最近的 run。
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, code, status, days, initial_capital, final_equity, return_pct,
		       win_rate, max_drawdown, sharpe_ratio, trades, params_json, message,
		       created_at, updated_at, completed_at
		FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run         Run
		paramsJSON  string
		message     sql.NullString
		createdAt   int64
		updatedAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.Strategy, &run.Code, &run.Status, &run.Days,
		&run.InitialCapital, &run.FinalEquity, &run.TotalReturnPct, &run.WinRatePct,
		&run.MaxDrawdownPct, &run.SharpeRatio, &run.TotalTrades, &paramsJSON,
		&message, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return Run{}, err
	}
	if paramsJSON != "" && paramsJSON != "{}" {
		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return Run{}, fmt.Errorf("解析 run 参数失败: %w", err)
		}
	}
	run.Message = message.String
	run.CreatedAt = time.UnixMilli(createdAt)
	run.UpdatedAt = time.UnixMilli(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = time.UnixMilli(completedAt.Int64)
	}
	return run, nil
}

// TradesByRun 返回一条 run 的全部成交，按时间升序。
func (s *RunStore) TradesByRun(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, type, price, quantity, commission, profit, profit_rate
		FROM backtest_trades WHERE run_id=? ORDER BY ts ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var tr TradeRecord
		if err := rows.Scan(&tr.Timestamp, &tr.Type, &tr.Price, &tr.Quantity,
			&tr.Commission, &tr.Profit, &tr.ProfitRate); err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// EquityByRun 返回一条 run 的资金曲线，按时间升序。
func (s *RunStore) EquityByRun(ctx context.Context, runID string) ([]EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, equity, cash, position_value
		FROM backtest_equity WHERE run_id=? ORDER BY ts ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var curve []EquityPoint
	for rows.Next() {
		var pt EquityPoint
		if err := rows.Scan(&pt.Timestamp, &pt.Equity, &pt.Cash, &pt.PositionValue); err != nil {
			return nil, err
		}
		curve = append(curve, pt)
	}
	return curve, rows.Err()
}
