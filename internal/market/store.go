package market

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store 把日线缓存到本地 sqlite（每个代码一个文件），避免重复拉取。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(code string) (*sql.DB, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return nil, fmt.Errorf("标的代码非法: %q", code)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[code]; ok && db != nil {
		return db, nil
	}
	path := filepath.Join(s.root, code, "daily.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureCandleSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.dbs[code] = db
	return db, nil
}

func ensureCandleSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS candles (
		open_time  INTEGER PRIMARY KEY,
		close_time INTEGER NOT NULL,
		open       REAL NOT NULL,
		high       REAL NOT NULL,
		low        REAL NOT NULL,
		close      REAL NOT NULL,
		volume     REAL NOT NULL,
		inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
	);`)
	return err
}

// InsertCandles 批量写入（重复 open_time 将被覆盖）。
func (s *Store) InsertCandles(ctx context.Context, code string, candles []Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	db, err := s.db(code)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// RecentCandles 返回最近 days 根日线（open_time 升序）。
func (s *Store) RecentCandles(ctx context.Context, code string, days int) ([]Candle, error) {
	db, err := s.db(code)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 90
	}
	rows, err := db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles ORDER BY open_time DESC LIMIT ?`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// Count 返回已缓存根数。
func (s *Store) Count(ctx context.Context, code string) (int64, error) {
	db, err := s.db(code)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.QueryRowContext(ctx, `SELECT COUNT(1) FROM candles`).Scan(&n)
	return n, err
}

// CachedSource 先查本地缓存，数据不足时回源拉取并落盘。
type CachedSource struct {
	store *Store
	inner HistorySource
}

func NewCachedSource(store *Store, inner HistorySource) (*CachedSource, error) {
	if store == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if inner == nil {
		return nil, fmt.Errorf("history source 不能为空")
	}
	return &CachedSource{store: store, inner: inner}, nil
}

func (c *CachedSource) Name() string { return c.inner.Name() + "+cache" }

func (c *CachedSource) History(ctx context.Context, req HistoryRequest) ([]Candle, error) {
	cached, err := c.store.RecentCandles(ctx, req.Code, req.Days)
	if err == nil && len(cached) >= req.Days && fresh(cached) {
		return cached, nil
	}
	candles, err := c.inner.History(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.InsertCandles(ctx, req.Code, candles); err != nil {
		return candles, err
	}
	return candles, nil
}

func fresh(candles []Candle) bool {
	if len(candles) == 0 {
		return false
	}
	last := time.UnixMilli(candles[len(candles)-1].OpenTime)
	return time.Since(last) < 48*time.Hour
}
