package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store 用 Gorm + SQLite 持久化模拟盘流水和寻优结果。
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeModel{}, &AccountSnapshotModel{}, &OptimizationModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 保留少量并发给 HTTP 读，写锁竞争不会放大。
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertTrade 落一笔委托流水。
func (s *Store) InsertTrade(ctx context.Context, trade *TradeModel) error {
	if trade.CreatedAt == 0 {
		trade.CreatedAt = time.Now().UnixMilli()
	}
	return s.db.WithContext(ctx).Create(trade).Error
}

// RecentTrades 按时间倒序返回某策略最近的流水，strategy 为空时不过滤。
func (s *Store) RecentTrades(ctx context.Context, strategy string, limit int) ([]TradeModel, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if strategy != "" {
		q = q.Where("strategy = ?", strategy)
	}
	var trades []TradeModel
	if err := q.Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// InsertSnapshot 落一条账户快照。
func (s *Store) InsertSnapshot(ctx context.Context, snap *AccountSnapshotModel) error {
	if snap.CreatedAt == 0 {
		snap.CreatedAt = time.Now().UnixMilli()
	}
	return s.db.WithContext(ctx).Create(snap).Error
}

// RecentSnapshots 返回某策略最近的账户快照。
func (s *Store) RecentSnapshots(ctx context.Context, strategy string, limit int) ([]AccountSnapshotModel, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if strategy != "" {
		q = q.Where("strategy = ?", strategy)
	}
	var snaps []AccountSnapshotModel
	if err := q.Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}

// UpsertOptimization 按 (strategy, code) 覆盖写入寻优结果，保留最新一次。
func (s *Store) UpsertOptimization(ctx context.Context, opt *OptimizationModel) error {
	now := time.Now().UnixMilli()
	if opt.CreatedAt == 0 {
		opt.CreatedAt = now
	}
	opt.UpdatedAt = now
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"batch_id", "status", "objective", "best_score", "best_params",
			"result_json", "history_json", "message", "updated_at",
		}),
	}).Create(opt).Error
}

// Optimization 读取某个 (strategy, code) 的最新寻优结果。
func (s *Store) Optimization(ctx context.Context, strategy, code string) (OptimizationModel, bool, error) {
	var opt OptimizationModel
	err := s.db.WithContext(ctx).
		Where("strategy = ? AND code = ?", strategy, code).
		First(&opt).Error
	if err == gorm.ErrRecordNotFound {
		return OptimizationModel{}, false, nil
	}
	if err != nil {
		return OptimizationModel{}, false, err
	}
	return opt, true, nil
}

// Optimizations 按更新时间倒序列出寻优结果。
func (s *Store) Optimizations(ctx context.Context, limit int) ([]OptimizationModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var opts []OptimizationModel
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&opts).Error; err != nil {
		return nil, err
	}
	return opts, nil
}

// BestParamsByStrategy 取每个策略得分最高的寻优记录，
// 供落盘成 optimized params 快照给模拟盘热加载。
func (s *Store) BestParamsByStrategy(ctx context.Context) (map[string]datatypes.JSON, error) {
	var opts []OptimizationModel
	if err := s.db.WithContext(ctx).
		Where("status = ?", OptimizationStatusDone).
		Order("best_score DESC").
		Find(&opts).Error; err != nil {
		return nil, err
	}
	best := make(map[string]datatypes.JSON)
	for _, opt := range opts {
		if _, seen := best[opt.Strategy]; !seen {
			best[opt.Strategy] = opt.BestParams
		}
	}
	return best, nil
}
