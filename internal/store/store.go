package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"virtex/internal/agent"
	"virtex/internal/engine"
	"virtex/internal/market"
	"virtex/internal/store/model"
)

// Store 把成交、权益采样、告警与会话汇总落到 sqlite。
// 实现 engine.Recorder：写失败只向上返回错误，由引擎降级为告警日志。
type Store struct {
	db     *gorm.DB
	symbol string
}

func New(path, symbol string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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
	return NewFromDB(db, symbol)
}

func NewFromDB(db *gorm.DB, symbol string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	models := []interface{}{
		&model.TradeModel{},
		&model.EquityPointModel{},
		&model.AlertModel{},
		&model.SessionModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db, symbol: strings.ToUpper(symbol)}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) RecordTrade(t engine.Trade) error {
	row := model.TradeModel{
		OrderID:     t.OrderID,
		Symbol:      t.Symbol,
		Side:        t.Side.String(),
		Kind:        string(t.Kind),
		Price:       t.Price,
		Quantity:    t.Quantity,
		Fee:         t.Fee,
		RealizedPnL: t.RealizedPnL,
		FilledAt:    t.FilledAt,
	}
	return s.db.Create(&row).Error
}

func (s *Store) RecordEquity(p market.EquityPoint) error {
	row := model.EquityPointModel{Symbol: s.symbol, Time: p.Time, Equity: p.Equity}
	return s.db.Create(&row).Error
}

func (s *Store) RecordAlert(a engine.Alert) error {
	row := model.AlertModel{
		Symbol:  s.symbol,
		Kind:    string(a.Kind),
		Title:   a.Title,
		Message: a.Message,
		Time:    a.Time,
	}
	return s.db.Create(&row).Error
}

// SaveSession 归档一次会话的汇总、策略与记忆快照。
func (s *Store) SaveSession(mode string, startedAt time.Time, stats engine.SessionStats, finalEquity float64, strategy agent.ActiveStrategy, mem *agent.Memory) error {
	stratJSON, err := json.Marshal(strategy)
	if err != nil {
		return err
	}
	row := model.SessionModel{
		Symbol:      s.symbol,
		Mode:        mode,
		StartedAt:   startedAt,
		EndedAt:     time.Now(),
		Trades:      stats.Trades,
		Wins:        stats.Wins,
		Losses:      stats.Losses,
		RealizedPnL: stats.RealizedPnL,
		MaxDrawdown: stats.MaxDrawdown,
		FinalEquity: finalEquity,
		Strategy:    datatypes.JSON(stratJSON),
	}
	if mem != nil {
		memJSON, err := json.Marshal(mem)
		if err != nil {
			return err
		}
		row.Memory = datatypes.JSON(memJSON)
	}
	return s.db.Create(&row).Error
}

// RecentTrades 按成交时间倒序取最近 n 笔。
func (s *Store) RecentTrades(n int) ([]model.TradeModel, error) {
	if n <= 0 {
		n = 100
	}
	var rows []model.TradeModel
	err := s.db.Order("filled_at DESC").Limit(n).Find(&rows).Error
	return rows, err
}

// EquityRange 取时间区间内的权益采样（升序）。
func (s *Store) EquityRange(from, to time.Time) ([]model.EquityPointModel, error) {
	var rows []model.EquityPointModel
	q := s.db.Order("time ASC")
	if !from.IsZero() {
		q = q.Where("time >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("time <= ?", to)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// Alerts 返回全部告警归档（倒序）。
func (s *Store) Alerts() ([]model.AlertModel, error) {
	var rows []model.AlertModel
	err := s.db.Order("time DESC").Find(&rows).Error
	return rows, err
}

// Sessions 返回会话归档（倒序）。
func (s *Store) Sessions() ([]model.SessionModel, error) {
	var rows []model.SessionModel
	err := s.db.Order("ended_at DESC").Find(&rows).Error
	return rows, err
}
