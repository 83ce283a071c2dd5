package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeModel maps to 'trades' table. 每一行对应一笔已成交订单。
type TradeModel struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	OrderID     string    `gorm:"column:order_id;uniqueIndex"`
	Symbol      string    `gorm:"column:symbol;index"`
	Side        string    `gorm:"column:side"`
	Kind        string    `gorm:"column:kind"`
	Price       float64   `gorm:"column:price"`
	Quantity    float64   `gorm:"column:quantity"`
	Fee         float64   `gorm:"column:fee"`
	RealizedPnL float64   `gorm:"column:realized_pnl"`
	FilledAt    time.Time `gorm:"column:filled_at;index"`
}

func (TradeModel) TableName() string { return "trades" }

// EquityPointModel maps to 'equity_points' table。
type EquityPointModel struct {
	ID     int64     `gorm:"column:id;primaryKey"`
	Symbol string    `gorm:"column:symbol;index"`
	Time   time.Time `gorm:"column:time;index"`
	Equity float64   `gorm:"column:equity"`
}

func (EquityPointModel) TableName() string { return "equity_points" }

// AlertModel maps to 'alerts' table。风控告警的归档。
type AlertModel struct {
	ID      int64     `gorm:"column:id;primaryKey"`
	Symbol  string    `gorm:"column:symbol;index"`
	Kind    string    `gorm:"column:kind"`
	Title   string    `gorm:"column:title"`
	Message string    `gorm:"column:message"`
	Time    time.Time `gorm:"column:time;index"`
}

func (AlertModel) TableName() string { return "alerts" }

// SessionModel maps to 'sessions' table。一次会话的汇总与策略快照。
type SessionModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	Symbol      string         `gorm:"column:symbol;index"`
	Mode        string         `gorm:"column:mode"`
	StartedAt   time.Time      `gorm:"column:started_at"`
	EndedAt     time.Time      `gorm:"column:ended_at"`
	Trades      int            `gorm:"column:trades"`
	Wins        int            `gorm:"column:wins"`
	Losses      int            `gorm:"column:losses"`
	RealizedPnL float64        `gorm:"column:realized_pnl"`
	MaxDrawdown float64        `gorm:"column:max_drawdown"`
	FinalEquity float64        `gorm:"column:final_equity"`
	Strategy    datatypes.JSON `gorm:"column:strategy"`
	Memory      datatypes.JSON `gorm:"column:memory"`
}

func (SessionModel) TableName() string { return "sessions" }
