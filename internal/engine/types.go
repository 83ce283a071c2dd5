package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"virtex/internal/agent"
	"virtex/internal/market"
	"virtex/internal/stochastic"
)

// Side 是订单与持仓方向。
type Side int

const (
	SideLong Side = iota + 1
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Dir 返回做多 +1、做空 -1，盈亏计算统一乘它。
func (s Side) Dir() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Opposite 返回反方向。
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	default:
		return 0, fmt.Errorf("未知方向: %q", v)
	}
}

func (s Side) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OrderKind 保留 market/limit 两种；limit 价不参与定价，成交始终按当前 tick。
type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Order 是待撮合订单。pending → filled/cancelled 只发生一次。
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Kind      OrderKind   `json:"kind"`
	Side      Side        `json:"side"`
	Price     float64     `json:"price"`
	Quantity  float64     `json:"quantity"`
	CreatedAt time.Time   `json:"created_at"`
	Status    OrderStatus `json:"status"`
}

// Trade 是一笔已成交记录，只增不改。
type Trade struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Kind        OrderKind `json:"kind"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	Fee         float64   `json:"fee"`
	RealizedPnL float64   `json:"realized_pnl"`
	FilledAt    time.Time `json:"filled_at"`
}

// Position 是当前唯一持仓（每个品种最多一张）。
type Position struct {
	Side          Side      `json:"side"`
	Quantity      float64   `json:"quantity"`
	AvgEntry      float64   `json:"avg_entry"`
	MarkPrice     float64   `json:"mark_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	MarginUsed    float64   `json:"margin_used"`
	StopPrice     float64   `json:"stop_price,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Account 是账户总览。持仓存在时 Equity = Balance + 浮动盈亏。
type Account struct {
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	MarginUsed    float64 `json:"margin_used"`
	Leverage      float64 `json:"leverage"`
	HighWaterMark float64 `json:"high_water_mark"`
}

// AlertKind 区分两类风控告警。
type AlertKind string

const (
	AlertLiquidation  AlertKind = "liquidation"
	AlertRobotAnomaly AlertKind = "robot_anomaly"
)

// Alert 由风控触发，只有显式 ClearAlert 才会消除。
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// SessionStats 是会话累计统计，报表与状态页共用。
type SessionStats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	RealizedPnL float64 `json:"realized_pnl"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// SimulationContext 保存某个模式下的拟合结果与生成路径。
// 进程生命期内常驻，每次 RunNumericalSimulation 整体重建。
type SimulationContext struct {
	Ready     bool
	Params    stochastic.Params
	Path      []market.Tick
	StartTime time.Time
	StartIdx  int // training: 历史缓冲里样本外区段的起点

	gen *stochastic.Generator
}

// ContextMetrics 是上下文的只读诊断视图。
type ContextMetrics struct {
	Ready         bool               `json:"ready"`
	Mode          string             `json:"mode"`
	Regime        string             `json:"regime,omitempty"`
	Weights       stochastic.Weights `json:"weights,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
	Vol           float64            `json:"vol,omitempty"`
	Kurtosis      float64            `json:"kurtosis,omitempty"`
	AnnualDrift   float64            `json:"annual_drift,omitempty"`
	AnnualVol     float64            `json:"annual_vol,omitempty"`
	JumpIntensity float64            `json:"jump_intensity,omitempty"`
	SampleSize    int                `json:"sample_size,omitempty"`
	PathLen       int                `json:"path_len,omitempty"`
	StartTime     time.Time          `json:"start_time,omitempty"`
}

// SimulationResult 是 RunNumericalSimulation 的结构化结果，失败不抛错。
type SimulationResult struct {
	Success bool            `json:"success"`
	Mode    string          `json:"mode"`
	Error   string          `json:"error,omitempty"`
	Metrics *ContextMetrics `json:"metrics,omitempty"`
}

// Status 是一次性只读快照，调用方拿到的都是副本。
type Status struct {
	Config       Config         `json:"config"`
	Running      bool           `json:"running"`
	Speed        float64        `json:"speed"`
	Robot        bool           `json:"robot"`
	Tick         market.Tick    `json:"tick"`
	Account      Account        `json:"account"`
	Position     *Position      `json:"position,omitempty"`
	Pending      []Order        `json:"pending_orders"`
	TradeCount   int            `json:"trade_count"`
	Alert        *Alert         `json:"alert,omitempty"`
	StrategyName string         `json:"strategy_name,omitempty"`
	Memory       *agent.Memory  `json:"memory,omitempty"`
	Stats        SessionStats   `json:"stats"`
	EquityCurve  int            `json:"equity_samples"`
	Cursor       int            `json:"cursor"`
}
