package agent

import (
	"fmt"
	"strings"
	"time"
)

// StrategyID 是策略的稳定标识，调度只认 ID，改显示名不影响分发。
type StrategyID int

const (
	StrategyUnknown StrategyID = iota
	StrategySentinel
	StrategyVector
	StrategyHarvester
)

func (id StrategyID) String() string {
	switch id {
	case StrategySentinel:
		return "sentinel"
	case StrategyVector:
		return "vector"
	case StrategyHarvester:
		return "harvester"
	default:
		return "unknown"
	}
}

func ParseStrategyID(s string) (StrategyID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sentinel":
		return StrategySentinel, nil
	case "vector":
		return StrategyVector, nil
	case "harvester":
		return StrategyHarvester, nil
	default:
		return StrategyUnknown, fmt.Errorf("未知策略: %q", s)
	}
}

// ActiveStrategy 描述当前启用的策略及其参数。
type ActiveStrategy struct {
	ID                 StrategyID         `json:"id"`
	Name               string             `json:"name"`
	Weights            map[string]float64 `json:"weights,omitempty"`
	StopLossMultiplier float64            `json:"stop_loss_multiplier"`
	TargetVol          float64            `json:"target_vol"`
}

// PositionView 是引擎给策略看的只读持仓切片。
type PositionView struct {
	Long          bool
	Quantity      float64
	AvgEntry      float64
	UnrealizedPnL float64
	StopPrice     float64
}

// TickContext 承载一个 tick 的市场与账户切片，以及策略可用的动作回调。
// 回调只是把订单排入待撮合队列，成交发生在下一个 tick。
type TickContext struct {
	Seq      int
	Time     time.Time
	Price    float64
	Recent   []float64 // 最近收盘价窗口，旧在前
	Equity   float64
	Position *PositionView

	OpenLong  func(qty float64)
	OpenShort func(qty float64)
	CloseAll  func(reason string)
}

// Flat 表示当前无持仓。
func (tc *TickContext) Flat() bool {
	return tc.Position == nil || tc.Position.Quantity <= 0
}

// Agent 在每个 tick 被调度一次；实现必须是同步且无阻塞的。
type Agent interface {
	ID() StrategyID
	OnTick(tc *TickContext)
}

// New 按 StrategyID 构造对应的策略实例。
func New(s ActiveStrategy) (Agent, error) {
	switch s.ID {
	case StrategySentinel:
		return newSentinel(s), nil
	case StrategyVector:
		return newVector(s), nil
	case StrategyHarvester:
		return newHarvester(s), nil
	default:
		return nil, fmt.Errorf("无法构造策略: %s", s.ID)
	}
}

// MemoryCarrier 由带自适应记忆的策略实现，引擎据此在状态里透出记忆。
type MemoryCarrier interface {
	MemorySnapshot() *Memory
}
