package agent

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"virtex/internal/logger"
)

const (
	harvesterZWindow     = 30
	harvesterZEntry      = 2.0
	harvesterReflectGap  = 50
	harvesterLossFrac    = -0.02 // 反思阈值：浮亏超过权益 2%
	harvesterTighten     = 0.9
	harvesterSizeFrac    = 0.1
	harvesterBaseVolTol  = 0.05
	harvesterChoppyFloor = 0.001
	harvesterTakeProfit  = 500.0 // 绝对止盈额
)

// Memory 是 harvester 的私有记忆，跨 tick 存活，按策略 ID 归属。
type Memory struct {
	VolTolerance   float64  `json:"vol_tolerance"`
	AvoidChoppy    bool     `json:"avoid_choppy"`
	Corrections    []string `json:"corrections"`
	LastReflection int      `json:"last_reflection"`
}

// harvester 是带记忆的均值回归收割者：30 tick z-score 进场，
// 绝对额止盈，每 50 tick 反思一次并收紧自己的波动容忍度。
type harvester struct {
	strategy ActiveStrategy
	mem      Memory
}

func newHarvester(s ActiveStrategy) *harvester {
	tol := harvesterBaseVolTol
	if s.TargetVol > 0 {
		tol = s.TargetVol
	}
	return &harvester{strategy: s, mem: Memory{VolTolerance: tol}}
}

func (a *harvester) ID() StrategyID { return StrategyHarvester }

func (a *harvester) MemorySnapshot() *Memory {
	cp := a.mem
	cp.Corrections = append([]string(nil), a.mem.Corrections...)
	return &cp
}

func (a *harvester) OnTick(tc *TickContext) {
	a.reflect(tc)

	if !tc.Flat() {
		if tc.Position.UnrealizedPnL > harvesterTakeProfit {
			logger.Infof("[harvester] 浮盈 %.2f 达到止盈线，全部平仓", tc.Position.UnrealizedPnL)
			tc.CloseAll("take profit")
		}
		return
	}

	if len(tc.Recent) < harvesterZWindow {
		return
	}
	window := tc.Recent[len(tc.Recent)-harvesterZWindow:]
	mean := talib.Sma(window, harvesterZWindow)[harvesterZWindow-1]
	std := talib.StdDev(window, harvesterZWindow, 1)[harvesterZWindow-1]
	if std <= 0 {
		return
	}

	vol := std / mean
	if vol > a.mem.VolTolerance {
		logger.Debugf("[harvester] 波动 %.4f 超出容忍度 %.4f，跳过", vol, a.mem.VolTolerance)
		return
	}
	if a.mem.AvoidChoppy && a.shortHorizonVol(tc.Recent) < harvesterChoppyFloor {
		return
	}

	z := (tc.Price - mean) / std
	qty := tc.Equity * harvesterSizeFrac / tc.Price
	if qty <= 0 {
		return
	}
	switch {
	case z < -harvesterZEntry:
		logger.Debugf("[harvester] z=%.2f 低于 -%.1f 开多", z, harvesterZEntry)
		tc.OpenLong(qty)
	case z > harvesterZEntry:
		logger.Debugf("[harvester] z=%.2f 高于 %.1f 开空", z, harvesterZEntry)
		tc.OpenShort(qty)
	}
}

// reflect 每 50 tick 审视一次持仓表现；浮亏过深就收紧容忍度并记一条自纠偏。
func (a *harvester) reflect(tc *TickContext) {
	if tc.Seq-a.mem.LastReflection < harvesterReflectGap {
		return
	}
	a.mem.LastReflection = tc.Seq
	if tc.Flat() || tc.Equity <= 0 {
		return
	}
	frac := tc.Position.UnrealizedPnL / tc.Equity
	if frac >= harvesterLossFrac {
		return
	}
	a.mem.VolTolerance *= harvesterTighten
	note := fmt.Sprintf("tick %d: 浮亏占权益 %.2f%%，容忍度收紧至 %.4f", tc.Seq, frac*100, a.mem.VolTolerance)
	a.mem.Corrections = append(a.mem.Corrections, note)
	if len(a.mem.Corrections) >= 2 {
		a.mem.AvoidChoppy = true
	}
	logger.Infof("[harvester] 反思: %s", note)
}

// shortHorizonVol 取最近 10 个收益的标准差，衡量当下是否处于横盘。
func (a *harvester) shortHorizonVol(recent []float64) float64 {
	const n = 10
	if len(recent) < n+1 {
		return 0
	}
	tail := recent[len(recent)-n-1:]
	var rets []float64
	for i := 1; i < len(tail); i++ {
		if tail[i-1] <= 0 {
			continue
		}
		rets = append(rets, tail[i]/tail[i-1]-1)
	}
	if len(rets) == 0 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var sum float64
	for _, r := range rets {
		d := r - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(rets)))
}
