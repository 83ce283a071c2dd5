package agent

import (
	"github.com/shopspring/decimal"

	"virtex/internal/logger"
)

// sentinel 是纯否决层：自己从不开仓，只执行硬止损与偏离过滤。
// 价格比较走 decimal，避免边界上的浮点抖动导致该砍不砍。
type sentinel struct {
	strategy ActiveStrategy
	maxDev   decimal.Decimal
}

// 基础允许偏离 3%，乘以策略的止损倍数。
var baseDeviation = decimal.NewFromFloat(0.03)

func newSentinel(s ActiveStrategy) *sentinel {
	mult := s.StopLossMultiplier
	if mult <= 0 {
		mult = 1
	}
	return &sentinel{
		strategy: s,
		maxDev:   baseDeviation.Mul(decimal.NewFromFloat(mult)),
	}
}

func (a *sentinel) ID() StrategyID { return StrategySentinel }

func (a *sentinel) OnTick(tc *TickContext) {
	if tc.Flat() {
		return
	}
	pos := tc.Position
	price := decimal.NewFromFloat(tc.Price)

	if pos.StopPrice > 0 {
		stop := decimal.NewFromFloat(pos.StopPrice)
		if pos.Long && price.LessThanOrEqual(stop) {
			logger.Warnf("[sentinel] 多头触及止损 price=%s stop=%s", price, stop)
			tc.CloseAll("stop price breached")
			return
		}
		if !pos.Long && price.GreaterThanOrEqual(stop) {
			logger.Warnf("[sentinel] 空头触及止损 price=%s stop=%s", price, stop)
			tc.CloseAll("stop price breached")
			return
		}
	}

	if pos.AvgEntry <= 0 {
		return
	}
	entry := decimal.NewFromFloat(pos.AvgEntry)
	dev := price.Sub(entry).Div(entry)
	adverse := dev.Neg()
	if !pos.Long {
		adverse = dev
	}
	if adverse.GreaterThan(a.maxDev) {
		logger.Warnf("[sentinel] 不利偏离 %s 超过上限 %s，强制平仓", adverse, a.maxDev)
		tc.CloseAll("adverse deviation limit")
	}
}
