package engine

import (
	"time"

	"virtex/internal/logger"
	"virtex/internal/market"
)

// markToMarketLocked 用当前价重估持仓，刷新权益、占用保证金与高水位。
// 持仓不变式：marginUsed = price·qty/leverage；equity = balance + 浮动盈亏。
func (e *Engine) markToMarketLocked(price float64) {
	if e.position != nil {
		pos := e.position
		pos.MarkPrice = price
		pos.UnrealizedPnL = (price - pos.AvgEntry) * pos.Quantity * pos.Side.Dir()
		pos.MarginUsed = price * pos.Quantity / e.account.Leverage
		e.account.Equity = e.account.Balance + pos.UnrealizedPnL
		e.account.MarginUsed = pos.MarginUsed
	} else {
		e.account.Equity = e.account.Balance
		e.account.MarginUsed = 0
	}
	if e.account.Equity > e.account.HighWaterMark {
		e.account.HighWaterMark = e.account.Equity
	}
	if hwm := e.account.HighWaterMark; hwm > 0 {
		if dd := (hwm - e.account.Equity) / hwm; dd > e.stats.MaxDrawdown {
			e.stats.MaxDrawdown = dd
		}
	}
}

// sampleEquityLocked 以约 0.2 的概率把当前权益写入有界曲线，
// 长会话不因逐 tick 记录而膨胀，曲线形态仍有代表性。
func (e *Engine) sampleEquityLocked(ts time.Time) {
	if e.src.Float64() >= equitySampleP {
		return
	}
	p := market.EquityPoint{Time: ts, Equity: e.account.Equity}
	e.equityRing.Push(p)
	if e.recorder != nil {
		if err := e.recorder.RecordEquity(p); err != nil {
			logger.Warnf("[engine] 权益采样落库失败: %v", err)
		}
	}
}
