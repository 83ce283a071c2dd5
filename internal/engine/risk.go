package engine

import (
	"fmt"

	"virtex/internal/logger"
)

// 自动交易回撤超过激活时权益的 5% 即熔断。
const robotDrawdownLimit = 0.05

// checkRiskLocked 在撮合之前跑两道独立风控；任一触发都会
// 停止调度并短路本 tick 余下的处理。
func (e *Engine) checkRiskLocked() bool {
	if e.account.MarginUsed > 0 && e.account.MarginUsed >= e.account.Equity {
		e.liquidateLocked()
		return true
	}
	if e.robot && e.robotBaseEquity > 0 {
		dd := (e.robotBaseEquity - e.account.Equity) / e.robotBaseEquity
		if dd > robotDrawdownLimit {
			e.haltRobotLocked(dd)
			return true
		}
	}
	return false
}

// liquidateLocked 执行强平：按清算前权益结算余额，清掉持仓与挂单，
// 停止调度并竖起 liquidation 告警；告警未确认前 Start 被拒绝。
func (e *Engine) liquidateLocked() {
	preEquity := e.account.Equity
	logger.Errorf("[engine] 强制平仓 margin=%.2f equity=%.2f", e.account.MarginUsed, preEquity)

	e.account.Balance = preEquity
	e.account.Equity = preEquity
	e.account.MarginUsed = 0
	e.position = nil
	for i := range e.pending {
		e.pending[i].Status = OrderCancelled
	}
	e.pending = nil
	e.robot = false
	e.robotBaseEquity = 0
	e.stopLocked()

	e.raiseAlertLocked(Alert{
		Kind:    AlertLiquidation,
		Title:   "强制平仓",
		Message: fmt.Sprintf("保证金占用达到权益，账户按 %.2f 清算", preEquity),
		Time:    e.nowFn(),
	}, map[string]string{
		"equity": fmt.Sprintf("%.2f", preEquity),
	})
}

// haltRobotLocked 熔断自动交易：停调度、关机器人、竖起异常告警。
func (e *Engine) haltRobotLocked(drawdown float64) {
	logger.Errorf("[engine] 自动交易熔断 drawdown=%.2f%% base=%.2f equity=%.2f",
		drawdown*100, e.robotBaseEquity, e.account.Equity)
	base := e.robotBaseEquity
	e.robot = false
	e.robotBaseEquity = 0
	e.stopLocked()

	e.raiseAlertLocked(Alert{
		Kind:    AlertRobotAnomaly,
		Title:   "自动交易异常停机",
		Message: fmt.Sprintf("权益自激活值 %.2f 回撤 %.2f%%，超过 %.0f%% 上限", base, drawdown*100, robotDrawdownLimit*100),
		Time:    e.nowFn(),
	}, map[string]string{
		"base_equity": fmt.Sprintf("%.2f", base),
		"drawdown":    fmt.Sprintf("%.2f%%", drawdown*100),
	})
}

func (e *Engine) raiseAlertLocked(a Alert, sections map[string]string) {
	e.alert = &a
	logger.LogRiskEvent(string(a.Kind), e.cfg.Symbol, a.Title, sections)
	if e.recorder != nil {
		if err := e.recorder.RecordAlert(a); err != nil {
			logger.Warnf("[engine] 告警落库失败: %v", err)
		}
	}
}
