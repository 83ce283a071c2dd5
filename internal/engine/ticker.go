package engine

import (
	"fmt"
	"time"

	"virtex/internal/agent"
	"virtex/internal/logger"
	"virtex/internal/market"
)

// 调度下限 20ms；速度倍率再高也不会把 CPU 跑满。
const minTickInterval = 20 * time.Millisecond

// Start 启动调度循环。幂等：已在运行时直接返回。
// 强平告警未确认期间拒绝启动。
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.alert != nil && e.alert.Kind == AlertLiquidation {
		return fmt.Errorf("存在未确认的强平告警，拒绝启动")
	}
	if e.running {
		return nil
	}
	e.running = true
	stop := make(chan struct{})
	e.stop = stop
	go e.loop(stop)
	logger.Infof("[engine] 调度启动 mode=%s speed=%.1fx", e.cfg.Mode, e.speed)
	return nil
}

// Stop 取消挂起的调度；进行中的 tick 不被打断，跑完即退。
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.running {
		return
	}
	e.running = false
	close(e.stop)
	logger.Infof("[engine] 调度停止")
}

// SetSpeed 调整速度倍率；tick 间隔 = max(20ms, 1s/倍率)。
func (e *Engine) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return fmt.Errorf("速度倍率必须为正: %v", multiplier)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = multiplier
	return nil
}

func (e *Engine) interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := time.Duration(float64(time.Second) / e.speed)
	if d < minTickInterval {
		d = minTickInterval
	}
	return d
}

func (e *Engine) loop(stop <-chan struct{}) {
	for {
		timer := time.NewTimer(e.interval())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
		e.Tick()
	}
}

// Tick 执行一个完整逻辑 tick：推进价格源 → 记账 → 风控 → 撮合 →
// 策略 → 权益采样。风控触发时短路后半段。导出是为了测试与回放驱动。
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	tk, ok := e.advanceLocked()
	if !ok {
		logger.Warnf("[engine] 数据耗尽 mode=%s cursor=%d，调度停止", e.cfg.Mode, e.cursor)
		e.stopLocked()
		return
	}
	e.current = tk
	e.seq++
	e.pushRecentLocked(tk.Price)

	e.markToMarketLocked(tk.Price)
	if e.checkRiskLocked() {
		return
	}
	e.matchLocked(tk)
	if e.robot && e.runner != nil {
		e.dispatchLocked(tk)
	}
	e.sampleEquityLocked(tk.Time)
}

func (e *Engine) pushRecentLocked(price float64) {
	e.recent = append(e.recent, price)
	if len(e.recent) > recentWindow {
		e.recent = e.recent[len(e.recent)-recentWindow:]
	}
}

// dispatchLocked 组装只读切片和动作回调，把本 tick 交给策略。
// 回调只入队订单，成交发生在下一个 tick 的撮合阶段。
func (e *Engine) dispatchLocked(tk market.Tick) {
	tc := &agent.TickContext{
		Seq:    e.seq,
		Time:   tk.Time,
		Price:  tk.Price,
		Recent: append([]float64(nil), e.recent...),
		Equity: e.account.Equity,
		OpenLong: func(qty float64) {
			if _, err := e.placeOrderLocked(SideLong, OrderMarket, qty); err != nil {
				logger.Warnf("[engine] 策略下单失败: %v", err)
			}
		},
		OpenShort: func(qty float64) {
			if _, err := e.placeOrderLocked(SideShort, OrderMarket, qty); err != nil {
				logger.Warnf("[engine] 策略下单失败: %v", err)
			}
		},
		CloseAll: func(reason string) {
			pos := e.position
			if pos == nil {
				return
			}
			logger.Infof("[engine] 策略请求全平: %s", reason)
			if _, err := e.placeOrderLocked(pos.Side.Opposite(), OrderMarket, pos.Quantity); err != nil {
				logger.Warnf("[engine] 策略平仓失败: %v", err)
			}
		},
	}
	if e.position != nil {
		tc.Position = &agent.PositionView{
			Long:          e.position.Side == SideLong,
			Quantity:      e.position.Quantity,
			AvgEntry:      e.position.AvgEntry,
			UnrealizedPnL: e.position.UnrealizedPnL,
			StopPrice:     e.position.StopPrice,
		}
	}
	e.runner.OnTick(tc)
}
