package engine

import (
	"virtex/internal/logger"
	"virtex/internal/market"
)

// matchLocked 把全部 pending 订单在当前 tick 价上撮合。
// 默认无手续费无滑点；配置了线性参数时按方向加减。
func (e *Engine) matchLocked(tk market.Tick) {
	if len(e.pending) == 0 {
		return
	}
	orders := e.pending
	e.pending = nil
	for i := range orders {
		e.fillLocked(&orders[i], tk)
	}
	// 成交改变持仓后立刻重估，保证金与权益在本 tick 内自洽
	e.markToMarketLocked(tk.Price)
}

func (e *Engine) fillLocked(o *Order, tk market.Tick) {
	price := tk.Price
	if e.cfg.SlippageBps > 0 {
		slip := price * e.cfg.SlippageBps / 10000
		if o.Side == SideLong {
			price += slip
		} else {
			price -= slip
		}
	}
	fee := 0.0
	if e.cfg.FeeRate > 0 {
		fee = price * o.Quantity * e.cfg.FeeRate
		e.account.Balance -= fee
	}

	realized := 0.0
	switch {
	case e.position == nil:
		e.openLocked(o.Side, o.Quantity, price, tk)

	case e.position.Side == o.Side:
		// 同向加仓：加权平均入场价
		pos := e.position
		pos.AvgEntry = (pos.AvgEntry*pos.Quantity + price*o.Quantity) / (pos.Quantity + o.Quantity)
		pos.Quantity += o.Quantity

	case o.Quantity < e.position.Quantity:
		// 部分平仓：只对平掉的数量兑现盈亏，均价不动
		pos := e.position
		realized = (price - pos.AvgEntry) * o.Quantity * pos.Side.Dir()
		e.account.Balance += realized
		pos.Quantity -= o.Quantity
		e.settleLocked(realized)

	case o.Quantity == e.position.Quantity:
		realized = e.closeAllLocked(price)

	default:
		// 反手：先全平旧仓，再用剩余数量开新方向
		remainder := o.Quantity - e.position.Quantity
		realized = e.closeAllLocked(price)
		e.openLocked(o.Side, remainder, price, tk)
	}

	o.Status = OrderFilled
	trade := Trade{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Kind:        o.Kind,
		Price:       price,
		Quantity:    o.Quantity,
		Fee:         fee,
		RealizedPnL: realized,
		FilledAt:    tk.Time,
	}
	e.trades = append(e.trades, trade)
	e.stats.Trades++
	logger.Debugf("[engine] 成交 %s %s qty=%.4f price=%.4f realized=%.2f",
		o.Side, o.Kind, o.Quantity, price, realized)
	if e.recorder != nil {
		if err := e.recorder.RecordTrade(trade); err != nil {
			logger.Warnf("[engine] 成交落库失败: %v", err)
		}
	}
}

func (e *Engine) openLocked(side Side, qty, price float64, tk market.Tick) {
	e.position = &Position{
		Side:      side,
		Quantity:  qty,
		AvgEntry:  price,
		MarkPrice: price,
		OpenedAt:  tk.Time,
	}
}

// closeAllLocked 对全部数量兑现盈亏并销毁持仓，返回已实现盈亏。
func (e *Engine) closeAllLocked(price float64) float64 {
	pos := e.position
	realized := (price - pos.AvgEntry) * pos.Quantity * pos.Side.Dir()
	e.account.Balance += realized
	e.position = nil
	e.settleLocked(realized)
	return realized
}

func (e *Engine) settleLocked(realized float64) {
	e.stats.RealizedPnL += realized
	if realized >= 0 {
		e.stats.Wins++
	} else {
		e.stats.Losses++
	}
}
