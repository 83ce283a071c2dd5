package agent

import (
	"github.com/markcheno/go-talib"

	"virtex/internal/logger"
)

const (
	vectorShortWindow = 5
	vectorLongWindow  = 15
	vectorBand        = 0.001 // 双均线差超过 0.1% 才算有效穿越
	vectorSizeFrac    = 0.1   // 每次固定用 10% 权益
)

// vector 是双均线跟随者：短均线带阈值上穿做多、下穿做空，只在空仓时进场。
type vector struct {
	strategy ActiveStrategy
}

func newVector(s ActiveStrategy) *vector { return &vector{strategy: s} }

func (a *vector) ID() StrategyID { return StrategyVector }

func (a *vector) OnTick(tc *TickContext) {
	if !tc.Flat() {
		return
	}
	if len(tc.Recent) < vectorLongWindow {
		return
	}
	shortMA := talib.Sma(tc.Recent, vectorShortWindow)
	longMA := talib.Sma(tc.Recent, vectorLongWindow)
	s := shortMA[len(shortMA)-1]
	l := longMA[len(longMA)-1]
	if l <= 0 {
		return
	}
	qty := a.orderQty(tc)
	if qty <= 0 {
		return
	}
	switch {
	case s > l*(1+vectorBand):
		logger.Debugf("[vector] 短均线 %.4f > 长均线 %.4f 开多 qty=%.4f", s, l, qty)
		tc.OpenLong(qty)
	case s < l*(1-vectorBand):
		logger.Debugf("[vector] 短均线 %.4f < 长均线 %.4f 开空 qty=%.4f", s, l, qty)
		tc.OpenShort(qty)
	}
}

func (a *vector) orderQty(tc *TickContext) float64 {
	if tc.Price <= 0 || tc.Equity <= 0 {
		return 0
	}
	return tc.Equity * vectorSizeFrac / tc.Price
}
