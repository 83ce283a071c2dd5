package market

import (
	"sort"
	"time"
)

// NormalizeSeries 把外部历史序列整理成时间升序、无重复、价格为正的切片。
// 重复时间戳保留后出现的一条（上游修正覆盖旧值）。
func NormalizeSeries(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}
	byTime := make(map[int64]Candle, len(candles))
	for _, c := range candles {
		if c.Close <= 0 || c.Time <= 0 {
			continue
		}
		byTime[c.Time] = c
	}
	out := make([]Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// ToTicks 把收盘序列转成回放 tick 流。
func ToTicks(candles []Candle, origin TickOrigin) []Tick {
	if len(candles) == 0 {
		return nil
	}
	ticks := make([]Tick, 0, len(candles))
	for _, c := range candles {
		ticks = append(ticks, Tick{
			Time:   time.UnixMilli(c.Time),
			Price:  c.Close,
			Volume: c.Volume,
			Origin: origin,
		})
	}
	return ticks
}
