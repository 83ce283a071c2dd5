package market

import "time"

// Candle 是上游数据管线交付的单根日线（毫秒时间戳）。
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TickOrigin 标记一个 tick 的来源。
type TickOrigin string

const (
	OriginLive      TickOrigin = "live"
	OriginReplay    TickOrigin = "replay"
	OriginSynthetic TickOrigin = "synthetic"
	OriginTraining  TickOrigin = "training"
)

// Tick 是引擎对外发布的最小行情单元，产生后不可变。
type Tick struct {
	Time      time.Time  `json:"time"`
	Price     float64    `json:"price"`
	Predicted *float64   `json:"predicted,omitempty"`
	Volume    float64    `json:"volume"`
	Origin    TickOrigin `json:"origin"`
}

// WithOrigin 返回换了来源标记的副本。
func (t Tick) WithOrigin(origin TickOrigin) Tick {
	t.Origin = origin
	return t
}
