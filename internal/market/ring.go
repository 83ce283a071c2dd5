package market

import "time"

// EquityPoint 是资金曲线上的一个采样。
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// EquityRing 是固定容量的资金曲线缓冲：写满后覆盖最旧样本，
// 避免长会话把历史数组无限拼接下去。
type EquityRing struct {
	buf   []EquityPoint
	head  int
	count int
}

func NewEquityRing(capacity int) *EquityRing {
	if capacity <= 0 {
		capacity = 500
	}
	return &EquityRing{buf: make([]EquityPoint, capacity)}
}

func (r *EquityRing) Cap() int { return len(r.buf) }
func (r *EquityRing) Len() int { return r.count }

// Push 追加一个样本，容量满时挤掉最旧的。
func (r *EquityRing) Push(p EquityPoint) {
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Points 按时间先后导出全部样本（拷贝）。
func (r *EquityRing) Points() []EquityPoint {
	if r.count == 0 {
		return nil
	}
	out := make([]EquityPoint, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Reset 清空缓冲（账户重置时使用）。
func (r *EquityRing) Reset() {
	r.head = 0
	r.count = 0
}
