package stochastic

import (
	"math"
	"math/rand"
	"time"
)

// Source 抽象路径生成所需的随机源，方便测试注入固定种子。
type Source interface {
	// NormFloat64 返回标准正态变量。
	NormFloat64() float64
	// Float64 返回 [0,1) 均匀变量。
	Float64() float64
}

// boxMullerSource 用 Box–Muller 变换产生正态变量，一次生成两个、缓存一个。
type boxMullerSource struct {
	rnd   *rand.Rand
	spare float64
	has   bool
}

// NewSource 以给定种子构造随机源；seed<=0 时取当前时间。
func NewSource(seed int64) Source {
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}
	return &boxMullerSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *boxMullerSource) Float64() float64 { return s.rnd.Float64() }

func (s *boxMullerSource) NormFloat64() float64 {
	if s.has {
		s.has = false
		return s.spare
	}
	var u1 float64
	for u1 <= 0 {
		u1 = s.rnd.Float64()
	}
	u2 := s.rnd.Float64()
	r := math.Sqrt(-2 * math.Log(u1))
	s.spare = r * math.Sin(2*math.Pi*u2)
	s.has = true
	return r * math.Cos(2*math.Pi*u2)
}
