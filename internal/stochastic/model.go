package stochastic

import (
	"errors"
	"math"
)

// MinHistory 是拟合所需的最少历史点数。
const MinHistory = 20

// ErrInsufficientHistory 表示历史点数不足，拟合不产生任何输出。
var ErrInsufficientHistory = errors.New("insufficient history: need at least 20 points")

// Regime 是拟合阶段识别出的主导市场状态。
type Regime string

const (
	RegimeJump      Regime = "jump_diffusion"
	RegimeCluster   Regime = "volatility_clustering"
	RegimeReversion Regime = "mean_reversion"
)

// Weights 是三个子过程（跳跃 / 波动聚簇 / 均值回归）的混合权重。
type Weights struct {
	Jump    float64 `json:"jump"`
	Cluster float64 `json:"cluster"`
	Revert  float64 `json:"revert"`
}

// 过程常数：日步长、回归速度、GARCH(1,1) 参数、跳跃幅度上限。
const (
	stepDT        = 1.0 / 252.0
	revertSpeed   = 0.5
	garchOmega    = 2e-6
	garchAlpha    = 0.1
	garchBeta     = 0.85
	jumpProb      = 0.01
	jumpProbBoost = 0.06
	highVolLevel  = 0.02
	jumpMaxPct    = 0.05
	priceFloor    = 1e-8
)

// Params 是对一段历史的拟合结果与诊断指标。
type Params struct {
	Regime     Regime  `json:"regime"`
	Weights    Weights `json:"weights"`
	MeanPrice  float64 `json:"mean_price"`
	Vol        float64 `json:"vol"`      // 单步 log-return 标准差
	Kurtosis   float64 `json:"kurtosis"` // 超额峰度
	Confidence float64 `json:"confidence"`

	// 年化诊断（供前端展示，不参与路径生成）。
	AnnualDrift   float64 `json:"annual_drift"`
	AnnualVol     float64 `json:"annual_vol"`
	JumpIntensity float64 `json:"jump_intensity"` // 每年 |r|>3σ 事件数
	SampleSize    int     `json:"sample_size"`
}

// Calibrate 对历史收盘价做矩估计并识别主导 regime。
// 少于 MinHistory 个点时返回 ErrInsufficientHistory，不产生部分结果。
func Calibrate(prices []float64) (Params, error) {
	if len(prices) < MinHistory {
		return Params{}, ErrInsufficientHistory
	}
	returns := logReturns(prices)
	mu, sigma := meanStd(returns)
	kurt := excessKurtosis(returns, mu, sigma)

	var regime Regime
	var w Weights
	switch {
	case kurt > 3.0:
		regime, w = RegimeJump, Weights{Jump: 0.7, Cluster: 0.2, Revert: 0.1}
	case sigma > highVolLevel:
		regime, w = RegimeCluster, Weights{Jump: 0.2, Cluster: 0.6, Revert: 0.2}
	default:
		regime, w = RegimeReversion, Weights{Jump: 0.1, Cluster: 0.1, Revert: 0.8}
	}

	meanPrice := 0.0
	for _, p := range prices {
		meanPrice += p
	}
	meanPrice /= float64(len(prices))

	jumps := 0
	threshold := 3 * sigma
	for _, r := range returns {
		if math.Abs(r) > threshold {
			jumps++
		}
	}
	years := float64(len(returns)) / 252.0
	intensity := 0.0
	if years > 0 {
		intensity = float64(jumps) / years
	}

	return Params{
		Regime:        regime,
		Weights:       w,
		MeanPrice:     meanPrice,
		Vol:           sigma,
		Kurtosis:      kurt,
		Confidence:    confidenceScore(len(prices), kurt),
		AnnualDrift:   mu * 252,
		AnnualVol:     sigma * math.Sqrt(252),
		JumpIntensity: intensity,
		SampleSize:    len(prices),
	}, nil
}

// confidenceScore 是给前端的合成置信度：样本越多越高，峰度越极端越低。
func confidenceScore(n int, kurt float64) float64 {
	score := 0.55 + math.Min(0.3, float64(n)/1000)
	score -= math.Min(0.25, math.Abs(kurt)/20)
	return clamp(score, 0.1, 0.95)
}

// Generator 按拟合参数生成合成路径。状态（当前价、当前方差）在多次
// Extend 之间保留，因此路径可以被无限追加。
type Generator struct {
	params    Params
	src       Source
	price     float64
	variance  float64
	lastShock float64
	steps     int
}

// NewGenerator 从 startPrice 开始生成；初始方差取拟合出的单步方差。
func NewGenerator(params Params, startPrice float64, src Source) *Generator {
	if src == nil {
		src = NewSource(0)
	}
	v := params.Vol * params.Vol
	if v <= 0 {
		v = garchOmega / (1 - garchAlpha - garchBeta)
	}
	return &Generator{params: params, src: src, price: startPrice, variance: v}
}

// Price 返回当前（最后一步）价格。
func (g *Generator) Price() float64 { return g.price }

// Steps 返回已生成的总步数。
func (g *Generator) Steps() int { return g.steps }

// Extend 追加 n 步并返回这 n 个新价格。
func (g *Generator) Extend(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.step())
	}
	return out
}

func (g *Generator) step() float64 {
	w := g.params.Weights

	// (a) 均值回归漂移
	revert := revertSpeed * (g.params.MeanPrice - g.price) * stepDT

	// (b) GARCH(1,1) 方差递归驱动的聚簇扰动
	g.variance = garchOmega + garchAlpha*g.lastShock*g.lastShock + garchBeta*g.variance
	z := g.src.NormFloat64()
	g.lastShock = math.Sqrt(g.variance) * z
	cluster := g.lastShock * g.price

	// (c) 跳跃：高波动时概率抬升
	prob := jumpProb
	if math.Sqrt(g.variance) > highVolLevel {
		prob = jumpProbBoost
	}
	jump := 0.0
	if g.src.Float64() < prob {
		jump = g.price * (g.src.Float64()*2 - 1) * jumpMaxPct
	}

	g.price += w.Revert*revert + w.Cluster*cluster + w.Jump*jump
	if g.price < priceFloor {
		g.price = priceFloor
	}
	g.steps++
	return g.price
}

func logReturns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := x - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(xs)))
	return mean, std
}

// excessKurtosis 返回样本超额峰度（正态分布为 0）。
func excessKurtosis(xs []float64, mean, std float64) float64 {
	if len(xs) == 0 || std == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := (x - mean) / std
		sum += d * d * d * d
	}
	return sum/float64(len(xs)) - 3
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
