package stochastic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearPrices(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestCalibrate(t *testing.T) {
	t.Run("历史不足", func(t *testing.T) {
		_, err := Calibrate(linearPrices(19, 100, 1))
		assert.ErrorIs(t, err, ErrInsufficientHistory)
	})

	t.Run("平稳序列识别为均值回归", func(t *testing.T) {
		// 小幅交替波动：低波动、低峰度
		prices := make([]float64, 60)
		for i := range prices {
			prices[i] = 100 + 0.1*float64(i%2)
		}
		p, err := Calibrate(prices)
		require.NoError(t, err)
		assert.Equal(t, RegimeReversion, p.Regime)
		assert.Equal(t, Weights{Jump: 0.1, Cluster: 0.1, Revert: 0.8}, p.Weights)
		assert.Equal(t, 60, p.SampleSize)
	})

	t.Run("偶发大跳识别为跳跃主导", func(t *testing.T) {
		prices := make([]float64, 80)
		prices[0] = 100
		for i := 1; i < len(prices); i++ {
			prices[i] = prices[i-1] * 1.0005
			if i%25 == 0 {
				prices[i] = prices[i-1] * 1.2 // 孤立大跳抬高峰度
			}
		}
		p, err := Calibrate(prices)
		require.NoError(t, err)
		assert.Equal(t, RegimeJump, p.Regime)
		assert.Equal(t, 0.7, p.Weights.Jump)
		assert.Greater(t, p.Kurtosis, 3.0)
	})

	t.Run("置信度在合理区间", func(t *testing.T) {
		p, err := Calibrate(linearPrices(30, 100, 1))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.Confidence, 0.1)
		assert.LessOrEqual(t, p.Confidence, 0.95)
	})
}

func TestGeneratorExtend(t *testing.T) {
	p, err := Calibrate(linearPrices(30, 100, 1))
	require.NoError(t, err)

	t.Run("路径可追加且状态连续", func(t *testing.T) {
		g := NewGenerator(p, 129, NewSource(42))
		first := g.Extend(100)
		require.Len(t, first, 100)
		assert.Equal(t, first[99], g.Price())
		assert.Equal(t, 100, g.Steps())

		second := g.Extend(50)
		require.Len(t, second, 50)
		assert.Equal(t, 150, g.Steps())
	})

	t.Run("相同种子路径可复现", func(t *testing.T) {
		a := NewGenerator(p, 129, NewSource(7)).Extend(200)
		b := NewGenerator(p, 129, NewSource(7)).Extend(200)
		assert.Equal(t, a, b)
	})

	t.Run("万步不产生非正价格", func(t *testing.T) {
		for _, seed := range []int64{1, 2, 3, 99} {
			g := NewGenerator(p, 0.5, NewSource(seed))
			for _, px := range g.Extend(10000) {
				require.Greater(t, px, 0.0)
			}
		}
	})
}

func TestBoxMullerSource(t *testing.T) {
	src := NewSource(1)
	n := 20000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		z := src.NormFloat64()
		sum += z
		sumSq += z * z
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, variance, 0.05)
	assert.InDelta(t, 1, math.Sqrt(variance), 0.03)
}
