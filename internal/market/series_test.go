package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSeries(t *testing.T) {
	t.Run("排序去重", func(t *testing.T) {
		in := []Candle{
			{Time: 3000, Close: 103},
			{Time: 1000, Close: 101},
			{Time: 2000, Close: 102},
			{Time: 2000, Close: 102.5}, // 修正值覆盖旧值
		}
		out := NormalizeSeries(in)
		require.Len(t, out, 3)
		assert.Equal(t, int64(1000), out[0].Time)
		assert.Equal(t, int64(2000), out[1].Time)
		assert.Equal(t, 102.5, out[1].Close)
		assert.Equal(t, int64(3000), out[2].Time)
	})

	t.Run("丢弃非正价格", func(t *testing.T) {
		in := []Candle{
			{Time: 1000, Close: 100},
			{Time: 2000, Close: 0},
			{Time: 3000, Close: -5},
		}
		out := NormalizeSeries(in)
		require.Len(t, out, 1)
		assert.Equal(t, 100.0, out[0].Close)
	})

	t.Run("空输入", func(t *testing.T) {
		assert.Nil(t, NormalizeSeries(nil))
	})
}

func TestParseSeriesJSON(t *testing.T) {
	t.Run("标准字段", func(t *testing.T) {
		raw := []byte(`[{"date":"2024-01-02","close":101.5,"volume":1200},{"date":"2024-01-03","close":102.25,"volume":900}]`)
		out, err := ParseSeriesJSON(raw)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, 101.5, out[0].Close)
		assert.Equal(t, 1200.0, out[0].Volume)
		assert.Less(t, out[0].Time, out[1].Time)
	})

	t.Run("别名字段与data包装", func(t *testing.T) {
		raw := []byte(`{"data":[{"timestamp":1704153600,"price":99.5},{"timestamp":1704240000,"price":100.5,"vol":10}]}`)
		out, err := ParseSeriesJSON(raw)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, 99.5, out[0].Close)
		assert.Equal(t, int64(1704153600000), out[0].Time) // 秒级时间戳抬到毫秒
		assert.Equal(t, 10.0, out[1].Volume)
	})

	t.Run("缺少价格字段", func(t *testing.T) {
		raw := []byte(`[{"date":"2024-01-02","volume":1}]`)
		_, err := ParseSeriesJSON(raw)
		assert.Error(t, err)
	})
}

func TestEquityRing(t *testing.T) {
	r := NewEquityRing(3)
	assert.Equal(t, 0, r.Len())

	for i := 1; i <= 5; i++ {
		r.Push(EquityPoint{Equity: float64(i)})
	}
	pts := r.Points()
	require.Len(t, pts, 3)
	// 最旧的 1、2 被挤掉
	assert.Equal(t, 3.0, pts[0].Equity)
	assert.Equal(t, 5.0, pts[2].Equity)

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Points())
}
