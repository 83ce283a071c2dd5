package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strategiesFixture = `strategies:
  sentinel:
    name: Sentinel
    description: 硬止损与偏离过滤
    stop_loss_multiplier: 1.5
  vector:
    name: Vector
    weights:
      momentum: 0.7
      reversion: 0.3
  harvester:
    name: Harvester
    target_vol: 0.04
    schema:
      type: object
      properties:
        target_vol:
          type: number
          minimum: 0.001
          maximum: 0.5
      additionalProperties: false
`

func writeStrategies(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistry(t *testing.T) {
	t.Run("加载全部预设", func(t *testing.T) {
		r, err := NewRegistry(writeStrategies(t, strategiesFixture))
		require.NoError(t, err)

		snap := r.Snapshot()
		assert.Len(t, snap.Presets, 3)
		assert.Equal(t, int64(1), snap.Version)

		p, ok := r.Preset(StrategySentinel)
		require.True(t, ok)
		assert.Equal(t, "Sentinel", p.Name)
		assert.Equal(t, 1.5, p.StopLossMultiplier)
	})

	t.Run("路径为空报错", func(t *testing.T) {
		_, err := NewRegistry("")
		assert.Error(t, err)
	})

	t.Run("文件不存在报错", func(t *testing.T) {
		_, err := NewRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("没有有效预设报错", func(t *testing.T) {
		_, err := NewRegistry(writeStrategies(t, "strategies:\n  momentum:\n    name: Momentum\n"))
		assert.Error(t, err)
	})
}

func TestRegistryResolve(t *testing.T) {
	r, err := NewRegistry(writeStrategies(t, strategiesFixture))
	require.NoError(t, err)

	t.Run("合成ActiveStrategy", func(t *testing.T) {
		s, err := r.Resolve(StrategyVector, nil)
		require.NoError(t, err)
		assert.Equal(t, StrategyVector, s.ID)
		assert.Equal(t, "Vector", s.Name)
		assert.Equal(t, 0.7, s.Weights["momentum"])
	})

	t.Run("参数覆盖预设", func(t *testing.T) {
		s, err := r.Resolve(StrategyHarvester, map[string]any{"target_vol": 0.08})
		require.NoError(t, err)
		assert.Equal(t, 0.08, s.TargetVol)
	})

	t.Run("schema拒绝越界参数", func(t *testing.T) {
		_, err := r.Resolve(StrategyHarvester, map[string]any{"target_vol": 0.9})
		assert.Error(t, err)
	})

	t.Run("schema拒绝未知字段", func(t *testing.T) {
		_, err := r.Resolve(StrategyHarvester, map[string]any{"lookback": 10})
		assert.Error(t, err)
	})

	t.Run("未注册策略报错", func(t *testing.T) {
		_, err := r.Resolve(StrategyUnknown, nil)
		assert.Error(t, err)
	})
}
