package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("默认值", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", "engine:\n  symbol: BTC-USD\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "BTC-USD", cfg.Engine.Symbol)
		assert.Equal(t, "simulation", cfg.Engine.Mode)
		assert.Equal(t, 1_000_000.0, cfg.Engine.InitialBalance)
		assert.Equal(t, 10.0, cfg.Engine.Leverage)
		assert.Equal(t, ":8876", cfg.Server.Addr)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("include合并且主文件优先", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "engine:\n  leverage: 5\n  currency: EUR\nlog:\n  level: debug\n")
		main := writeFile(t, dir, "config.yaml", "include:\n  - base.yaml\nengine:\n  leverage: 20\n")
		cfg, err := Load(main)
		require.NoError(t, err)
		assert.Equal(t, 20.0, cfg.Engine.Leverage) // 主文件覆盖 include
		assert.Equal(t, "EUR", cfg.Engine.Currency)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("include循环报错", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", "include:\n  - b.yaml\n")
		b := writeFile(t, dir, "b.yaml", "include:\n  - a.yaml\n")
		_, err := Load(b)
		assert.Error(t, err)
	})

	t.Run("非法模式报错", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", "engine:\n  mode: replay\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("非法日志级别报错", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", "log:\n  level: verbose\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("路径为空报错", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})
}
