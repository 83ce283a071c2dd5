package config

import (
	"fmt"
	"strings"
)

// Config 是进程级配置的根。字段都可以被 include 的文件覆盖。
type Config struct {
	Server     ServerConfig   `mapstructure:"server" yaml:"server"`
	Engine     EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Data       DataConfig     `mapstructure:"data" yaml:"data"`
	Strategies StrategyConfig `mapstructure:"strategies" yaml:"strategies"`
	Log        LogConfig      `mapstructure:"log" yaml:"log"`
	Report     ReportConfig   `mapstructure:"report" yaml:"report"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// EngineConfig 是引擎初始配置；运行期仍可通过 configure 接口增量改。
type EngineConfig struct {
	Symbol         string  `mapstructure:"symbol" yaml:"symbol"`
	Mode           string  `mapstructure:"mode" yaml:"mode"`
	InitialBalance float64 `mapstructure:"initial_balance" yaml:"initial_balance"`
	Leverage       float64 `mapstructure:"leverage" yaml:"leverage"`
	Gateway        string  `mapstructure:"gateway" yaml:"gateway"`
	Currency       string  `mapstructure:"currency" yaml:"currency"`
	FeeRate        float64 `mapstructure:"fee_rate" yaml:"fee_rate"`
	SlippageBps    float64 `mapstructure:"slippage_bps" yaml:"slippage_bps"`
}

type DataConfig struct {
	// Root 是本地数据目录：K 线缓存与 sqlite 库都放在这里
	Root string `mapstructure:"root" yaml:"root"`
}

type StrategyConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type ReportConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8876"
	}
	if c.Engine.Symbol == "" {
		c.Engine.Symbol = "SIM-USD"
	}
	if c.Engine.Mode == "" {
		c.Engine.Mode = "simulation"
	}
	if c.Engine.InitialBalance <= 0 {
		c.Engine.InitialBalance = 1_000_000
	}
	if c.Engine.Leverage <= 0 {
		c.Engine.Leverage = 10
	}
	if c.Engine.Gateway == "" {
		c.Engine.Gateway = "virtual"
	}
	if c.Engine.Currency == "" {
		c.Engine.Currency = "USD"
	}
	if c.Data.Root == "" {
		c.Data.Root = "data"
	}
	if c.Strategies.Path == "" {
		c.Strategies.Path = "configs/strategies.yaml"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "reports"
	}
}

func validate(c *Config) error {
	switch strings.ToLower(c.Engine.Mode) {
	case "simulation", "sim", "training", "train", "live":
	default:
		return fmt.Errorf("engine.mode 非法: %q", c.Engine.Mode)
	}
	if c.Engine.FeeRate < 0 {
		return fmt.Errorf("engine.fee_rate 不能为负")
	}
	if c.Engine.SlippageBps < 0 {
		return fmt.Errorf("engine.slippage_bps 不能为负")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level 非法: %q", c.Log.Level)
	}
	return nil
}
