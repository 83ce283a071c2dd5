package app

import (
	"fmt"
	"sort"
	"strings"

	"virtex/internal/agent"
	vxcfg "virtex/internal/config"
)

type StartupSummary struct {
	Engine     EngineSummary
	Server     ServerSummary
	Strategies []StrategySummary
}

type EngineSummary struct {
	Symbol         string
	Mode           string
	InitialBalance float64
	Leverage       float64
	Currency       string
	FeeRate        float64
	SlippageBps    float64
}

type ServerSummary struct {
	Addr      string
	DataRoot  string
	ReportDir string
}

type StrategySummary struct {
	ID          string
	Name        string
	Description string
}

func buildSummary(cfg *vxcfg.Config, registry *agent.Registry) *StartupSummary {
	s := &StartupSummary{
		Engine: EngineSummary{
			Symbol:         cfg.Engine.Symbol,
			Mode:           cfg.Engine.Mode,
			InitialBalance: cfg.Engine.InitialBalance,
			Leverage:       cfg.Engine.Leverage,
			Currency:       cfg.Engine.Currency,
			FeeRate:        cfg.Engine.FeeRate,
			SlippageBps:    cfg.Engine.SlippageBps,
		},
		Server: ServerSummary{
			Addr:      cfg.Server.Addr,
			DataRoot:  cfg.Data.Root,
			ReportDir: cfg.Report.Dir,
		},
	}
	if registry != nil {
		snap := registry.Snapshot()
		for _, p := range snap.Presets {
			s.Strategies = append(s.Strategies, StrategySummary{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
			})
		}
		sort.Slice(s.Strategies, func(i, j int) bool { return s.Strategies[i].ID < s.Strategies[j].ID })
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[引擎 (ENGINE)]")
	fmt.Printf("  交易对: %s\n", s.Engine.Symbol)
	fmt.Printf("  模式: %s\n", s.Engine.Mode)
	fmt.Printf("  初始资金: %.2f %s\n", s.Engine.InitialBalance, s.Engine.Currency)
	fmt.Printf("  杠杆: %.0fx\n", s.Engine.Leverage)
	if s.Engine.FeeRate > 0 || s.Engine.SlippageBps > 0 {
		fmt.Printf("  费率: %.4f / 滑点: %.1f bps\n", s.Engine.FeeRate, s.Engine.SlippageBps)
	}
	fmt.Println()

	fmt.Println("[控制面 (CONTROL PLANE)]")
	fmt.Printf("  监听地址: %s\n", s.Server.Addr)
	fmt.Printf("  数据目录: %s\n", s.Server.DataRoot)
	fmt.Printf("  报告目录: %s\n", s.Server.ReportDir)
	fmt.Println()

	fmt.Println("[策略预设 (STRATEGY PRESETS)]")
	if len(s.Strategies) == 0 {
		fmt.Println("  (无预设)")
	} else {
		for _, st := range s.Strategies {
			fmt.Printf("  > %s (%s)\n", st.Name, st.ID)
			if st.Description != "" {
				fmt.Printf("    %s\n", st.Description)
			}
		}
	}
	fmt.Println(strings.Repeat("=", 80))
}
