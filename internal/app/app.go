package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"virtex/internal/agent"
	vxcfg "virtex/internal/config"
	"virtex/internal/engine"
	"virtex/internal/logger"
	"virtex/internal/market"
	"virtex/internal/store"
	vxhttp "virtex/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动控制面。
type App struct {
	cfg       *vxcfg.Config
	eng       *engine.Engine
	registry  *agent.Registry
	series    *market.Store
	archive   *store.Store
	server    *vxhttp.Server
	startedAt time.Time
	Summary   *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *vxcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.Log.Level)

	if err := os.MkdirAll(cfg.Data.Root, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	series, err := market.NewStore(cfg.Data.Root)
	if err != nil {
		return nil, fmt.Errorf("初始化序列缓存失败: %w", err)
	}
	archive, err := store.New(filepath.Join(cfg.Data.Root, "virtex.db"), cfg.Engine.Symbol)
	if err != nil {
		series.Close()
		return nil, fmt.Errorf("初始化归档库失败: %w", err)
	}

	mode, err := engine.ParseMode(cfg.Engine.Mode)
	if err != nil {
		series.Close()
		archive.Close()
		return nil, err
	}
	eng, err := engine.New(engine.Config{
		Symbol:         cfg.Engine.Symbol,
		Mode:           mode,
		InitialBalance: cfg.Engine.InitialBalance,
		Leverage:       cfg.Engine.Leverage,
		Gateway:        cfg.Engine.Gateway,
		Currency:       cfg.Engine.Currency,
		FeeRate:        cfg.Engine.FeeRate,
		SlippageBps:    cfg.Engine.SlippageBps,
	}, engine.WithRecorder(archive))
	if err != nil {
		series.Close()
		archive.Close()
		return nil, err
	}

	registry, err := agent.NewRegistry(cfg.Strategies.Path)
	if err != nil {
		// 策略预设缺失不拦住进程：控制面降级为无预设模式
		logger.Warnf("[app] 策略预设加载失败，按无预设启动: %v", err)
		registry = nil
	}
	if registry != nil {
		registry.Subscribe(func(snap agent.Snapshot) {
			logger.Infof("[app] 策略预设热更新: version=%d presets=%d", snap.Version, len(snap.Presets))
		})
	}

	server, err := vxhttp.NewServer(vxhttp.Config{
		Addr:      cfg.Server.Addr,
		Engine:    eng,
		Registry:  registry,
		Series:    series,
		Archive:   archive,
		ReportDir: cfg.Report.Dir,
	})
	if err != nil {
		series.Close()
		archive.Close()
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		eng:       eng,
		registry:  registry,
		series:    series,
		archive:   archive,
		server:    server,
		startedAt: time.Now(),
	}
	a.Summary = buildSummary(cfg, registry)
	a.restoreSeries(context.Background())
	return a, nil
}

// restoreSeries 尝试从本地缓存恢复上次注入的历史序列。
func (a *App) restoreSeries(ctx context.Context) {
	candles, err := a.series.LoadSeries(ctx, a.cfg.Engine.Symbol)
	if err != nil || len(candles) == 0 {
		return
	}
	if n, err := a.eng.IngestSeries(candles); err == nil {
		logger.Infof("[app] 从缓存恢复历史序列 %d 条", n)
	}
}

// Run 启动控制面并阻塞到 ctx 取消，退出前归档会话。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Run(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	err := group.Wait()
	a.Close()
	return err
}

// Close 停掉引擎、归档本次会话并释放存储句柄。
func (a *App) Close() {
	if a == nil {
		return
	}
	a.eng.Stop()
	a.archiveSession()
	if a.series != nil {
		if err := a.series.Close(); err != nil {
			logger.Warnf("[app] 关闭序列缓存失败: %v", err)
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logger.Warnf("[app] 关闭归档库失败: %v", err)
		}
	}
}

// archiveSession 把会话汇总、策略与记忆快照写入归档库；没有成交就跳过。
func (a *App) archiveSession() {
	if a.archive == nil {
		return
	}
	st := a.eng.Status()
	if st.Stats.Trades == 0 {
		return
	}
	err := a.archive.SaveSession(st.Config.Mode.String(), a.startedAt, st.Stats,
		st.Account.Equity, a.eng.Strategy(), st.Memory)
	if err != nil {
		logger.Warnf("[app] 会话归档失败: %v", err)
		return
	}
	logger.Infof("[app] 会话已归档 trades=%d realized=%.2f", st.Stats.Trades, st.Stats.RealizedPnL)
}

// Engine exposes the underlying engine instance (for testing/replay harnesses).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.eng
}
