package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"virtex/internal/agent"
	"virtex/internal/logger"
	"virtex/internal/market"
	"virtex/internal/stochastic"
)

const (
	defaultBalance  = 1_000_000
	defaultLeverage = 10
	defaultSymbol   = "SIM-USD"
	recentWindow    = 120 // 留给策略做指标的收盘价窗口
	equityCapacity  = 500
	equitySampleP   = 0.2
)

// Config 是引擎的完整配置；只能通过 Configure 增量修改。
type Config struct {
	Symbol         string  `json:"symbol" mapstructure:"symbol"`
	Mode           Mode    `json:"mode" mapstructure:"mode"`
	InitialBalance float64 `json:"initial_balance" mapstructure:"initial_balance"`
	Leverage       float64 `json:"leverage" mapstructure:"leverage"`
	Gateway        string  `json:"gateway" mapstructure:"gateway"`
	Currency       string  `json:"currency" mapstructure:"currency"`
	FeeRate        float64 `json:"fee_rate" mapstructure:"fee_rate"`
	SlippageBps    float64 `json:"slippage_bps" mapstructure:"slippage_bps"`
}

// Patch 是 Configure 的增量输入，nil 字段表示不变。
type Patch struct {
	Symbol         *string  `json:"symbol,omitempty"`
	Mode           *Mode    `json:"mode,omitempty"`
	InitialBalance *float64 `json:"initial_balance,omitempty"`
	Leverage       *float64 `json:"leverage,omitempty"`
	Gateway        *string  `json:"gateway,omitempty"`
	Currency       *string  `json:"currency,omitempty"`
	FeeRate        *float64 `json:"fee_rate,omitempty"`
	SlippageBps    *float64 `json:"slippage_bps,omitempty"`
}

// Recorder 是可选的持久化挂钩。写失败只告警，绝不中断 tick。
type Recorder interface {
	RecordTrade(t Trade) error
	RecordEquity(p market.EquityPoint) error
	RecordAlert(a Alert) error
}

// Engine 是单账户、单品种的虚拟交易所。调度协程是唯一写者，
// 外部读取一律走 Status 快照。
type Engine struct {
	mu sync.Mutex

	cfg      Config
	account  Account
	position *Position
	pending  []Order
	trades   []Trade

	history []market.Tick
	cursor  int

	contexts map[Mode]*SimulationContext

	current market.Tick
	seq     int
	recent  []float64

	running bool
	stop    chan struct{}
	speed   float64

	robot           bool
	robotBaseEquity float64
	strategy        agent.ActiveStrategy
	runner          agent.Agent

	alert *Alert

	equityRing *market.EquityRing
	stats      SessionStats

	src      stochastic.Source
	recorder Recorder
	nowFn    func() time.Time
}

// Option 注入随机源、时钟、持久化等依赖，方便测试固定行为。
type Option func(*Engine)

func WithSource(src stochastic.Source) Option {
	return func(e *Engine) { e.src = src }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.nowFn = now }
}

// New 构造一个调用方持有的引擎实例，不存在任何进程级单例。
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Symbol == "" {
		cfg.Symbol = defaultSymbol
	}
	if !cfg.Mode.Valid() {
		cfg.Mode = ModeSimulation
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = defaultBalance
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = defaultLeverage
	}
	if cfg.FeeRate < 0 || cfg.SlippageBps < 0 {
		return nil, fmt.Errorf("fee/slippage 不能为负")
	}
	e := &Engine{
		cfg:        cfg,
		contexts:   make(map[Mode]*SimulationContext),
		speed:      1,
		equityRing: market.NewEquityRing(equityCapacity),
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.src == nil {
		e.src = stochastic.NewSource(0)
	}
	e.resetAccountLocked()
	return e, nil
}

// Configure 合并增量配置。新的 InitialBalance 触发整账户重置，
// 新的 Mode 触发上下文再水合。
func (e *Engine) Configure(p Patch) Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.Symbol != nil && *p.Symbol != "" {
		e.cfg.Symbol = *p.Symbol
	}
	if p.Gateway != nil {
		e.cfg.Gateway = *p.Gateway
	}
	if p.Currency != nil {
		e.cfg.Currency = *p.Currency
	}
	if p.Leverage != nil && *p.Leverage > 0 {
		e.cfg.Leverage = *p.Leverage
		e.account.Leverage = *p.Leverage
	}
	if p.FeeRate != nil && *p.FeeRate >= 0 {
		e.cfg.FeeRate = *p.FeeRate
	}
	if p.SlippageBps != nil && *p.SlippageBps >= 0 {
		e.cfg.SlippageBps = *p.SlippageBps
	}
	if p.InitialBalance != nil && *p.InitialBalance > 0 && *p.InitialBalance != e.cfg.InitialBalance {
		e.cfg.InitialBalance = *p.InitialBalance
		e.resetAccountLocked()
		logger.Infof("[engine] 初始资金变更为 %.2f，账户已重置", *p.InitialBalance)
	}
	if p.Mode != nil && p.Mode.Valid() && *p.Mode != e.cfg.Mode {
		e.cfg.Mode = *p.Mode
		e.rehydrateLocked(*p.Mode)
	}
	return e.cfg
}

// IngestSeries 用上游产出的历史序列整体替换回放缓冲，游标归零。
// 引擎不会再推导或改写这份输入。
func (e *Engine) IngestSeries(candles []market.Candle) (int, error) {
	normalized := market.NormalizeSeries(candles)
	if len(normalized) == 0 {
		return 0, fmt.Errorf("序列为空或全部无效")
	}
	ticks := market.ToTicks(normalized, market.OriginReplay)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = ticks
	e.cursor = 0
	logger.Infof("[engine] 注入历史序列 %d 条 (%s)", len(ticks), e.cfg.Symbol)
	return len(ticks), nil
}

// PlaceOrder 创建一张 pending 订单，等待下一个 tick 撮合。
func (e *Engine) PlaceOrder(side Side, kind OrderKind, qty float64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeOrderLocked(side, kind, qty)
}

func (e *Engine) placeOrderLocked(side Side, kind OrderKind, qty float64) (Order, error) {
	if side != SideLong && side != SideShort {
		return Order{}, fmt.Errorf("方向非法")
	}
	if kind != OrderMarket && kind != OrderLimit {
		return Order{}, fmt.Errorf("订单类型非法: %q", kind)
	}
	if qty <= 0 {
		return Order{}, fmt.Errorf("数量必须为正")
	}
	o := Order{
		ID:        uuid.NewString(),
		Symbol:    e.cfg.Symbol,
		Kind:      kind,
		Side:      side,
		Price:     e.current.Price,
		Quantity:  qty,
		CreatedAt: e.nowFn(),
		Status:    OrderPending,
	}
	e.pending = append(e.pending, o)
	return o, nil
}

// SetStrategy 切换当前策略；按 ID 构造实例，记忆随实例生灭。
func (e *Engine) SetStrategy(s agent.ActiveStrategy) error {
	runner, err := agent.New(s)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = s
	e.runner = runner
	logger.Infof("[engine] 策略切换为 %s (%s)", s.Name, s.ID)
	return nil
}

// SetRobot 启停自动交易。激活时记录基准权益，回撤告警以它为锚。
func (e *Engine) SetRobot(active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if active && e.runner == nil {
		return fmt.Errorf("未选择策略，无法启用自动交易")
	}
	if active && !e.robot {
		e.robotBaseEquity = e.account.Equity
		logger.Infof("[engine] 自动交易启用，基准权益 %.2f", e.robotBaseEquity)
	}
	if !active {
		e.robotBaseEquity = 0
	}
	e.robot = active
	return nil
}

// ClearAlert 显式确认并清除当前告警。
func (e *Engine) ClearAlert() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.alert != nil {
		logger.Infof("[engine] 告警已确认: %s", e.alert.Kind)
	}
	e.alert = nil
}

// Status 返回只读快照；切片与指针全部拷贝。
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Config:      e.cfg,
		Running:     e.running,
		Speed:       e.speed,
		Robot:       e.robot,
		Tick:        e.current,
		Account:     e.account,
		Pending:     append([]Order(nil), e.pending...),
		TradeCount:  len(e.trades),
		Stats:       e.stats,
		EquityCurve: e.equityRing.Len(),
		Cursor:      e.cursor,
	}
	if e.position != nil {
		cp := *e.position
		st.Position = &cp
	}
	if e.alert != nil {
		cp := *e.alert
		st.Alert = &cp
	}
	if e.runner != nil {
		st.StrategyName = e.strategy.Name
		// 记忆只在 harvester 激活时透出
		if e.robot {
			if mc, ok := e.runner.(agent.MemoryCarrier); ok {
				st.Memory = mc.MemorySnapshot()
			}
		}
	}
	return st
}

// Strategy 返回当前策略配置的拷贝。
func (e *Engine) Strategy() agent.ActiveStrategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.strategy
	if len(e.strategy.Weights) > 0 {
		s.Weights = make(map[string]float64, len(e.strategy.Weights))
		for k, v := range e.strategy.Weights {
			s.Weights[k] = v
		}
	}
	return s
}

// Trades 返回成交历史的拷贝（只增日志）。
func (e *Engine) Trades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Trade(nil), e.trades...)
}

// EquityCurve 返回有界权益采样的拷贝。
func (e *Engine) EquityCurve() []market.EquityPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equityRing.Points()
}

// History 返回历史回放缓冲的拷贝。
func (e *Engine) History() []market.Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]market.Tick(nil), e.history...)
}

// ContextPath 返回指定模式上下文的生成路径拷贝。
func (e *Engine) ContextPath(mode Mode) []market.Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, ok := e.contexts[mode]
	if !ok || !ctx.Ready {
		return nil
	}
	return append([]market.Tick(nil), ctx.Path...)
}

// ContextMetrics 返回指定模式上下文的诊断指标；未就绪时只有 Ready=false。
func (e *Engine) ContextMetrics(mode Mode) ContextMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, ok := e.contexts[mode]
	if !ok || !ctx.Ready {
		return ContextMetrics{Ready: false, Mode: mode.String()}
	}
	return contextMetrics(mode, ctx)
}

func contextMetrics(mode Mode, ctx *SimulationContext) ContextMetrics {
	return ContextMetrics{
		Ready:         true,
		Mode:          mode.String(),
		Regime:        string(ctx.Params.Regime),
		Weights:       ctx.Params.Weights,
		Confidence:    ctx.Params.Confidence,
		Vol:           ctx.Params.Vol,
		Kurtosis:      ctx.Params.Kurtosis,
		AnnualDrift:   ctx.Params.AnnualDrift,
		AnnualVol:     ctx.Params.AnnualVol,
		JumpIntensity: ctx.Params.JumpIntensity,
		SampleSize:    ctx.Params.SampleSize,
		PathLen:       len(ctx.Path),
		StartTime:     ctx.StartTime,
	}
}

func (e *Engine) resetAccountLocked() {
	e.account = Account{
		Balance:       e.cfg.InitialBalance,
		Equity:        e.cfg.InitialBalance,
		Leverage:      e.cfg.Leverage,
		HighWaterMark: e.cfg.InitialBalance,
	}
	e.position = nil
	e.pending = nil
	e.trades = nil
	e.stats = SessionStats{}
	e.equityRing.Reset()
	e.robotBaseEquity = 0
	if e.robot {
		e.robotBaseEquity = e.account.Equity
	}
}
