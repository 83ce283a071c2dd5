package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtex/internal/agent"
	"virtex/internal/market"
)

// stubSource 固定随机源：正态恒 0，均匀恒 u，测试里不采样、不跳跃。
type stubSource struct{ u float64 }

func (s stubSource) NormFloat64() float64 { return 0 }
func (s stubSource) Float64() float64     { return s.u }

func candlesFrom(prices ...float64) []market.Candle {
	out := make([]market.Candle, 0, len(prices))
	for i, p := range prices {
		out = append(out, market.Candle{Time: int64(i+1) * 86_400_000, Close: p})
	}
	return out
}

// replayEngine 构造一台在 training 模式下逐条回放给定价格的引擎。
func replayEngine(t *testing.T, cfg Config, prices ...float64) *Engine {
	t.Helper()
	e, err := New(cfg, WithSource(stubSource{u: 0.9}))
	require.NoError(t, err)
	_, err = e.IngestSeries(candlesFrom(prices...))
	require.NoError(t, err)
	mode := ModeTraining
	e.Configure(Patch{Mode: &mode})
	return e
}

func TestConfigure(t *testing.T) {
	e, err := New(Config{}, WithSource(stubSource{u: 0.9}))
	require.NoError(t, err)

	t.Run("默认值", func(t *testing.T) {
		st := e.Status()
		assert.Equal(t, defaultSymbol, st.Config.Symbol)
		assert.Equal(t, ModeSimulation, st.Config.Mode)
		assert.Equal(t, float64(defaultBalance), st.Account.Balance)
		assert.Equal(t, float64(defaultLeverage), st.Account.Leverage)
	})

	t.Run("修改初始资金触发整账户重置", func(t *testing.T) {
		balance := 50_000.0
		e.Configure(Patch{InitialBalance: &balance})
		st := e.Status()
		assert.Equal(t, 50_000.0, st.Account.Balance)
		assert.Equal(t, 50_000.0, st.Account.Equity)
		assert.Equal(t, 50_000.0, st.Account.HighWaterMark)
		assert.Nil(t, st.Position)
		assert.Empty(t, st.Pending)
	})

	t.Run("上下文未就绪时切模式不动游标", func(t *testing.T) {
		mode := ModeTraining
		cfg := e.Configure(Patch{Mode: &mode})
		assert.Equal(t, ModeTraining, cfg.Mode)
		assert.Equal(t, 0, e.Status().Cursor)
	})
}

func TestMarginScenario(t *testing.T) {
	// 账户 1,000,000、杠杆 10：100 手 @500 → 保证金 5,000，权益不变
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 500
	}
	e := replayEngine(t, Config{InitialBalance: 1_000_000, Leverage: 10}, prices...)

	e.Tick()
	_, err := e.PlaceOrder(SideLong, OrderMarket, 100)
	require.NoError(t, err)
	e.Tick()

	st := e.Status()
	require.NotNil(t, st.Position)
	assert.InDelta(t, 5_000, st.Position.MarginUsed, 1e-9)
	assert.InDelta(t, 5_000, st.Account.MarginUsed, 1e-9)
	assert.InDelta(t, 1_000_000, st.Account.Equity, 1e-9)
	assert.Equal(t, 1, st.TradeCount)
	assert.Empty(t, st.Pending)
}

func TestLedgerInvariants(t *testing.T) {
	e := replayEngine(t, Config{InitialBalance: 1_000_000, Leverage: 10},
		100, 100, 105, 95, 110, 120, 90, 100)

	e.Tick()
	_, err := e.PlaceOrder(SideLong, OrderMarket, 50)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		e.Tick()
		st := e.Status()
		if st.Position == nil {
			assert.InDelta(t, st.Account.Balance, st.Account.Equity, 1e-9)
			continue
		}
		// equity = balance + 浮动盈亏；margin = price·qty/leverage
		assert.InDelta(t, st.Account.Balance+st.Position.UnrealizedPnL, st.Account.Equity, 1e-9)
		assert.InDelta(t, st.Tick.Price*st.Position.Quantity/10, st.Position.MarginUsed, 1e-9)
		assert.GreaterOrEqual(t, st.Account.HighWaterMark, st.Account.Equity)
	}
}

func TestHighWaterMarkMonotone(t *testing.T) {
	e := replayEngine(t, Config{InitialBalance: 100_000, Leverage: 10},
		100, 100, 120, 80, 90, 130, 70)

	e.Tick()
	_, err := e.PlaceOrder(SideLong, OrderMarket, 100)
	require.NoError(t, err)

	prev := 0.0
	for i := 0; i < 6; i++ {
		e.Tick()
		hwm := e.Status().Account.HighWaterMark
		assert.GreaterOrEqual(t, hwm, prev)
		prev = hwm
	}
}

func TestLiquidation(t *testing.T) {
	// 10,000 本金、杠杆 10，1,000 手 @100 → 保证金 10,000 ≥ 权益，下个 tick 即强平
	e := replayEngine(t, Config{InitialBalance: 10_000, Leverage: 10},
		100, 100, 100, 100)

	e.Tick()
	_, err := e.PlaceOrder(SideLong, OrderMarket, 1_000)
	require.NoError(t, err)
	e.Tick() // 成交
	e.Tick() // 风控触发

	st := e.Status()
	assert.Nil(t, st.Position)
	assert.False(t, st.Running)
	assert.InDelta(t, 10_000, st.Account.Balance, 1e-9) // balance = 清算前权益
	assert.Zero(t, st.Account.MarginUsed)
	require.NotNil(t, st.Alert)
	assert.Equal(t, AlertLiquidation, st.Alert.Kind)

	t.Run("告警未确认时拒绝启动", func(t *testing.T) {
		assert.Error(t, e.Start())
	})

	t.Run("确认后可以再启动", func(t *testing.T) {
		e.ClearAlert()
		require.NoError(t, e.Start())
		e.Stop()
	})
}

func TestNoLiquidationWhenFlat(t *testing.T) {
	e := replayEngine(t, Config{InitialBalance: 10_000, Leverage: 10}, 100, 100, 100)
	e.Tick()
	e.Tick()
	st := e.Status()
	assert.Nil(t, st.Alert)
	assert.Zero(t, st.Account.MarginUsed)
}

func TestRobotDrawdownHalt(t *testing.T) {
	// 激活权益 1,000,000，权益跌到 940,000（6%）必须在撮合前熔断
	e := replayEngine(t, Config{InitialBalance: 1_000_000, Leverage: 10},
		500, 500, 440, 440)

	e.Tick()
	_, err := e.PlaceOrder(SideLong, OrderMarket, 1_000)
	require.NoError(t, err)
	e.Tick() // 成交 @500，权益仍 1,000,000

	require.NoError(t, e.SetStrategy(agent.ActiveStrategy{ID: agent.StrategySentinel, Name: "Sentinel"}))
	require.NoError(t, e.SetRobot(true))

	// 熔断必须短路撮合：这张挂单不能成交
	_, err = e.PlaceOrder(SideShort, OrderMarket, 1_000)
	require.NoError(t, err)
	e.Tick() // 价格 440 → 权益 940,000，回撤 6%

	st := e.Status()
	assert.False(t, st.Robot)
	assert.False(t, st.Running)
	require.NotNil(t, st.Alert)
	assert.Equal(t, AlertRobotAnomaly, st.Alert.Kind)
	assert.Len(t, st.Pending, 1)
	require.NotNil(t, st.Position) // 熔断不平仓，只停机
	assert.Equal(t, 940_000.0, st.Account.Equity)
}

func TestRunNumericalSimulation(t *testing.T) {
	t.Run("30个递增价格：路径首元素等于最后历史价", func(t *testing.T) {
		prices := make([]float64, 30)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		e, err := New(Config{Mode: ModeSimulation}, WithSource(stubSource{u: 0.9}))
		require.NoError(t, err)
		_, err = e.IngestSeries(candlesFrom(prices...))
		require.NoError(t, err)

		res := e.RunNumericalSimulation(ModeSimulation, 0)
		require.True(t, res.Success, res.Error)
		require.NotNil(t, res.Metrics)
		assert.True(t, res.Metrics.Ready)

		path := e.ContextPath(ModeSimulation)
		require.NotEmpty(t, path)
		assert.Equal(t, prices[len(prices)-1], path[0].Price)
		assert.Equal(t, market.OriginSynthetic, path[0].Origin)
		assert.Len(t, path, simulationSteps+1)

		// 游标回到路径起点，第一个 tick 就是锚点价
		e.Tick()
		assert.Equal(t, prices[len(prices)-1], e.Status().Tick.Price)
	})

	t.Run("历史不足20点返回失败且不动状态", func(t *testing.T) {
		e, err := New(Config{}, WithSource(stubSource{u: 0.9}))
		require.NoError(t, err)
		_, err = e.IngestSeries(candlesFrom(100, 101, 102, 103, 104))
		require.NoError(t, err)

		res := e.RunNumericalSimulation(ModeSimulation, 0)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
		assert.False(t, e.ContextMetrics(ModeSimulation).Ready)
	})

	t.Run("training切分并生成样本外路径", func(t *testing.T) {
		prices := make([]float64, 50)
		for i := range prices {
			prices[i] = 100 + float64(i)*0.5
		}
		e, err := New(Config{Mode: ModeTraining}, WithSource(stubSource{u: 0.9}))
		require.NoError(t, err)
		_, err = e.IngestSeries(candlesFrom(prices...))
		require.NoError(t, err)

		res := e.RunNumericalSimulation(ModeTraining, 80)
		require.True(t, res.Success, res.Error)
		path := e.ContextPath(ModeTraining)
		assert.Len(t, path, 10) // 50 × 20%
		assert.Equal(t, market.OriginTraining, path[0].Origin)

		// 游标对齐到样本外起点，回放 tick 带上预测价
		assert.Equal(t, 40, e.Status().Cursor)
		e.Tick()
		st := e.Status()
		assert.Equal(t, prices[40], st.Tick.Price)
		require.NotNil(t, st.Tick.Predicted)
		assert.Equal(t, path[0].Price, *st.Tick.Predicted)
	})

	t.Run("live模式不接受数值模拟", func(t *testing.T) {
		e, err := New(Config{}, WithSource(stubSource{u: 0.9}))
		require.NoError(t, err)
		res := e.RunNumericalSimulation(ModeLive, 0)
		assert.False(t, res.Success)
	})
}

func TestSimulationPathExtension(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 200 + float64(i)
	}
	e, err := New(Config{Mode: ModeSimulation}, WithSource(stubSource{u: 0.9}))
	require.NoError(t, err)
	_, err = e.IngestSeries(candlesFrom(prices...))
	require.NoError(t, err)
	require.True(t, e.RunNumericalSimulation(ModeSimulation, 0).Success)

	// 消费越过缓冲末尾时路径应被就地追加，而不是停机
	for i := 0; i < simulationSteps+10; i++ {
		e.Tick()
	}
	st := e.Status()
	assert.Greater(t, st.Tick.Price, 0.0)
	assert.Equal(t, simulationSteps+10, st.Cursor)
	assert.Greater(t, len(e.ContextPath(ModeSimulation)), simulationSteps+1)
}

func TestTrainingExhaustionStops(t *testing.T) {
	e := replayEngine(t, Config{}, 100, 101, 102)
	for i := 0; i < 5; i++ {
		e.Tick()
	}
	// 回放耗尽后最后一个 tick 停在末尾价
	assert.Equal(t, 102.0, e.Status().Tick.Price)
}

func TestLiveTicksJitter(t *testing.T) {
	mode := ModeLive
	e, err := New(Config{Mode: ModeLive}, WithSource(stubSource{u: 0.5}))
	require.NoError(t, err)
	e.Configure(Patch{Mode: &mode})
	e.Tick()
	st := e.Status()
	assert.Equal(t, market.OriginLive, st.Tick.Origin)
	assert.Greater(t, st.Tick.Price, 0.0)
}

func TestPlaceOrderValidation(t *testing.T) {
	e, err := New(Config{}, WithSource(stubSource{u: 0.9}))
	require.NoError(t, err)

	_, err = e.PlaceOrder(SideLong, OrderMarket, 0)
	assert.Error(t, err)
	_, err = e.PlaceOrder(SideLong, OrderMarket, -1)
	assert.Error(t, err)
	_, err = e.PlaceOrder(Side(9), OrderMarket, 1)
	assert.Error(t, err)
	_, err = e.PlaceOrder(SideLong, OrderKind("stop"), 1)
	assert.Error(t, err)

	o, err := e.PlaceOrder(SideShort, OrderLimit, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, OrderPending, o.Status)
}

func TestSetRobotRequiresStrategy(t *testing.T) {
	e, err := New(Config{}, WithSource(stubSource{u: 0.9}))
	require.NoError(t, err)
	assert.Error(t, e.SetRobot(true))
	require.NoError(t, e.SetStrategy(agent.ActiveStrategy{ID: agent.StrategyVector, Name: "Vector"}))
	require.NoError(t, e.SetRobot(true))
	assert.True(t, e.Status().Robot)
}

func TestStartIdempotent(t *testing.T) {
	e := replayEngine(t, Config{}, 100, 101, 102, 103)
	require.NoError(t, e.SetSpeed(1))
	require.NoError(t, e.Start())
	require.NoError(t, e.Start()) // 幂等
	assert.True(t, e.Status().Running)
	e.Stop()
	e.Stop() // 重复停止无副作用
	assert.False(t, e.Status().Running)
}

func TestSetSpeed(t *testing.T) {
	e, err := New(Config{}, WithSource(stubSource{u: 0.9}))
	require.NoError(t, err)
	assert.Error(t, e.SetSpeed(0))
	assert.Error(t, e.SetSpeed(-2))
	require.NoError(t, e.SetSpeed(100))
	assert.Equal(t, minTickInterval, e.interval())
	require.NoError(t, e.SetSpeed(2))
	assert.Equal(t, "500ms", e.interval().String())
}

func TestStatusMemoryOnlyWhileHarvesterActive(t *testing.T) {
	e := replayEngine(t, Config{}, 100, 101, 102, 103)
	require.NoError(t, e.SetStrategy(agent.ActiveStrategy{ID: agent.StrategyHarvester, Name: "Harvester"}))

	assert.Nil(t, e.Status().Memory)
	require.NoError(t, e.SetRobot(true))
	assert.NotNil(t, e.Status().Memory)
	require.NoError(t, e.SetRobot(false))
	assert.Nil(t, e.Status().Memory)
}
