package engine

import (
	"fmt"
	"time"

	"virtex/internal/logger"
	"virtex/internal/market"
	"virtex/internal/stochastic"
)

const (
	simulationSteps  = 365
	defaultSplitPct  = 80
	defaultStepMilli = int64(24 * time.Hour / time.Millisecond)
)

// RunNumericalSimulation 为指定模式（0 表示当前模式）拟合并生成上下文。
// 历史不足 20 点时返回失败结果，不改动任何状态。
func (e *Engine) RunNumericalSimulation(mode Mode, splitPct float64) SimulationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mode == 0 {
		mode = e.cfg.Mode
	}
	if mode == ModeLive {
		return SimulationResult{Success: false, Mode: mode.String(), Error: "live 模式不需要数值模拟"}
	}
	if splitPct <= 0 {
		splitPct = defaultSplitPct
	}

	var (
		ctx *SimulationContext
		err error
	)
	switch mode {
	case ModeSimulation:
		ctx, err = e.buildSimulationContext()
	case ModeTraining:
		ctx, err = e.buildTrainingContext(splitPct)
	default:
		err = fmt.Errorf("未知模式: %s", mode)
	}
	if err != nil {
		logger.Warnf("[engine] 数值模拟失败 mode=%s: %v", mode, err)
		return SimulationResult{Success: false, Mode: mode.String(), Error: err.Error()}
	}

	e.contexts[mode] = ctx
	if e.cfg.Mode == mode {
		e.rehydrateLocked(mode)
	}
	m := contextMetrics(mode, ctx)
	logger.Infof("[engine] 数值模拟完成 mode=%s regime=%s steps=%d confidence=%.2f",
		mode, ctx.Params.Regime, len(ctx.Path), ctx.Params.Confidence)
	return SimulationResult{Success: true, Mode: mode.String(), Metrics: &m}
}

// buildSimulationContext 在全部历史上拟合，从最后一个历史点之后
// 生成约一年的合成路径；路径首元素锚定为最后的历史价。
func (e *Engine) buildSimulationContext() (*SimulationContext, error) {
	closes := tickPrices(e.history)
	params, err := stochastic.Calibrate(closes)
	if err != nil {
		return nil, err
	}
	last := e.history[len(e.history)-1]
	step := e.historyStepLocked()
	gen := stochastic.NewGenerator(params, last.Price, e.src)

	start := last.Time.Add(time.Duration(step) * time.Millisecond)
	path := make([]market.Tick, 0, simulationSteps+1)
	path = append(path, market.Tick{Time: start, Price: last.Price, Origin: market.OriginSynthetic})
	for i, px := range gen.Extend(simulationSteps) {
		path = append(path, market.Tick{
			Time:   start.Add(time.Duration(int64(i+1)*step) * time.Millisecond),
			Price:  px,
			Origin: market.OriginSynthetic,
		})
	}
	return &SimulationContext{
		Ready:     true,
		Params:    params,
		Path:      path,
		StartTime: start,
		gen:       gen,
	}, nil
}

// buildTrainingContext 按比例切分历史，在样本内拟合，
// 对样本外区段逐点生成预测路径；上下文起点记为切分时间。
func (e *Engine) buildTrainingContext(splitPct float64) (*SimulationContext, error) {
	n := len(e.history)
	if n == 0 {
		return nil, stochastic.ErrInsufficientHistory
	}
	idx := int(float64(n) * splitPct / 100)
	if idx < 1 || idx >= n {
		return nil, fmt.Errorf("split percent %.1f 切不出样本外区段", splitPct)
	}
	train, test := e.history[:idx], e.history[idx:]
	params, err := stochastic.Calibrate(tickPrices(train))
	if err != nil {
		return nil, err
	}
	gen := stochastic.NewGenerator(params, train[len(train)-1].Price, e.src)
	path := make([]market.Tick, 0, len(test))
	for i, px := range gen.Extend(len(test)) {
		path = append(path, market.Tick{
			Time:   test[i].Time,
			Price:  px,
			Origin: market.OriginTraining,
		})
	}
	return &SimulationContext{
		Ready:     true,
		Params:    params,
		Path:      path,
		StartTime: test[0].Time,
		StartIdx:  idx,
		gen:       gen,
	}, nil
}

// rehydrateLocked 把游标对齐到新模式的上下文。
// 上下文未就绪时保持原缓冲与游标不动，宁可停留在旧状态。
func (e *Engine) rehydrateLocked(mode Mode) {
	switch mode {
	case ModeSimulation:
		ctx, ok := e.contexts[ModeSimulation]
		if !ok || !ctx.Ready {
			logger.Warnf("[engine] simulation 上下文未就绪，游标保持不变")
			return
		}
		e.cursor = 0
	case ModeTraining:
		ctx, ok := e.contexts[ModeTraining]
		if !ok || !ctx.Ready {
			logger.Warnf("[engine] training 上下文未就绪，游标保持不变")
			return
		}
		e.cursor = len(e.history)
		for i, tk := range e.history {
			if !tk.Time.Before(ctx.StartTime) {
				e.cursor = i
				break
			}
		}
	case ModeLive:
		// live 丢弃缓冲游标，自由走动
		e.cursor = 0
	}
	logger.Infof("[engine] 模式切换为 %s，cursor=%d", mode, e.cursor)
}

// advanceLocked 按当前模式产出下一个 tick；返回 false 表示数据耗尽。
func (e *Engine) advanceLocked() (market.Tick, bool) {
	switch e.cfg.Mode {
	case ModeSimulation:
		ctx, ok := e.contexts[ModeSimulation]
		if !ok || !ctx.Ready || len(ctx.Path) == 0 {
			return market.Tick{}, false
		}
		if e.cursor >= len(ctx.Path) {
			e.extendContextLocked(ctx)
		}
		tk := ctx.Path[e.cursor]
		e.cursor++
		return tk, true

	case ModeTraining:
		if e.cursor >= len(e.history) {
			return market.Tick{}, false
		}
		tk := e.history[e.cursor].WithOrigin(market.OriginTraining)
		if ctx, ok := e.contexts[ModeTraining]; ok && ctx.Ready {
			if i := e.cursor - ctx.StartIdx; i >= 0 && i < len(ctx.Path) {
				p := ctx.Path[i].Price
				tk.Predicted = &p
			}
		}
		e.cursor++
		return tk, true

	case ModeLive:
		return e.liveTickLocked(), true
	}
	return market.Tick{}, false
}

// extendContextLocked 在消费越过生成缓冲末尾时就地追加一段路径。
func (e *Engine) extendContextLocked(ctx *SimulationContext) {
	if ctx.gen == nil || len(ctx.Path) == 0 {
		return
	}
	step := e.historyStepLocked()
	lastTime := ctx.Path[len(ctx.Path)-1].Time
	for i, px := range ctx.gen.Extend(simulationSteps) {
		ctx.Path = append(ctx.Path, market.Tick{
			Time:   lastTime.Add(time.Duration(int64(i+1)*step) * time.Millisecond),
			Price:  px,
			Origin: market.OriginSynthetic,
		})
	}
	logger.Debugf("[engine] 合成路径追加 %d 步，总长 %d", simulationSteps, len(ctx.Path))
}

// liveTickLocked 产出占位的实时 tick：围绕上一价 ±0.1% 随机游走。
func (e *Engine) liveTickLocked() market.Tick {
	price := e.current.Price
	if price <= 0 {
		if n := len(e.history); n > 0 {
			price = e.history[n-1].Price
		} else {
			price = 100
		}
	}
	price *= 1 + (e.src.Float64()*2-1)*0.001
	return market.Tick{
		Time:   e.nowFn(),
		Price:  price,
		Volume: e.src.Float64() * 1000,
		Origin: market.OriginLive,
	}
}

// historyStepLocked 推断历史序列的时间步长（毫秒），缺省按日线。
func (e *Engine) historyStepLocked() int64 {
	n := len(e.history)
	if n < 2 {
		return defaultStepMilli
	}
	step := e.history[n-1].Time.Sub(e.history[n-2].Time).Milliseconds()
	if step <= 0 {
		return defaultStepMilli
	}
	return step
}

func tickPrices(ticks []market.Tick) []float64 {
	out := make([]float64, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, t.Price)
	}
	return out
}
