package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"virtex/internal/engine"
	"virtex/internal/market"
)

const (
	colorBackground = "#060c1b"
	colorText       = "#eceff4"
	colorTextDim    = "#9ca3af"
	colorReplay     = "#3b82f6"
	colorSynthetic  = "#fbbf24"
	colorTraining   = "#f472b6"
	colorLive       = "#34d399"
	colorEquity     = "#22d3ee"
	colorDrawdown   = "#f87171"

	chartWidthPx  = 1400
	chartHeightPx = 420
)

// Input 是渲染一份会话报告所需的全部数据切片。
type Input struct {
	Symbol  string
	Mode    string
	History []market.Tick
	Path    []market.Tick
	Equity  []market.EquityPoint
	Trades  []engine.Trade
	Stats   engine.SessionStats
	Metrics engine.ContextMetrics
}

// Render 把价格路径、资金曲线和回撤画成独立的 HTML 页面。
func Render(w io.Writer, in Input) error {
	if in.Symbol == "" {
		return fmt.Errorf("report 需要 symbol")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("%s session report", strings.ToUpper(in.Symbol))

	page.AddCharts(buildPriceChart(in))
	if len(in.Equity) > 0 {
		page.AddCharts(buildEquityChart(in), buildDrawdownChart(in))
	}
	return page.Render(w)
}

// WriteFile 渲染报告并写到 path（目录自动创建）。
func WriteFile(path string, in Input) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Render(f, in)
}

func baseInit() opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", chartHeightPx),
		BackgroundColor: colorBackground,
	}
}

// buildPriceChart 按来源分色画历史与生成路径，一眼看出哪段是合成的。
func buildPriceChart(in Input) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(baseInit()),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s 价格路径 (%s)", strings.ToUpper(in.Symbol), in.Mode),
			Subtitle:      metricsSubtitle(in.Metrics),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextDim},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorText}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
		}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	all := make([]market.Tick, 0, len(in.History)+len(in.Path))
	all = append(all, in.History...)
	all = append(all, in.Path...)
	line.SetXAxis(tickAxis(all))

	for _, group := range []struct {
		origin market.TickOrigin
		label  string
		color  string
	}{
		{market.OriginReplay, "历史回放", colorReplay},
		{market.OriginSynthetic, "合成路径", colorSynthetic},
		{market.OriginTraining, "样本外预测", colorTraining},
		{market.OriginLive, "实时", colorLive},
	} {
		data := originSeries(all, group.origin)
		if !hasValues(data) {
			continue
		}
		line.AddSeries(group.label, data,
			charts.WithLineStyleOpts(opts.LineStyle{Color: group.color, Width: 2}))
	}
	return line
}

func buildEquityChart(in Input) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(baseInit()),
		charts.WithTitleOpts(opts.Title{
			Title:         "资金曲线",
			Subtitle:      statsSubtitle(in.Stats),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorText},
			SubtitleStyle: &opts.TextStyle{Color: colorTextDim},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true), AxisLabel: &opts.AxisLabel{Color: colorTextDim}}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	x := make([]string, len(in.Equity))
	data := make([]opts.LineData, len(in.Equity))
	for i, p := range in.Equity {
		x[i] = p.Time.UTC().Format("01-02 15:04:05")
		data[i] = opts.LineData{Value: p.Equity}
	}
	line.SetXAxis(x)
	line.AddSeries("Equity", data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	return line
}

func buildDrawdownChart(in Input) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(baseInit()),
		charts.WithTitleOpts(opts.Title{
			Title:      "回撤",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorText},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{AxisLabel: &opts.AxisLabel{Color: colorTextDim, Formatter: "{value} %"}}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	x := make([]string, len(in.Equity))
	data := make([]opts.LineData, len(in.Equity))
	peak := 0.0
	for i, p := range in.Equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - p.Equity) / peak * 100
		}
		x[i] = p.Time.UTC().Format("01-02 15:04:05")
		data[i] = opts.LineData{Value: dd}
	}
	line.SetXAxis(x)
	line.AddSeries("Drawdown", data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}))
	return line
}

func tickAxis(ticks []market.Tick) []string {
	x := make([]string, len(ticks))
	for i, t := range ticks {
		x[i] = t.Time.UTC().Format("2006-01-02 15:04")
	}
	return x
}

// originSeries 只在匹配来源的位置放值，其余留空，几条序列共用一根 X 轴。
func originSeries(ticks []market.Tick, origin market.TickOrigin) []opts.LineData {
	data := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		if t.Origin == origin {
			data[i] = opts.LineData{Value: t.Price}
		} else {
			data[i] = opts.LineData{Value: nil}
		}
	}
	return data
}

func hasValues(data []opts.LineData) bool {
	for _, d := range data {
		if d.Value != nil {
			return true
		}
	}
	return false
}

func metricsSubtitle(m engine.ContextMetrics) string {
	if !m.Ready {
		return "上下文未就绪"
	}
	return fmt.Sprintf("regime=%s confidence=%.2f 年化波动=%.2f%% 跳跃强度=%.1f/yr",
		m.Regime, m.Confidence, m.AnnualVol*100, m.JumpIntensity)
}

func statsSubtitle(s engine.SessionStats) string {
	return fmt.Sprintf("trades=%d win/loss=%d/%d realized=%.2f maxDD=%.2f%%",
		s.Trades, s.Wins, s.Losses, s.RealizedPnL, s.MaxDrawdown*100)
}

// Filename 返回报告的默认文件名。
func Filename(symbol string) string {
	return fmt.Sprintf("%s_report_%s.html", strings.ToLower(symbol), time.Now().UTC().Format("20060102T150405"))
}
