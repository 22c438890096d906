package visual

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"ddmbound/internal/simulator"
	"ddmbound/internal/store"
)

// RunInput 是渲染一次会话所需的数据。
type RunInput struct {
	Title   string
	Init    simulator.Boundary
	Steps   []store.Step
	MaxStep int // threshold curves span t=0..MaxStep-1
	Smooth  int // moving-average period for the reward-rate curve; <2 disables
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorRate          = "#34d399"
	colorRateSmooth    = "#fbbf24"
	colorSlope         = "#3b82f6"
	colorIntercept     = "#f472b6"
	colorUpper         = "#f87171"
	colorLower         = "#22d3ee"
	colorWalk          = "#a78bfa"

	chartWidthPx  = 1200
	chartHeightPx = 420

	// DefaultSmooth 是奖励率移动平均的默认周期。
	DefaultSmooth = 10
)

// RenderRun 将奖励率、边界轨迹与样例游走渲染为单个 HTML 页面。
func RenderRun(w io.Writer, in RunInput) error {
	if len(in.Steps) == 0 {
		return fmt.Errorf("no steps to render")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	if in.Title != "" {
		page.PageTitle = in.Title
	}
	page.AddCharts(
		buildRateChart(in),
		buildTrajectoryChart(in),
	)
	if walks := buildWalkChart(in); walks != nil {
		page.AddCharts(walks)
	}
	return page.Render(w)
}

// RenderRunHTML 与 RenderRun 相同，返回字节。
func RenderRunHTML(in RunInput) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderRun(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func baseOptions(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      subtitle,
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 16},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	}
}

func iterationAxis(n int) []string {
	x := make([]string, n)
	for i := range x {
		x[i] = strconv.Itoa(i)
	}
	return x
}

func buildRateChart(in RunInput) *charts.Line {
	rates := make([]float64, len(in.Steps))
	best := math.Inf(-1)
	for i, s := range in.Steps {
		rates[i] = s.RewardRate
		best = math.Max(best, s.RewardRate)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(append(baseOptions("Reward rate", fmt.Sprintf("best %.4f | last %.4f", best, rates[len(rates)-1])),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)...)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(iterationAxis(len(rates)))
	line.AddSeries("reward rate", toLineData(rates), charts.WithLineStyleOpts(opts.LineStyle{Color: colorRate, Width: 2}))
	if smooth := smoothRates(rates, in.Smooth); smooth != nil {
		line.AddSeries(fmt.Sprintf("SMA(%d)", in.Smooth), smooth, charts.WithLineStyleOpts(opts.LineStyle{Color: colorRateSmooth, Width: 2}))
	}
	return line
}

// smoothRates 返回简单移动平均；预热期内的点置空。
func smoothRates(rates []float64, period int) []opts.LineData {
	if period < 2 || len(rates) < period {
		return nil
	}
	sma := talib.Sma(rates, period)
	out := make([]opts.LineData, len(sma))
	for i, v := range sma {
		if i < period-1 || math.IsNaN(v) {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: round(v, 4)}
	}
	return out
}

func buildTrajectoryChart(in RunInput) *charts.Line {
	slopes := make([]float64, 0, len(in.Steps)+1)
	intercepts := make([]float64, 0, len(in.Steps)+1)
	slopes = append(slopes, in.Init.Slope)
	intercepts = append(intercepts, in.Init.Intercept)
	jumps := 0
	for _, s := range in.Steps {
		slopes = append(slopes, s.Slope)
		intercepts = append(intercepts, s.Intercept)
		if s.Jumped {
			jumps++
		}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(baseOptions("Boundary trajectory", fmt.Sprintf("%d updates | %d jumps", len(in.Steps), jumps))...)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(iterationAxis(len(slopes)))
	line.AddSeries("slope (deg)", toLineData(slopes), charts.WithLineStyleOpts(opts.LineStyle{Color: colorSlope, Width: 2}))
	line.AddSeries("intercept", toLineData(intercepts), charts.WithLineStyleOpts(opts.LineStyle{Color: colorIntercept, Width: 2}))
	return line
}

// buildWalkChart 绘制最后一个带样例游走的步骤及其上下阈值。
func buildWalkChart(in RunInput) *charts.Line {
	if in.MaxStep <= 0 {
		return nil
	}
	var step *store.Step
	for i := len(in.Steps) - 1; i >= 0; i-- {
		if len(in.Steps[i].Walks) > 0 {
			step = &in.Steps[i]
			break
		}
	}
	if step == nil {
		return nil
	}
	b := simulator.Boundary{Slope: step.WindowSlope, Intercept: step.WindowIntercept}
	upper, lower := simulator.ThresholdCurve(b, in.MaxStep)

	line := charts.NewLine()
	line.SetGlobalOptions(baseOptions(
		fmt.Sprintf("Sample walks at iteration %d", step.Iteration),
		fmt.Sprintf("bound %s | accuracy %.2f | mean rt %.1f", b, step.Accuracy, step.MeanRT),
	)...)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(iterationAxis(in.MaxStep))
	line.AddSeries("upper", intLineData(upper, in.MaxStep), charts.WithLineStyleOpts(opts.LineStyle{Color: colorUpper, Width: 2, Type: "dashed"}))
	line.AddSeries("lower", intLineData(lower, in.MaxStep), charts.WithLineStyleOpts(opts.LineStyle{Color: colorLower, Width: 2, Type: "dashed"}))
	for i, walk := range step.Walks {
		line.AddSeries(fmt.Sprintf("walk %d", i), intLineData(walk, in.MaxStep),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorWalk, Width: 1, Opacity: opts.Float(0.6)}))
	}
	return line
}

func toLineData(series []float64) []opts.LineData {
	out := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: round(v, 4)}
	}
	return out
}

// intLineData 补齐到 length，超出游走长度的点置空。
func intLineData(series []int, length int) []opts.LineData {
	out := make([]opts.LineData, length)
	for i := range out {
		if i < len(series) {
			out[i] = opts.LineData{Value: series[i]}
		} else {
			out[i] = opts.LineData{Value: nil}
		}
	}
	return out
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
