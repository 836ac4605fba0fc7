package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"maru/internal/backtest"
)

const (
	colorEquity   = "#4f8ef7"
	colorDrawdown = "#f26d6d"
	colorBuy      = "#2fbf71"
	colorSell     = "#e0483e"
)

// RenderBacktest 把回测结果渲染成单页 HTML 报表：
// 资金曲线 + 回撤曲线各一张图，成交点以散点叠加在资金曲线上。
func RenderBacktest(w io.Writer, result backtest.BacktestResult) error {
	if len(result.EquityCurve) == 0 {
		return fmt.Errorf("资金曲线为空，无法出图")
	}

	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("%s %s backtest", result.StrategyName, result.Code))
	page.SetLayout(components.PageFlexLayout)

	xAxis := buildXAxis(result.EquityCurve)
	page.AddCharts(
		buildEquityChart(xAxis, result),
		buildDrawdownChart(xAxis, result.EquityCurve),
	)
	return page.Render(w)
}

// RenderBacktestHTML 是 RenderBacktest 的便捷封装，直接返回字节。
func RenderBacktestHTML(result backtest.BacktestResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderBacktest(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildXAxis(curve []backtest.EquityPoint) []string {
	x := make([]string, len(curve))
	for i, pt := range curve {
		x[i] = time.UnixMilli(pt.Timestamp).UTC().Format("2006-01-02")
	}
	return x
}

func buildEquityChart(xAxis []string, result backtest.BacktestResult) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros, Width: "1200px", Height: "420px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Equity %s/%s", result.StrategyName, result.Code),
			Subtitle: fmt.Sprintf("收益 %.2f%% | 胜率 %.2f%% | 夏普 %.2f | 交易 %d 笔",
				result.TotalReturnPct, result.WinRatePct, result.SharpeRatio, result.TotalTrades),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)

	equity := make([]opts.LineData, len(result.EquityCurve))
	for i, pt := range result.EquityCurve {
		equity[i] = opts.LineData{Value: pt.Equity}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("equity", equity,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
	)
	line.Overlap(buildTradeScatter(result))
	return line
}

// buildTradeScatter 把成交点按时间对齐到资金曲线的 X 轴下标。
func buildTradeScatter(result backtest.BacktestResult) *charts.Scatter {
	indexByTS := make(map[int64]int, len(result.EquityCurve))
	for i, pt := range result.EquityCurve {
		indexByTS[pt.Timestamp] = i
	}
	var buys, sells []opts.ScatterData
	for _, tr := range result.Trades {
		idx, ok := indexByTS[tr.Timestamp]
		if !ok {
			continue
		}
		point := opts.ScatterData{Value: []interface{}{idx, result.EquityCurve[idx].Equity}, SymbolSize: 10}
		if tr.Type == "BUY" {
			buys = append(buys, point)
		} else {
			sells = append(sells, point)
		}
	}
	scatter := charts.NewScatter()
	scatter.AddSeries("buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuy}))
	scatter.AddSeries("sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSell}))
	return scatter
}

func buildDrawdownChart(xAxis []string, curve []backtest.EquityPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros, Width: "1200px", Height: "260px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown %"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	var peak int64
	data := make([]opts.LineData, len(curve))
	for i, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = float64(pt.Equity-peak) / float64(peak) * 100
		}
		data[i] = opts.LineData{Value: dd}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("drawdown", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.25)}),
	)
	return line
}
