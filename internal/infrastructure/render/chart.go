package render

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"BriefingScanner/internal/domain"
	"BriefingScanner/internal/ports"
)

// Chart renders price history with moving averages on a dark theme.
type Chart struct{}

var _ ports.ChartRenderer = Chart{}

func NewChart() Chart { return Chart{} }

// RenderChart draws the close series plus any moving average that has
// at least one filled window.
func (Chart) RenderChart(data domain.ChartData) ([]byte, error) {
	price, ok := timeSeries(fmt.Sprintf("%s 종가", data.Ticker), data.Dates, data.Prices, chart.Style{
		StrokeColor: drawing.ColorFromHex("00BFFF"),
		StrokeWidth: 2.0,
	})
	if !ok {
		return nil, fmt.Errorf("no price points for %s", data.Ticker)
	}

	series := []chart.Series{price}
	if ma50, ok := timeSeries("MA50", data.Dates, data.MA50, chart.Style{
		StrokeColor: drawing.ColorFromHex("FFD700"),
		StrokeWidth: 1.5,
	}); ok {
		series = append(series, ma50)
	}
	if ma200, ok := timeSeries("MA200", data.Dates, data.MA200, chart.Style{
		StrokeColor: drawing.ColorFromHex("FF4500"),
		StrokeWidth: 1.5,
	}); ok {
		series = append(series, ma200)
	}
	if ma200up, ok := timeSeries("MA200 +10%", data.Dates, data.MA200Plus10, chart.Style{
		StrokeColor:     drawing.ColorFromHex("FF69B4"),
		StrokeWidth:     1.5,
		StrokeDashArray: []float64{5.0, 5.0},
	}); ok {
		series = append(series, ma200up)
	}

	graph := chart.Chart{
		Title:      fmt.Sprintf("%s 1Y", data.Ticker),
		TitleStyle: chart.Style{FontColor: drawing.ColorFromHex("E6E6F0")},
		Width:      1200,
		Height:     600,
		Background: chart.Style{FillColor: drawing.ColorFromHex("131828")},
		Canvas:     chart.Style{FillColor: drawing.ColorFromHex("131828")},
		XAxis: chart.XAxis{
			Style: chart.Style{FontColor: drawing.ColorFromHex("C8C8DC")},
		},
		YAxis: chart.YAxis{
			Style: chart.Style{FontColor: drawing.ColorFromHex("C8C8DC")},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph, chart.Style{
			FillColor: drawing.ColorFromHex("1E2438"),
			FontColor: drawing.ColorFromHex("E6E6F0"),
		}),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// timeSeries pairs dates with values, dropping NaN gaps. ok reports
// whether anything survived.
func timeSeries(name string, dates []time.Time, values []float64, style chart.Style) (chart.TimeSeries, bool) {
	series := chart.TimeSeries{Name: name, Style: style}
	for i, v := range values {
		if i >= len(dates) || math.IsNaN(v) {
			continue
		}
		series.XValues = append(series.XValues, dates[i])
		series.YValues = append(series.YValues, v)
	}
	return series, len(series.YValues) > 1
}
