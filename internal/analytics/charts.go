package analytics

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fueltrack/internal/core"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
	"fueltrack/internal/normalize"
)

type ChartName string

const (
	ChartMain  ChartName = "main"
	ChartPrice ChartName = "price"
)

var (
	ErrNotEnoughPoints = errors.New("at least two fill-ups are needed to draw a chart")
	ErrUnknownChart    = errors.New("unknown chart")
)

const (
	chartWidth  = 860
	chartHeight = 320
)

var (
	costColor       = drawing.ColorFromHex("818cf8")
	costFill        = drawing.ColorFromHex("818cf8").WithAlpha(60)
	efficiencyColor = drawing.ColorFromHex("34d399")
	priceColor      = drawing.ColorFromHex("f472b6")
)

// Chart returns the SVG for name drawn from the current snapshot. Renders
// are cached per snapshot.
func (v *View) Chart(name ChartName) ([]byte, error) {
	snap := v.Current()
	key := fmt.Sprintf("%s:%d", name, snap.Seq)
	if svg, ok := v.charts.Get(key); ok {
		return svg, nil
	}

	var (
		svg []byte
		err error
	)
	switch name {
	case ChartMain:
		svg, err = RenderMainChart(snap.Records, v.loc)
	case ChartPrice:
		svg, err = RenderPriceChart(snap.Records, v.loc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownChart, name)
	}
	metrics.IncChartRender(string(name), metrics.Result(err))
	if err != nil {
		if !errors.Is(err, ErrNotEnoughPoints) {
			v.logger.Warn("Chart render failed", log.FieldChart, string(name), log.FieldError, err)
		}
		return nil, err
	}
	v.charts.Set(key, svg)
	return svg, nil
}

// RenderMainChart draws total cost per fill-up as an area on the left axis
// and consumption as a line on the right axis.
func RenderMainChart(records []core.FuelRecord, loc *time.Location) ([]byte, error) {
	if len(records) < 2 {
		return nil, ErrNotEnoughPoints
	}
	xs := chartTimes(records)
	costs := make([]float64, len(records))
	effs := make([]float64, len(records))
	for i, r := range records {
		costs[i] = r.TotalCost
		effs[i] = r.EfficiencyLPer100Km
	}

	g := chart.Chart{
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: chart.XAxis{ValueFormatter: dayFormatter(loc)},
		YAxis: chart.YAxis{
			Name:           "Coût (€)",
			ValueFormatter: fixedFormatter(0, " €"),
		},
		YAxisSecondary: chart.YAxis{
			Name:           "L/100km",
			ValueFormatter: fixedFormatter(1, ""),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Coût total",
				XValues: xs,
				YValues: costs,
				Style: chart.Style{
					StrokeColor: costColor,
					StrokeWidth: 2,
					FillColor:   costFill,
				},
			},
			chart.TimeSeries{
				Name:    "Consommation",
				XValues: xs,
				YValues: effs,
				YAxis:   chart.YAxisSecondary,
				Style: chart.Style{
					StrokeColor: efficiencyColor,
					StrokeWidth: 2,
					DotWidth:    3,
					DotColor:    efficiencyColor,
				},
			},
		},
	}
	g.Elements = []chart.Renderable{chart.Legend(&g)}
	return render(&g)
}

// RenderPriceChart draws the price per liter as a step line.
func RenderPriceChart(records []core.FuelRecord, loc *time.Location) ([]byte, error) {
	if len(records) < 2 {
		return nil, ErrNotEnoughPoints
	}
	xs, ys := stepSeries(chartTimes(records), pricesOf(records))

	g := chart.Chart{
		Width:  chartWidth,
		Height: chartHeight / 2,
		Background: chart.Style{
			Padding: chart.Box{Top: 16, Left: 16, Right: 16, Bottom: 12},
		},
		XAxis: chart.XAxis{ValueFormatter: dayFormatter(loc)},
		YAxis: chart.YAxis{
			Name:           "€/L",
			ValueFormatter: fixedFormatter(3, ""),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Prix au litre",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: priceColor,
					StrokeWidth: 2,
				},
			},
		},
	}
	return render(&g)
}

func render(g *chart.Chart) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.Render(chart.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// chartTimes returns record times nudged to be strictly increasing, since
// the axis range collapses when every point shares one timestamp.
func chartTimes(records []core.FuelRecord) []time.Time {
	ts := make([]time.Time, len(records))
	for i, r := range records {
		ts[i] = r.Time
		if i > 0 && !ts[i].After(ts[i-1]) {
			ts[i] = ts[i-1].Add(time.Minute)
		}
	}
	return ts
}

func pricesOf(records []core.FuelRecord) []float64 {
	ys := make([]float64, len(records))
	for i, r := range records {
		ys[i] = r.PricePerLiter
	}
	return ys
}

// stepSeries holds each value until the next point, drawing a horizontal
// then a vertical segment.
func stepSeries(xs []time.Time, ys []float64) ([]time.Time, []float64) {
	if len(xs) == 0 {
		return nil, nil
	}
	outX := make([]time.Time, 0, 2*len(xs)-1)
	outY := make([]float64, 0, 2*len(ys)-1)
	outX = append(outX, xs[0])
	outY = append(outY, ys[0])
	for i := 1; i < len(xs); i++ {
		outX = append(outX, xs[i], xs[i])
		outY = append(outY, ys[i-1], ys[i])
	}
	return outX, outY
}

func dayFormatter(loc *time.Location) chart.ValueFormatter {
	return func(v interface{}) string {
		switch t := v.(type) {
		case float64:
			return normalize.DisplayDate(chart.TimeFromFloat64(t), loc)
		case time.Time:
			return normalize.DisplayDate(t, loc)
		}
		return ""
	}
}

func fixedFormatter(places int32, suffix string) chart.ValueFormatter {
	return func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return decimal.NewFromFloat(f).StringFixed(places) + suffix
		}
		return ""
	}
}
