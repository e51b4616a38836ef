package analytics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"fueltrack/internal/core"
)

func sampleRecords() []core.FuelRecord {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []core.FuelRecord{
		{Time: base, TotalCost: 55, EfficiencyLPer100Km: 7.3, PricePerLiter: 1.571},
		{Time: base.AddDate(0, 0, 9), TotalCost: 60, EfficiencyLPer100Km: 8, PricePerLiter: 1.5},
		{Time: base.AddDate(0, 0, 25), TotalCost: 48, EfficiencyLPer100Km: 6.9, PricePerLiter: 1.62},
	}
}

func TestRenderCharts(t *testing.T) {
	for name, render := range map[string]func([]core.FuelRecord, *time.Location) ([]byte, error){
		"main":  RenderMainChart,
		"price": RenderPriceChart,
	} {
		svg, err := render(sampleRecords(), time.UTC)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Contains(svg, []byte("<svg")) {
			t.Fatalf("%s: output is not SVG", name)
		}
	}
}

func TestRenderNotEnoughPoints(t *testing.T) {
	if _, err := RenderMainChart(sampleRecords()[:1], time.UTC); !errors.Is(err, ErrNotEnoughPoints) {
		t.Fatalf("expected ErrNotEnoughPoints, got %v", err)
	}
	if _, err := RenderPriceChart(nil, time.UTC); !errors.Is(err, ErrNotEnoughPoints) {
		t.Fatalf("expected ErrNotEnoughPoints, got %v", err)
	}
}

func TestStepSeries(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	xs := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}
	gotX, gotY := stepSeries(xs, []float64{1, 2, 3})
	wantY := []float64{1, 1, 2, 2, 3}
	if len(gotX) != 5 || len(gotY) != 5 {
		t.Fatalf("lengths = %d/%d", len(gotX), len(gotY))
	}
	for i := range wantY {
		if gotY[i] != wantY[i] {
			t.Fatalf("y = %v, want %v", gotY, wantY)
		}
	}
	if !gotX[1].Equal(xs[1]) || !gotX[2].Equal(xs[1]) {
		t.Fatalf("x = %v", gotX)
	}
}

func TestChartTimesStrictlyIncreasing(t *testing.T) {
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := chartTimes([]core.FuelRecord{{Time: same}, {Time: same}, {Time: same}})
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			t.Fatalf("times not increasing: %v", ts)
		}
	}
}

func TestViewChartCached(t *testing.T) {
	v := newTestView(&fakeFetcher{body: `[
		{"total":55,"litres":35,"kilometres":480,"date":"2024-01-01"},
		{"total":60,"litres":40,"kilometres":500,"date":"2024-01-10"},
		{"total":48,"litres":30,"kilometres":430,"date":"2024-01-26"}
	]`})
	v.Load(context.Background())

	a, err := v.Chart(ChartMain)
	if err != nil {
		t.Fatal(err)
	}
	b, err := v.Chart(ChartMain)
	if err != nil {
		t.Fatal(err)
	}
	if &a[0] != &b[0] {
		t.Error("second call should be served from cache")
	}
	if _, err := v.Chart("pie"); !errors.Is(err, ErrUnknownChart) {
		t.Fatalf("expected ErrUnknownChart, got %v", err)
	}
	hits, _ := v.charts.Stats()
	if hits != 1 {
		t.Errorf("cache hits = %d", hits)
	}
}
