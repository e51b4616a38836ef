package analytics

import (
	"github.com/shopspring/decimal"

	"fueltrack/internal/core"
)

// Tile is one summary figure of the dashboard.
type Tile struct {
	Key   string
	Label string
	Value string
}

// Tiles formats the aggregate figures for display: cost and distance without
// decimals, consumption with one and price per liter with three.
func Tiles(s core.AggregateStats) []Tile {
	return []Tile{
		{Key: "cost", Label: "Coût Total", Value: fixed(s.TotalCost, 0) + " €"},
		{Key: "distance", Label: "Distance", Value: fixed(s.TotalDistanceKm, 0) + " km"},
		{Key: "consumption", Label: "Conso. Moy.", Value: fixed(s.AvgConsumption, 1) + " L/100"},
		{Key: "price", Label: "Prix Moy./L", Value: fixed(s.AvgPricePerLiter, 3) + " €"},
	}
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
