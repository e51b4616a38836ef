package core

import (
	"math"
	"testing"
)

func TestAggregate(t *testing.T) {
	records := []FuelRecord{
		{TotalCost: 55, VolumeLiters: 35, DistanceKm: 480},
		{TotalCost: 60, VolumeLiters: 40, DistanceKm: 500},
	}
	s := Aggregate(records)
	if s.Count != 2 {
		t.Fatalf("count = %d", s.Count)
	}
	if s.TotalDistanceKm != 980 || s.TotalCost != 115 || s.TotalVolume != 75 {
		t.Fatalf("totals = %+v", s)
	}
	if got := Round(s.AvgConsumption, 1); got != 7.7 {
		t.Errorf("avg consumption = %v, want 7.7", got)
	}
	if got := Round(s.AvgPricePerLiter, 3); got != 1.533 {
		t.Errorf("avg price = %v, want 1.533", got)
	}
	// stored unrounded
	if math.Abs(s.AvgPricePerLiter-115.0/75.0) > 1e-12 {
		t.Errorf("avg price should be kept raw, got %v", s.AvgPricePerLiter)
	}
}

func TestAggregateZeroDenominators(t *testing.T) {
	s := Aggregate(nil)
	if s != (AggregateStats{}) {
		t.Fatalf("empty input should give zero stats, got %+v", s)
	}
	s = Aggregate([]FuelRecord{{TotalCost: 10}})
	if s.AvgPricePerLiter != 0 || s.AvgConsumption != 0 {
		t.Fatalf("zero volume/distance should give 0 averages, got %+v", s)
	}
}
