package core

// AggregateStats summarizes a sequence of fill-ups.
type AggregateStats struct {
	Count            int     `json:"count"`
	TotalDistanceKm  float64 `json:"totalDistanceKm"`
	TotalCost        float64 `json:"totalCost"`
	TotalVolume      float64 `json:"totalVolume"`
	AvgPricePerLiter float64 `json:"avgPricePerLiter"` // volume weighted
	AvgConsumption   float64 `json:"avgConsumption"`   // L/100km
}

// Aggregate computes the summary tiles. Zero denominators yield 0.
func Aggregate(records []FuelRecord) AggregateStats {
	var s AggregateStats
	for _, r := range records {
		s.TotalDistanceKm += r.DistanceKm
		s.TotalCost += r.TotalCost
		s.TotalVolume += r.VolumeLiters
	}
	s.Count = len(records)
	if s.TotalDistanceKm > 0 {
		s.AvgConsumption = s.TotalVolume / s.TotalDistanceKm * 100
	}
	if s.TotalVolume > 0 {
		s.AvgPricePerLiter = s.TotalCost / s.TotalVolume
	}
	return s
}
