package webhook

import (
	"time"

	"fueltrack/internal/core"
)

// ISOLayout matches JavaScript's Date.toISOString output.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Payload is the submit webhook body. Total and Prix carry the same amount;
// older workflow versions read one, newer ones the other.
type Payload struct {
	Kilometres   float64 `json:"kilometres"`
	Litres       float64 `json:"litres"`
	Total        float64 `json:"total"`
	Prix         float64 `json:"prix"`
	PrixParLitre float64 `json:"prix_par_litre"`
	Date         string  `json:"date"`
}

// NewPayload stamps e with the send time at.
func NewPayload(e core.FuelEntry, at time.Time) Payload {
	return Payload{
		Kilometres:   e.DistanceKm,
		Litres:       e.VolumeLiters,
		Total:        e.Price,
		Prix:         e.Price,
		PrixParLitre: e.UnitPrice(),
		Date:         at.UTC().Format(ISOLayout),
	}
}

// Entry converts the payload back into a fill-up.
func (p Payload) Entry() core.FuelEntry {
	price := p.Total
	if price == 0 {
		price = p.Prix
	}
	return core.FuelEntry{Price: price, VolumeLiters: p.Litres, DistanceKm: p.Kilometres}
}
