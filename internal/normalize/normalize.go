// Package normalize turns whatever the history webhook returned into an
// ordered list of canonical fill-up records.
//
// The automation backend has answered in several shapes over time (flat
// lists, n8n wrapper items, a single wrapped bundle, an object holding a
// records array, a bare object). Each known shape is a variant tried in a
// fixed priority order; anything unrecognized degrades to an empty list.
package normalize

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"fueltrack/internal/core"
)

// WorkflowStartedMessage is what n8n answers when the webhook node is set to
// respond immediately instead of after the last node.
const WorkflowStartedMessage = "Workflow was started"

// ErrWorkflowNotFinished is the configuration error raised for the
// WorkflowStartedMessage sentinel.
var ErrWorkflowNotFinished = errors.New("webhook responds before the workflow finishes: set the webhook node to respond when the last node finishes")

const isoLayout = "2006-01-02T15:04:05.000Z"

// Normalizer converts raw webhook payloads. The zero value is usable: it
// reads the wall clock and formats display dates in UTC.
type Normalizer struct {
	// Now supplies the date of records that carry none.
	Now func() time.Time
	// Location is used for display dates and for timestamps without a zone.
	Location *time.Location
}

// Result is the outcome of one normalization.
type Result struct {
	Shape   Shape
	Records []core.FuelRecord
	// Items is the number of raw items seen before filtering.
	Items int
	// Estimated counts records whose date came from Now.
	Estimated int
}

// New returns a Normalizer bound to loc.
func New(loc *time.Location) *Normalizer {
	return &Normalizer{Now: time.Now, Location: loc}
}

// Normalize returns the canonical records for raw, sorted by time ascending.
// The only error it returns is ErrWorkflowNotFinished.
func (n *Normalizer) Normalize(raw json.RawMessage) ([]core.FuelRecord, error) {
	res, err := n.Run(raw)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Run is Normalize with the detected shape and counters attached.
func (n *Normalizer) Run(raw json.RawMessage) (Result, error) {
	if isWorkflowStarted(raw) {
		return Result{}, ErrWorkflowNotFinished
	}

	shape, items := decode(raw)
	res := Result{Shape: shape, Items: len(items), Records: []core.FuelRecord{}}
	for i, it := range items {
		if it == nil {
			continue
		}
		rec := n.record(it, i)
		if rec.IsBlank() {
			continue
		}
		if rec.DateEstimated {
			res.Estimated++
		}
		res.Records = append(res.Records, rec)
	}

	sort.SliceStable(res.Records, func(i, j int) bool {
		return res.Records[i].Time.Before(res.Records[j].Time)
	})
	return res, nil
}

func (n *Normalizer) record(it item, index int) core.FuelRecord {
	props := it.props()

	total := number(lookup(props, costKeys...))
	litres := number(lookup(props, volumeKeys...))
	km := number(lookup(props, distanceKeys...))

	var ppl float64
	if v := lookup(props, unitPriceKeys...); v != nil {
		ppl = number(v)
	} else if litres > 0 {
		ppl = total / litres
	}

	t, ok := n.date(props)
	if !ok {
		t = n.now()
	}

	return core.FuelRecord{
		ID:                  it.id(strconv.Itoa(index)),
		DisplayDate:         DisplayDate(t, n.location()),
		ISODate:             t.UTC().Format(isoLayout),
		Time:                t,
		PricePerLiter:       core.Round(ppl, 3),
		TotalCost:           total,
		DistanceKm:          km,
		VolumeLiters:        litres,
		EfficiencyLPer100Km: core.Efficiency(litres, km),
		DateEstimated:       !ok,
	}
}

func (n *Normalizer) date(props map[string]json.RawMessage) (time.Time, bool) {
	for _, k := range dateKeys {
		v := lookup(props, k)
		if v == nil {
			continue
		}
		if t, ok := parseDate(v, n.location()); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Normalizer) location() *time.Location {
	if n.Location != nil {
		return n.Location
	}
	return time.UTC
}

func isWorkflowStarted(raw json.RawMessage) bool {
	if firstByte(raw) != '{' {
		return false
	}
	var probe struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Message != nil && *probe.Message == WorkflowStartedMessage
}
