package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fueltrack/internal/core"
	"fueltrack/internal/log"
	"fueltrack/internal/normalize"
	"fueltrack/internal/webhook"
)

const twoRecords = `[{"total":60,"litres":40,"kilometres":500,"date":"2024-01-10"},{"total":55,"litres":35,"kilometres":480,"date":"2024-01-01"}]`

type fakeFetcher struct {
	calls atomic.Int32
	body  string
	err   error
	gate  chan struct{}
}

func (f *fakeFetcher) FetchHistory(ctx context.Context) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.body), nil
}

func newTestView(f Fetcher) *View {
	n := &normalize.Normalizer{
		Now:      func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
		Location: time.UTC,
	}
	return NewView(f, n, WithLogger(log.Discard()))
}

func TestLoadReady(t *testing.T) {
	v := newTestView(&fakeFetcher{body: twoRecords})
	snap := v.Load(context.Background())
	if snap.Status != StatusReady {
		t.Fatalf("status = %v (%v)", snap.Status, snap.Err)
	}
	if len(snap.Records) != 2 || snap.Records[0].ISODate != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("records = %+v", snap.Records)
	}
	if snap.Stats.Count != 2 || snap.Stats.TotalDistanceKm != 980 {
		t.Fatalf("stats = %+v", snap.Stats)
	}
	if got := core.Round(snap.Stats.AvgConsumption, 1); got != 7.7 {
		t.Errorf("avg consumption = %v", got)
	}
	if got := core.Round(snap.Stats.AvgPricePerLiter, 3); got != 1.533 {
		t.Errorf("avg price = %v", got)
	}
	if snap.Shape != "flat_list" {
		t.Errorf("shape = %q", snap.Shape)
	}
	if cur := v.Current(); cur.Seq != snap.Seq {
		t.Errorf("current seq = %d, want %d", cur.Seq, snap.Seq)
	}
}

func TestLoadStatuses(t *testing.T) {
	cases := []struct {
		name    string
		fetcher *fakeFetcher
		status  Status
		kind    ErrorKind
		message string
	}{
		{"empty list", &fakeFetcher{body: `[]`}, StatusEmpty, ErrorNone, ""},
		{"only zero records", &fakeFetcher{body: `[{"total":0}]`}, StatusEmpty, ErrorNone, ""},
		{"workflow started", &fakeFetcher{body: `{"message":"Workflow was started"}`}, StatusFailed, ErrorConfiguration, MessageWorkflow},
		{"transport", &fakeFetcher{err: &webhook.StatusError{Endpoint: "history", StatusCode: 502}}, StatusFailed, ErrorTransport, MessageTransport},
		{"not configured", &fakeFetcher{err: webhook.ErrNotConfigured}, StatusFailed, ErrorConfiguration, MessageNotConfigured},
		{"unexpected", &fakeFetcher{err: errors.New("weird")}, StatusFailed, ErrorUnexpected, MessageUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := newTestView(tc.fetcher).Load(context.Background())
			if snap.Status != tc.status || snap.Kind != tc.kind || snap.Message != tc.message {
				t.Fatalf("snapshot = status %v kind %v message %q", snap.Status, snap.Kind, snap.Message)
			}
		})
	}
}

func TestLoadKeepsRawPayloadForInspector(t *testing.T) {
	snap := newTestView(&fakeFetcher{body: `{"message":"Workflow was started"}`}).Load(context.Background())
	if !bytes.Contains(snap.Raw, []byte("Workflow was started")) {
		t.Fatalf("raw payload lost: %s", snap.Raw)
	}
	if snap.RawPretty() == "" {
		t.Fatal("pretty payload empty")
	}
}

func TestConcurrentLoadsShareFetch(t *testing.T) {
	f := &fakeFetcher{body: twoRecords, gate: make(chan struct{})}
	v := newTestView(f)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Load(context.Background())
		}()
	}
	// let the goroutines join the flight before releasing it
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Fatalf("fetch called %d times, want 1", n)
	}
	if v.Current().Status != StatusReady {
		t.Fatalf("status = %v", v.Current().Status)
	}
}

// sequencedFetcher answers each call with its own body, released in an
// order chosen by the test.
type sequencedFetcher struct {
	mu    sync.Mutex
	calls int
	gates []chan struct{}
	body  []string
}

func (f *sequencedFetcher) FetchHistory(ctx context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	<-f.gates[i]
	return json.RawMessage(f.body[i]), nil
}

func TestStaleResultDiscarded(t *testing.T) {
	f := &sequencedFetcher{
		gates: []chan struct{}{make(chan struct{}), make(chan struct{})},
		body:  []string{`[{"total":1,"date":"2024-01-01"}]`, twoRecords},
	}
	v := newTestView(f)

	first := make(chan Snapshot, 1)
	go func() { first <- v.Load(context.Background()) }()
	waitCalls(t, f, 1)

	v.Refresh()
	second := make(chan Snapshot, 1)
	go func() { second <- v.Load(context.Background()) }()
	waitCalls(t, f, 2)

	// newer load finishes first
	close(f.gates[1])
	s2 := <-second
	if len(s2.Records) != 2 {
		t.Fatalf("second load records = %d", len(s2.Records))
	}
	close(f.gates[0])
	s1 := <-first

	if s1.Seq != s2.Seq {
		t.Fatalf("stale load should return the newer snapshot, got seq %d vs %d", s1.Seq, s2.Seq)
	}
	if len(v.Current().Records) != 2 {
		t.Fatalf("stale response overwrote newer data: %+v", v.Current().Records)
	}
}

func waitCalls(t *testing.T, f *sequencedFetcher, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		c := f.calls
		f.mu.Unlock()
		if c >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("fetch calls = %d, want %d", c, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRefreshForcesNewFetch(t *testing.T) {
	f := &fakeFetcher{body: twoRecords}
	v := newTestView(f)
	v.Load(context.Background())
	v.Refresh()
	v.Load(context.Background())
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("fetch called %d times", n)
	}
}

func TestCanceledCallerDoesNotPublish(t *testing.T) {
	f := &fakeFetcher{body: twoRecords, gate: make(chan struct{})}
	v := newTestView(f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := v.Load(ctx)
	if snap.Status != StatusPending {
		t.Fatalf("status = %v, want pending", snap.Status)
	}
	close(f.gate)
}

func TestTiles(t *testing.T) {
	tiles := Tiles(core.AggregateStats{TotalCost: 115, TotalDistanceKm: 980, TotalVolume: 75, AvgConsumption: 75.0 / 980 * 100, AvgPricePerLiter: 115.0 / 75})
	want := []string{"115 €", "980 km", "7.7 L/100", "1.533 €"}
	for i, w := range want {
		if tiles[i].Value != w {
			t.Errorf("tile %s = %q, want %q", tiles[i].Key, tiles[i].Value, w)
		}
	}
}
