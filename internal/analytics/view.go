// Package analytics loads the fill-up history, keeps the last published
// snapshot and renders its charts.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"fueltrack/internal/cache"
	"fueltrack/internal/core"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
	"fueltrack/internal/normalize"
	"fueltrack/internal/webhook"
)

type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorTransport
	ErrorConfiguration
	ErrorUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTransport:
		return "transport"
	case ErrorConfiguration:
		return "configuration"
	case ErrorUnexpected:
		return "unexpected"
	default:
		return "none"
	}
}

// User-facing messages for failed loads.
const (
	MessageTransport     = "Impossible de synchroniser l'historique."
	MessageWorkflow      = "Configuration N8N : le webhook répond avant la fin du workflow. Réglez « Respond » sur « When Last Node Finishes » dans le nœud Webhook."
	MessageNotConfigured = "Configuration : l'URL du webhook d'historique n'est pas définie."
	MessageUnexpected    = "Erreur inattendue lors du traitement de l'historique."
)

const (
	DefaultFetchTimeout   = 20 * time.Second
	defaultChartCacheSize = 32
)

// Fetcher returns the raw history payload.
type Fetcher interface {
	FetchHistory(ctx context.Context) (json.RawMessage, error)
}

// Snapshot is one published load result.
type Snapshot struct {
	Seq      uint64
	Status   Status
	Kind     ErrorKind
	Message  string
	Err      error
	Records  []core.FuelRecord
	Stats    core.AggregateStats
	Shape    string
	Raw      json.RawMessage
	LoadedAt time.Time
}

// RawPretty returns the raw payload indented for the inspector.
func (s Snapshot) RawPretty() string {
	if len(s.Raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.Raw, "", "  "); err != nil {
		return string(s.Raw)
	}
	return buf.String()
}

// HasCharts reports whether there are enough records to draw the charts.
func (s Snapshot) HasCharts() bool { return len(s.Records) >= 2 }

// View coordinates history loads. Concurrent loads within one refresh epoch
// share a single fetch, and a result is only published when no newer load
// has been published before it.
type View struct {
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	logger     *log.Logger
	charts     *cache.LRUCache[[]byte]
	loc        *time.Location
	now        func() time.Time
	timeout    time.Duration

	group singleflight.Group
	epoch atomic.Uint64
	seq   atomic.Uint64

	mu      sync.RWMutex
	current Snapshot
}

type Option func(*View)

func WithLogger(l *log.Logger) Option {
	return func(v *View) { v.logger = l.WithComponent(log.ComponentAnalytics) }
}

// WithChartCache sets the cache used for rendered SVGs.
func WithChartCache(c *cache.LRUCache[[]byte]) Option {
	return func(v *View) { v.charts = c }
}

// WithClock replaces time.Now for LoadedAt.
func WithClock(now func() time.Time) Option {
	return func(v *View) { v.now = now }
}

// WithFetchTimeout bounds the shared fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(v *View) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewView builds a view over f. n supplies the display location.
func NewView(f Fetcher, n *normalize.Normalizer, opts ...Option) *View {
	if n == nil {
		n = normalize.New(time.UTC)
	}
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	v := &View{
		fetcher:    f,
		normalizer: n,
		logger:     log.New(log.DefaultConfig()).WithComponent(log.ComponentAnalytics),
		charts:     cache.NewLRUCache[[]byte](defaultChartCacheSize, 10*time.Minute),
		loc:        loc,
		now:        time.Now,
		timeout:    DefaultFetchTimeout,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

type loadResult struct {
	raw json.RawMessage
	res normalize.Result
	err error
}

// Load fetches, normalizes and aggregates the history, then publishes the
// result unless a newer one has already been published. It returns the
// snapshot now current.
func (v *View) Load(ctx context.Context) Snapshot {
	seq := v.seq.Add(1)
	epoch := v.epoch.Load()

	ch := v.group.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return v.fetch(ctx), nil
	})

	var lr loadResult
	select {
	case r := <-ch:
		lr = r.Val.(loadResult)
	case <-ctx.Done():
		// the caller is gone; the shared flight still publishes for others
		return v.Current()
	}

	snap := v.build(lr)
	snap.Seq = seq
	return v.publish(ctx, snap)
}

func (v *View) fetch(ctx context.Context) loadResult {
	// the flight is shared, so one caller going away must not cancel it
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	raw, err := v.fetcher.FetchHistory(fctx)
	if err != nil {
		return loadResult{err: err}
	}
	res, err := v.normalizer.Run(raw)
	if err == nil {
		metrics.ObserveNormalize(res.Shape.String(), len(res.Records), res.Estimated)
	}
	return loadResult{raw: raw, res: res, err: err}
}

func (v *View) build(lr loadResult) Snapshot {
	snap := Snapshot{Raw: lr.raw, LoadedAt: v.now()}
	if lr.err != nil {
		snap.Status = StatusFailed
		snap.Err = lr.err
		snap.Kind, snap.Message = classify(lr.err)
		return snap
	}
	snap.Shape = lr.res.Shape.String()
	snap.Records = lr.res.Records
	snap.Stats = core.Aggregate(lr.res.Records)
	if len(snap.Records) == 0 {
		snap.Status = StatusEmpty
	} else {
		snap.Status = StatusReady
	}
	return snap
}

func classify(err error) (ErrorKind, string) {
	switch {
	case errors.Is(err, normalize.ErrWorkflowNotFinished):
		return ErrorConfiguration, MessageWorkflow
	case errors.Is(err, webhook.ErrNotConfigured):
		return ErrorConfiguration, MessageNotConfigured
	case errors.Is(err, webhook.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ErrorTransport, MessageTransport
	default:
		return ErrorUnexpected, MessageUnexpected
	}
}

func (v *View) publish(ctx context.Context, snap Snapshot) Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	if snap.Seq <= v.current.Seq {
		metrics.IncAnalyticsStale()
		v.logger.DebugContext(ctx, "Discarding stale history load",
			log.FieldSequence, snap.Seq, "published_seq", v.current.Seq)
		return v.current
	}
	v.current = snap
	metrics.IncAnalyticsLoad(snap.Status.String())

	if snap.Status == StatusFailed {
		v.logger.WarnContext(ctx, "History load failed",
			log.FieldSequence, snap.Seq,
			log.FieldErrorType, snap.Kind.String(),
			log.FieldError, snap.Err,
		)
	} else {
		v.logger.InfoContext(ctx, "History loaded",
			log.FieldSequence, snap.Seq,
			log.FieldShape, snap.Shape,
			log.FieldRecords, len(snap.Records),
		)
	}
	return snap
}

// Current returns the last published snapshot without fetching.
func (v *View) Current() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Refresh makes the next Load fetch again instead of joining a flight
// started before now.
func (v *View) Refresh() { v.RefreshFrom(metrics.RefreshLocal) }

// RefreshFrom is Refresh with the signal source recorded in metrics.
func (v *View) RefreshFrom(source string) {
	v.epoch.Add(1)
	metrics.IncRefresh(source)
}

// Location is the display time zone.
func (v *View) Location() *time.Location { return v.loc }
