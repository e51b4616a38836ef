// Package form implements the fill-up entry form as a small state machine:
// idle -> submitting -> succeeded | failed, with an automatic return to idle
// a few seconds after a success.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fueltrack/internal/core"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
)

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// User-facing messages.
const (
	MessageInvalid = "Données invalides détectées."
	MessageSyncErr = "Erreur de synchronisation."
	MessageSuccess = "Enregistré avec succès !"
)

// DefaultResetDelay is how long the success message stays visible.
const DefaultResetDelay = 3 * time.Second

var (
	ErrBusy         = errors.New("submission already in progress")
	ErrValidation   = errors.New("fill-up values must be strictly positive")
	ErrUnknownField = errors.New("unknown form field")
	ErrRejected     = errors.New("input rejected")
)

// Submitter sends a validated fill-up.
type Submitter interface {
	Submit(ctx context.Context, e core.FuelEntry) error
}

// Refresher is told when new data should be fetched.
type Refresher interface {
	Refresh()
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func()

func (f RefresherFunc) Refresh() { f() }

// Snapshot is a copy of the form state for rendering.
type Snapshot struct {
	State   State
	Message string
	Price   string
	Liters  string
	Km      string
}

// Busy reports whether inputs should be disabled.
func (s Snapshot) Busy() bool { return s.State == StateSubmitting }

type Form struct {
	submitter  Submitter
	refresher  Refresher
	resetDelay time.Duration
	logger     *log.Logger

	mu      sync.Mutex
	state   State
	message string
	inputs  [3]input
	timer   *time.Timer
	// gen invalidates pending reset timers.
	gen uint64
}

type Option func(*Form)

// WithResetDelay overrides DefaultResetDelay.
func WithResetDelay(d time.Duration) Option {
	return func(f *Form) {
		if d > 0 {
			f.resetDelay = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(f *Form) { f.logger = l.WithComponent(log.ComponentForm) }
}

// New returns an idle form. refresher may be nil.
func New(s Submitter, r Refresher, opts ...Option) *Form {
	f := &Form{
		submitter:  s,
		refresher:  r,
		resetDelay: DefaultResetDelay,
		logger:     log.New(log.DefaultConfig()).WithComponent(log.ComponentForm),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetField updates one input. Text that is not a plain decimal is rejected
// and the previous value kept; edits are also rejected while submitting.
func (f *Form) SetField(name Field, raw string) error {
	i, err := name.index()
	if err != nil {
		return err
	}
	in, ok := parseInput(raw)
	if !ok {
		return fmt.Errorf("%w: %s=%q", ErrRejected, name, raw)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return ErrBusy
	}
	f.inputs[i] = in
	return nil
}

// SetFields updates several inputs at once. Either every value is accepted
// or none is applied.
func (f *Form) SetFields(values map[Field]string) error {
	type update struct {
		i  int
		in input
	}
	updates := make([]update, 0, len(values))
	for _, name := range Fields {
		raw, ok := values[name]
		if !ok {
			continue
		}
		i, _ := name.index()
		in, ok := parseInput(raw)
		if !ok {
			return fmt.Errorf("%w: %s=%q", ErrRejected, name, raw)
		}
		updates = append(updates, update{i: i, in: in})
	}
	for name := range values {
		if _, err := name.index(); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return ErrBusy
	}
	for _, u := range updates {
		f.inputs[u.i] = u.in
	}
	return nil
}

// Snapshot returns the current state.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Form) snapshotLocked() Snapshot {
	return Snapshot{
		State:   f.state,
		Message: f.message,
		Price:   f.inputs[0].raw,
		Liters:  f.inputs[1].raw,
		Km:      f.inputs[2].raw,
	}
}

// Entry returns the numeric values currently held.
func (f *Form) Entry() core.FuelEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entryLocked()
}

func (f *Form) entryLocked() core.FuelEntry {
	return core.FuelEntry{
		Price:        f.inputs[0].value,
		VolumeLiters: f.inputs[1].value,
		DistanceKm:   f.inputs[2].value,
	}
}

// Submit validates and sends the current values. It returns ErrBusy while a
// submission is in flight, an ErrValidation wrap when a value is not
// positive (no network call is made), or the Submitter error.
func (f *Form) Submit(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	if f.state == StateSubmitting {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		metrics.IncFormSubmission("busy")
		return snap, ErrBusy
	}
	f.cancelResetLocked()

	entry := f.entryLocked()
	if err := entry.Validate(); err != nil {
		f.state = StateFailed
		f.message = MessageInvalid
		snap := f.snapshotLocked()
		f.mu.Unlock()
		metrics.IncFormSubmission("validation")
		return snap, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	f.state = StateSubmitting
	f.message = ""
	f.mu.Unlock()

	err := f.submitter.Submit(ctx, entry)

	f.mu.Lock()
	if err != nil {
		f.state = StateFailed
		f.message = MessageSyncErr
		snap := f.snapshotLocked()
		f.mu.Unlock()

		metrics.IncFormSubmission("failed")
		f.logger.ErrorContext(ctx, "Fill-up submission failed",
			log.FieldError, err,
			log.FieldPrice, entry.Price, log.FieldLiters, entry.VolumeLiters, log.FieldKm, entry.DistanceKm)
		return snap, err
	}

	f.state = StateSucceeded
	f.message = MessageSuccess
	f.inputs = [3]input{}
	f.scheduleResetLocked()
	snap := f.snapshotLocked()
	f.mu.Unlock()

	metrics.IncFormSubmission("success")
	log.NewStructuredLogger(f.logger).LogFillUpSubmitted(ctx, entry.Price, entry.VolumeLiters, entry.DistanceKm)
	if f.refresher != nil {
		f.refresher.Refresh()
	}
	return snap, nil
}

// Reset returns the form to idle immediately, keeping the inputs.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return
	}
	f.cancelResetLocked()
	f.state = StateIdle
	f.message = ""
}

func (f *Form) scheduleResetLocked() {
	f.gen++
	gen := f.gen
	f.timer = time.AfterFunc(f.resetDelay, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.gen != gen || f.state != StateSucceeded {
			return
		}
		f.state = StateIdle
		f.message = ""
		f.timer = nil
	})
}

func (f *Form) cancelResetLocked() {
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
