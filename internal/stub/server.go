// Package stub is a stand-in for the automation backend: it accepts fill-ups
// on the submit webhook and answers the history webhook in a configurable
// shape.
package stub

import (
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fueltrack/internal/core"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
	"fueltrack/internal/sheets"
	"fueltrack/internal/webhook"
)

const (
	SubmitPath  = "/webhook/plein-essence"
	HistoryPath = "/webhook/essence-graphique"
	ShapePath   = "/admin/shape"

	maxBodyBytes = 64 << 10
)

type Server struct {
	store   sheets.Store
	backend string
	shape   atomic.Value // Shape
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Server)

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Server) { s.newID = newID }
}

// WithBackendName labels stored writes in metrics.
func WithBackendName(name string) Option {
	return func(s *Server) { s.backend = name }
}

func New(store sheets.Store, shape Shape, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		store:   store,
		backend: "memory",
		logger:  logger.WithComponent(log.ComponentStub),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	s.shape.Store(shape)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shape returns the layout currently used by the history endpoint.
func (s *Server) Shape() Shape {
	return s.shape.Load().(Shape)
}

// SetShape switches the history layout at runtime.
func (s *Server) SetShape(sh Shape) {
	s.shape.Store(sh)
}

// Handler returns the webhook routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SubmitPath, s.handleSubmit)
	mux.HandleFunc(HistoryPath, s.handleHistory)
	mux.HandleFunc(ShapePath, s.handleShape)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

type shapeResponse struct {
	Shape  string   `json:"shape"`
	Shapes []string `json:"shapes,omitempty"`
	Err    string   `json:"error,omitempty"`
}

// handleShape reports the current layout on GET and switches it on PUT
// ?shape=<name>.
func (s *Server) handleShape(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(Shapes()))
	for _, sh := range Shapes() {
		names = append(names, string(sh))
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		sh, err := ParseShape(r.URL.Query().Get("shape"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, shapeResponse{Shape: string(s.Shape()), Shapes: names, Err: err.Error()})
			return
		}
		s.SetShape(sh)
		s.logger.InfoContext(r.Context(), "History shape changed", log.FieldShape, string(sh))
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, shapeResponse{Shape: string(s.Shape()), Shapes: names})
}

type submitResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id,omitempty"`
	Ref string `json:"ref,omitempty"`
	Err string `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Err: "cannot read body"})
		return
	}
	var p webhook.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Err: "invalid JSON"})
		return
	}

	at, err := time.Parse(webhook.ISOLayout, p.Date)
	if err != nil {
		at = s.now()
	}
	fillUp := core.NewFillUp(s.newID(), p.Entry(), at)
	if err := fillUp.Validate(); err != nil {
		metrics.IncStubWrite(s.backend, metrics.ResultError)
		writeJSON(w, http.StatusUnprocessableEntity, submitResponse{Err: err.Error()})
		return
	}

	ref, err := s.store.Append(ctx, fillUp)
	metrics.IncStubWrite(s.backend, metrics.Result(err))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to store fill-up", log.FieldError, err, log.FieldRecordID, fillUp.ID)
		writeJSON(w, http.StatusInternalServerError, submitResponse{Err: "storage error"})
		return
	}

	s.logger.InfoContext(ctx, "Fill-up received",
		log.FieldRecordID, fillUp.ID,
		log.FieldPrice, fillUp.Price,
		log.FieldLiters, fillUp.VolumeLiters,
		log.FieldKm, fillUp.DistanceKm,
		"ref", ref)
	writeJSON(w, http.StatusOK, submitResponse{OK: true, ID: fillUp.ID, Ref: ref})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	shape := s.Shape()

	var fillUps []core.FillUp
	if shape != ShapeStarted {
		var err error
		fillUps, err = s.store.ListFillUps(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to list fill-ups", log.FieldError, err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
	}

	body, err := Encode(shape, fillUps)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to encode history", log.FieldError, err, log.FieldShape, string(shape))
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}

	s.logger.DebugContext(ctx, "History served", log.FieldShape, string(shape), log.FieldRecords, len(fillUps))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
