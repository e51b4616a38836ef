package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path"
	"strings"
	"time"

	"fueltrack/internal/analytics"
	"fueltrack/internal/core"
	"fueltrack/internal/export"
	"fueltrack/internal/form"
	"fueltrack/internal/log"
	"fueltrack/internal/metrics"
)

// htmx events emitted in HX-Trigger.
const (
	EventFillUpCreated   = "fillup:created"
	EventFormReset       = "form:reset"
	EventAnalyticsLoaded = "analytics:loaded"
	EventNotification    = "show-notification"
)

const (
	MessageRateLimited = "Trop de requêtes. Réessayez dans une minute."
	MessageBadRequest  = "Format de requête invalide."
	MessageRejected    = "Valeur refusée : chiffres et un séparateur décimal uniquement."
	MessageBusy        = "Envoi déjà en cours."
	MessageNoChart     = "Pas assez de pleins pour tracer ce graphique."
	MessageNoExport    = "Aucun historique à exporter."
	MessageExportError = "Erreur lors de la génération de l'export."
	messageInternal    = "Erreur interne."
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

var templateFuncs = template.FuncMap{
	"ms": func(d time.Duration) int64 { return d.Milliseconds() },
}

type fieldView struct {
	Name  form.Field
	Label string
	Unit  string
	Value string
}

var fieldLabels = map[form.Field][2]string{
	form.FieldPrice:  {"Prix total", "€"},
	form.FieldLiters: {"Volume", "L"},
	form.FieldKm:     {"Distance", "km"},
}

type formView struct {
	form.Snapshot
	Fields     []fieldView
	ResetDelay time.Duration
	Succeeded  bool
	Failed     bool
}

func (s *Server) formView(snap form.Snapshot) formView {
	values := map[form.Field]string{
		form.FieldPrice:  snap.Price,
		form.FieldLiters: snap.Liters,
		form.FieldKm:     snap.Km,
	}
	fv := formView{
		Snapshot:   snap,
		ResetDelay: s.resetDelay,
		Succeeded:  snap.State == form.StateSucceeded,
		Failed:     snap.State == form.StateFailed,
	}
	for _, f := range form.Fields {
		l := fieldLabels[f]
		fv.Fields = append(fv.Fields, fieldView{Name: f, Label: l[0], Unit: l[1], Value: values[f]})
	}
	return fv
}

type analyticsView struct {
	Snap   analytics.Snapshot
	Status string
	Tiles  []analytics.Tile
	Rows   []core.FuelRecord
	Raw    string
}

func newAnalyticsView(snap analytics.Snapshot) analyticsView {
	av := analyticsView{
		Snap:   snap,
		Status: snap.Status.String(),
		Raw:    snap.RawPretty(),
	}
	if snap.Status == analytics.StatusReady {
		av.Tiles = analytics.Tiles(snap.Stats)
		// newest first in the table
		av.Rows = make([]core.FuelRecord, len(snap.Records))
		for i, r := range snap.Records {
			av.Rows[len(snap.Records)-1-i] = r
		}
	}
	return av
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Form formView
	}{
		Form: s.formView(s.form.Snapshot()),
	}
	s.writePage(w, r, "index.html", data)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.writePartial(w, r, NewHTMXResponse(), "fillup_form", s.formView(s.form.Snapshot()))
}

func (s *Server) handleCreateFillUp(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		logger.WarnContext(r.Context(), "Parse fill-up body error", log.FieldError, err)
		BadRequestError(MessageBadRequest).Write(w)
		return
	}

	values := make(map[form.Field]string, len(form.Fields))
	for _, f := range form.Fields {
		values[f] = p.Get(string(f))
	}
	err := s.form.SetFields(values)
	switch {
	case err == nil:
	case errors.Is(err, form.ErrBusy):
		s.writePartial(w, r, NewHTMXResponse().Status(http.StatusConflict).TriggerErrorNotification(MessageBusy),
			"fillup_form", s.formView(s.form.Snapshot()))
		return
	case errors.Is(err, form.ErrRejected):
		logger.InfoContext(r.Context(), "Fill-up input rejected", log.FieldError, err)
		s.writePartial(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity).TriggerErrorNotification(MessageRejected),
			"fillup_form", s.formView(s.form.Snapshot()))
		return
	default:
		logger.ErrorContext(r.Context(), "Unexpected form error", log.FieldError, err)
		InternalServerError(messageInternal).Write(w)
		return
	}

	snap, err := s.form.Submit(r.Context())
	b := NewHTMXResponse()
	switch {
	case err == nil:
		b.TriggerFillUpCreated().TriggerSuccessNotification(snap.Message)
	case errors.Is(err, form.ErrBusy):
		b.Status(http.StatusConflict).TriggerErrorNotification(MessageBusy)
	case errors.Is(err, form.ErrValidation):
		b.Status(http.StatusUnprocessableEntity)
	default:
		// the form already logged the submitter error
		b.Status(http.StatusBadGateway).TriggerErrorNotification(snap.Message)
	}
	s.writePartial(w, r, b, "fillup_form", s.formView(snap))
}

// handleAnalytics loads the history and renders the panel. ?refresh=1
// forces a new fetch instead of joining one already in flight.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "" {
		s.view.Refresh()
	}
	snap := s.view.Load(r.Context())
	b := NewHTMXResponse().TriggerAnalyticsLoaded(snap.Seq, snap.Status.String())
	s.writePartial(w, r, b, "analytics_panel", newAnalyticsView(snap))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if path.Ext(file) != ".svg" {
		NotFoundError(MessageNoChart).Write(w)
		return
	}
	name := analytics.ChartName(strings.TrimSuffix(file, ".svg"))

	svg, err := s.view.Chart(name)
	switch {
	case err == nil:
	case errors.Is(err, analytics.ErrNotEnoughPoints), errors.Is(err, analytics.ErrUnknownChart):
		NotFoundError(MessageNoChart).Write(w)
		return
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Chart render failed",
			log.FieldChart, string(name), log.FieldError, err)
		InternalServerError(messageInternal).Write(w)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}

// handleExport serves /export/history.xlsx and /export/history.pdf from the
// last published snapshot, loading once if nothing was published yet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if strings.TrimSuffix(file, path.Ext(file)) != "history" {
		NotFoundError(MessageNoExport).Write(w)
		return
	}
	format, err := export.ParseFormat(strings.TrimPrefix(path.Ext(file), "."))
	if err != nil {
		NotFoundError(MessageNoExport).Write(w)
		return
	}

	snap := s.view.Current()
	if snap.Seq == 0 {
		snap = s.view.Load(r.Context())
	}
	if snap.Status != analytics.StatusReady {
		NotFoundError(MessageNoExport).Write(w)
		return
	}

	start := time.Now()
	data, err := export.Build(format, snap.Records, s.view.Location())
	metrics.ObserveExport(string(format), metrics.Result(err), time.Since(start))
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentExport).ErrorContext(r.Context(), "Export failed",
			"format", string(format), log.FieldError, err)
		InternalServerError(MessageExportError).Write(w)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(s.now().In(s.view.Location()))+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type historyResponse struct {
	Status   string              `json:"status"`
	Shape    string              `json:"shape,omitempty"`
	Error    string              `json:"error,omitempty"`
	Message  string              `json:"message,omitempty"`
	LoadedAt time.Time           `json:"loadedAt"`
	Stats    core.AggregateStats `json:"stats"`
	Records  []core.FuelRecord   `json:"records"`
}

// handleAPIHistory returns the normalized history as JSON. A failed load
// answers 502 with the error kind and message.
func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "" {
		s.view.Refresh()
	}
	snap := s.view.Current()
	if snap.Seq == 0 || r.URL.Query().Get("refresh") != "" {
		snap = s.view.Load(r.Context())
	}

	resp := historyResponse{
		Status:   snap.Status.String(),
		Shape:    snap.Shape,
		LoadedAt: snap.LoadedAt,
		Stats:    snap.Stats,
		Records:  snap.Records,
	}
	if resp.Records == nil {
		resp.Records = []core.FuelRecord{}
	}
	status := http.StatusOK
	if snap.Status == analytics.StatusFailed {
		status = http.StatusBadGateway
		resp.Error = snap.Kind.String()
		resp.Message = snap.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Encode history failed", log.FieldError, err)
	}
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, name string, data any) {
	body, err := s.render(name, data)
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(),
			"Template execution failed", "template", name, log.FieldError, err)
		http.Error(w, messageInternal, http.StatusInternalServerError)
		return
	}
	NewHTMXResponse().HTML(body).Write(w)
}

func (s *Server) writePartial(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.render(name, data)
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(),
			"Template execution failed", "template", name, log.FieldError, err)
		InternalServerError(messageInternal).Write(w)
		return
	}
	b.HTML(body).Write(w)
}
