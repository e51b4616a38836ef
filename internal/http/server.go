// Package http serves the fuel dashboard: the page, its htmx partials, the
// SVG charts, the exports and the operational endpoints.
package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fueltrack/internal/analytics"
	"fueltrack/internal/form"
	"fueltrack/internal/log"
	"fueltrack/internal/middleware/ratelimit"
	"fueltrack/internal/middleware/security"
	"fueltrack/internal/middleware/trace"
	appweb "fueltrack/web"
)

// Server is the dashboard http.Server with its collaborators.
type Server struct {
	http.Server

	templates  *template.Template
	view       *analytics.View
	form       *form.Form
	logger     *log.Logger
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	now        func() time.Time
	resetDelay time.Duration

	rateLimit    int
	shutdownOnce sync.Once
}

type Option func(*Server)

// WithRateLimit sets how many POST requests a client may send per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimit = perMinute }
}

// WithFormResetDelay is how long the success partial stays before the form
// reloads. It should match the form's own reset delay.
func WithFormResetDelay(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.resetDelay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTrustedProxies adds CIDRs whose X-Forwarded-For is believed.
func WithTrustedProxies(cidrs ...string) Option {
	return func(s *Server) {
		for _, c := range cidrs {
			if err := s.detector.AddTrustedProxy(c); err != nil {
				s.logger.Warn("Ignoring trusted proxy", "cidr", c, log.FieldError, err)
			}
		}
	}
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, view *analytics.View, fm *form.Form, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Server{
		Server:     http.Server{Addr: addr},
		view:       view,
		form:       fm,
		logger:     logger.WithComponent(log.ComponentHTTP),
		detector:   security.NewDetector(),
		now:        time.Now,
		resetDelay: form.DefaultResetDelay,
		rateLimit:  ratelimit.DefaultConfig().RequestsPerMinute,
	}
	for _, o := range opts {
		o(s)
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.WithComponent(log.ComponentTemplate).Error("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimit})

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/form", s.handleForm)
	mux.HandleFunc("POST /fillups", s.handleCreateFillUp)
	mux.HandleFunc("GET /ui/analytics", s.handleAnalytics)
	mux.Handle("GET /charts/{file}", security.NoStore(http.HandlerFunc(s.handleChart)))
	mux.Handle("GET /export/{file}", security.NoStore(http.HandlerFunc(s.handleExport)))
	mux.Handle("GET /api/history", security.NoStore(http.HandlerFunc(s.handleAPIHistory)))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, rateLimited, http.MethodPost)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(s.logger)(h)
	h = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware(h)
	s.Handler = h

	return s
}

// Shutdown stops the rate limiter and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a named template into memory so a failure never leaves a
// half-written response.
func (s *Server) render(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	TooManyRequestsError(MessageRateLimited).
		TriggerErrorNotification(MessageRateLimited).
		Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
