package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fueltrack/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	cfg := log.DefaultConfig()
	cfg.Output = &buf
	logger := log.New(cfg)

	var seenID string
	var ctxLogger *log.Logger
	h := NewMiddleware(logger, func(*http.Request) string { return "198.51.100.1" }).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = GetRequestID(r.Context())
			ctxLogger = log.FromContext(r.Context())
			w.WriteHeader(http.StatusTeapot)
		}),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/form", nil))

	if !strings.HasPrefix(seenID, "req_") {
		t.Fatalf("request id = %q", seenID)
	}
	if rec.Header().Get(RequestIDHeader) != seenID {
		t.Fatalf("header id = %q, want %q", rec.Header().Get(RequestIDHeader), seenID)
	}
	if ctxLogger == nil || ctxLogger.Component() != log.ComponentTrace {
		t.Fatalf("context logger not set")
	}

	out := buf.String()
	for _, want := range []string{"HTTP request completed", "status_code=418", "client_ip=198.51.100.1", seenID} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusOK {
		t.Fatalf("statusCode = %d, want 200", rw.statusCode)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Fatalf("GetRequestID = %q", got)
	}
}
