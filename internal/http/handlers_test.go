package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fueltrack/internal/analytics"
	"fueltrack/internal/core"
	"fueltrack/internal/form"
	"fueltrack/internal/log"
	"fueltrack/internal/normalize"
	"fueltrack/internal/webhook"
)

const twoFillUps = `[{"id":"a","total":60,"litres":40,"kilometres":500,"date":"2024-01-10"},{"id":"b","total":55,"litres":35,"kilometres":480,"date":"2024-01-01"}]`

type fakeFetcher struct {
	calls atomic.Int32
	body  string
	err   error
}

func (f *fakeFetcher) FetchHistory(ctx context.Context) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.body), nil
}

type fakeSubmitter struct {
	mu  sync.Mutex
	got []core.FuelEntry
	err error
}

func (f *fakeSubmitter) Submit(ctx context.Context, e core.FuelEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, e)
	return f.err
}

func (f *fakeSubmitter) calls() []core.FuelEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.FuelEntry(nil), f.got...)
}

func newTestServer(t *testing.T, fetcher *fakeFetcher, sub *fakeSubmitter, opts ...Option) *Server {
	t.Helper()
	n := &normalize.Normalizer{
		Now:      func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
		Location: time.UTC,
	}
	view := analytics.NewView(fetcher, n, analytics.WithLogger(log.Discard()))
	fm := form.New(sub, form.RefresherFunc(view.Refresh), form.WithLogger(log.Discard()))
	srv := NewServer(":0", view, fm, log.Discard(), opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, target string, body url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func fillUpValues(price, litres, km string) url.Values {
	return url.Values{
		string(form.FieldPrice):  {price},
		string(form.FieldLiters): {litres},
		string(form.FieldKm):     {km},
	}
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, &fakeSubmitter{})

	rr := do(srv, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`name="prix"`, `name="litres"`, `name="kilometres"`, `hx-get="/ui/analytics"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %s", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id not echoed")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	if rr := do(srv, http.MethodGet, "/nope", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d, want 404", rr.Code)
	}
	if rr := do(srv, http.MethodGet, "/static/app.css", nil); rr.Code != http.StatusOK {
		t.Errorf("static status=%d", rr.Code)
	}
}

func TestCreateFillUp(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sub := &fakeSubmitter{}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		rr := do(srv, http.MethodPost, "/fillups", fillUpValues("42.5", "30", "600"))
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), EventFillUpCreated) {
			t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
		}
		if !strings.Contains(rr.Body.String(), form.MessageSuccess) {
			t.Errorf("body missing success message: %s", rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), `hx-get="/ui/form"`) {
			t.Error("success partial does not schedule the form reload")
		}

		got := sub.calls()
		want := core.FuelEntry{Price: 42.5, VolumeLiters: 30, DistanceKm: 600}
		if len(got) != 1 || got[0] != want {
			t.Fatalf("submitted %+v, want [%+v]", got, want)
		}
	})

	t.Run("comma decimal", func(t *testing.T) {
		sub := &fakeSubmitter{}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		rr := do(srv, http.MethodPost, "/fillups", fillUpValues("42,5", "30", "600"))
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		if got := sub.calls(); len(got) != 1 || got[0].Price != 42.5 {
			t.Fatalf("submitted %+v", got)
		}
	})

	t.Run("zero value fails without network", func(t *testing.T) {
		sub := &fakeSubmitter{}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		rr := do(srv, http.MethodPost, "/fillups", fillUpValues("42.5", "0", "600"))
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status=%d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), form.MessageInvalid) {
			t.Errorf("body missing validation message: %s", rr.Body.String())
		}
		if n := len(sub.calls()); n != 0 {
			t.Fatalf("submitter called %d times", n)
		}
	})

	t.Run("rejected input", func(t *testing.T) {
		sub := &fakeSubmitter{}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		rr := do(srv, http.MethodPost, "/fillups", fillUpValues("4.2.5", "30", "600"))
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status=%d", rr.Code)
		}
		if n := len(sub.calls()); n != 0 {
			t.Fatalf("submitter called %d times", n)
		}
	})

	t.Run("overlong number rejected before submit", func(t *testing.T) {
		sub := &fakeSubmitter{}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		rr := do(srv, http.MethodPost, "/fillups", fillUpValues(strings.Repeat("9", 400), "30", "600"))
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status=%d", rr.Code)
		}
		if n := len(sub.calls()); n != 0 {
			t.Fatalf("submitter called %d times", n)
		}
	})

	t.Run("rejected input leaves every field untouched", func(t *testing.T) {
		sub := &fakeSubmitter{err: fmt.Errorf("%w: connection refused", webhook.ErrTransport)}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		if rr := do(srv, http.MethodPost, "/fillups", fillUpValues("42.5", "30", "600")); rr.Code != http.StatusBadGateway {
			t.Fatalf("first submit status=%d", rr.Code)
		}
		rr := do(srv, http.MethodPost, "/fillups", fillUpValues("50", "3.0.1", "700"))
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status=%d", rr.Code)
		}
		body := rr.Body.String()
		for _, want := range []string{`value="42.5"`, `value="30"`, `value="600"`} {
			if !strings.Contains(body, want) {
				t.Errorf("body missing %s", want)
			}
		}
		if strings.Contains(body, `value="50"`) || strings.Contains(body, `value="700"`) {
			t.Errorf("form partially updated: %s", body)
		}
		if n := len(sub.calls()); n != 1 {
			t.Fatalf("submitter called %d times, want 1", n)
		}
	})

	t.Run("submitter failure keeps values", func(t *testing.T) {
		sub := &fakeSubmitter{err: fmt.Errorf("%w: connection refused", webhook.ErrTransport)}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		rr := do(srv, http.MethodPost, "/fillups", fillUpValues("42.5", "30", "600"))
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("status=%d", rr.Code)
		}
		body := rr.Body.String()
		if !strings.Contains(body, form.MessageSyncErr) {
			t.Errorf("body missing sync message: %s", body)
		}
		if !strings.Contains(body, `value="42.5"`) {
			t.Errorf("price not preserved: %s", body)
		}
		if strings.Contains(rr.Header().Get("HX-Trigger"), EventFillUpCreated) {
			t.Error("failed submit must not announce a new fill-up")
		}
	})

	t.Run("json body", func(t *testing.T) {
		sub := &fakeSubmitter{}
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, sub)

		req := httptest.NewRequest(http.MethodPost, "/fillups",
			strings.NewReader(`{"prix":42.5,"litres":30,"kilometres":600}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		if n := len(sub.calls()); n != 1 {
			t.Fatalf("submitter called %d times", n)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, &fakeSubmitter{})
		if rr := do(srv, http.MethodGet, "/fillups", nil); rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status=%d, want 405", rr.Code)
		}
	})
}

func TestCreateFillUpRateLimited(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, &fakeSubmitter{}, WithRateLimit(1))

	if rr := do(srv, http.MethodPost, "/fillups", fillUpValues("42.5", "30", "600")); rr.Code != http.StatusOK {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := do(srv, http.MethodPost, "/fillups", fillUpValues("42.5", "30", "600"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
	// reads are not limited
	if rr := do(srv, http.MethodGet, "/ui/form", nil); rr.Code != http.StatusOK {
		t.Fatalf("GET after limit status=%d", rr.Code)
	}
}

func TestAnalyticsPanel(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		want    []string
	}{
		{
			name:    "ready",
			fetcher: &fakeFetcher{body: twoFillUps},
			want:    []string{"Coût Total", "115 €", "980 km", "/charts/main.svg?seq=1", "/charts/price.svg?seq=1"},
		},
		{
			name:    "empty",
			fetcher: &fakeFetcher{body: `[]`},
			want:    []string{"Aucune donnée", "Réponse brute"},
		},
		{
			name:    "transport failure",
			fetcher: &fakeFetcher{err: fmt.Errorf("%w: timeout", webhook.ErrTransport)},
			want:    []string{analyticsEscaped(analytics.MessageTransport), "Recharger", "refresh=1"},
		},
		{
			name:    "workflow started",
			fetcher: &fakeFetcher{body: `{"message":"Workflow was started"}`},
			want:    []string{"When Last Node Finishes", "Workflow was started"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.fetcher, &fakeSubmitter{})

			rr := do(srv, http.MethodGet, "/ui/analytics", nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			body := rr.Body.String()
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Errorf("body missing %q:\n%s", w, body)
				}
			}
			if !strings.Contains(rr.Header().Get("HX-Trigger"), EventAnalyticsLoaded) {
				t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
			}
		})
	}
}

// analyticsEscaped mirrors html/template escaping of the apostrophe.
func analyticsEscaped(s string) string {
	return strings.ReplaceAll(s, "'", "&#39;")
}

func TestAnalyticsRefreshRefetches(t *testing.T) {
	fetcher := &fakeFetcher{body: twoFillUps}
	srv := newTestServer(t, fetcher, &fakeSubmitter{})

	do(srv, http.MethodGet, "/ui/analytics", nil)
	do(srv, http.MethodGet, "/ui/analytics?refresh=1", nil)
	if n := fetcher.calls.Load(); n != 2 {
		t.Fatalf("fetches = %d, want 2", n)
	}
}

func TestCharts(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, &fakeSubmitter{})
	do(srv, http.MethodGet, "/ui/analytics", nil)

	for _, path := range []string{"/charts/main.svg", "/charts/price.svg"} {
		rr := do(srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "image/svg+xml" {
			t.Errorf("%s Content-Type=%q", path, ct)
		}
		if !strings.Contains(rr.Body.String(), "<svg") {
			t.Errorf("%s is not an SVG", path)
		}
	}

	for _, path := range []string{"/charts/other.svg", "/charts/main.png"} {
		if rr := do(srv, http.MethodGet, path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("%s status=%d, want 404", path, rr.Code)
		}
	}
}

func TestChartsNeedTwoFillUps(t *testing.T) {
	one := `[{"total":60,"litres":40,"kilometres":500,"date":"2024-01-10"}]`
	srv := newTestServer(t, &fakeFetcher{body: one}, &fakeSubmitter{})

	rr := do(srv, http.MethodGet, "/ui/analytics", nil)
	if strings.Contains(rr.Body.String(), "/charts/main.svg") {
		t.Error("chart rendered for a single fill-up")
	}
	if rr := do(srv, http.MethodGet, "/charts/main.svg", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestExport(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, &fakeSubmitter{},
		WithClock(func() time.Time { return at }))

	rr := do(srv, http.MethodGet, "/export/history.xlsx", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("xlsx status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "pleins-2024-05-01.xlsx") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(rr.Body.String(), "PK") {
		t.Error("xlsx body is not a zip archive")
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	rr = do(srv, http.MethodGet, "/export/history.pdf", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pdf status=%d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), "%PDF") {
		t.Error("pdf body is not a PDF")
	}

	for _, path := range []string{"/export/history.csv", "/export/other.pdf"} {
		if rr := do(srv, http.MethodGet, path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("%s status=%d, want 404", path, rr.Code)
		}
	}
}

func TestExportWithoutHistory(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{body: `[]`}, &fakeSubmitter{})
	if rr := do(srv, http.MethodGet, "/export/history.pdf", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestAPIHistory(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, &fakeSubmitter{})

		rr := do(srv, http.MethodGet, "/api/history", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		var got historyResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Status != "ready" || len(got.Records) != 2 || got.Stats.Count != 2 {
			t.Fatalf("got %+v", got)
		}
		// ascending by date
		if got.Records[0].ID != "b" || got.Records[1].ID != "a" {
			t.Errorf("order = %s, %s", got.Records[0].ID, got.Records[1].ID)
		}
	})

	t.Run("failed", func(t *testing.T) {
		srv := newTestServer(t, &fakeFetcher{err: errors.Join(webhook.ErrTransport, context.DeadlineExceeded)}, &fakeSubmitter{})

		rr := do(srv, http.MethodGet, "/api/history", nil)
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("status=%d", rr.Code)
		}
		var got historyResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Error != "transport" || got.Message != analytics.MessageTransport || got.Records == nil {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("uses published snapshot", func(t *testing.T) {
		fetcher := &fakeFetcher{body: twoFillUps}
		srv := newTestServer(t, fetcher, &fakeSubmitter{})

		do(srv, http.MethodGet, "/api/history", nil)
		do(srv, http.MethodGet, "/api/history", nil)
		if n := fetcher.calls.Load(); n != 1 {
			t.Fatalf("fetches = %d, want 1", n)
		}
		do(srv, http.MethodGet, "/api/history?refresh=1", nil)
		if n := fetcher.calls.Load(); n != 2 {
			t.Fatalf("fetches after refresh = %d, want 2", n)
		}
	})
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{body: twoFillUps}, &fakeSubmitter{})
	if rr := do(srv, http.MethodGet, "/ui/form?x=../../etc/passwd", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}
