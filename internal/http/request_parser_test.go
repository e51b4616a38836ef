package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"prix": 42.5, "litres": "30,1", "kilometres": 600, "note": true}`
	req := httptest.NewRequest(http.MethodPost, "/fillups", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	tests := map[string]string{
		"prix":       "42.5",
		"litres":     "30,1",
		"kilometres": "600",
		"note":       "true",
		"missing":    "",
	}
	for key, want := range tests {
		if got := parser.Get(key); got != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "prix=42.5&litres=+30+&kilometres=600"
	req := httptest.NewRequest(http.MethodPost, "/fillups", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if got := parser.Get("litres"); got != "30" {
		t.Errorf("Get('litres') = %q, want '30'", got)
	}
	if got := parser.Get("kilometres"); got != "600" {
		t.Errorf("Get('kilometres') = %q, want '600'", got)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fillups", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("prix"); val != "" {
		t.Errorf("Get('prix') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fillups", strings.NewReader(`{"prix":`))

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err == nil {
		t.Fatal("expected an error for truncated JSON")
	}
	// the error is sticky
	if err := parser.Parse(); err == nil {
		t.Fatal("expected Parse to keep returning the error")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  42.5 ", "42.5"},
		{"4\x002", "42"},
		{"a\tb", "a\tb"},
		{"\x1b[31m1", "[31m1"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
