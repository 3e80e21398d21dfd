package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteRendersCountersAndGauges(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/api/members/42", 200, 150*time.Millisecond)
	recorder.ObserveRequest("GET", "/api/members/43", 200, 50*time.Millisecond)
	recorder.ObserveAPIError("ResourceNotFound")
	recorder.ObserveAPIError("ResourceNotFound")
	recorder.ObserveAuthEvent(AuthLoginSucceeded)
	recorder.SetSessionCounts(3, 7)

	var out strings.Builder
	recorder.Write(&out)
	rendered := out.String()

	expected := []string{
		`guildgate_http_requests_total{method="GET",path="/api/members/:id",status="200"} 2`,
		`guildgate_http_request_duration_seconds_sum{method="GET",path="/api/members/:id",status="200"} 0.2`,
		`guildgate_api_errors_total{code="ResourceNotFound"} 2`,
		`guildgate_auth_events_total{event="login_succeeded"} 1`,
		"guildgate_service_clients 3",
		"guildgate_user_sessions 7",
	}
	for _, line := range expected {
		if !strings.Contains(rendered, line) {
			t.Fatalf("expected output to contain %q, got:\n%s", line, rendered)
		}
	}
}

func TestObserveIgnoresEmptyNames(t *testing.T) {
	recorder := New()
	recorder.ObserveAPIError("")
	recorder.ObserveAuthEvent("")

	var out strings.Builder
	recorder.Write(&out)
	if strings.Contains(out.String(), `code=""`) || strings.Contains(out.String(), `event=""`) {
		t.Fatalf("expected empty names to be dropped, got:\n%s", out.String())
	}
}

func TestHandlerSetsContentType(t *testing.T) {
	recorder := New()
	w := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if got := w.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(w.Body.String(), "guildgate_http_requests_total") {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestResetClearsState(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("GET", "/api/raids", 200, time.Millisecond)
	recorder.SetSessionCounts(1, 1)
	recorder.Reset()

	var out strings.Builder
	recorder.Write(&out)
	if strings.Contains(out.String(), `path="/api/raids"`) {
		t.Fatalf("expected request counters to be cleared, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "guildgate_user_sessions 0") {
		t.Fatalf("expected gauges to be zeroed, got:\n%s", out.String())
	}
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/api/members", "/api/members"},
		{"/api/members/42", "/api/members/:id"},
		{"/api/raids/abc123", "/api/raids/:id"},
		{"/api/compositions", "/api/compositions"},
		{"/api/raids/0123456789abcdef", "/api/raids/:id"},
		{"/api/raids/", "/api/raids"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
