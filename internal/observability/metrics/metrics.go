// Package metrics aggregates in-memory counters and gauges for the gateway
// and renders them in Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Auth event names recorded by the authenticator and login handlers.
const (
	AuthLoginSucceeded    = "login_succeeded"
	AuthLoginDenied       = "login_denied"
	AuthSessionExpired    = "session_expired"
	AuthCredentialReload  = "credential_reload"
	AuthCredentialFailure = "credential_reload_failed"
)

// Recorder aggregates HTTP request totals, API error counts by taxonomy code,
// and authentication lifecycle events. It coordinates concurrent writers via
// a RWMutex.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	apiErrors       map[string]uint64
	authEvents      map[string]uint64
	serviceClients  int64
	userSessions    int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		apiErrors:       make(map[string]uint64),
		authEvents:      make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by packages that do not
// require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates totals for request count and cumulative duration
// by HTTP method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: strconv.Itoa(status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveAPIError counts a rendered error envelope by taxonomy code.
func (r *Recorder) ObserveAPIError(code string) {
	if code == "" {
		return
	}
	r.mu.Lock()
	r.apiErrors[code]++
	r.mu.Unlock()
}

// ObserveAuthEvent counts an authentication lifecycle event.
func (r *Recorder) ObserveAuthEvent(event string) {
	if event == "" {
		return
	}
	r.mu.Lock()
	r.authEvents[event]++
	r.mu.Unlock()
}

// SetSessionCounts records the current registry population.
func (r *Recorder) SetSessionCounts(services, sessions int) {
	r.mu.Lock()
	r.serviceClients = int64(services)
	r.userSessions = int64(sessions)
	r.mu.Unlock()
}

// Reset clears all recorded values; tests use it to isolate observations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.apiErrors = make(map[string]uint64)
	r.authEvents = make(map[string]uint64)
	r.serviceClients = 0
	r.userSessions = 0
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	errorCodes := sortedKeys(r.apiErrors)
	authEvents := sortedKeys(r.authEvents)

	fmt.Fprintln(w, "# HELP guildgate_http_requests_total Total number of HTTP requests processed by the gateway")
	fmt.Fprintln(w, "# TYPE guildgate_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "guildgate_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP guildgate_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE guildgate_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "guildgate_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP guildgate_api_errors_total Error envelopes rendered by taxonomy code")
	fmt.Fprintln(w, "# TYPE guildgate_api_errors_total counter")
	for _, code := range errorCodes {
		fmt.Fprintf(w, "guildgate_api_errors_total{code=%q} %d\n", code, r.apiErrors[code])
	}

	fmt.Fprintln(w, "# HELP guildgate_auth_events_total Authentication lifecycle events by type")
	fmt.Fprintln(w, "# TYPE guildgate_auth_events_total counter")
	for _, event := range authEvents {
		fmt.Fprintf(w, "guildgate_auth_events_total{event=%q} %d\n", event, r.authEvents[event])
	}

	fmt.Fprintln(w, "# HELP guildgate_service_clients Registered service clients from the credential file")
	fmt.Fprintln(w, "# TYPE guildgate_service_clients gauge")
	fmt.Fprintf(w, "guildgate_service_clients %d\n", r.serviceClients)

	fmt.Fprintln(w, "# HELP guildgate_user_sessions Active user sessions in the registry")
	fmt.Fprintln(w, "# TYPE guildgate_user_sessions gauge")
	fmt.Fprintf(w, "guildgate_user_sessions %d\n", r.userSessions)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(values map[string]uint64) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// normalizePath collapses identifier segments so metrics cardinality stays
// bounded.
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if _, err := strconv.ParseInt(segment, 10, 64); err == nil {
		return true
	}
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}
