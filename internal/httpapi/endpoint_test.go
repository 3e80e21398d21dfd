package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"guildgate/internal/apierr"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		token  string
		code   apierr.Code
	}{
		{"valid", "Bearer abc123", "abc123", ""},
		{"missing header", "", "", apierr.CodeUnauthorized},
		{"wrong scheme", "Token abc123", "", apierr.CodeBadSyntax},
		{"empty token", "Bearer ", "", apierr.CodeBadSyntax},
		{"embedded whitespace", "Bearer abc 123", "", apierr.CodeBadSyntax},
		{"lowercase scheme", "bearer abc123", "", apierr.CodeBadSyntax},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/members", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			token, err := bearerToken(r)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if token != tc.token {
					t.Fatalf("expected token %q, got %q", tc.token, token)
				}
				return
			}
			typed, ok := apierr.As(err)
			if !ok || typed.Code != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestProtectedRouteAuthFailures(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, env.handler.Members, http.MethodGet, "/api/members", "", "")
	assertAPIError(t, w, http.StatusUnauthorized, apierr.CodeUnauthorized)

	w = env.request(t, env.handler.Members, http.MethodGet, "/api/members", "unknown-token", "")
	assertAPIError(t, w, http.StatusUnauthorized, apierr.CodeInvalidAuthentication)

	r := httptest.NewRequest(http.MethodGet, "/api/members", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	recorder := httptest.NewRecorder()
	env.handler.Members(recorder, r)
	assertAPIError(t, recorder, http.StatusBadRequest, apierr.CodeBadSyntax)
}

func TestQueryAllowListNamesUnknownKeys(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, env.handler.Members, http.MethodGet, "/api/members?bogus=1&page=1&pageSize=10", testServiceToken, "")
	assertAPIError(t, w, http.StatusBadRequest, apierr.CodeInvalidQueryParameters)
	if !strings.Contains(decodeEnvelope(t, w).Message, "bogus") {
		t.Fatalf("expected offending key in message, got %q", w.Body.String())
	}
}

func TestResolvePage(t *testing.T) {
	cases := []struct {
		name  string
		query string
		page  *Page
		fails bool
	}{
		{"absent", "", nil, false},
		{"valid", "page=2&pageSize=25", &Page{Number: 2, Size: 25}, false},
		{"page without size", "page=2", nil, true},
		{"size without page", "pageSize=25", nil, true},
		{"zero page", "page=0&pageSize=25", nil, true},
		{"negative size", "page=1&pageSize=-5", nil, true},
		{"non-numeric", "page=abc&pageSize=25", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			page, err := resolvePage(query)
			if tc.fails {
				typed, ok := apierr.As(err)
				if !ok || typed.Code != apierr.CodeBadSyntax {
					t.Fatalf("expected BadSyntax, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.page == nil {
				if page != nil {
					t.Fatalf("expected nil page, got %+v", page)
				}
				return
			}
			if page == nil || page.Number != tc.page.Number || page.Size != tc.page.Size {
				t.Fatalf("expected %+v, got %+v", tc.page, page)
			}
		})
	}
}

func TestPageBounds(t *testing.T) {
	cases := []struct {
		name       string
		page       *Page
		total      int
		start, end int
	}{
		{"nil page sees everything", nil, 7, 0, 7},
		{"first window", &Page{Number: 1, Size: 3}, 7, 0, 3},
		{"middle window", &Page{Number: 2, Size: 3}, 7, 3, 6},
		{"trailing partial window", &Page{Number: 3, Size: 3}, 7, 6, 7},
		{"window past the end", &Page{Number: 4, Size: 3}, 7, 7, 7},
		{"huge page number", &Page{Number: 4611686018427387904, Size: 4}, 3, 3, 3},
		{"huge page size", &Page{Number: 2, Size: 1 << 62}, 3, 3, 3},
		{"huge number and size", &Page{Number: 1 << 40, Size: 1 << 40}, 3, 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := tc.page.Bounds(tc.total)
			if start != tc.start || end != tc.end {
				t.Fatalf("expected [%d, %d), got [%d, %d)", tc.start, tc.end, start, end)
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	for raw, want := range map[string]Format{"": FormatJSON, "json": FormatJSON, "csv": FormatCSV, "CSV": FormatCSV} {
		query := url.Values{}
		if raw != "" {
			query.Set("format", raw)
		}
		format, err := resolveFormat(query)
		if err != nil {
			t.Fatalf("format %q: unexpected error %v", raw, err)
		}
		if format != want {
			t.Fatalf("format %q: expected %s, got %s", raw, want, format)
		}
	}

	query := url.Values{"format": []string{"xml"}}
	_, err := resolveFormat(query)
	typed, ok := apierr.As(err)
	if !ok || typed.Code != apierr.CodeBadSyntax {
		t.Fatalf("expected BadSyntax for xml, got %v", err)
	}
}

func TestPaginationSlicesResults(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, env.handler.Members, http.MethodGet, "/api/members?page=2&pageSize=1", testServiceToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, env.officer.Name) || !strings.Contains(body, env.raider.Name) {
		t.Fatalf("expected only the second member in window, got %s", body)
	}
}

func TestPaginationWindowPastEndIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, env.handler.Members, http.MethodGet, "/api/members?page=4611686018427387904&pageSize=4", testServiceToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Fatalf("expected an empty window, got %s", got)
	}
}

func TestValidateBody(t *testing.T) {
	cases := []struct {
		name string
		body string
		code apierr.Code
	}{
		{"empty", "", apierr.CodeJSONValidation},
		{"malformed", `{"code":`, apierr.CodeBadSyntax},
		{"schema violation", `{"code": ""}`, apierr.CodeJSONValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validateBody(loginSchema, []byte(tc.body))
			typed, ok := apierr.As(err)
			if !ok || typed.Code != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	decoded, err := validateBody(loginSchema, []byte(`{"code": "oauth-code"}`))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if decoded["code"] != "oauth-code" {
		t.Fatalf("unexpected decoded body %v", decoded)
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := paginate(items, nil); len(got) != 5 {
		t.Fatalf("expected full range without a page, got %v", got)
	}
	if got := paginate(items, &Page{Number: 2, Size: 2}); len(got) != 2 || got[0] != 3 {
		t.Fatalf("unexpected window %v", got)
	}
}
