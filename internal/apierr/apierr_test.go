package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructorsCarryStatusAndCode(t *testing.T) {
	cases := []struct {
		name   string
		err    *Error
		status int
		code   Code
	}{
		{"invalid authentication", InvalidAuthentication(""), http.StatusUnauthorized, CodeInvalidAuthentication},
		{"session expired", SessionExpired(), StatusSessionExpired, CodeSessionExpired},
		{"unauthorized", Unauthorized(""), http.StatusUnauthorized, CodeUnauthorized},
		{"invalid query parameters", InvalidQueryParameters("bogus"), http.StatusBadRequest, CodeInvalidQueryParameters},
		{"bad syntax", BadSyntax("page must be numeric"), http.StatusBadRequest, CodeBadSyntax},
		{"json validation", JSONValidation(""), http.StatusBadRequest, CodeJSONValidation},
		{"not found", NotFound("raid"), http.StatusNotFound, CodeResourceNotFound},
		{"server", Server(""), http.StatusInternalServerError, CodeServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, tc.err.Status)
			}
			if tc.err.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.Message == "" {
				t.Fatal("expected a message")
			}
		})
	}
}

func TestEnvelopeMatchesError(t *testing.T) {
	err := NotFound("member")
	envelope := err.Envelope()
	if envelope.Status != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", envelope.Status)
	}
	if envelope.ErrorCode != string(CodeResourceNotFound) {
		t.Fatalf("unexpected error code %q", envelope.ErrorCode)
	}
	if envelope.Message != "member not found" {
		t.Fatalf("unexpected message %q", envelope.Message)
	}
}

func TestInvalidQueryParametersNamesKeys(t *testing.T) {
	err := InvalidQueryParameters("foo", "bar")
	if err.Message != "invalid query parameters: [foo bar]" {
		t.Fatalf("unexpected message %q", err.Message)
	}
}

func TestAsUnwrapsTaxonomyErrors(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Unauthorized("missing permission"))
	typed, ok := As(wrapped)
	if !ok {
		t.Fatal("expected taxonomy error to be extracted")
	}
	if typed.Code != CodeUnauthorized {
		t.Fatalf("unexpected code %s", typed.Code)
	}
	if _, ok := As(errors.New("plain")); ok {
		t.Fatal("expected plain error to be rejected")
	}
}
