package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"guildgate/internal/apierr"
	"guildgate/internal/auth"
)

// Format identifies a negotiated response encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// maxBodyBytes bounds request bodies read by write verbs.
const maxBodyBytes = 1 << 20

// Page is a resolved pagination window. A nil *Page means the endpoint was
// called without pagination and sees the full range.
type Page struct {
	Number int
	Size   int
}

// Bounds returns the half-open slice bounds of the window within total items.
// Windows starting past the end are empty; the arithmetic is guarded so large
// page numbers or sizes cannot overflow into negative bounds.
func (p *Page) Bounds(total int) (int, int) {
	if p == nil {
		return 0, total
	}
	if p.Number < 1 || p.Size < 1 || p.Number-1 > total/p.Size {
		return total, total
	}
	start := (p.Number - 1) * p.Size
	end := total
	if p.Size < total-start {
		end = start + p.Size
	}
	return start, end
}

// Request is the per-call context handed to an endpoint's execute strategy.
// It is owned by exactly one in-flight request and never shared.
type Request struct {
	Context   context.Context
	ArrivedAt time.Time
	Query     url.Values
	PathParam string
	Body      map[string]any
	// Client is the resolved caller; nil on unprotected routes.
	Client auth.Client
	Page   *Page
	Format Format
}

// Endpoint declares one route's lifecycle requirements. The shared pipeline
// in Handler.serve runs the same stages for every verb; only the execute
// strategy and success status differ.
type Endpoint struct {
	// Protected routes authenticate the bearer token before anything else.
	Protected bool
	// Permissions is the flat permission set required of the caller.
	Permissions []string
	// AllowedQuery is the endpoint's query key allow-list. Pagination and
	// format keys are implied by the flags below.
	AllowedQuery []string
	Paginated    bool
	// Negotiable endpoints accept an optional format query parameter.
	Negotiable bool
	// Schema validates write-verb bodies; nil skips body handling.
	Schema *gojsonschema.Schema
	// Execute runs the endpoint's business logic.
	Execute func(req *Request) (any, error)
	// SuccessStatus defaults to 200; writes set 201 or 204.
	SuccessStatus int
}

// CSVMarshaler is implemented by results that can render as CSV when the
// caller negotiates the csv format.
type CSVMarshaler interface {
	CSVHeader() []string
	CSVRecords() [][]string
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, e *Endpoint, pathParam string) {
	result, format, err := h.execute(r, e, pathParam)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	status := e.SuccessStatus
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent || result == nil {
		w.WriteHeader(status)
		return
	}
	if format == FormatCSV {
		writeCSV(w, status, result)
		return
	}
	writeJSON(w, status, result)
}

func (h *Handler) execute(r *http.Request, e *Endpoint, pathParam string) (any, Format, error) {
	req := &Request{
		Context:   r.Context(),
		ArrivedAt: time.Now(),
		Query:     r.URL.Query(),
		PathParam: pathParam,
		Format:    FormatJSON,
	}

	var body []byte
	if e.Schema != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, req.Format, apierr.BadSyntax("read request body")
		}
		body = data
	}

	if e.Protected {
		token, err := bearerToken(r)
		if err != nil {
			return nil, req.Format, err
		}
		client, err := h.Auth.Authenticate(token)
		if err != nil {
			return nil, req.Format, err
		}
		req.Client = client
		if record := auditRecordFromContext(req.Context); record != nil {
			record.ClientID = client.Identity()
		}
	}

	if len(e.Permissions) > 0 {
		if req.Client == nil || !h.Auth.HasPermission(req.Client, e.Permissions) {
			return nil, req.Format, apierr.Unauthorized("insufficient permission")
		}
	}

	if err := validateQueryKeys(req.Query, e); err != nil {
		return nil, req.Format, err
	}
	if e.Paginated {
		page, err := resolvePage(req.Query)
		if err != nil {
			return nil, req.Format, err
		}
		req.Page = page
	}
	if e.Negotiable {
		format, err := resolveFormat(req.Query)
		if err != nil {
			return nil, req.Format, err
		}
		req.Format = format
	}
	if e.Schema != nil {
		decoded, err := validateBody(e.Schema, body)
		if err != nil {
			return nil, req.Format, err
		}
		req.Body = decoded
	}

	result, err := e.Execute(req)
	if err != nil {
		return nil, req.Format, err
	}
	return result, req.Format, nil
}

// bearerToken extracts the token from a literal "Bearer <token>" header. A
// missing header is an authorization failure; a malformed one is a syntax
// failure.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apierr.Unauthorized("missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", apierr.BadSyntax("authorization header must be of the form 'Bearer <token>'")
	}
	token := header[len(prefix):]
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", apierr.BadSyntax("authorization header must be of the form 'Bearer <token>'")
	}
	return token, nil
}

func validateQueryKeys(query url.Values, e *Endpoint) error {
	allowed := make(map[string]struct{}, len(e.AllowedQuery)+3)
	for _, key := range e.AllowedQuery {
		allowed[key] = struct{}{}
	}
	if e.Paginated {
		allowed["page"] = struct{}{}
		allowed["pageSize"] = struct{}{}
	}
	if e.Negotiable {
		allowed["format"] = struct{}{}
	}
	var unknown []string
	for key := range query {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		return apierr.InvalidQueryParameters(unknown...)
	}
	return nil
}

// resolvePage enforces that page and pageSize arrive together as positive
// integers. Both absent means the endpoint sees the full range.
func resolvePage(query url.Values) (*Page, error) {
	pageRaw, hasPage := firstValue(query, "page")
	sizeRaw, hasSize := firstValue(query, "pageSize")
	if !hasPage && !hasSize {
		return nil, nil
	}
	if hasPage != hasSize {
		return nil, apierr.BadSyntax("page and pageSize must be provided together")
	}
	number, err := strconv.Atoi(pageRaw)
	if err != nil || number <= 0 {
		return nil, apierr.BadSyntax(fmt.Sprintf("page must be a positive integer, got %q", pageRaw))
	}
	size, err := strconv.Atoi(sizeRaw)
	if err != nil || size <= 0 {
		return nil, apierr.BadSyntax(fmt.Sprintf("pageSize must be a positive integer, got %q", sizeRaw))
	}
	return &Page{Number: number, Size: size}, nil
}

func resolveFormat(query url.Values) (Format, error) {
	raw, ok := firstValue(query, "format")
	if !ok {
		return FormatJSON, nil
	}
	switch Format(strings.ToLower(raw)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return FormatJSON, apierr.BadSyntax(fmt.Sprintf("format must be one of json, csv, got %q", raw))
	}
}

func firstValue(query url.Values, key string) (string, bool) {
	values, ok := query[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// validateBody checks the payload against the endpoint schema and decodes it.
// Malformed JSON is a syntax failure; the first schema violation is returned
// as a validation failure.
func validateBody(schema *gojsonschema.Schema, body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return nil, apierr.JSONValidation("request body is required")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, apierr.BadSyntax("request body is not valid JSON")
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return nil, apierr.JSONValidation(first.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, apierr.BadSyntax("request body is not valid JSON")
	}
	return decoded, nil
}

// paginate applies the resolved window to a full result set.
func paginate[T any](items []T, page *Page) []T {
	start, end := page.Bounds(len(items))
	return items[start:end]
}
