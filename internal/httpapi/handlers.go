package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"guildgate/internal/apierr"
	"guildgate/internal/auth"
	"guildgate/internal/models"
	"guildgate/internal/observability/metrics"
	"guildgate/internal/storage"
)

// Permission names understood by the roster role mapping.
const (
	PermissionRaidsManage        = "raids.manage"
	PermissionCompositionsManage = "compositions.manage"
)

// Handler fronts the REST API. Dependencies are injected at construction
// time; there are no package-level fallbacks.
type Handler struct {
	Store   storage.Repository
	Auth    *auth.Authenticator
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// NewHandler constructs a Handler for the provided repository and
// authenticator.
func NewHandler(store storage.Repository, authenticator *auth.Authenticator, logger *slog.Logger, recorder *metrics.Recorder) *Handler {
	return &Handler{Store: store, Auth: authenticator, Logger: logger, Metrics: recorder}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// serve dispatches by HTTP verb over the route's endpoint set.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, pathParam string, endpoints map[string]*Endpoint) {
	endpoint, ok := endpoints[r.Method]
	if !ok {
		http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}
	h.run(w, r, endpoint, pathParam)
}

// Health reports service and datastore liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}
	status := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		h.logger().Error("datastore ping failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// Login exchanges an OAuth authorization code for a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", map[string]*Endpoint{
		http.MethodPost: {
			Schema: loginSchema,
			Execute: func(req *Request) (any, error) {
				result, err := h.Auth.LoginWithCode(req.Context, stringField(req.Body, "code"))
				if err != nil {
					if h.Metrics != nil {
						h.Metrics.ObserveAuthEvent(metrics.AuthLoginDenied)
					}
					return nil, err
				}
				if h.Metrics != nil {
					h.Metrics.ObserveAuthEvent(metrics.AuthLoginSucceeded)
				}
				return result, nil
			},
		},
	})
}

// Session describes the authenticated caller.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", map[string]*Endpoint{
		http.MethodGet: {
			Protected: true,
			Execute: func(req *Request) (any, error) {
				payload := map[string]any{
					"identity": req.Client.Identity(),
				}
				switch client := req.Client.(type) {
				case *auth.ServiceClient:
					payload["kind"] = "service"
				case *auth.UserSession:
					payload["kind"] = "user"
					payload["memberId"] = client.MemberID()
					payload["userInfo"] = client.Profile()
				}
				return payload, nil
			},
		},
	})
}

// Logout evicts the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", map[string]*Endpoint{
		http.MethodPost: {
			Protected:     true,
			SuccessStatus: http.StatusNoContent,
			Execute: func(req *Request) (any, error) {
				h.Auth.Logout(req.Client.Token())
				return nil, nil
			},
		},
	})
}

// Members lists the guild roster.
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", map[string]*Endpoint{
		http.MethodGet: {
			Protected:  true,
			Paginated:  true,
			Negotiable: true,
			Execute: func(req *Request) (any, error) {
				return memberList(paginate(h.Store.ListMembers(), req.Page)), nil
			},
		},
	})
}

// MemberByID returns a single roster entry.
func (h *Handler) MemberByID(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pathSuffix(r, "/api/members/"), map[string]*Endpoint{
		http.MethodGet: {
			Protected: true,
			Execute: func(req *Request) (any, error) {
				return h.Store.MemberByID(req.PathParam)
			},
		},
	})
}

// Categories lists raid categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", map[string]*Endpoint{
		http.MethodGet: {
			Protected: true,
			Execute: func(req *Request) (any, error) {
				return h.Store.ListCategories(), nil
			},
		},
	})
}

// Raids lists and schedules raids.
func (h *Handler) Raids(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", map[string]*Endpoint{
		http.MethodGet: {
			Protected:    true,
			Paginated:    true,
			Negotiable:   true,
			AllowedQuery: []string{"category"},
			Execute: func(req *Request) (any, error) {
				raids := h.Store.ListRaids(req.Query.Get("category"))
				return raidList(paginate(raids, req.Page)), nil
			},
		},
		http.MethodPost: {
			Protected:     true,
			Permissions:   []string{PermissionRaidsManage},
			Schema:        raidCreateSchema,
			SuccessStatus: http.StatusCreated,
			Execute: func(req *Request) (any, error) {
				scheduledAt, err := timeField(req.Body, "scheduledAt")
				if err != nil {
					return nil, err
				}
				return h.Store.CreateRaid(storage.CreateRaidParams{
					Name:        stringField(req.Body, "name"),
					CategoryID:  stringField(req.Body, "categoryId"),
					LeaderID:    stringField(req.Body, "leaderId"),
					ScheduledAt: scheduledAt,
				})
			},
		},
	})
}

// RaidByID reads, updates, and deletes a single raid.
func (h *Handler) RaidByID(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pathSuffix(r, "/api/raids/"), map[string]*Endpoint{
		http.MethodGet: {
			Protected: true,
			Execute: func(req *Request) (any, error) {
				return h.Store.RaidByID(req.PathParam)
			},
		},
		http.MethodPut: {
			Protected:   true,
			Permissions: []string{PermissionRaidsManage},
			Schema:      raidUpdateSchema,
			Execute: func(req *Request) (any, error) {
				update := storage.RaidUpdate{}
				if value, ok := req.Body["name"]; ok {
					name, _ := value.(string)
					update.Name = &name
				}
				if value, ok := req.Body["categoryId"]; ok {
					categoryID, _ := value.(string)
					update.CategoryID = &categoryID
				}
				if value, ok := req.Body["leaderId"]; ok {
					leaderID, _ := value.(string)
					update.LeaderID = &leaderID
				}
				if _, ok := req.Body["scheduledAt"]; ok {
					scheduledAt, err := timeField(req.Body, "scheduledAt")
					if err != nil {
						return nil, err
					}
					update.ScheduledAt = &scheduledAt
				}
				return h.Store.UpdateRaid(req.PathParam, update)
			},
		},
		http.MethodDelete: {
			Protected:     true,
			Permissions:   []string{PermissionRaidsManage},
			SuccessStatus: http.StatusNoContent,
			Execute: func(req *Request) (any, error) {
				return nil, h.Store.DeleteRaid(req.PathParam)
			},
		},
	})
}

// Compositions lists and records raid line-ups.
func (h *Handler) Compositions(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "", map[string]*Endpoint{
		http.MethodGet: {
			Protected:    true,
			Paginated:    true,
			AllowedQuery: []string{"raid"},
			Execute: func(req *Request) (any, error) {
				compositions := h.Store.ListCompositions(req.Query.Get("raid"))
				return paginate(compositions, req.Page), nil
			},
		},
		http.MethodPost: {
			Protected:     true,
			Permissions:   []string{PermissionCompositionsManage},
			Schema:        compositionCreateSchema,
			SuccessStatus: http.StatusCreated,
			Execute: func(req *Request) (any, error) {
				return h.Store.CreateComposition(storage.CreateCompositionParams{
					RaidID:    stringField(req.Body, "raidId"),
					Name:      stringField(req.Body, "name"),
					MemberIDs: stringSliceField(req.Body, "memberIds"),
				})
			},
		},
	})
}

// CompositionByID returns a single line-up.
func (h *Handler) CompositionByID(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pathSuffix(r, "/api/compositions/"), map[string]*Endpoint{
		http.MethodGet: {
			Protected: true,
			Execute: func(req *Request) (any, error) {
				return h.Store.CompositionByID(req.PathParam)
			},
		},
	})
}

func pathSuffix(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

func stringField(body map[string]any, key string) string {
	value, _ := body[key].(string)
	return strings.TrimSpace(value)
}

func stringSliceField(body map[string]any, key string) []string {
	raw, _ := body[key].([]any)
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if value, ok := item.(string); ok {
			values = append(values, strings.TrimSpace(value))
		}
	}
	return values
}

func timeField(body map[string]any, key string) (time.Time, error) {
	raw := stringField(body, key)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apierr.BadSyntax(fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
	}
	return parsed, nil
}

type memberList []models.Member

func (l memberList) CSVHeader() []string {
	return []string{"id", "discordId", "name", "roles", "joinedAt"}
}

func (l memberList) CSVRecords() [][]string {
	records := make([][]string, 0, len(l))
	for _, member := range l {
		records = append(records, []string{
			member.ID,
			member.DiscordID,
			member.Name,
			strings.Join(member.Roles, ";"),
			member.JoinedAt.UTC().Format(time.RFC3339),
		})
	}
	return records
}

type raidList []models.Raid

func (l raidList) CSVHeader() []string {
	return []string{"id", "name", "categoryId", "leaderId", "scheduledAt"}
}

func (l raidList) CSVRecords() [][]string {
	records := make([][]string, 0, len(l))
	for _, raid := range l {
		records = append(records, []string{
			raid.ID,
			raid.Name,
			raid.CategoryID,
			raid.LeaderID,
			raid.ScheduledAt.UTC().Format(time.RFC3339),
		})
	}
	return records
}
