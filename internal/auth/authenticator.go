package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"guildgate/internal/apierr"
	"guildgate/internal/auth/identity"
	"guildgate/internal/models"
	"guildgate/internal/observability/metrics"
	"guildgate/internal/storage"
)

// DefaultIdleWindow is the inactivity duration after which a user session
// expires.
const DefaultIdleWindow = 10 * time.Hour

const defaultTokenLength = 32

// Directory is the member-directory collaborator consulted during login and
// permission checks.
type Directory interface {
	MemberByDiscordID(discordID string) (models.Member, error)
	PermissionsForMember(id string) ([]string, error)
}

// IdentityBridge drives the two outbound identity-provider calls of a login.
type IdentityBridge interface {
	ExchangeCode(ctx context.Context, code string) (identity.TokenInfo, error)
	FetchProfile(ctx context.Context, token identity.TokenInfo) (identity.UserProfile, error)
}

// Config controls authenticator behaviour.
type Config struct {
	// CredentialPath locates the service credential file. Empty disables
	// service clients.
	CredentialPath string
	// IdleWindow overrides DefaultIdleWindow when positive.
	IdleWindow time.Duration
	// TokenLength sets the random byte length of generated session tokens.
	TokenLength int
}

// LoginResult is returned to the HTTP layer after a successful login.
type LoginResult struct {
	Token   string               `json:"token"`
	Profile identity.UserProfile `json:"userInfo"`
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the time source, used by expiry tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithMetrics attaches a recorder for auth event counters.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(a *Authenticator) {
		a.metrics = recorder
	}
}

// WithTokenFactory overrides session token generation.
func WithTokenFactory(factory func(int) (string, error)) Option {
	return func(a *Authenticator) {
		if factory != nil {
			a.tokenFactory = factory
		}
	}
}

// Authenticator resolves bearer tokens to authenticated clients and mediates
// the OAuth login flow. It owns the session registry; no other component
// mutates it.
type Authenticator struct {
	cfg          Config
	registry     *Registry
	directory    Directory
	bridge       IdentityBridge
	logger       *slog.Logger
	metrics      *metrics.Recorder
	now          func() time.Time
	tokenFactory func(int) (string, error)
}

var (
	setupMu sync.Mutex
	active  *Authenticator
)

// New constructs the process-scoped authenticator. A second call fails until
// Reset is invoked; collaborators receive the handle explicitly rather than
// reaching for globals.
func New(cfg Config, directory Directory, bridge IdentityBridge, logger *slog.Logger, opts ...Option) (*Authenticator, error) {
	setupMu.Lock()
	defer setupMu.Unlock()
	if active != nil {
		return nil, apierr.Server("authenticator already configured")
	}
	if directory == nil {
		return nil, apierr.Server("authenticator requires a member directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = DefaultIdleWindow
	}
	if cfg.TokenLength <= 0 {
		cfg.TokenLength = defaultTokenLength
	}
	authenticator := &Authenticator{
		cfg:          cfg,
		registry:     NewRegistry(),
		directory:    directory,
		bridge:       bridge,
		logger:       logger,
		now:          time.Now,
		tokenFactory: generateToken,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(authenticator)
		}
	}
	if cfg.CredentialPath != "" {
		if err := authenticator.ReloadCredentials(); err != nil {
			return nil, err
		}
	}
	active = authenticator
	return authenticator, nil
}

// Instance returns the process-scoped authenticator. Use before New fails
// explicitly instead of misbehaving silently.
func Instance() (*Authenticator, error) {
	setupMu.Lock()
	defer setupMu.Unlock()
	if active == nil {
		return nil, apierr.Server("authenticator not configured")
	}
	return active, nil
}

// Reset clears the process-scoped handle so a fresh authenticator can be
// configured. Intended for tests and coordinated shutdown.
func Reset() {
	setupMu.Lock()
	active = nil
	setupMu.Unlock()
}

// Authenticate resolves the presented token. Unknown tokens fail with
// InvalidAuthentication, expired sessions with SessionExpired; success
// records activity and returns the client.
func (a *Authenticator) Authenticate(token string) (Client, error) {
	if token == "" {
		return nil, apierr.InvalidAuthentication("")
	}
	client, status := a.registry.Resolve(token, a.now())
	switch status {
	case ResolveUnknown:
		return nil, apierr.InvalidAuthentication("")
	case ResolveExpired:
		if a.metrics != nil {
			a.metrics.ObserveAuthEvent(metrics.AuthSessionExpired)
		}
		return nil, apierr.SessionExpired()
	}
	return client, nil
}

// LoginWithCode exchanges the OAuth code, verifies guild membership, and
// installs a fresh user session. Nothing is inserted into the registry until
// both provider calls and the member check have succeeded.
func (a *Authenticator) LoginWithCode(ctx context.Context, code string) (LoginResult, error) {
	if a.bridge == nil {
		return LoginResult{}, apierr.Server("identity provider not configured")
	}
	tokenInfo, err := a.bridge.ExchangeCode(ctx, code)
	if err != nil {
		a.logger.Error("token exchange failed", "error", err)
		return LoginResult{}, apierr.Server("identity provider request failed")
	}
	profile, err := a.bridge.FetchProfile(ctx, tokenInfo)
	if err != nil {
		a.logger.Error("profile fetch failed", "error", err)
		return LoginResult{}, apierr.Server("identity provider request failed")
	}
	member, err := a.directory.MemberByDiscordID(profile.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoginResult{}, apierr.Unauthorized("not a member")
		}
		a.logger.Error("member lookup failed", "error", err, "discord_id", profile.ID)
		return LoginResult{}, apierr.Server("member lookup failed")
	}
	token, err := a.tokenFactory(a.cfg.TokenLength)
	if err != nil {
		a.logger.Error("token generation failed", "error", err)
		return LoginResult{}, apierr.Server("session token generation failed")
	}
	session := NewUserSession(token, member.ID, tokenInfo, profile, a.now(), a.cfg.IdleWindow)
	a.registry.InsertUserSession(session)
	a.logger.Info("login succeeded", "member_id", member.ID, "discord_id", profile.ID)
	return LoginResult{Token: token, Profile: profile}, nil
}

// Logout evicts the session for the provided token.
func (a *Authenticator) Logout(token string) {
	a.registry.Remove(token)
}

// HasPermission reports whether the client satisfies the required permission
// set. Service clients always do; user sessions resolve their roster roles
// through the directory on every check, and an unknown member grants nothing.
func (a *Authenticator) HasPermission(client Client, required []string) bool {
	if len(required) == 0 {
		return true
	}
	switch typed := client.(type) {
	case *ServiceClient:
		return true
	case *UserSession:
		granted, err := a.directory.PermissionsForMember(typed.MemberID())
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				a.logger.Error("permission lookup failed", "error", err, "member_id", typed.MemberID())
			}
			return false
		}
		held := make(map[string]struct{}, len(granted))
		for _, permission := range granted {
			held[permission] = struct{}{}
		}
		for _, permission := range required {
			if _, ok := held[permission]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ReloadCredentials re-reads the credential file and atomically swaps the
// service client set. A failed read or parse leaves the registry untouched.
func (a *Authenticator) ReloadCredentials() error {
	if a.cfg.CredentialPath == "" {
		return nil
	}
	credentials, err := LoadCredentials(a.cfg.CredentialPath)
	if err != nil {
		return err
	}
	a.registry.ReplaceServiceClients(credentials)
	a.logger.Info("service credentials reloaded", "count", len(credentials))
	return nil
}

// SessionCounts reports the registered service client and user session
// totals for observability.
func (a *Authenticator) SessionCounts() (services, sessions int) {
	return a.registry.Counts()
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
