// Package auth implements the authenticator behind the guildgate API: a
// registry of authenticated clients keyed by bearer token, fed by a
// hot-reloadable service credential file and by OAuth logins through the
// identity provider.
package auth

import (
	"time"

	"guildgate/internal/auth/identity"
)

// Kind discriminates the two authenticated client variants.
type Kind int

const (
	// KindService is a statically provisioned caller from the credential
	// file. Service clients never expire and pass every permission check.
	KindService Kind = iota
	// KindUser is a time-limited session created by an OAuth login, bound
	// to one provider profile.
	KindUser
)

// Client is an authenticated caller resolved from a bearer token. The sealed
// method keeps the variant set closed so eviction and permission logic can
// switch exhaustively on Kind.
type Client interface {
	Kind() Kind
	Token() string
	Identity() string
	Expired(now time.Time) bool

	sealed()
}

// ServiceClient is the credential-file variant.
type ServiceClient struct {
	token    string
	identity string
}

// NewServiceClient constructs a service client for the provided token and
// identity string.
func NewServiceClient(token, identityName string) *ServiceClient {
	return &ServiceClient{token: token, identity: identityName}
}

func (c *ServiceClient) Kind() Kind       { return KindService }
func (c *ServiceClient) Token() string    { return c.token }
func (c *ServiceClient) Identity() string { return c.identity }

// Expired always reports false: service clients live until the credential
// file stops listing them.
func (c *ServiceClient) Expired(time.Time) bool { return false }

func (c *ServiceClient) sealed() {}

// UserSession is the OAuth login variant. Activity extends the idle window;
// expiry is evaluated lazily at authentication time.
type UserSession struct {
	token        string
	memberID     string
	tokenInfo    identity.TokenInfo
	profile      identity.UserProfile
	lastActivity time.Time
	idleWindow   time.Duration
}

// NewUserSession constructs a session for the provided profile. memberID is
// the roster identifier resolved during login.
func NewUserSession(token, memberID string, tokenInfo identity.TokenInfo, profile identity.UserProfile, now time.Time, idleWindow time.Duration) *UserSession {
	return &UserSession{
		token:        token,
		memberID:     memberID,
		tokenInfo:    tokenInfo,
		profile:      profile,
		lastActivity: now,
		idleWindow:   idleWindow,
	}
}

func (s *UserSession) Kind() Kind    { return KindUser }
func (s *UserSession) Token() string { return s.token }

// Identity returns the provider profile id the session is bound to.
func (s *UserSession) Identity() string { return s.profile.ID }

// MemberID returns the roster identifier resolved at login.
func (s *UserSession) MemberID() string { return s.memberID }

// Profile returns the provider profile captured at login.
func (s *UserSession) Profile() identity.UserProfile { return s.profile }

// TokenInfo returns the provider token info captured at login.
func (s *UserSession) TokenInfo() identity.TokenInfo { return s.tokenInfo }

// Expired reports whether the idle window has elapsed since the last
// recorded activity.
func (s *UserSession) Expired(now time.Time) bool {
	return now.After(s.lastActivity.Add(s.idleWindow))
}

// touch records activity, extending the idle window. The registry calls this
// under its lock.
func (s *UserSession) touch(now time.Time) {
	s.lastActivity = now
}

func (s *UserSession) sealed() {}
