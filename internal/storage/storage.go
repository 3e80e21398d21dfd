// Package storage provides the datastore behind the guildgate API: guild
// members with their roles, raid categories, raids, and compositions.
//
// Two implementations exist: a JSON-file-backed in-memory repository for
// development and single-instance deployments, and a Postgres repository built
// on pgx connection pooling for production use.
package storage

import (
	"context"
	"errors"
	"time"

	"guildgate/internal/models"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("not found")

// ErrInvalidID is returned when an identifier cannot be cast to the datastore
// key type. The HTTP layer renders it as a 404, never as a server failure.
var ErrInvalidID = errors.New("invalid identifier")

// Repository exposes the datastore operations required by the API handlers and
// the authenticator's member and permission lookups.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateMember(params CreateMemberParams) (models.Member, error)
	MemberByID(id string) (models.Member, error)
	MemberByDiscordID(discordID string) (models.Member, error)
	ListMembers() []models.Member

	UpsertRole(role models.Role) error
	ListRoles() []models.Role
	// PermissionsForMember resolves the union of the member's role
	// permissions. A missing member yields ErrNotFound.
	PermissionsForMember(id string) ([]string, error)

	CreateCategory(name string) (models.Category, error)
	ListCategories() []models.Category

	CreateRaid(params CreateRaidParams) (models.Raid, error)
	RaidByID(id string) (models.Raid, error)
	ListRaids(categoryID string) []models.Raid
	UpdateRaid(id string, update RaidUpdate) (models.Raid, error)
	DeleteRaid(id string) error

	CreateComposition(params CreateCompositionParams) (models.Composition, error)
	CompositionByID(id string) (models.Composition, error)
	ListCompositions(raidID string) []models.Composition
}

// CreateMemberParams captures the fields required to provision a member.
type CreateMemberParams struct {
	DiscordID string
	Name      string
	Roles     []string
	JoinedAt  time.Time
}

// CreateRaidParams captures the fields required to schedule a raid.
type CreateRaidParams struct {
	Name        string
	CategoryID  string
	LeaderID    string
	ScheduledAt time.Time
}

// RaidUpdate describes a partial raid update. Nil fields are left unchanged.
type RaidUpdate struct {
	Name        *string
	CategoryID  *string
	LeaderID    *string
	ScheduledAt *time.Time
}

// CreateCompositionParams captures the fields required to record a line-up.
type CreateCompositionParams struct {
	RaidID    string
	Name      string
	MemberIDs []string
}
