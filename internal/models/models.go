package models

import (
	"time"
)

// Member is a guild roster entry. Members are provisioned out of band and
// matched against the identity provider profile at login time through their
// Discord identifier.
type Member struct {
	ID        string    `json:"id"`
	DiscordID string    `json:"discordId"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Role maps a roster role name to the flat permission set it grants.
type Role struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Category groups raids for directory listings.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Raid is a scheduled raid event.
type Raid struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CategoryID  string    `json:"categoryId"`
	LeaderID    string    `json:"leaderId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Composition is a named member line-up attached to a raid.
type Composition struct {
	ID        string    `json:"id"`
	RaidID    string    `json:"raidId"`
	Name      string    `json:"name"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
}
