package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"guildgate/internal/models"
)

// JSONRepository keeps the roster in memory and optionally persists every
// mutation to a JSON snapshot on disk. It is safe for concurrent use.
type JSONRepository struct {
	mu     sync.RWMutex
	path   string
	nextID int64

	members      map[string]models.Member
	roles        map[string]models.Role
	categories   map[string]models.Category
	raids        map[string]models.Raid
	compositions map[string]models.Composition
}

type snapshot struct {
	NextID       int64                `json:"nextId"`
	Members      []models.Member      `json:"members"`
	Roles        []models.Role        `json:"roles"`
	Categories   []models.Category    `json:"categories"`
	Raids        []models.Raid        `json:"raids"`
	Compositions []models.Composition `json:"compositions"`
}

// NewJSONRepository constructs a repository backed by the JSON file at path.
// An empty path keeps the repository purely in memory. A missing file is not
// an error; it is created on the first mutation.
func NewJSONRepository(path string) (*JSONRepository, error) {
	repo := &JSONRepository{
		path:         strings.TrimSpace(path),
		nextID:       1,
		members:      make(map[string]models.Member),
		roles:        make(map[string]models.Role),
		categories:   make(map[string]models.Category),
		raids:        make(map[string]models.Raid),
		compositions: make(map[string]models.Composition),
	}
	if repo.path != "" {
		if err := repo.load(); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (r *JSONRepository) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read datastore %s: %w", r.path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode datastore %s: %w", r.path, err)
	}
	if snap.NextID > 0 {
		r.nextID = snap.NextID
	}
	for _, member := range snap.Members {
		r.members[member.ID] = member
	}
	for _, role := range snap.Roles {
		r.roles[strings.ToLower(role.Name)] = role
	}
	for _, category := range snap.Categories {
		r.categories[category.ID] = category
	}
	for _, raid := range snap.Raids {
		r.raids[raid.ID] = raid
	}
	for _, composition := range snap.Compositions {
		r.compositions[composition.ID] = composition
	}
	return nil
}

// persist writes the snapshot while the caller holds the write lock.
func (r *JSONRepository) persist() error {
	if r.path == "" {
		return nil
	}
	snap := snapshot{
		NextID:       r.nextID,
		Members:      make([]models.Member, 0, len(r.members)),
		Roles:        make([]models.Role, 0, len(r.roles)),
		Categories:   make([]models.Category, 0, len(r.categories)),
		Raids:        make([]models.Raid, 0, len(r.raids)),
		Compositions: make([]models.Composition, 0, len(r.compositions)),
	}
	for _, member := range r.members {
		snap.Members = append(snap.Members, member)
	}
	for _, role := range r.roles {
		snap.Roles = append(snap.Roles, role)
	}
	for _, category := range r.categories {
		snap.Categories = append(snap.Categories, category)
	}
	for _, raid := range r.raids {
		snap.Raids = append(snap.Raids, raid)
	}
	for _, composition := range r.compositions {
		snap.Compositions = append(snap.Compositions, composition)
	}
	sort.Slice(snap.Members, func(i, j int) bool { return snap.Members[i].ID < snap.Members[j].ID })
	sort.Slice(snap.Raids, func(i, j int) bool { return snap.Raids[i].ID < snap.Raids[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode datastore: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create datastore directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write datastore: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace datastore: %w", err)
	}
	return nil
}

func (r *JSONRepository) allocateID() string {
	id := r.nextID
	r.nextID++
	return strconv.FormatInt(id, 10)
}

// parseID validates the numeric key format shared with the Postgres schema.
func parseID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ErrInvalidID
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return nil
}

// Ping always reports success for the in-memory repository.
func (r *JSONRepository) Ping(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory repository.
func (r *JSONRepository) Close(context.Context) error {
	return nil
}

// CreateMember provisions a roster entry.
func (r *JSONRepository) CreateMember(params CreateMemberParams) (models.Member, error) {
	discordID := strings.TrimSpace(params.DiscordID)
	name := strings.TrimSpace(params.Name)
	if discordID == "" {
		return models.Member{}, fmt.Errorf("discord id is required")
	}
	if name == "" {
		return models.Member{}, fmt.Errorf("member name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members {
		if existing.DiscordID == discordID {
			return models.Member{}, fmt.Errorf("member with discord id %s already exists", discordID)
		}
	}
	joined := params.JoinedAt
	if joined.IsZero() {
		joined = time.Now().UTC()
	}
	member := models.Member{
		ID:        r.allocateID(),
		DiscordID: discordID,
		Name:      name,
		Roles:     append([]string(nil), params.Roles...),
		JoinedAt:  joined,
	}
	r.members[member.ID] = member
	if err := r.persist(); err != nil {
		delete(r.members, member.ID)
		return models.Member{}, err
	}
	return member, nil
}

// MemberByID returns the member with the provided identifier.
func (r *JSONRepository) MemberByID(id string) (models.Member, error) {
	if err := parseID(id); err != nil {
		return models.Member{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.members[strings.TrimSpace(id)]
	if !ok {
		return models.Member{}, ErrNotFound
	}
	return member, nil
}

// MemberByDiscordID returns the member bound to the provided Discord identity.
func (r *JSONRepository) MemberByDiscordID(discordID string) (models.Member, error) {
	discordID = strings.TrimSpace(discordID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, member := range r.members {
		if member.DiscordID == discordID {
			return member, nil
		}
	}
	return models.Member{}, ErrNotFound
}

// ListMembers returns the roster sorted by identifier.
func (r *JSONRepository) ListMembers() []models.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]models.Member, 0, len(r.members))
	for _, member := range r.members {
		members = append(members, member)
	}
	sortByNumericID(members, func(m models.Member) string { return m.ID })
	return members
}

// UpsertRole stores the role and its permission set.
func (r *JSONRepository) UpsertRole(role models.Role) error {
	name := strings.TrimSpace(role.Name)
	if name == "" {
		return fmt.Errorf("role name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	previous, existed := r.roles[key]
	r.roles[key] = models.Role{
		Name:        name,
		Permissions: append([]string(nil), role.Permissions...),
	}
	if err := r.persist(); err != nil {
		if existed {
			r.roles[key] = previous
		} else {
			delete(r.roles, key)
		}
		return err
	}
	return nil
}

// ListRoles returns all known roles.
func (r *JSONRepository) ListRoles() []models.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]models.Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// PermissionsForMember resolves the union of the member's role permissions.
func (r *JSONRepository) PermissionsForMember(id string) ([]string, error) {
	if err := parseID(id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.members[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	seen := make(map[string]struct{})
	var permissions []string
	for _, roleName := range member.Roles {
		role, ok := r.roles[strings.ToLower(roleName)]
		if !ok {
			continue
		}
		for _, permission := range role.Permissions {
			if _, dup := seen[permission]; dup {
				continue
			}
			seen[permission] = struct{}{}
			permissions = append(permissions, permission)
		}
	}
	sort.Strings(permissions)
	return permissions, nil
}

// CreateCategory records a raid category.
func (r *JSONRepository) CreateCategory(name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Category{}, fmt.Errorf("category name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	category := models.Category{ID: r.allocateID(), Name: name}
	r.categories[category.ID] = category
	if err := r.persist(); err != nil {
		delete(r.categories, category.ID)
		return models.Category{}, err
	}
	return category, nil
}

// ListCategories returns all categories sorted by identifier.
func (r *JSONRepository) ListCategories() []models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	categories := make([]models.Category, 0, len(r.categories))
	for _, category := range r.categories {
		categories = append(categories, category)
	}
	sortByNumericID(categories, func(c models.Category) string { return c.ID })
	return categories
}

// CreateRaid schedules a raid.
func (r *JSONRepository) CreateRaid(params CreateRaidParams) (models.Raid, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Raid{}, fmt.Errorf("raid name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if categoryID := strings.TrimSpace(params.CategoryID); categoryID != "" {
		if _, ok := r.categories[categoryID]; !ok {
			return models.Raid{}, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
		}
	}
	raid := models.Raid{
		ID:          r.allocateID(),
		Name:        name,
		CategoryID:  strings.TrimSpace(params.CategoryID),
		LeaderID:    strings.TrimSpace(params.LeaderID),
		ScheduledAt: params.ScheduledAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	r.raids[raid.ID] = raid
	if err := r.persist(); err != nil {
		delete(r.raids, raid.ID)
		return models.Raid{}, err
	}
	return raid, nil
}

// RaidByID returns the raid with the provided identifier.
func (r *JSONRepository) RaidByID(id string) (models.Raid, error) {
	if err := parseID(id); err != nil {
		return models.Raid{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	raid, ok := r.raids[strings.TrimSpace(id)]
	if !ok {
		return models.Raid{}, ErrNotFound
	}
	return raid, nil
}

// ListRaids returns raids, optionally filtered by category.
func (r *JSONRepository) ListRaids(categoryID string) []models.Raid {
	categoryID = strings.TrimSpace(categoryID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	raids := make([]models.Raid, 0, len(r.raids))
	for _, raid := range r.raids {
		if categoryID != "" && raid.CategoryID != categoryID {
			continue
		}
		raids = append(raids, raid)
	}
	sortByNumericID(raids, func(raid models.Raid) string { return raid.ID })
	return raids
}

// UpdateRaid applies a partial update to the raid.
func (r *JSONRepository) UpdateRaid(id string, update RaidUpdate) (models.Raid, error) {
	if err := parseID(id); err != nil {
		return models.Raid{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	raid, ok := r.raids[strings.TrimSpace(id)]
	if !ok {
		return models.Raid{}, ErrNotFound
	}
	previous := raid
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Raid{}, fmt.Errorf("raid name is required")
		}
		raid.Name = name
	}
	if update.CategoryID != nil {
		categoryID := strings.TrimSpace(*update.CategoryID)
		if categoryID != "" {
			if _, ok := r.categories[categoryID]; !ok {
				return models.Raid{}, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
			}
		}
		raid.CategoryID = categoryID
	}
	if update.LeaderID != nil {
		raid.LeaderID = strings.TrimSpace(*update.LeaderID)
	}
	if update.ScheduledAt != nil {
		raid.ScheduledAt = update.ScheduledAt.UTC()
	}
	r.raids[raid.ID] = raid
	if err := r.persist(); err != nil {
		r.raids[raid.ID] = previous
		return models.Raid{}, err
	}
	return raid, nil
}

// DeleteRaid removes the raid and any compositions attached to it.
func (r *JSONRepository) DeleteRaid(id string) error {
	if err := parseID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id = strings.TrimSpace(id)
	raid, ok := r.raids[id]
	if !ok {
		return ErrNotFound
	}
	removed := make(map[string]models.Composition)
	for compositionID, composition := range r.compositions {
		if composition.RaidID == id {
			removed[compositionID] = composition
			delete(r.compositions, compositionID)
		}
	}
	delete(r.raids, id)
	if err := r.persist(); err != nil {
		r.raids[id] = raid
		for compositionID, composition := range removed {
			r.compositions[compositionID] = composition
		}
		return err
	}
	return nil
}

// CreateComposition records a member line-up for a raid.
func (r *JSONRepository) CreateComposition(params CreateCompositionParams) (models.Composition, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Composition{}, fmt.Errorf("composition name is required")
	}
	if err := parseID(params.RaidID); err != nil {
		return models.Composition{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	raidID := strings.TrimSpace(params.RaidID)
	if _, ok := r.raids[raidID]; !ok {
		return models.Composition{}, fmt.Errorf("raid %s: %w", raidID, ErrNotFound)
	}
	for _, memberID := range params.MemberIDs {
		if _, ok := r.members[strings.TrimSpace(memberID)]; !ok {
			return models.Composition{}, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
		}
	}
	composition := models.Composition{
		ID:        r.allocateID(),
		RaidID:    raidID,
		Name:      name,
		MemberIDs: append([]string(nil), params.MemberIDs...),
		CreatedAt: time.Now().UTC(),
	}
	r.compositions[composition.ID] = composition
	if err := r.persist(); err != nil {
		delete(r.compositions, composition.ID)
		return models.Composition{}, err
	}
	return composition, nil
}

// CompositionByID returns the composition with the provided identifier.
func (r *JSONRepository) CompositionByID(id string) (models.Composition, error) {
	if err := parseID(id); err != nil {
		return models.Composition{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	composition, ok := r.compositions[strings.TrimSpace(id)]
	if !ok {
		return models.Composition{}, ErrNotFound
	}
	return composition, nil
}

// ListCompositions returns compositions, optionally filtered by raid.
func (r *JSONRepository) ListCompositions(raidID string) []models.Composition {
	raidID = strings.TrimSpace(raidID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	compositions := make([]models.Composition, 0, len(r.compositions))
	for _, composition := range r.compositions {
		if raidID != "" && composition.RaidID != raidID {
			continue
		}
		compositions = append(compositions, composition)
	}
	sortByNumericID(compositions, func(c models.Composition) string { return c.ID })
	return compositions
}

func sortByNumericID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		left, _ := strconv.ParseInt(id(items[i]), 10, 64)
		right, _ := strconv.ParseInt(id(items[j]), 10, 64)
		return left < right
	})
}
