package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guildgate/internal/models"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(dsn string, opts ...PostgresOption) (Repository, error) {
	cfg := PostgresConfig{DSN: dsn}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	repo := &postgresRepository{pool: pool, cfg: cfg}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id BIGSERIAL PRIMARY KEY,
			discord_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			roles TEXT[] NOT NULL DEFAULT '{}',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS roles (
			name TEXT PRIMARY KEY,
			permissions TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raids (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			category_id BIGINT REFERENCES categories(id),
			leader_id BIGINT REFERENCES members(id),
			scheduled_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS compositions (
			id BIGSERIAL PRIMARY KEY,
			raid_id BIGINT NOT NULL REFERENCES raids(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			member_ids BIGINT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, statement := range statements {
		if _, err := r.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the connection pool is healthy.
func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close drains the pool, bounded by the provided context.
func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// castID converts an external identifier to a datastore key. A failed cast is
// the ErrInvalidID signal the HTTP layer maps to a 404.
func castID(id string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return parsed, nil
}

func optionalCastID(id string) (*int64, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	parsed, err := castID(id)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatIDs(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, formatID(id))
	}
	return out
}

func (r *postgresRepository) CreateMember(params CreateMemberParams) (models.Member, error) {
	discordID := strings.TrimSpace(params.DiscordID)
	name := strings.TrimSpace(params.Name)
	if discordID == "" {
		return models.Member{}, fmt.Errorf("discord id is required")
	}
	if name == "" {
		return models.Member{}, fmt.Errorf("member name is required")
	}
	joined := params.JoinedAt
	if joined.IsZero() {
		joined = time.Now().UTC()
	}
	var id int64
	err := r.pool.QueryRow(context.Background(),
		`INSERT INTO members (discord_id, name, roles, joined_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		discordID, name, params.Roles, joined.UTC()).Scan(&id)
	if err != nil {
		return models.Member{}, fmt.Errorf("insert member: %w", err)
	}
	return models.Member{ID: formatID(id), DiscordID: discordID, Name: name, Roles: append([]string(nil), params.Roles...), JoinedAt: joined.UTC()}, nil
}

func (r *postgresRepository) scanMember(row pgx.Row) (models.Member, error) {
	var (
		id       int64
		member   models.Member
		joinedAt time.Time
	)
	if err := row.Scan(&id, &member.DiscordID, &member.Name, &member.Roles, &joinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Member{}, ErrNotFound
		}
		return models.Member{}, fmt.Errorf("scan member: %w", err)
	}
	member.ID = formatID(id)
	member.JoinedAt = joinedAt.UTC()
	return member, nil
}

func (r *postgresRepository) MemberByID(id string) (models.Member, error) {
	key, err := castID(id)
	if err != nil {
		return models.Member{}, err
	}
	row := r.pool.QueryRow(context.Background(),
		`SELECT id, discord_id, name, roles, joined_at FROM members WHERE id = $1`, key)
	return r.scanMember(row)
}

func (r *postgresRepository) MemberByDiscordID(discordID string) (models.Member, error) {
	row := r.pool.QueryRow(context.Background(),
		`SELECT id, discord_id, name, roles, joined_at FROM members WHERE discord_id = $1`,
		strings.TrimSpace(discordID))
	return r.scanMember(row)
}

func (r *postgresRepository) ListMembers() []models.Member {
	rows, err := r.pool.Query(context.Background(),
		`SELECT id, discord_id, name, roles, joined_at FROM members ORDER BY id`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var members []models.Member
	for rows.Next() {
		member, err := r.scanMember(rows)
		if err != nil {
			return members
		}
		members = append(members, member)
	}
	return members
}

func (r *postgresRepository) UpsertRole(role models.Role) error {
	name := strings.TrimSpace(role.Name)
	if name == "" {
		return fmt.Errorf("role name is required")
	}
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO roles (name, permissions) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET permissions = EXCLUDED.permissions`,
		name, role.Permissions)
	if err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListRoles() []models.Role {
	rows, err := r.pool.Query(context.Background(), `SELECT name, permissions FROM roles ORDER BY name`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.Name, &role.Permissions); err != nil {
			return roles
		}
		roles = append(roles, role)
	}
	return roles
}

func (r *postgresRepository) PermissionsForMember(id string) ([]string, error) {
	member, err := r.MemberByID(id)
	if err != nil {
		return nil, err
	}
	if len(member.Roles) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(context.Background(),
		`SELECT DISTINCT unnest(permissions) FROM roles WHERE lower(name) = ANY($1) ORDER BY 1`,
		lowered(member.Roles))
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()
	var permissions []string
	for rows.Next() {
		var permission string
		if err := rows.Scan(&permission); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}
	return permissions, nil
}

func lowered(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, strings.ToLower(value))
	}
	return out
}

func (r *postgresRepository) CreateCategory(name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Category{}, fmt.Errorf("category name is required")
	}
	var id int64
	err := r.pool.QueryRow(context.Background(),
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return models.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return models.Category{ID: formatID(id), Name: name}, nil
}

func (r *postgresRepository) ListCategories() []models.Category {
	rows, err := r.pool.Query(context.Background(), `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var categories []models.Category
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return categories
		}
		categories = append(categories, models.Category{ID: formatID(id), Name: name})
	}
	return categories
}

func (r *postgresRepository) CreateRaid(params CreateRaidParams) (models.Raid, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Raid{}, fmt.Errorf("raid name is required")
	}
	categoryID, err := optionalCastID(params.CategoryID)
	if err != nil {
		return models.Raid{}, err
	}
	leaderID, err := optionalCastID(params.LeaderID)
	if err != nil {
		return models.Raid{}, err
	}
	var (
		id        int64
		createdAt time.Time
	)
	err = r.pool.QueryRow(context.Background(),
		`INSERT INTO raids (name, category_id, leader_id, scheduled_at) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		name, categoryID, leaderID, params.ScheduledAt.UTC()).Scan(&id, &createdAt)
	if err != nil {
		return models.Raid{}, fmt.Errorf("insert raid: %w", err)
	}
	return models.Raid{
		ID:          formatID(id),
		Name:        name,
		CategoryID:  strings.TrimSpace(params.CategoryID),
		LeaderID:    strings.TrimSpace(params.LeaderID),
		ScheduledAt: params.ScheduledAt.UTC(),
		CreatedAt:   createdAt.UTC(),
	}, nil
}

func (r *postgresRepository) scanRaid(row pgx.Row) (models.Raid, error) {
	var (
		id          int64
		categoryID  *int64
		leaderID    *int64
		scheduledAt *time.Time
		createdAt   time.Time
		raid        models.Raid
	)
	if err := row.Scan(&id, &raid.Name, &categoryID, &leaderID, &scheduledAt, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Raid{}, ErrNotFound
		}
		return models.Raid{}, fmt.Errorf("scan raid: %w", err)
	}
	raid.ID = formatID(id)
	if categoryID != nil {
		raid.CategoryID = formatID(*categoryID)
	}
	if leaderID != nil {
		raid.LeaderID = formatID(*leaderID)
	}
	if scheduledAt != nil {
		raid.ScheduledAt = scheduledAt.UTC()
	}
	raid.CreatedAt = createdAt.UTC()
	return raid, nil
}

func (r *postgresRepository) RaidByID(id string) (models.Raid, error) {
	key, err := castID(id)
	if err != nil {
		return models.Raid{}, err
	}
	row := r.pool.QueryRow(context.Background(),
		`SELECT id, name, category_id, leader_id, scheduled_at, created_at FROM raids WHERE id = $1`, key)
	return r.scanRaid(row)
}

func (r *postgresRepository) ListRaids(categoryID string) []models.Raid {
	ctx := context.Background()
	var (
		rows pgx.Rows
		err  error
	)
	if key, castErr := optionalCastID(categoryID); castErr != nil {
		return nil
	} else if key != nil {
		rows, err = r.pool.Query(ctx,
			`SELECT id, name, category_id, leader_id, scheduled_at, created_at FROM raids WHERE category_id = $1 ORDER BY id`, *key)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT id, name, category_id, leader_id, scheduled_at, created_at FROM raids ORDER BY id`)
	}
	if err != nil {
		return nil
	}
	defer rows.Close()
	var raids []models.Raid
	for rows.Next() {
		raid, err := r.scanRaid(rows)
		if err != nil {
			return raids
		}
		raids = append(raids, raid)
	}
	return raids
}

func (r *postgresRepository) UpdateRaid(id string, update RaidUpdate) (models.Raid, error) {
	key, err := castID(id)
	if err != nil {
		return models.Raid{}, err
	}
	ctx := context.Background()
	raid, err := r.RaidByID(id)
	if err != nil {
		return models.Raid{}, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Raid{}, fmt.Errorf("raid name is required")
		}
		raid.Name = name
	}
	if update.CategoryID != nil {
		raid.CategoryID = strings.TrimSpace(*update.CategoryID)
	}
	if update.LeaderID != nil {
		raid.LeaderID = strings.TrimSpace(*update.LeaderID)
	}
	if update.ScheduledAt != nil {
		raid.ScheduledAt = update.ScheduledAt.UTC()
	}
	categoryID, err := optionalCastID(raid.CategoryID)
	if err != nil {
		return models.Raid{}, err
	}
	leaderID, err := optionalCastID(raid.LeaderID)
	if err != nil {
		return models.Raid{}, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE raids SET name = $1, category_id = $2, leader_id = $3, scheduled_at = $4 WHERE id = $5`,
		raid.Name, categoryID, leaderID, raid.ScheduledAt, key)
	if err != nil {
		return models.Raid{}, fmt.Errorf("update raid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Raid{}, ErrNotFound
	}
	return raid, nil
}

func (r *postgresRepository) DeleteRaid(id string) error {
	key, err := castID(id)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(context.Background(), `DELETE FROM raids WHERE id = $1`, key)
	if err != nil {
		return fmt.Errorf("delete raid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) CreateComposition(params CreateCompositionParams) (models.Composition, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Composition{}, fmt.Errorf("composition name is required")
	}
	raidID, err := castID(params.RaidID)
	if err != nil {
		return models.Composition{}, err
	}
	memberIDs := make([]int64, 0, len(params.MemberIDs))
	for _, memberID := range params.MemberIDs {
		key, err := castID(memberID)
		if err != nil {
			return models.Composition{}, err
		}
		memberIDs = append(memberIDs, key)
	}
	var (
		id        int64
		createdAt time.Time
	)
	err = r.pool.QueryRow(context.Background(),
		`INSERT INTO compositions (raid_id, name, member_ids) VALUES ($1, $2, $3) RETURNING id, created_at`,
		raidID, name, memberIDs).Scan(&id, &createdAt)
	if err != nil {
		return models.Composition{}, fmt.Errorf("insert composition: %w", err)
	}
	return models.Composition{
		ID:        formatID(id),
		RaidID:    formatID(raidID),
		Name:      name,
		MemberIDs: formatIDs(memberIDs),
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (r *postgresRepository) scanComposition(row pgx.Row) (models.Composition, error) {
	var (
		id          int64
		raidID      int64
		memberIDs   []int64
		createdAt   time.Time
		composition models.Composition
	)
	if err := row.Scan(&id, &raidID, &composition.Name, &memberIDs, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Composition{}, ErrNotFound
		}
		return models.Composition{}, fmt.Errorf("scan composition: %w", err)
	}
	composition.ID = formatID(id)
	composition.RaidID = formatID(raidID)
	composition.MemberIDs = formatIDs(memberIDs)
	composition.CreatedAt = createdAt.UTC()
	return composition, nil
}

func (r *postgresRepository) CompositionByID(id string) (models.Composition, error) {
	key, err := castID(id)
	if err != nil {
		return models.Composition{}, err
	}
	row := r.pool.QueryRow(context.Background(),
		`SELECT id, raid_id, name, member_ids, created_at FROM compositions WHERE id = $1`, key)
	return r.scanComposition(row)
}

func (r *postgresRepository) ListCompositions(raidID string) []models.Composition {
	ctx := context.Background()
	var (
		rows pgx.Rows
		err  error
	)
	if key, castErr := optionalCastID(raidID); castErr != nil {
		return nil
	} else if key != nil {
		rows, err = r.pool.Query(ctx,
			`SELECT id, raid_id, name, member_ids, created_at FROM compositions WHERE raid_id = $1 ORDER BY id`, *key)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT id, raid_id, name, member_ids, created_at FROM compositions ORDER BY id`)
	}
	if err != nil {
		return nil
	}
	defer rows.Close()
	var compositions []models.Composition
	for rows.Next() {
		composition, err := r.scanComposition(rows)
		if err != nil {
			return compositions
		}
		compositions = append(compositions, composition)
	}
	return compositions
}
