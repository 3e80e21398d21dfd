// Command migrate-json-to-postgres copies roster data from the JSON datastore
// into Postgres. Identifiers are reassigned by Postgres, so references between
// records are remapped during the copy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"guildgate/internal/storage"
)

func main() {
	jsonPath := flag.String("json", "data/store.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("GUILDGATE_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, GUILDGATE_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	source, err := storage.NewJSONRepository(*jsonPath)
	if err != nil {
		logger.Error("failed to open JSON datastore", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = source.Close(context.Background())
	}()

	target, err := storage.NewPostgresRepository(dsn)
	if err != nil {
		logger.Error("failed to open postgres repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = target.Close(context.Background())
	}()

	counts, err := migrate(source, target)
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	if err := verifyCounts(context.Background(), dsn, counts); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed",
		"members", counts.members,
		"categories", counts.categories,
		"raids", counts.raids,
		"compositions", counts.compositions)
}

type migrationCounts struct {
	members      int
	categories   int
	raids        int
	compositions int
}

func migrate(source, target storage.Repository) (migrationCounts, error) {
	var counts migrationCounts

	memberIDs := make(map[string]string)
	for _, member := range source.ListMembers() {
		created, err := target.CreateMember(storage.CreateMemberParams{
			DiscordID: member.DiscordID,
			Name:      member.Name,
			Roles:     member.Roles,
			JoinedAt:  member.JoinedAt,
		})
		if err != nil {
			return counts, fmt.Errorf("migrate member %s: %w", member.Name, err)
		}
		memberIDs[member.ID] = created.ID
		counts.members++
	}

	for _, role := range source.ListRoles() {
		if err := target.UpsertRole(role); err != nil {
			return counts, fmt.Errorf("migrate role %s: %w", role.Name, err)
		}
	}

	categoryIDs := make(map[string]string)
	for _, category := range source.ListCategories() {
		created, err := target.CreateCategory(category.Name)
		if err != nil {
			return counts, fmt.Errorf("migrate category %s: %w", category.Name, err)
		}
		categoryIDs[category.ID] = created.ID
		counts.categories++
	}

	raidIDs := make(map[string]string)
	for _, raid := range source.ListRaids("") {
		created, err := target.CreateRaid(storage.CreateRaidParams{
			Name:        raid.Name,
			CategoryID:  categoryIDs[raid.CategoryID],
			LeaderID:    memberIDs[raid.LeaderID],
			ScheduledAt: raid.ScheduledAt,
		})
		if err != nil {
			return counts, fmt.Errorf("migrate raid %s: %w", raid.Name, err)
		}
		raidIDs[raid.ID] = created.ID
		counts.raids++
	}

	for _, composition := range source.ListCompositions("") {
		members := make([]string, 0, len(composition.MemberIDs))
		for _, id := range composition.MemberIDs {
			if mapped, ok := memberIDs[id]; ok {
				members = append(members, mapped)
			}
		}
		if _, err := target.CreateComposition(storage.CreateCompositionParams{
			RaidID:    raidIDs[composition.RaidID],
			Name:      composition.Name,
			MemberIDs: members,
		}); err != nil {
			return counts, fmt.Errorf("migrate composition %s: %w", composition.Name, err)
		}
		counts.compositions++
	}

	return counts, nil
}

func verifyCounts(ctx context.Context, dsn string, counts migrationCounts) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	checks := []struct {
		name     string
		query    string
		expected int
	}{
		{"members", "SELECT COUNT(*) FROM members", counts.members},
		{"categories", "SELECT COUNT(*) FROM categories", counts.categories},
		{"raids", "SELECT COUNT(*) FROM raids", counts.raids},
		{"compositions", "SELECT COUNT(*) FROM compositions", counts.compositions},
	}

	for _, check := range checks {
		var actual int
		if err := pool.QueryRow(ctx, check.query).Scan(&actual); err != nil {
			return fmt.Errorf("query %s: %w", check.name, err)
		}
		if actual < check.expected {
			return fmt.Errorf("mismatch for %s: expected at least %d, got %d", check.name, check.expected, actual)
		}
	}
	return nil
}
