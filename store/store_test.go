package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("MCACCOUNTS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MCACCOUNTS_TEST_POSTGRES_DSN not set, skipping postgres store tests")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, Config{Driver: "postgres", DSN: dsn, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, `TRUNCATE accounts RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// forEachStore runs fn against every Store implementation available in this environment.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, setupSQLiteStore(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, setupPostgresStore(t)) })
}

func mustCreate(t *testing.T, s Store, owner Owner, uuid, name string, main bool) Account {
	t.Helper()
	a, err := s.Create(context.Background(), owner, Account{
		MinecraftUUID:       uuid,
		MinecraftUsername:   name,
		IsMain:              main,
		DeprecatedFirstName: "Alex",
	})
	require.NoError(t, err)
	return a
}

func TestStore_Create(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created := mustCreate(t, s, Owner{UserID: "user-1"}, "abc-123", "Steve", true)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "abc-123", created.MinecraftUUID)
		assert.Equal(t, "Steve", created.MinecraftUsername)
		assert.True(t, created.IsMain)
		assert.Equal(t, "Alex", created.DeprecatedFirstName)
		assert.Equal(t, Owner{UserID: "user-1"}, created.Owner)

		exists, err := s.Exists(ctx, "abc-123")
		require.NoError(t, err)
		assert.True(t, exists)

		_, err = s.Create(ctx, Owner{UserID: "user-2"}, Account{MinecraftUUID: "abc-123", MinecraftUsername: "Other"})
		assert.ErrorIs(t, err, ErrConflict)

		got, err := s.FindByMinecraftUUID(ctx, "abc-123")
		require.NoError(t, err)
		assert.Equal(t, created, got)
	})
}

func TestStore_ConcurrentCreateSameUUID(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const workers = 8

		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Create(ctx, Owner{UserID: "user-1"}, Account{
					MinecraftUUID:     "race-uuid",
					MinecraftUsername: "Steve",
				})
			}(i)
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, conflicts)

		list, err := s.ListForOwner(ctx, Owner{UserID: "user-1"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestStore_Update(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustCreate(t, s, Owner{UserID: "user-1"}, "abc-123", "Steve", true)

		updated, err := s.Update(ctx, Account{MinecraftUUID: "abc-123", MinecraftUsername: "Steve2", IsMain: false})
		require.NoError(t, err)
		assert.Equal(t, "Steve2", updated.MinecraftUsername)
		assert.False(t, updated.IsMain)
		assert.Equal(t, Owner{UserID: "user-1"}, updated.Owner)

		_, err = s.Update(ctx, Account{MinecraftUUID: "missing", MinecraftUsername: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Delete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustCreate(t, s, Owner{UserID: "user-1"}, "abc-123", "Steve", true)

		deleted, err := s.Delete(ctx, "abc-123")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "abc-123")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = s.FindByMinecraftUUID(ctx, "abc-123")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Lookups(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustCreate(t, s, Owner{UserID: "user-1", DiscordID: "disc-1"}, "abc-123", "Steve", true)
		mustCreate(t, s, Owner{}, "orphan", "Ghost", false)

		uuid, err := s.FindByUsername(ctx, "Steve")
		require.NoError(t, err)
		assert.Equal(t, "abc-123", uuid)

		_, err = s.FindByUsername(ctx, "Nobody")
		assert.ErrorIs(t, err, ErrNotFound)

		owner, err := s.OwnerOf(ctx, "abc-123")
		require.NoError(t, err)
		assert.Equal(t, Owner{UserID: "user-1", DiscordID: "disc-1"}, owner)

		owner, err = s.OwnerOf(ctx, "orphan")
		require.NoError(t, err)
		assert.True(t, owner.IsZero())

		_, err = s.OwnerOf(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := s.Exists(ctx, "orphan")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestStore_ListForOwner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustCreate(t, s, Owner{DiscordID: "disc-1"}, "d-1", "LegacyOne", true)
		mustCreate(t, s, Owner{UserID: "user-1"}, "u-1", "One", true)
		mustCreate(t, s, Owner{UserID: "user-1", DiscordID: "disc-1"}, "both", "Both", false)
		mustCreate(t, s, Owner{UserID: "user-1"}, "u-2", "Two", false)
		mustCreate(t, s, Owner{UserID: "user-2"}, "other", "Other", true)

		list, err := s.ListForOwner(ctx, Owner{UserID: "user-1", DiscordID: "disc-1"})
		require.NoError(t, err)

		var uuids []string
		for _, a := range list {
			uuids = append(uuids, a.MinecraftUUID)
		}
		assert.Equal(t, []string{"u-1", "both", "u-2", "d-1"}, uuids)

		list, err = s.ListForOwner(ctx, Owner{UserID: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = s.ListForOwner(ctx, Owner{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestStore_ListPage(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, uuid := range []string{"c", "a", "e", "b", "d"} {
			mustCreate(t, s, Owner{UserID: "user-1"}, uuid, "name-"+uuid, false)
		}

		var seen []string
		after := ""
		for {
			page, err := s.ListPage(ctx, after, 2)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			assert.LessOrEqual(t, len(page), 2)
			for _, a := range page {
				seen = append(seen, a.MinecraftUUID)
			}
			after = page[len(page)-1].MinecraftUUID
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
	})
}

func TestStore_CreateWithoutFirstName(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, Owner{UserID: "user-1"}, Account{
			MinecraftUUID:     "no-first-name",
			MinecraftUsername: "Notch",
			IsMain:            true,
		})
		require.NoError(t, err)
		assert.Empty(t, created.DeprecatedFirstName)

		found, err := s.FindByMinecraftUUID(ctx, "no-first-name")
		require.NoError(t, err)
		assert.Empty(t, found.DeprecatedFirstName)

		listed, err := s.ListForOwner(ctx, Owner{UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Empty(t, listed[0].DeprecatedFirstName)
	})
}

func TestSQLiteStore_NullFirstNameReadsDeprecated(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, minecraft_uuid, minecraft_username, is_main) VALUES (?, ?, ?, ?)`,
		"user-1", "legacy", "OldTimer", true)
	require.NoError(t, err)

	a, err := s.FindByMinecraftUUID(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, DeprecatedFirstNamePlaceholder, a.DeprecatedFirstName)
	assert.Empty(t, a.Owner.DiscordID)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Exists(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrClosed)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "memory", cfg: Config{Driver: "memory"}},
		{name: "sqlite", cfg: Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "db", "a.db"), AutoMigrate: true}},
		{name: "sqlite without dsn", cfg: Config{Driver: "sqlite"}, wantErr: true},
		{name: "unknown driver", cfg: Config{Driver: "mongo", DSN: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer s.Close()

			if err := s.Ping(context.Background()); err != nil {
				t.Errorf("ping: %v", err)
			}
			if _, err := s.Exists(context.Background(), "abc"); err != nil {
				t.Errorf("exists after open: %v", err)
			}
		})
	}
}

func TestOwner_Matches(t *testing.T) {
	owner := Owner{UserID: "user-1", DiscordID: "disc-1"}
	if !owner.Matches("user-1") || !owner.Matches("disc-1") {
		t.Error("expected owner keys to match")
	}
	if owner.Matches("user-2") {
		t.Error("unexpected match")
	}
	if (Owner{}).Matches("") {
		t.Error("empty key must never match")
	}
}
