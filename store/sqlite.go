package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		discord_id TEXT,
		user_id TEXT,
		minecraft_uuid TEXT NOT NULL UNIQUE,
		minecraft_username TEXT NOT NULL,
		is_main BOOLEAN NOT NULL DEFAULT 0,
		first_name TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_discord_id ON accounts(discord_id)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_minecraft_username ON accounts(minecraft_username)`,
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens the SQLite database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// a single writer connection avoids SQLITE_BUSY under concurrent handlers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, owner Owner, account Account) (Account, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (discord_id, user_id, minecraft_uuid, minecraft_username, is_main, first_name)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+accountColumns,
		nullable(owner.DiscordID), nullable(owner.UserID),
		account.MinecraftUUID, account.MinecraftUsername,
		account.IsMain, account.DeprecatedFirstName,
	)
	created, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrConflict
		}
		return Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) Update(ctx context.Context, account Account) (Account, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET minecraft_username = ?, is_main = ?
		WHERE minecraft_uuid = ?
		RETURNING `+accountColumns,
		account.MinecraftUsername, account.IsMain, account.MinecraftUUID,
	)
	updated, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("updating account: %w", err)
	}
	return updated, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, minecraftUUID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE minecraft_uuid = ?`, minecraftUUID)
	if err != nil {
		return false, fmt.Errorf("deleting account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting account: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, minecraftUUID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE minecraft_uuid = ?)`, minecraftUUID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking account: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) FindByMinecraftUUID(ctx context.Context, minecraftUUID string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE minecraft_uuid = ?`, minecraftUUID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (string, error) {
	var minecraftUUID string
	err := s.db.QueryRowContext(ctx,
		`SELECT minecraft_uuid FROM accounts WHERE minecraft_username = ? ORDER BY id LIMIT 1`, username,
	).Scan(&minecraftUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying username: %w", err)
	}
	return minecraftUUID, nil
}

func (s *SQLiteStore) OwnerOf(ctx context.Context, minecraftUUID string) (Owner, error) {
	var userID, discordID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, discord_id FROM accounts WHERE minecraft_uuid = ?`, minecraftUUID,
	).Scan(&userID, &discordID)
	if errors.Is(err, sql.ErrNoRows) {
		return Owner{}, ErrNotFound
	}
	if err != nil {
		return Owner{}, fmt.Errorf("querying owner: %w", err)
	}
	return Owner{UserID: userID.String, DiscordID: discordID.String}, nil
}

func (s *SQLiteStore) ListForOwner(ctx context.Context, owner Owner) ([]Account, error) {
	var byUser, byDiscord []Account
	var err error
	if owner.UserID != "" {
		byUser, err = s.query(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY id`, owner.UserID)
		if err != nil {
			return nil, fmt.Errorf("listing accounts by user: %w", err)
		}
	}
	if owner.DiscordID != "" {
		byDiscord, err = s.query(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE discord_id = ? ORDER BY id`, owner.DiscordID)
		if err != nil {
			return nil, fmt.Errorf("listing accounts by discord id: %w", err)
		}
	}
	return combineOwned(byUser, byDiscord), nil
}

func (s *SQLiteStore) ListPage(ctx context.Context, after string, limit int) ([]Account, error) {
	page, err := s.query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE minecraft_uuid > ? ORDER BY minecraft_uuid LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("listing accounts page: %w", err)
	}
	return page, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueViolation checks for a unique constraint violation on minecraft_uuid.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") &&
		strings.Contains(errStr, "minecraft_uuid")
}
