package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		discord_id TEXT,
		user_id TEXT,
		minecraft_uuid TEXT NOT NULL UNIQUE,
		minecraft_username TEXT NOT NULL,
		is_main BOOLEAN NOT NULL DEFAULT FALSE,
		first_name TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_discord_id ON accounts(discord_id)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_minecraft_username ON accounts(minecraft_username)`,
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}

	// prepared statements via pgx's automatic statement cache
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	applyPoolSizing(poolCfg, cfg)
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger := slog.Default().With("component", "store")
	logger.Info("postgres store initialized", "max_conns", poolCfg.MaxConns)

	return &PostgresStore{pool: pool, logger: logger}, nil
}

const (
	defaultMaxConns int32 = 50
	defaultMinConns int32 = 5
)

// applyPoolSizing sets pool bounds. Explicit config wins, then pool_max_conns and
// pool_min_conns from the DSN, then the defaults. MinConns never exceeds MaxConns.
func applyPoolSizing(poolCfg *pgxpool.Config, cfg Config) {
	switch {
	case cfg.MaxConns > 0:
		poolCfg.MaxConns = cfg.MaxConns
	case !strings.Contains(cfg.DSN, "pool_max_conns"):
		poolCfg.MaxConns = defaultMaxConns
	}
	switch {
	case cfg.MinConns > 0:
		poolCfg.MinConns = cfg.MinConns
	case !strings.Contains(cfg.DSN, "pool_min_conns"):
		poolCfg.MinConns = defaultMinConns
	}
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, owner Owner, account Account) (Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (discord_id, user_id, minecraft_uuid, minecraft_username, is_main, first_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+accountColumns,
		nullable(owner.DiscordID), nullable(owner.UserID),
		account.MinecraftUUID, account.MinecraftUsername,
		account.IsMain, account.DeprecatedFirstName,
	)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Account{}, ErrConflict
		}
		return Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Update(ctx context.Context, account Account) (Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET minecraft_username = $2, is_main = $3
		WHERE minecraft_uuid = $1
		RETURNING `+accountColumns,
		account.MinecraftUUID, account.MinecraftUsername, account.IsMain,
	)
	updated, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("updating account: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, minecraftUUID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE minecraft_uuid = $1`, minecraftUUID)
	if err != nil {
		return false, fmt.Errorf("deleting account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Exists(ctx context.Context, minecraftUUID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE minecraft_uuid = $1)`, minecraftUUID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking account: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) FindByMinecraftUUID(ctx context.Context, minecraftUUID string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE minecraft_uuid = $1`, minecraftUUID)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (string, error) {
	var minecraftUUID string
	err := s.pool.QueryRow(ctx,
		`SELECT minecraft_uuid FROM accounts WHERE minecraft_username = $1 ORDER BY id LIMIT 1`, username,
	).Scan(&minecraftUUID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying username: %w", err)
	}
	return minecraftUUID, nil
}

func (s *PostgresStore) OwnerOf(ctx context.Context, minecraftUUID string) (Owner, error) {
	var userID, discordID *string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, discord_id FROM accounts WHERE minecraft_uuid = $1`, minecraftUUID,
	).Scan(&userID, &discordID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Owner{}, ErrNotFound
	}
	if err != nil {
		return Owner{}, fmt.Errorf("querying owner: %w", err)
	}
	var owner Owner
	if userID != nil {
		owner.UserID = *userID
	}
	if discordID != nil {
		owner.DiscordID = *discordID
	}
	return owner, nil
}

func (s *PostgresStore) ListForOwner(ctx context.Context, owner Owner) ([]Account, error) {
	var byUser, byDiscord []Account
	var err error
	if owner.UserID != "" {
		byUser, err = s.query(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY id`, owner.UserID)
		if err != nil {
			return nil, fmt.Errorf("listing accounts by user: %w", err)
		}
	}
	if owner.DiscordID != "" {
		byDiscord, err = s.query(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE discord_id = $1 ORDER BY id`, owner.DiscordID)
		if err != nil {
			return nil, fmt.Errorf("listing accounts by discord id: %w", err)
		}
	}
	return combineOwned(byUser, byDiscord), nil
}

func (s *PostgresStore) ListPage(ctx context.Context, after string, limit int) ([]Account, error) {
	page, err := s.query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE minecraft_uuid > $1 ORDER BY minecraft_uuid LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("listing accounts page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Account, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
