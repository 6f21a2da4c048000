// Package store persists Minecraft account bindings.
package store

import "context"

// DeprecatedFirstNamePlaceholder is read back for legacy rows whose first_name column is NULL.
// New bindings store the first name as sent, so an omitted one reads back empty.
const DeprecatedFirstNamePlaceholder = "Deprecated"

// Owner identifies who a binding belongs to. Empty fields are unset.
type Owner struct {
	UserID    string
	DiscordID string
}

// IsZero reports whether neither owner key is set.
func (o Owner) IsZero() bool {
	return o.UserID == "" && o.DiscordID == ""
}

// Matches reports whether key equals either recorded owner key.
func (o Owner) Matches(key string) bool {
	if key == "" {
		return false
	}
	return o.UserID == key || o.DiscordID == key
}

// Account is a persisted binding between an owner and a Minecraft account.
type Account struct {
	// ID is assigned by the store on creation.
	ID int64

	MinecraftUUID       string
	MinecraftUsername   string
	IsMain              bool
	DeprecatedFirstName string

	Owner Owner
}

// Store is the identity store. Every operation is a single-row atomic statement.
type Store interface {
	// Create persists a new binding and returns the stored row.
	// It returns ErrConflict if the Minecraft UUID is already bound.
	Create(ctx context.Context, owner Owner, account Account) (Account, error)

	// Update changes the username and main flag of the binding keyed by MinecraftUUID.
	// It returns ErrNotFound if no such binding exists.
	Update(ctx context.Context, account Account) (Account, error)

	// Delete removes the binding and reports whether exactly one row was removed.
	Delete(ctx context.Context, minecraftUUID string) (bool, error)

	Exists(ctx context.Context, minecraftUUID string) (bool, error)

	// FindByMinecraftUUID returns ErrNotFound when absent.
	FindByMinecraftUUID(ctx context.Context, minecraftUUID string) (Account, error)

	// FindByUsername maps a stored username to its Minecraft UUID.
	// It returns ErrNotFound when absent.
	FindByUsername(ctx context.Context, username string) (string, error)

	// OwnerOf returns the recorded owner keys, which may both be empty.
	// It returns ErrNotFound when the binding does not exist.
	OwnerOf(ctx context.Context, minecraftUUID string) (Owner, error)

	// ListForOwner returns bindings owned by owner.UserID followed by those owned by
	// owner.DiscordID, each in insertion order, without duplicates.
	ListForOwner(ctx context.Context, owner Owner) ([]Account, error)

	// ListPage returns up to limit bindings with a Minecraft UUID greater than after,
	// ordered by Minecraft UUID.
	ListPage(ctx context.Context, after string, limit int) ([]Account, error)

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// combineOwned merges the user-keyed and discord-keyed results, keeping the first
// occurrence of each Minecraft UUID.
func combineOwned(byUser, byDiscord []Account) []Account {
	seen := make(map[string]struct{}, len(byUser)+len(byDiscord))
	out := make([]Account, 0, len(byUser)+len(byDiscord))
	for _, list := range [][]Account{byUser, byDiscord} {
		for _, a := range list {
			if _, ok := seen[a.MinecraftUUID]; ok {
				continue
			}
			seen[a.MinecraftUUID] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
