// Package resolver maps Minecraft usernames to stable account UUIDs using the
// Mojang profile API, optionally behind a cache.
package resolver

import (
	"context"
	"errors"
)

// Sentinel errors for lookups.
var (
	// ErrNotFound is returned when no Minecraft account has the requested name or UUID.
	ErrNotFound = errors.New("minecraft account not found")

	// ErrRateLimited is returned when the directory, or the local limiter, refuses the lookup.
	ErrRateLimited = errors.New("minecraft account lookup rate limited")

	// ErrUnavailable is returned for any other lookup failure.
	ErrUnavailable = errors.New("minecraft account lookup failed")
)

// Profile is a Minecraft profile as reported by the directory.
type Profile struct {
	UUID string `json:"id"`
	Name string `json:"name"`
}

// Resolver looks up Minecraft profiles.
type Resolver interface {
	// Resolve returns the current profile for a username.
	// Returns ErrNotFound, ErrRateLimited or ErrUnavailable on failure.
	Resolve(ctx context.Context, username string) (Profile, error)

	// Profile returns the current profile for a UUID, including its current name.
	Profile(ctx context.Context, uuid string) (Profile, error)
}

// Forgetter is implemented by resolvers that remember lookups. Forget drops
// whatever is remembered for a username.
type Forgetter interface {
	Forget(ctx context.Context, username string) error
}

// Outcome classifies a lookup error for metrics and logging.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
