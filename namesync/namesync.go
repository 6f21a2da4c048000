// Package namesync keeps stored Minecraft usernames in step with the directory.
package namesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/msimon/mcaccounts/resolver"
	"github.com/msimon/mcaccounts/store"
)

const (
	DefaultInterval    = time.Hour
	DefaultPageSize    = 100
	DefaultLookupDelay = 200 * time.Millisecond
)

// Config configures the username refresh worker.
type Config struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Interval between passes as a duration string. Default: "1h".
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`

	// PageSize is the number of bindings read per store query. Default: 100.
	PageSize int `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`

	// LookupDelay is the pause between profile lookups. Default: "200ms".
	LookupDelay string `json:"lookupDelay,omitempty" yaml:"lookupDelay,omitempty"`
}

// Validate fills defaults and checks durations.
func (c *Config) Validate() error {
	if c.Interval == "" {
		c.Interval = DefaultInterval.String()
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return fmt.Errorf("nameSync.interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("nameSync.interval must be positive")
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize < 0 {
		return fmt.Errorf("nameSync.pageSize cannot be negative")
	}
	if c.LookupDelay == "" {
		c.LookupDelay = DefaultLookupDelay.String()
	}
	if _, err := time.ParseDuration(c.LookupDelay); err != nil {
		return fmt.Errorf("nameSync.lookupDelay: %w", err)
	}
	return nil
}

func parseOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Stats summarizes one pass.
type Stats struct {
	Checked int
	Renamed int
	Failed  int
	// Aborted is set when the pass stopped early because the directory throttled it.
	Aborted bool
}

// Worker periodically refreshes stored usernames.
type Worker struct {
	store    store.Store
	resolver resolver.Resolver
	logger   *slog.Logger

	interval time.Duration
	pageSize int
	delay    time.Duration
}

// NewWorker creates a Worker. cfg is validated.
func NewWorker(s store.Store, r resolver.Resolver, cfg Config, logger *slog.Logger) (*Worker, error) {
	if s == nil || r == nil {
		return nil, errors.New("store and resolver are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    s,
		resolver: r,
		logger:   logger.With("component", "namesync"),
		interval: parseOr(cfg.Interval, DefaultInterval),
		pageSize: cfg.PageSize,
		delay:    parseOr(cfg.LookupDelay, DefaultLookupDelay),
	}, nil
}

// Run performs a pass immediately and then once per interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("name_sync_started", "interval", w.interval, "page_size", w.pageSize)
	for {
		if _, err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("name_sync_failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("name_sync_stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SyncOnce walks every binding once and stores changed usernames.
// Lookup failures are counted and skipped. A rate-limited lookup ends the pass.
func (w *Worker) SyncOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	start := time.Now()

	after := ""
	for {
		page, err := w.store.ListPage(ctx, after, w.pageSize)
		if err != nil {
			return stats, fmt.Errorf("listing bindings after %q: %w", after, err)
		}

		for _, account := range page {
			if stats.Checked > 0 && w.delay > 0 {
				select {
				case <-ctx.Done():
					return stats, ctx.Err()
				case <-time.After(w.delay):
				}
			}
			stats.Checked++

			renamed, err := w.refresh(ctx, account)
			switch {
			case errors.Is(err, resolver.ErrRateLimited):
				stats.Aborted = true
				w.logger.Warn("name_sync_rate_limited", "checked", stats.Checked)
				return stats, nil
			case err != nil:
				stats.Failed++
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
			case renamed:
				stats.Renamed++
			}
		}

		if len(page) < w.pageSize {
			break
		}
		after = page[len(page)-1].MinecraftUUID
	}

	w.logger.Info("name_sync_completed",
		"checked", stats.Checked,
		"renamed", stats.Renamed,
		"failed", stats.Failed,
		"duration", time.Since(start),
	)
	return stats, nil
}

func (w *Worker) refresh(ctx context.Context, account store.Account) (bool, error) {
	profile, err := w.resolver.Profile(ctx, account.MinecraftUUID)
	if errors.Is(err, resolver.ErrRateLimited) {
		return false, err
	}
	if err != nil {
		w.logger.Debug("profile_lookup_failed", "minecraft_uuid", account.MinecraftUUID, "error", err)
		return false, err
	}
	if profile.Name == "" || profile.Name == account.MinecraftUsername {
		return false, nil
	}

	_, err = w.store.Update(ctx, store.Account{
		MinecraftUUID:     account.MinecraftUUID,
		MinecraftUsername: profile.Name,
		IsMain:            account.IsMain,
	})
	if errors.Is(err, store.ErrNotFound) {
		// removed since the page was read
		return false, nil
	}
	if err != nil {
		w.logger.Warn("username_update_failed", "minecraft_uuid", account.MinecraftUUID, "error", err)
		return false, err
	}

	w.forget(ctx, account.MinecraftUsername, profile.Name)

	w.logger.Info("username_changed",
		"minecraft_uuid", account.MinecraftUUID,
		"old_username", account.MinecraftUsername,
		"new_username", profile.Name,
	)
	return true, nil
}

// forget drops cached lookups for both names of a renamed account. The old name
// may be claimed by another player, and the new one may still map to its previous owner.
func (w *Worker) forget(ctx context.Context, names ...string) {
	f, ok := w.resolver.(resolver.Forgetter)
	if !ok {
		return
	}
	for _, name := range names {
		if err := f.Forget(ctx, name); err != nil {
			w.logger.Warn("resolver_cache_forget_failed", "username", name, "error", err)
		}
	}
}
