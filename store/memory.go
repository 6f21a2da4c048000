package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts []Account // insertion order
	nextID   int64
	closed   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) indexOf(minecraftUUID string) int {
	for i := range s.accounts {
		if s.accounts[i].MinecraftUUID == minecraftUUID {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) Create(_ context.Context, owner Owner, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Account{}, ErrClosed
	}
	if s.indexOf(account.MinecraftUUID) >= 0 {
		return Account{}, ErrConflict
	}

	account.ID = s.nextID
	account.Owner = owner
	s.nextID++
	s.accounts = append(s.accounts, account)
	return account, nil
}

func (s *MemoryStore) Update(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Account{}, ErrClosed
	}
	i := s.indexOf(account.MinecraftUUID)
	if i < 0 {
		return Account{}, ErrNotFound
	}
	s.accounts[i].MinecraftUsername = account.MinecraftUsername
	s.accounts[i].IsMain = account.IsMain
	return s.accounts[i], nil
}

func (s *MemoryStore) Delete(_ context.Context, minecraftUUID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	i := s.indexOf(minecraftUUID)
	if i < 0 {
		return false, nil
	}
	s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, minecraftUUID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	return s.indexOf(minecraftUUID) >= 0, nil
}

func (s *MemoryStore) FindByMinecraftUUID(_ context.Context, minecraftUUID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Account{}, ErrClosed
	}
	i := s.indexOf(minecraftUUID)
	if i < 0 {
		return Account{}, ErrNotFound
	}
	return s.accounts[i], nil
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrClosed
	}
	for _, a := range s.accounts {
		if a.MinecraftUsername == username {
			return a.MinecraftUUID, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) OwnerOf(_ context.Context, minecraftUUID string) (Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Owner{}, ErrClosed
	}
	i := s.indexOf(minecraftUUID)
	if i < 0 {
		return Owner{}, ErrNotFound
	}
	return s.accounts[i].Owner, nil
}

func (s *MemoryStore) ListForOwner(_ context.Context, owner Owner) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	var byUser, byDiscord []Account
	for _, a := range s.accounts {
		if owner.UserID != "" && a.Owner.UserID == owner.UserID {
			byUser = append(byUser, a)
		}
		if owner.DiscordID != "" && a.Owner.DiscordID == owner.DiscordID {
			byDiscord = append(byDiscord, a)
		}
	}
	return combineOwned(byUser, byDiscord), nil
}

func (s *MemoryStore) ListPage(_ context.Context, after string, limit int) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	var page []Account
	for _, a := range s.accounts {
		if a.MinecraftUUID > after {
			page = append(page, a)
		}
	}
	sort.Slice(page, func(i, j int) bool {
		return page[i].MinecraftUUID < page[j].MinecraftUUID
	})
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (s *MemoryStore) Migrate(context.Context) error {
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
