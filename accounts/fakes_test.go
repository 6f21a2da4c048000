package accounts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msimon/mcaccounts/resolver"
	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/whitelist"
	"github.com/msimon/mcaccounts/wire"
)

type fakeResolver struct {
	mu       sync.Mutex
	profiles map[string]resolver.Profile
	err      error
	calls    int
}

func (r *fakeResolver) Resolve(_ context.Context, username string) (resolver.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return resolver.Profile{}, r.err
	}
	if p, ok := r.profiles[strings.ToLower(username)]; ok {
		return p, nil
	}
	return resolver.Profile{}, resolver.ErrNotFound
}

func (r *fakeResolver) Profile(context.Context, string) (resolver.Profile, error) {
	return resolver.Profile{}, resolver.ErrNotFound
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeWhitelist struct {
	mu           sync.Mutex
	addResult    whitelist.Result
	removeResult whitelist.Result
	added        []string
	removed      []string
	// onAdd runs before Add returns, outside the lock.
	onAdd func()
}

func (w *fakeWhitelist) Add(_ context.Context, minecraftUUID string) whitelist.Result {
	w.mu.Lock()
	w.added = append(w.added, minecraftUUID)
	res, hook := w.addResult, w.onAdd
	w.mu.Unlock()
	if hook != nil {
		hook()
	}
	return res
}

func (w *fakeWhitelist) Remove(_ context.Context, minecraftUUID string) whitelist.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = append(w.removed, minecraftUUID)
	return w.removeResult
}

func (w *fakeWhitelist) calls() (added, removed []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.added...), append([]string(nil), w.removed...)
}

type published struct {
	Subject string
	Data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{Subject: subject, Data: append([]byte(nil), data...)})
	return p.err
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func (p *fakePublisher) on(subject string) []published {
	var out []published
	for _, m := range p.all() {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type logEntry struct {
	Level string
	Msg   string
	Args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, Args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Level == level && e.Msg == msg {
			return true
		}
	}
	return false
}

type recordingMetrics struct {
	mu         sync.Mutex
	requests   map[string]int
	lookups    map[string]int
	whitelist  map[string]int
	divergence map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		requests:   map[string]int{},
		lookups:    map[string]int{},
		whitelist:  map[string]int{},
		divergence: map[string]int{},
	}
}

func (m *recordingMetrics) ObserveRequest(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[op+"/"+outcome]++
}

func (m *recordingMetrics) ResolverLookup(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[outcome]++
}

func (m *recordingMetrics) WhitelistCall(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whitelist[action+"/"+outcome]++
}

func (m *recordingMetrics) WhitelistDivergence(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.divergence[op]++
}

func (m *recordingMetrics) count(kind map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return kind[key]
}

// failingStore injects errors into selected operations of an otherwise working store.
type failingStore struct {
	store.Store
	createErr error
	deleteErr error
	existsErr error
	listErr   error
	findErr   error
}

func (s *failingStore) Create(ctx context.Context, owner store.Owner, a store.Account) (store.Account, error) {
	if s.createErr != nil {
		return store.Account{}, s.createErr
	}
	return s.Store.Create(ctx, owner, a)
}

func (s *failingStore) Delete(ctx context.Context, minecraftUUID string) (bool, error) {
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	return s.Store.Delete(ctx, minecraftUUID)
}

func (s *failingStore) Exists(ctx context.Context, minecraftUUID string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.Store.Exists(ctx, minecraftUUID)
}

func (s *failingStore) ListForOwner(ctx context.Context, owner store.Owner) ([]store.Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.ListForOwner(ctx, owner)
}

func (s *failingStore) FindByMinecraftUUID(ctx context.Context, minecraftUUID string) (store.Account, error) {
	if s.findErr != nil {
		return store.Account{}, s.findErr
	}
	return s.Store.FindByMinecraftUUID(ctx, minecraftUUID)
}

type fixture struct {
	store    store.Store
	resolver *fakeResolver
	wl       *fakeWhitelist
	pub      *fakePublisher
	log      *recordingLogger
	metrics  *recordingMetrics
	h        *Handlers

	replies atomic.Int64
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewMemoryStore(), opts...)
}

func newFixtureWithStore(t *testing.T, s store.Store, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store: s,
		resolver: &fakeResolver{profiles: map[string]resolver.Profile{
			"notch": {UUID: "069a79f4-44e9-4726-a5be-fca90e38aaf5", Name: "Notch"},
			"alex":  {UUID: "61699b2e-d327-4a01-9f1e-0ea8c3f06bc6", Name: "Alex"},
		}},
		wl:      &fakeWhitelist{},
		pub:     &fakePublisher{},
		log:     &recordingLogger{},
		metrics: newRecordingMetrics(),
	}

	all := append([]Option{WithLogger(f.log), WithMetrics(f.metrics)}, opts...)
	h, err := NewHandlers(f.store, f.resolver, f.wl, f.pub, all...)
	require.NoError(t, err)
	f.h = h
	return f
}

// call handles one request with a unique reply subject and returns the single reply.
func (f *fixture) call(t *testing.T, subject string, data []byte) ([]byte, error) {
	t.Helper()
	reply := fmt.Sprintf("_INBOX.test.%d", f.replies.Add(1))
	err := f.h.Handle(context.Background(), Request{Subject: subject, Reply: reply, Data: data})

	msgs := f.pub.on(reply)
	require.Len(t, msgs, 1, "exactly one reply per request")
	return msgs[0].Data, err
}

func (f *fixture) add(t *testing.T, msg wire.AddAccountRequest) (wire.ChangeAccountResponse, error) {
	t.Helper()
	data, err := f.call(t, AddSubject, msg.Marshal())
	var resp wire.ChangeAccountResponse
	require.NoError(t, resp.Unmarshal(data))
	return resp, err
}

func (f *fixture) remove(t *testing.T, msg wire.RemoveAccountRequest) (wire.ChangeAccountResponse, error) {
	t.Helper()
	data, err := f.call(t, RemoveSubject, msg.Marshal())
	var resp wire.ChangeAccountResponse
	require.NoError(t, resp.Unmarshal(data))
	return resp, err
}

func (f *fixture) get(t *testing.T, minecraftUUID string) wire.GetAccountResponse {
	t.Helper()
	req := wire.GetAccountRequest{MinecraftUUID: minecraftUUID}
	data, err := f.call(t, GetSubject, req.Marshal())
	require.NoError(t, err)
	var resp wire.GetAccountResponse
	require.NoError(t, resp.Unmarshal(data))
	return resp
}

func (f *fixture) list(t *testing.T, userID string) wire.ListAccountsResponse {
	t.Helper()
	req := wire.ListAccountsRequest{UserID: userID}
	data, err := f.call(t, ListSubject, req.Marshal())
	require.NoError(t, err)
	var resp wire.ListAccountsResponse
	require.NoError(t, resp.Unmarshal(data))
	return resp
}

func (f *fixture) events(t *testing.T) []wire.AccountChanged {
	t.Helper()
	var out []wire.AccountChanged
	for _, m := range f.pub.on(ChangedSubject) {
		var ev wire.AccountChanged
		require.NoError(t, ev.Unmarshal(m.Data))
		out = append(out, ev)
	}
	return out
}

// seed stores a binding directly, bypassing the handlers.
func (f *fixture) seed(t *testing.T, owner store.Owner, minecraftUUID, username string) store.Account {
	t.Helper()
	a, err := f.store.Create(context.Background(), owner, store.Account{
		MinecraftUUID:     minecraftUUID,
		MinecraftUsername: username,
	})
	require.NoError(t, err)
	return a
}
