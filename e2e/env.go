// Package e2e runs the account service against a real nats-server, a stubbed
// Mojang API and a SQLite store.
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/msimon/mcaccounts/accounts"
	"github.com/msimon/mcaccounts/internal/logging"
	"github.com/msimon/mcaccounts/internal/natstest"
	"github.com/msimon/mcaccounts/resolver"
	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/whitelist"
	"github.com/msimon/mcaccounts/wire"
)

const requestTimeout = 5 * time.Second

// Profiles known to the stubbed Mojang API, keyed by lower-case name.
var Profiles = map[string]resolver.Profile{
	"notch": {UUID: "069a79f444e94726a5befca90e38aaf5", Name: "Notch"},
	"jeb_":  {UUID: "853c80ef3c3749fdaa49938b674adae6", Name: "jeb_"},
	"alex":  {UUID: "61699b2ed3274a019f1e0ea8c3f06bc6", Name: "Alex"},
}

// TestEnv is a running service with its collaborators.
type TestEnv struct {
	NC    *nats.Conn
	Store store.Store

	mojang      *httptest.Server
	mojangMu    sync.Mutex
	mojangCalls int

	wlMu        sync.Mutex
	whitelisted map[string]bool
	wlReply     []byte

	changes chan *nats.Msg
}

// EnvOptions tunes the environment.
type EnvOptions struct {
	RequireWhitelistSuccess bool
	CacheType               string
}

// WithTestEnv starts the environment, runs fn and tears everything down.
func WithTestEnv(t *testing.T, opts EnvOptions, fn func(t *testing.T, env *TestEnv)) {
	t.Helper()

	srv := natstest.Start(t)
	serviceConn := srv.Connect(t)
	clientConn := srv.Connect(t)

	env := &TestEnv{
		NC:          clientConn,
		whitelisted: map[string]bool{},
		changes:     make(chan *nats.Msg, 64),
	}
	env.startMojang(t)
	env.startWhitelist(t, clientConn)

	if _, err := clientConn.ChanSubscribe(accounts.ChangedSubject, env.changes); err != nil {
		t.Fatalf("subscribing to changes: %v", err)
	}
	if err := clientConn.Flush(); err != nil {
		t.Fatalf("flushing client subscriptions: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, store.Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "accounts.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()
	env.Store = st

	logger := logging.NewWriter(testWriter{t}, "debug", "text")

	js, err := jetstream.New(serviceConn)
	if err != nil {
		t.Fatalf("creating JetStream context: %v", err)
	}
	cacheType := opts.CacheType
	if cacheType == "" {
		cacheType = "kv"
	}
	res, closeResolver, err := resolver.New(ctx, resolver.Config{
		MojangConfig: resolver.MojangConfig{
			APIBaseURL:     env.mojang.URL,
			SessionBaseURL: env.mojang.URL,
			Timeout:        "2s",
		},
		Cache: resolver.CacheConfig{Type: cacheType, TTL: "1m"},
	}, js, logger)
	if err != nil {
		t.Fatalf("creating resolver: %v", err)
	}
	defer closeResolver()

	handlers, err := accounts.NewHandlers(st, res,
		whitelist.NewClient(serviceConn, whitelist.WithTimeout(2*time.Second)),
		serviceConn,
		accounts.WithLogger(logger),
		accounts.WithRequireWhitelistSuccess(opts.RequireWhitelistSuccess),
		accounts.WithSerializePerAccount(true),
	)
	if err != nil {
		t.Fatalf("creating handlers: %v", err)
	}
	svc, err := accounts.NewService(serviceConn, handlers, accounts.WithServiceLogger(logger))
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	env.waitReady(t)

	fn(t, env)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("service stopped with error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Errorf("service did not stop")
	}
}

func (env *TestEnv) startMojang(t *testing.T) {
	env.mojang = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mojangMu.Lock()
		env.mojangCalls++
		env.mojangMu.Unlock()

		var profile resolver.Profile
		var ok bool
		switch {
		case strings.HasPrefix(r.URL.Path, "/users/profiles/minecraft/"):
			profile, ok = Profiles[strings.ToLower(strings.TrimPrefix(r.URL.Path, "/users/profiles/minecraft/"))]
		case strings.HasPrefix(r.URL.Path, "/session/minecraft/profile/"):
			id := strings.TrimPrefix(r.URL.Path, "/session/minecraft/profile/")
			for _, p := range Profiles {
				if p.UUID == id {
					profile, ok = p, true
				}
			}
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	}))
	t.Cleanup(env.mojang.Close)
}

func (env *TestEnv) startWhitelist(t *testing.T, nc *nats.Conn) {
	handle := func(add bool) nats.MsgHandler {
		return func(msg *nats.Msg) {
			var req wire.WhitelistAccount
			if err := req.Unmarshal(msg.Data); err != nil {
				return
			}
			env.wlMu.Lock()
			reply := env.wlReply
			if reply == nil {
				if add {
					env.whitelisted[req.UUID] = true
				} else {
					delete(env.whitelisted, req.UUID)
				}
			}
			env.wlMu.Unlock()
			_ = msg.Respond(reply)
		}
	}
	if _, err := nc.Subscribe(whitelist.AddSubject, handle(true)); err != nil {
		t.Fatalf("subscribing whitelist add: %v", err)
	}
	if _, err := nc.Subscribe(whitelist.RemoveSubject, handle(false)); err != nil {
		t.Fatalf("subscribing whitelist remove: %v", err)
	}
}

func (env *TestEnv) waitReady(t *testing.T) {
	t.Helper()

	req := wire.GetAccountRequest{MinecraftUUID: "readiness-check"}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := env.NC.Request(accounts.GetSubject, req.Marshal(), 200*time.Millisecond); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("account service did not become ready")
}

// RejectWhitelist makes the whitelist service answer success=false with message.
// An empty message restores empty acknowledgements.
func (env *TestEnv) RejectWhitelist(message string) {
	env.wlMu.Lock()
	defer env.wlMu.Unlock()
	if message == "" {
		env.wlReply = nil
		return
	}
	resp := wire.WhitelistResponse{ErrorMessage: wire.String(message)}
	env.wlReply = resp.Marshal()
}

// Whitelisted reports whether uuid is currently on the stub whitelist.
func (env *TestEnv) Whitelisted(uuid string) bool {
	env.wlMu.Lock()
	defer env.wlMu.Unlock()
	return env.whitelisted[uuid]
}

// MojangCalls returns the number of requests the stubbed API received.
func (env *TestEnv) MojangCalls() int {
	env.mojangMu.Lock()
	defer env.mojangMu.Unlock()
	return env.mojangCalls
}

func (env *TestEnv) request(t *testing.T, subject string, data []byte) []byte {
	t.Helper()
	msg, err := env.NC.Request(subject, data, requestTimeout)
	if err != nil {
		t.Fatalf("request on %s: %v", subject, err)
	}
	return msg.Data
}

func (env *TestEnv) Add(t *testing.T, req wire.AddAccountRequest) wire.ChangeAccountResponse {
	t.Helper()
	var resp wire.ChangeAccountResponse
	if err := resp.Unmarshal(env.request(t, accounts.AddSubject, req.Marshal())); err != nil {
		t.Fatalf("decoding add response: %v", err)
	}
	return resp
}

func (env *TestEnv) Remove(t *testing.T, req wire.RemoveAccountRequest) wire.ChangeAccountResponse {
	t.Helper()
	var resp wire.ChangeAccountResponse
	if err := resp.Unmarshal(env.request(t, accounts.RemoveSubject, req.Marshal())); err != nil {
		t.Fatalf("decoding remove response: %v", err)
	}
	return resp
}

func (env *TestEnv) Get(t *testing.T, minecraftUUID string) wire.GetAccountResponse {
	t.Helper()
	req := wire.GetAccountRequest{MinecraftUUID: minecraftUUID}
	var resp wire.GetAccountResponse
	if err := resp.Unmarshal(env.request(t, accounts.GetSubject, req.Marshal())); err != nil {
		t.Fatalf("decoding get response: %v", err)
	}
	return resp
}

func (env *TestEnv) List(t *testing.T, userID string) wire.ListAccountsResponse {
	t.Helper()
	req := wire.ListAccountsRequest{UserID: userID}
	var resp wire.ListAccountsResponse
	if err := resp.Unmarshal(env.request(t, accounts.ListSubject, req.Marshal())); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	return resp
}

// NextChange waits for the next change notification.
func (env *TestEnv) NextChange(t *testing.T) wire.AccountChanged {
	t.Helper()
	select {
	case msg := <-env.changes:
		var ev wire.AccountChanged
		if err := ev.Unmarshal(msg.Data); err != nil {
			t.Fatalf("decoding change event: %v", err)
		}
		return ev
	case <-time.After(requestTimeout):
		t.Fatalf("no change event received")
		return wire.AccountChanged{}
	}
}

// NoChange fails if a change notification arrives within wait.
func (env *TestEnv) NoChange(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-env.changes:
		var ev wire.AccountChanged
		_ = ev.Unmarshal(msg.Data)
		t.Fatalf("unexpected %s change event", ev.Change)
	case <-time.After(wait):
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
