package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/msimon/mcaccounts/accounts"
	"github.com/msimon/mcaccounts/wire"
)

func TestAccountLifecycle(t *testing.T) {
	WithTestEnv(t, EnvOptions{}, func(t *testing.T, env *TestEnv) {
		notch := Profiles["notch"]
		jeb := Profiles["jeb_"]

		t.Run("add by username resolves and whitelists", func(t *testing.T) {
			resp := env.Add(t, wire.AddAccountRequest{UserID: wire.String("alice"), MinecraftUsername: "Notch"})
			if !resp.Success {
				t.Fatalf("add failed: %s", wire.Value(resp.ErrorMessage))
			}
			if resp.Account.MinecraftUUID != notch.UUID || !resp.Account.IsMain {
				t.Fatalf("unexpected account: %+v", resp.Account)
			}
			if !env.Whitelisted(notch.UUID) {
				t.Fatalf("account was not whitelisted")
			}

			ev := env.NextChange(t)
			if ev.Change != wire.ChangeAdded || wire.Value(ev.UserID) != "alice" || ev.Account.MinecraftUUID != notch.UUID {
				t.Fatalf("unexpected change event: %s %+v", ev.Change, ev.Account)
			}
		})

		t.Run("second account is not main", func(t *testing.T) {
			resp := env.Add(t, wire.AddAccountRequest{UserID: wire.String("alice"), MinecraftUsername: "jeb_"})
			if !resp.Success || resp.Account.IsMain {
				t.Fatalf("unexpected reply: success=%v account=%+v", resp.Success, resp.Account)
			}
			env.NextChange(t)
		})

		t.Run("get returns the stored binding", func(t *testing.T) {
			resp := env.Get(t, notch.UUID)
			if !resp.AccountFound || resp.Account.MinecraftUsername != "Notch" {
				t.Fatalf("unexpected get reply: %+v", resp)
			}
			if resp.Account.DeprecatedFirstName != "" {
				t.Fatalf("first name was not sent and must read back empty, got %q", resp.Account.DeprecatedFirstName)
			}
		})

		t.Run("list returns bindings in insertion order", func(t *testing.T) {
			resp := env.List(t, "alice")
			if len(resp.Accounts) != 2 {
				t.Fatalf("expected 2 accounts, got %d", len(resp.Accounts))
			}
			if resp.Accounts[0].MinecraftUUID != notch.UUID || resp.Accounts[1].MinecraftUUID != jeb.UUID {
				t.Fatalf("unexpected order: %s, %s", resp.Accounts[0].MinecraftUUID, resp.Accounts[1].MinecraftUUID)
			}
		})

		t.Run("someone else cannot register the same account", func(t *testing.T) {
			resp := env.Add(t, wire.AddAccountRequest{UserID: wire.String("bob"), MinecraftUUID: wire.String(notch.UUID)})
			if resp.Success || wire.Value(resp.ErrorMessage) != accounts.MsgAlreadyRegistered {
				t.Fatalf("unexpected reply: %+v", resp)
			}
			env.NoChange(t, 200*time.Millisecond)
		})

		t.Run("someone else cannot remove the account", func(t *testing.T) {
			resp := env.Remove(t, wire.RemoveAccountRequest{UserID: "bob", MinecraftUUID: wire.String(notch.UUID)})
			if resp.Success || wire.Value(resp.ErrorMessage) != accounts.MsgUnknownAccount {
				t.Fatalf("unexpected reply: %+v", resp)
			}
			if !env.Get(t, notch.UUID).AccountFound {
				t.Fatalf("binding was removed")
			}
			env.NoChange(t, 200*time.Millisecond)
		})

		t.Run("owner removes the main account", func(t *testing.T) {
			resp := env.Remove(t, wire.RemoveAccountRequest{UserID: "alice", MinecraftUUID: wire.String(notch.UUID)})
			if !resp.Success {
				t.Fatalf("remove failed: %s", wire.Value(resp.ErrorMessage))
			}
			if env.Whitelisted(notch.UUID) {
				t.Fatalf("account still whitelisted")
			}

			ev := env.NextChange(t)
			if ev.Change != wire.ChangeRemoved || ev.Account.MinecraftUUID != notch.UUID || !ev.Account.IsMain {
				t.Fatalf("unexpected change event: %s %+v", ev.Change, ev.Account)
			}

			remaining := env.List(t, "alice").Accounts
			if len(remaining) != 1 || remaining[0].IsMain {
				t.Fatalf("remaining bindings must keep their main flag: %+v", remaining)
			}
		})

		t.Run("legacy remove by username", func(t *testing.T) {
			resp := env.Remove(t, wire.RemoveAccountRequest{UserID: "alice", DeprecatedMinecraftUsername: wire.String("jeb_")})
			if !resp.Success {
				t.Fatalf("remove failed: %s", wire.Value(resp.ErrorMessage))
			}
			env.NextChange(t)
			if len(env.List(t, "alice").Accounts) != 0 {
				t.Fatalf("expected no bindings left")
			}
		})
	})
}

func TestUnknownUsername(t *testing.T) {
	WithTestEnv(t, EnvOptions{}, func(t *testing.T, env *TestEnv) {
		resp := env.Add(t, wire.AddAccountRequest{UserID: wire.String("alice"), MinecraftUsername: "Steve"})
		if resp.Success || wire.Value(resp.ErrorMessage) != "Minecraft Account was not found" {
			t.Fatalf("unexpected reply: %+v", resp)
		}
		if len(env.List(t, "alice").Accounts) != 0 {
			t.Fatalf("binding was created")
		}
		env.NoChange(t, 200*time.Millisecond)
	})
}

func TestLookupCache(t *testing.T) {
	for _, cacheType := range []string{"kv", "memory"} {
		t.Run(cacheType, func(t *testing.T) {
			WithTestEnv(t, EnvOptions{CacheType: cacheType}, func(t *testing.T, env *TestEnv) {
				first := env.Add(t, wire.AddAccountRequest{UserID: wire.String("alice"), MinecraftUsername: "Alex"})
				if !first.Success {
					t.Fatalf("add failed: %s", wire.Value(first.ErrorMessage))
				}
				env.NextChange(t)
				calls := env.MojangCalls()

				second := env.Add(t, wire.AddAccountRequest{UserID: wire.String("bob"), MinecraftUsername: "alex"})
				if wire.Value(second.ErrorMessage) != accounts.MsgAlreadyRegistered {
					t.Fatalf("unexpected reply: %+v", second)
				}
				if env.MojangCalls() != calls {
					t.Fatalf("second lookup was not served from the cache")
				}
			})
		})
	}
}

func TestWhitelistRejection(t *testing.T) {
	WithTestEnv(t, EnvOptions{RequireWhitelistSuccess: true}, func(t *testing.T, env *TestEnv) {
		env.RejectWhitelist("whitelist is full")

		resp := env.Add(t, wire.AddAccountRequest{UserID: wire.String("alice"), MinecraftUsername: "Notch"})
		if resp.Success || wire.Value(resp.ErrorMessage) != accounts.MsgWhitelistFailed {
			t.Fatalf("unexpected reply: %+v", resp)
		}
		if env.Get(t, Profiles["notch"].UUID).AccountFound {
			t.Fatalf("binding stored despite whitelist rejection")
		}
		env.NoChange(t, 200*time.Millisecond)

		env.RejectWhitelist("")
		resp = env.Add(t, wire.AddAccountRequest{UserID: wire.String("alice"), MinecraftUsername: "Notch"})
		if !resp.Success {
			t.Fatalf("add failed after whitelist recovered: %s", wire.Value(resp.ErrorMessage))
		}
	})
}

func TestConcurrentAdds(t *testing.T) {
	WithTestEnv(t, EnvOptions{}, func(t *testing.T, env *TestEnv) {
		uuid := Profiles["notch"].UUID

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				req := wire.AddAccountRequest{UserID: wire.String(fmt.Sprintf("user-%d", i)), MinecraftUUID: wire.String(uuid)}
				msg, err := env.NC.Request(accounts.AddSubject, req.Marshal(), requestTimeout)
				if err != nil {
					t.Errorf("request %d: %v", i, err)
					return
				}
				var resp wire.ChangeAccountResponse
				if err := resp.Unmarshal(msg.Data); err != nil {
					t.Errorf("decoding %d: %v", i, err)
					return
				}
				if resp.Success {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if successes != 1 {
			t.Fatalf("expected exactly one successful add, got %d", successes)
		}
		page, err := env.Store.ListPage(context.Background(), "", 10)
		if err != nil {
			t.Fatalf("listing store: %v", err)
		}
		if len(page) != 1 {
			t.Fatalf("expected one stored binding, got %d", len(page))
		}
	})
}
