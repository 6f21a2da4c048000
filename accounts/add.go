package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/msimon/mcaccounts/resolver"
	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/whitelist"
	"github.com/msimon/mcaccounts/wire"
)

// Add binds a Minecraft account to its owner.
//
// The pipeline is: validate, resolve the username when no UUID is given, check
// uniqueness, decide the main flag, whitelist, persist, reply, broadcast.
// Any failure replies with success=false and stops before the broadcast.
func (h *Handlers) Add(ctx context.Context, req Request) error {
	fail := func(kind ErrorKind, message string, err error) error {
		reqErr := NewRequestError(OpAdd, kind, message, err)
		h.emit.changeFailed(req, reqErr)
		return reqErr
	}

	var msg wire.AddAccountRequest
	if err := msg.Unmarshal(req.Data); err != nil {
		return fail(KindValidation, MsgInvalidRequest, err)
	}

	owner := store.Owner{
		UserID:    strings.TrimSpace(wire.Value(msg.UserID)),
		DiscordID: strings.TrimSpace(wire.Value(msg.DeprecatedDiscordID)),
	}
	if owner.IsZero() {
		return fail(KindValidation, MsgOwnerRequired, nil)
	}

	minecraftUUID := strings.TrimSpace(wire.Value(msg.MinecraftUUID))
	username := strings.TrimSpace(msg.MinecraftUsername)
	if minecraftUUID == "" && username == "" {
		return fail(KindValidation, MsgIdentifierRequired, nil)
	}

	if minecraftUUID == "" {
		profile, err := h.resolver.Resolve(ctx, username)
		h.metrics.ResolverLookup(resolver.Outcome(err))
		switch {
		case err == nil:
			minecraftUUID = profile.UUID
		case errors.Is(err, resolver.ErrNotFound):
			return fail(KindNotFound, MsgAccountNotFound, err)
		case errors.Is(err, resolver.ErrRateLimited):
			return fail(KindUpstream, MsgLookupOverloaded, err)
		default:
			return fail(KindUpstream, MsgLookupFailed, err)
		}
	}

	unlock := h.lock(minecraftUUID)
	defer unlock()

	exists, err := h.store.Exists(ctx, minecraftUUID)
	if err != nil {
		return fail(KindStore, MsgCreateFailed, err)
	}
	if exists {
		return fail(KindConflict, MsgAlreadyRegistered, store.ErrConflict)
	}

	owned, err := h.store.ListForOwner(ctx, owner)
	if err != nil {
		return fail(KindStore, MsgCreateFailed, err)
	}

	// the whitelist entry must exist before the binding is stored
	res := h.whitelist.Add(ctx, minecraftUUID)
	h.metrics.WhitelistCall(OpAdd, res.Outcome.String())
	if h.whitelistBlocks(res) {
		return fail(KindUpstream, MsgWhitelistFailed, whitelistError(res))
	}
	if res.Outcome == whitelist.OutcomeRejected {
		h.logger.Warn("whitelist_rejected_ignored",
			"request_id", req.ID,
			"minecraft_uuid", minecraftUUID,
			"message", res.Message,
		)
	}

	created, err := h.store.Create(ctx, owner, store.Account{
		MinecraftUUID:       minecraftUUID,
		MinecraftUsername:   username,
		IsMain:              len(owned) == 0,
		DeprecatedFirstName: msg.FirstName,
	})
	if errors.Is(err, store.ErrConflict) {
		// a concurrent add won; its binding owns the whitelist entry
		return fail(KindConflict, MsgAlreadyRegistered, err)
	}
	if err != nil {
		h.divergence(req, OpAdd, minecraftUUID, err)
		return fail(KindStore, MsgCreateFailed, err)
	}

	h.logger.Info("account_added",
		"request_id", req.ID,
		"minecraft_uuid", created.MinecraftUUID,
		"is_main", created.IsMain,
	)

	h.emit.changeOK(req, toWireAccount(created))
	h.emit.broadcast(req, wire.ChangeAdded, created)
	return nil
}

// whitelistError describes a whitelist result that stopped a mutation.
func whitelistError(res whitelist.Result) error {
	if res.Err != nil {
		return res.Err
	}
	if res.Message != "" {
		return errors.New("whitelist rejected: " + res.Message)
	}
	return errors.New("whitelist " + res.Outcome.String())
}
