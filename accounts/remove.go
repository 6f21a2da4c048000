package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/whitelist"
	"github.com/msimon/mcaccounts/wire"
)

// Remove deletes a binding on behalf of its owner.
//
// Unknown accounts and accounts owned by someone else get the same reply so
// callers cannot probe for existence. Removing a main account does not promote
// another binding.
func (h *Handlers) Remove(ctx context.Context, req Request) error {
	fail := func(kind ErrorKind, message string, err error) error {
		reqErr := NewRequestError(OpRemove, kind, message, err)
		h.emit.changeFailed(req, reqErr)
		return reqErr
	}

	var msg wire.RemoveAccountRequest
	if err := msg.Unmarshal(req.Data); err != nil {
		return fail(KindValidation, MsgInvalidRequest, err)
	}
	caller := strings.TrimSpace(msg.UserID)

	minecraftUUID := strings.TrimSpace(wire.Value(msg.MinecraftUUID))
	if minecraftUUID == "" {
		username := strings.TrimSpace(wire.Value(msg.DeprecatedMinecraftUsername))
		if username == "" {
			return fail(KindValidation, MsgUnknownAccount, nil)
		}
		found, err := h.store.FindByUsername(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			return fail(KindNotFound, MsgUnknownAccount, err)
		}
		if err != nil {
			return fail(KindStore, MsgRemoveFailed, err)
		}
		minecraftUUID = found
	}

	unlock := h.lock(minecraftUUID)
	defer unlock()

	owner, err := h.store.OwnerOf(ctx, minecraftUUID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(KindNotFound, MsgUnknownAccount, err)
	}
	if err != nil {
		return fail(KindStore, MsgRemoveFailed, err)
	}
	if !owner.Matches(caller) {
		return fail(KindOwnership, MsgUnknownAccount, nil)
	}

	// fetched before deleting; the broadcast carries the removed binding
	account, err := h.store.FindByMinecraftUUID(ctx, minecraftUUID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(KindNotFound, MsgUnknownAccount, err)
	}
	if err != nil {
		return fail(KindStore, MsgRemoveFailed, err)
	}

	res := h.whitelist.Remove(ctx, minecraftUUID)
	h.metrics.WhitelistCall(OpRemove, res.Outcome.String())
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

	deleted, err := h.store.Delete(ctx, minecraftUUID)
	if err != nil {
		h.divergence(req, OpRemove, minecraftUUID, err)
		return fail(KindStore, MsgRemoveFailed, err)
	}
	if !deleted {
		return fail(KindNotFound, MsgUnknownAccount, store.ErrNotFound)
	}

	h.logger.Info("account_removed",
		"request_id", req.ID,
		"minecraft_uuid", minecraftUUID,
		"was_main", account.IsMain,
	)

	h.emit.changeOK(req, nil)
	h.emit.broadcast(req, wire.ChangeRemoved, account)
	return nil
}
