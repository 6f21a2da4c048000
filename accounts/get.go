package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/wire"
)

// Get looks up a binding by Minecraft UUID. It never mutates state.
func (h *Handlers) Get(ctx context.Context, req Request) error {
	var msg wire.GetAccountRequest
	if err := msg.Unmarshal(req.Data); err != nil {
		reqErr := NewRequestError(OpGet, KindValidation, MsgInvalidRequest, err)
		h.replyGet(req, &wire.GetAccountResponse{ErrorMessage: wire.String(reqErr.Message)})
		return reqErr
	}

	minecraftUUID := strings.TrimSpace(msg.MinecraftUUID)
	if minecraftUUID == "" {
		h.replyGet(req, &wire.GetAccountResponse{})
		return nil
	}

	account, err := h.store.FindByMinecraftUUID(ctx, minecraftUUID)
	if errors.Is(err, store.ErrNotFound) {
		h.replyGet(req, &wire.GetAccountResponse{})
		return nil
	}
	if err != nil {
		reqErr := NewRequestError(OpGet, KindStore, MsgGetFailed, err)
		h.replyGet(req, &wire.GetAccountResponse{ErrorMessage: wire.String(reqErr.Message)})
		return reqErr
	}

	h.replyGet(req, &wire.GetAccountResponse{AccountFound: true, Account: toWireAccount(account)})
	return nil
}

func (h *Handlers) replyGet(req Request, resp *wire.GetAccountResponse) {
	h.emit.reply(req, resp.Marshal())
}
