package accounts

import (
	"context"
	"strings"

	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/wire"
)

// List returns the caller's bindings. The caller key is matched against both
// the user id and the legacy discord id, user-keyed bindings first.
func (h *Handlers) List(ctx context.Context, req Request) error {
	var msg wire.ListAccountsRequest
	if err := msg.Unmarshal(req.Data); err != nil {
		reqErr := NewRequestError(OpList, KindValidation, MsgInvalidRequest, err)
		h.replyList(req, &wire.ListAccountsResponse{ErrorMessage: wire.String(reqErr.Message)})
		return reqErr
	}

	resp := wire.ListAccountsResponse{UserID: msg.UserID}
	key := strings.TrimSpace(msg.UserID)
	if key == "" {
		h.replyList(req, &resp)
		return nil
	}

	owned, err := h.store.ListForOwner(ctx, store.Owner{UserID: key, DiscordID: key})
	if err != nil {
		reqErr := NewRequestError(OpList, KindStore, MsgListFailed, err)
		resp.ErrorMessage = wire.String(reqErr.Message)
		h.replyList(req, &resp)
		return reqErr
	}

	resp.Accounts = make([]wire.Account, 0, len(owned))
	for _, a := range owned {
		resp.Accounts = append(resp.Accounts, *toWireAccount(a))
	}
	h.replyList(req, &resp)
	return nil
}

func (h *Handlers) replyList(req Request, resp *wire.ListAccountsResponse) {
	h.emit.reply(req, resp.Marshal())
}
