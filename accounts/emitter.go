package accounts

import (
	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/wire"
)

// emitter publishes replies and change notifications. Both are fire-and-forget.
type emitter struct {
	pub              Publisher
	broadcastSubject string
	logger           Logger
}

func (e *emitter) reply(req Request, data []byte) {
	if req.Reply == "" {
		e.logger.Debug("reply_skipped", "request_id", req.ID, "subject", req.Subject)
		return
	}
	if err := e.pub.Publish(req.Reply, data); err != nil {
		e.logger.Warn("reply_publish_failed", "request_id", req.ID, "subject", req.Subject, "error", err)
	}
}

func (e *emitter) changeOK(req Request, account *wire.Account) {
	resp := wire.ChangeAccountResponse{Success: true, Account: account}
	e.reply(req, resp.Marshal())
}

func (e *emitter) changeFailed(req Request, err *RequestError) {
	resp := wire.ChangeAccountResponse{ErrorMessage: wire.String(err.Message)}
	e.reply(req, resp.Marshal())
}

// broadcast announces a committed create or delete. It must follow the reply.
func (e *emitter) broadcast(req Request, change wire.ChangeType, a store.Account) {
	userID, discordID := toWireOwner(a.Owner)
	ev := wire.AccountChanged{
		UserID:              userID,
		DeprecatedDiscordID: discordID,
		Change:              change,
		Account:             toWireAccount(a),
	}
	if err := e.pub.Publish(e.broadcastSubject, ev.Marshal()); err != nil {
		e.logger.Warn("broadcast_publish_failed",
			"request_id", req.ID,
			"change", change.String(),
			"minecraft_uuid", a.MinecraftUUID,
			"error", err,
		)
		return
	}
	e.logger.Debug("account_change_broadcast", "request_id", req.ID, "change", change.String(), "minecraft_uuid", a.MinecraftUUID)
}

func toWireAccount(a store.Account) *wire.Account {
	return &wire.Account{
		MinecraftUUID:       a.MinecraftUUID,
		MinecraftUsername:   a.MinecraftUsername,
		IsMain:              a.IsMain,
		DeprecatedFirstName: a.DeprecatedFirstName,
	}
}
