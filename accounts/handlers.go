// Package accounts handles the account binding requests received on the bus.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msimon/mcaccounts/resolver"
	"github.com/msimon/mcaccounts/store"
	"github.com/msimon/mcaccounts/whitelist"
)

// Subjects served and published by the service.
const (
	AddSubject     = "accounts.minecraft.add"
	RemoveSubject  = "accounts.minecraft.remove"
	GetSubject     = "accounts.minecraft.get"
	ListSubject    = "accounts.minecraft.list"
	ChangedSubject = "accounts.minecraft.changed"
)

// Operation names used in logs and metrics.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpGet    = "get"
	OpList   = "list"
)

// Request is one inbound message.
type Request struct {
	// ID correlates log lines. Generated when empty.
	ID      string
	Subject string
	// Reply is the reply subject. When empty no reply is sent, but mutations and broadcasts still happen.
	Reply string
	Data  []byte
}

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Whitelist is satisfied by *whitelist.Client.
type Whitelist interface {
	Add(ctx context.Context, minecraftUUID string) whitelist.Result
	Remove(ctx context.Context, minecraftUUID string) whitelist.Result
}

// Handlers implements the add, remove, get and list operations.
type Handlers struct {
	store     store.Store
	resolver  resolver.Resolver
	whitelist Whitelist
	emit      *emitter
	logger    Logger
	metrics   Metrics

	requireWhitelistSuccess bool
	locks                   *keyedMutex
	broadcastSubject        string
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(h *Handlers) {
		h.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithRequireWhitelistSuccess makes a rejected whitelist reply abort the mutation.
// By default any reply from the whitelist service counts as completion.
func WithRequireWhitelistSuccess(require bool) Option {
	return func(h *Handlers) {
		h.requireWhitelistSuccess = require
	}
}

// WithSerializePerAccount serializes add and remove requests for the same Minecraft UUID.
func WithSerializePerAccount(serialize bool) Option {
	return func(h *Handlers) {
		if serialize {
			h.locks = newKeyedMutex()
		} else {
			h.locks = nil
		}
	}
}

// WithBroadcastSubject overrides the change notification subject.
func WithBroadcastSubject(subject string) Option {
	return func(h *Handlers) {
		if subject != "" {
			h.broadcastSubject = subject
		}
	}
}

// NewHandlers creates Handlers. All collaborators are required.
func NewHandlers(s store.Store, r resolver.Resolver, wl Whitelist, pub Publisher, opts ...Option) (*Handlers, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if r == nil {
		return nil, errors.New("resolver is required")
	}
	if wl == nil {
		return nil, errors.New("whitelist client is required")
	}
	if pub == nil {
		return nil, errors.New("publisher is required")
	}

	h := &Handlers{
		store:            s,
		resolver:         r,
		whitelist:        wl,
		logger:           defaultLogger(),
		metrics:          nopMetrics{},
		broadcastSubject: ChangedSubject,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.emit = &emitter{pub: pub, broadcastSubject: h.broadcastSubject, logger: h.logger}
	return h, nil
}

// Handle dispatches req by subject and records the outcome.
// The returned error is the failure already reported to the requester, if any.
func (h *Handlers) Handle(ctx context.Context, req Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var (
		op string
		fn func(context.Context, Request) error
	)
	switch req.Subject {
	case AddSubject:
		op, fn = OpAdd, h.Add
	case RemoveSubject:
		op, fn = OpRemove, h.Remove
	case GetSubject:
		op, fn = OpGet, h.Get
	case ListSubject:
		op, fn = OpList, h.List
	default:
		return fmt.Errorf("no handler for subject %s", req.Subject)
	}

	start := time.Now()
	err := fn(ctx, req)
	h.metrics.ObserveRequest(op, outcomeOf(err), time.Since(start))

	if err != nil {
		h.logger.Info("request_failed", "request_id", req.ID, "operation", op, "error", err)
	} else {
		h.logger.Debug("request_handled", "request_id", req.ID, "operation", op, "duration", time.Since(start))
	}
	return err
}

func (h *Handlers) lock(minecraftUUID string) func() {
	if h.locks == nil {
		return func() {}
	}
	return h.locks.Lock(minecraftUUID)
}

// whitelistBlocks reports whether a whitelist result must abort the mutation.
func (h *Handlers) whitelistBlocks(res whitelist.Result) bool {
	switch res.Outcome {
	case whitelist.OutcomeOK:
		return false
	case whitelist.OutcomeRejected:
		return h.requireWhitelistSuccess
	default:
		return true
	}
}

// divergence logs a whitelist change that the store did not follow.
func (h *Handlers) divergence(req Request, op, minecraftUUID string, err error) {
	h.metrics.WhitelistDivergence(op)
	h.logger.Error("whitelist_store_divergence",
		"request_id", req.ID,
		"operation", op,
		"minecraft_uuid", minecraftUUID,
		"error", err,
	)
}

func toWireOwner(o store.Owner) (userID, discordID *string) {
	if o.UserID != "" {
		u := o.UserID
		userID = &u
	}
	if o.DiscordID != "" {
		d := o.DiscordID
		discordID = &d
	}
	return userID, discordID
}
