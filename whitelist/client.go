// Package whitelist asks the external whitelist service to add or remove a
// Minecraft account, using request/reply on the bus.
package whitelist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/msimon/mcaccounts/wire"
)

const (
	// AddSubject is the request subject for whitelisting an account.
	AddSubject = "minecraft.whitelist.add"

	// RemoveSubject is the request subject for removing an account from the whitelist.
	RemoveSubject = "minecraft.whitelist.remove"
)

// Outcome classifies a whitelist call.
type Outcome int

const (
	// OutcomeOK means a reply was received that did not report failure.
	OutcomeOK Outcome = iota
	// OutcomeRejected means the whitelist service replied with success=false.
	OutcomeRejected
	// OutcomeTimeout means no reply arrived before the deadline.
	OutcomeTimeout
	// OutcomeFailed means the request could not be delivered (no responders, closed connection).
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the outcome of a single whitelist call.
type Result struct {
	Outcome Outcome
	// Message is the error message reported by the whitelist service, if any.
	Message string
	// Err is the transport error for OutcomeTimeout and OutcomeFailed.
	Err error
}

// Requester is satisfied by *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Client calls the whitelist service.
type Client struct {
	nc            Requester
	timeout       time.Duration
	addSubject    string
	removeSubject string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each call. Zero, the default, waits as long as the caller's context allows.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithSubjects overrides the request subjects.
func WithSubjects(add, remove string) Option {
	return func(c *Client) {
		if add != "" {
			c.addSubject = add
		}
		if remove != "" {
			c.removeSubject = remove
		}
	}
}

// NewClient creates a Client.
func NewClient(nc Requester, opts ...Option) *Client {
	c := &Client{
		nc:            nc,
		addSubject:    AddSubject,
		removeSubject: RemoveSubject,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add whitelists the account.
func (c *Client) Add(ctx context.Context, minecraftUUID string) Result {
	return c.call(ctx, c.addSubject, minecraftUUID)
}

// Remove removes the account from the whitelist.
func (c *Client) Remove(ctx context.Context, minecraftUUID string) Result {
	return c.call(ctx, c.removeSubject, minecraftUUID)
}

func (c *Client) call(ctx context.Context, subject, minecraftUUID string) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := wire.WhitelistAccount{UUID: minecraftUUID}
	msg, err := c.nc.RequestWithContext(ctx, subject, req.Marshal())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return Result{Outcome: OutcomeTimeout, Err: fmt.Errorf("%s: %w", subject, err)}
		}
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("%s: %w", subject, err)}
	}

	return interpretReply(msg.Data)
}

// interpretReply treats any reply as completion unless it is a WhitelistResponse
// explicitly reporting failure. Older whitelist services reply with an empty body.
func interpretReply(data []byte) Result {
	if len(data) == 0 {
		return Result{Outcome: OutcomeOK}
	}
	var resp wire.WhitelistResponse
	if err := resp.Unmarshal(data); err != nil {
		return Result{Outcome: OutcomeOK}
	}
	if !resp.Success {
		return Result{Outcome: OutcomeRejected, Message: wire.Value(resp.ErrorMessage)}
	}
	return Result{Outcome: OutcomeOK}
}
