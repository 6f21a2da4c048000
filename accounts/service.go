package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultQueueGroup load-balances requests across service replicas.
const DefaultQueueGroup = "mcaccounts"

// drainTimeout bounds how long shutdown waits for subscriptions to drain.
const drainTimeout = 10 * time.Second

// Service subscribes the handlers to the request subjects.
type Service struct {
	handlers *Handlers
	nc       *nats.Conn
	queue    string
	subjects []string

	subs         []*nats.Subscription
	logger       Logger
	drainTimeout time.Duration

	// gate orders dispatch's wg.Add before shutdown's wg.Wait
	gate     sync.Mutex
	gateShut bool

	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets a custom logger for the service.
func WithServiceLogger(l Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithQueueGroup sets the queue group. Default: "mcaccounts".
func WithQueueGroup(queue string) ServiceOption {
	return func(s *Service) {
		if queue != "" {
			s.queue = queue
		}
	}
}

// NewService creates a Service on an established connection.
// The caller owns nc and closes it after Start returns.
func NewService(nc *nats.Conn, handlers *Handlers, opts ...ServiceOption) (*Service, error) {
	if nc == nil {
		return nil, errors.New("NATS connection is required")
	}
	if handlers == nil {
		return nil, errors.New("handlers are required")
	}

	s := &Service{
		handlers: handlers,
		nc:       nc,
		queue:    DefaultQueueGroup,
		subjects: []string{AddSubject, RemoveSubject, GetSubject, ListSubject},
		logger:   defaultLogger(),
		done:     make(chan struct{}),

		drainTimeout: drainTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start subscribes to the request subjects and blocks until Stop is called or
// ctx is cancelled. In-flight requests complete before Start returns.
func (s *Service) Start(ctx context.Context) error {
	// handlers outlive shutdown signals; only the process exit ends them
	handlerCtx := context.WithoutCancel(ctx)

	for _, subject := range s.subjects {
		sub, err := s.nc.QueueSubscribe(subject, s.queue, func(msg *nats.Msg) {
			s.dispatch(handlerCtx, msg)
		})
		if err != nil {
			s.unsubscribeAll()
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.nc.Flush(); err != nil {
		s.unsubscribeAll()
		return fmt.Errorf("flushing subscriptions: %w", err)
	}

	s.logger.Info("accounts_service_started", "queue", s.queue, "subjects", s.subjects)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	case <-s.done:
		s.logger.Info("stop requested, shutting down")
	}

	return s.shutdown()
}

// Stop signals the service to shut down gracefully.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// dispatch runs each message in its own goroutine so a slow request never delays others.
func (s *Service) dispatch(ctx context.Context, msg *nats.Msg) {
	s.gate.Lock()
	if s.gateShut {
		s.gate.Unlock()
		s.logger.Warn("request_dropped_after_drain", "subject", msg.Subject)
		return
	}
	s.wg.Add(1)
	s.gate.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler_panic", "subject", msg.Subject, "panic", fmt.Sprint(r))
			}
		}()

		_ = s.handlers.Handle(ctx, Request{
			ID:      uuid.NewString(),
			Subject: msg.Subject,
			Reply:   msg.Reply,
			Data:    msg.Data,
		})
	}()
}

// shutdown drains subscriptions and waits for in-flight requests.
func (s *Service) shutdown() error {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.logger.Warn("error draining subscription", "subject", sub.Subject, "error", err)
		}
	}

	deadline := time.Now().Add(s.drainTimeout)
	for _, sub := range s.subs {
		for sub.IsValid() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	s.closeGate()
	for _, sub := range s.subs {
		if sub.IsValid() {
			s.logger.Warn("drain timed out, unsubscribing", "subject", sub.Subject)
			_ = sub.Unsubscribe()
		}
	}

	// Wait for in-flight requests to complete
	s.wg.Wait()

	s.logger.Info("accounts_service_stopped")
	return nil
}

// closeGate makes dispatch drop any message delivered from now on.
func (s *Service) closeGate() {
	s.gate.Lock()
	s.gateShut = true
	s.gate.Unlock()
}

func (s *Service) unsubscribeAll() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}
