package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoBackends signals that Send was called with zero configured backends,
// distinct from backends being configured and all failing.
var ErrNoBackends = errors.New("no notification backends configured")

// ErrUnknownBackend signals a targeted send to a backend kind that is not
// configured.
var ErrUnknownBackend = errors.New("unknown notification backend")

// Backend is one concrete push-notification delivery channel.
type Backend interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Dispatcher fans a logical message out to a fixed set of backends configured
// at startup. By default the send succeeds if at least one backend succeeded;
// with RequireAll, any backend failure fails the send.
type Dispatcher struct {
	backends   []Backend
	requireAll bool
	logger     *zap.Logger
}

func NewDispatcher(backends []Backend, requireAll bool, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		backends:   backends,
		requireAll: requireAll,
		logger:     logger,
	}
}

// Configured returns the number of configured backends.
func (d *Dispatcher) Configured() int {
	return len(d.backends)
}

// Send delivers the message to every configured backend. A failure on one
// backend never prevents attempting the others.
func (d *Dispatcher) Send(ctx context.Context, msg *Message) error {
	if len(d.backends) == 0 {
		return ErrNoBackends
	}

	var firstErr error
	failures := 0
	for _, backend := range d.backends {
		if err := backend.Send(ctx, msg); err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			d.logger.Error("Notification backend failed",
				zap.String("backend", backend.Name()),
				zap.String("title", msg.Title),
				zap.Error(err))
		} else {
			d.logger.Debug("Notification sent",
				zap.String("backend", backend.Name()),
				zap.String("title", msg.Title))
		}
	}

	if failures == len(d.backends) {
		return fmt.Errorf("all %d notification backends failed: %w", failures, firstErr)
	}
	if d.requireAll && failures > 0 {
		return fmt.Errorf("%d of %d notification backends failed: %w",
			failures, len(d.backends), firstErr)
	}

	return nil
}

// SendTo delivers the message to a single backend selected by name.
func (d *Dispatcher) SendTo(ctx context.Context, name string, msg *Message) error {
	for _, backend := range d.backends {
		if backend.Name() == name {
			return backend.Send(ctx, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownBackend, name)
}
