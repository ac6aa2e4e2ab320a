// Package supervisor owns the transport session lifecycle: it consumes the
// transport's event stream, is the sole writer of the session state tracker,
// republishes events for observers, and recovers from disconnection.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"wabridge/pkg/config"
	"wabridge/pkg/events"
	"wabridge/pkg/session"
	"wabridge/pkg/transport"
)

const pingCommand = "!ping"

type Supervisor struct {
	sess    transport.Session
	tracker *session.Tracker
	bus     *events.Bus
	log     *slog.Logger

	initialDelay time.Duration
	maxDelay     time.Duration
	maxAttempts  int
}

func New(sess transport.Session, tracker *session.Tracker, bus *events.Bus, cfg config.ReconnectConfig, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}

	return &Supervisor{
		sess:         sess,
		tracker:      tracker,
		bus:          bus,
		log:          log.With("component", "supervisor"),
		initialDelay: time.Duration(cfg.InitialDelaySeconds) * time.Second,
		maxDelay:     time.Duration(cfg.MaxDelaySeconds) * time.Second,
		maxAttempts:  cfg.MaxAttempts,
	}
}

// Run connects the session and processes its lifecycle events until the
// context is canceled or the event stream ends.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.sess.Connect(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.sess.Disconnect()
			return nil
		case event, ok := <-s.sess.Events():
			if !ok {
				return nil
			}
			s.handle(ctx, event)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, event events.Event) {
	switch event.Kind {
	case events.KindState:
		s.tracker.Set(event.State)
		s.bus.Publish(event)
	case events.KindDisconnected:
		s.log.Warn("Session disconnected", "reason", event.Reason)
		s.bus.Publish(event)
		// Leave CONNECTED before reinitialization begins so readers never
		// observe a sendable state over a dead connection.
		s.tracker.Set(session.StateOpening)
		s.bus.Publish(events.StateChanged(session.StateOpening))
		s.reconnect(ctx)
	case events.KindAuthFailure:
		// Auth failures only broadcast; recovering needs the operator to
		// rescan the pairing code.
		s.log.Error("Authentication failure", "reason", event.Reason)
		s.bus.Publish(event)
	case events.KindMessage:
		s.autoReply(ctx, event)
		s.bus.Publish(event)
	default:
		s.bus.Publish(event)
	}
}

// reconnect tears the session down and reinitializes it under bounded
// exponential backoff.
func (s *Supervisor) reconnect(ctx context.Context) {
	delay := s.initialDelay

	for attempt := 1; s.maxAttempts <= 0 || attempt <= s.maxAttempts; attempt++ {
		s.sess.Disconnect()

		err := s.sess.Connect(ctx)
		if err == nil {
			s.log.Info("Session reinitialized", "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.log.Warn("Reinitialize failed", "attempt", attempt, "retry_in", delay, "error", err)
		s.bus.Publish(events.Info("Reconnect failed, retrying..."))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}

	s.log.Error("Giving up on reconnect", "attempts", s.maxAttempts)
	s.bus.Publish(events.Info("Reconnect attempts exhausted, operator intervention required"))
}

// autoReply answers the ping probe from the actual sender chat.
func (s *Supervisor) autoReply(ctx context.Context, event events.Event) {
	if event.Body != pingCommand || !s.tracker.Current().CanSend() {
		return
	}

	if _, err := s.sess.SendText(ctx, event.ChatID, "pong"); err != nil {
		s.log.Warn("Auto-reply failed", "chat_id", event.ChatID, "error", err)
	}
}
