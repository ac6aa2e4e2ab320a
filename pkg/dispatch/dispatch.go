// Package dispatch is the outbound pipeline: validate a send request,
// gate on session state, resolve the recipient, and perform the send,
// translating transport results into a uniform contract.
package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"wabridge/pkg/resolver"
	"wabridge/pkg/session"
	"wabridge/pkg/transport"
)

// TextRequest asks for a plain text message to a direct contact.
type TextRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// GroupTextRequest asks for a plain text message to a named group.
type GroupTextRequest struct {
	Group   string `json:"group"`
	Message string `json:"message"`
}

// MediaRequest asks for a remote file to be fetched and sent as media.
type MediaRequest struct {
	Number  string `json:"number"`
	Caption string `json:"caption"`
	FileURL string `json:"file"`
}

// Result is a successful dispatch outcome.
type Result struct {
	Receipt transport.Receipt
}

// Dispatcher runs one send request through the full pipeline. Each call is
// exactly-once-attempted against the transport; there are no retries here.
type Dispatcher struct {
	tracker  *session.Tracker
	resolver *resolver.Resolver
	sess     transport.Session
	fetcher  *Fetcher
	log      *slog.Logger
}

func New(tracker *session.Tracker, res *resolver.Resolver, sess transport.Session, fetcher *Fetcher, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		tracker:  tracker,
		resolver: res,
		sess:     sess,
		fetcher:  fetcher,
		log:      log.With("component", "dispatch"),
	}
}

// SendText delivers a text message to a direct contact.
func (d *Dispatcher) SendText(ctx context.Context, req TextRequest) (Result, error) {
	if err := requireFields(map[string]string{
		"number":  req.Number,
		"message": req.Message,
	}); err != nil {
		return Result{}, err
	}

	if err := d.gate(); err != nil {
		return Result{}, err
	}

	recipient, err := d.resolver.ResolveDirect(ctx, req.Number)
	if err != nil {
		return Result{}, err
	}

	return d.send(ctx, recipient, func() (transport.Receipt, error) {
		return d.sess.SendText(ctx, recipient.ChatID, req.Message)
	})
}

// SendGroupText delivers a text message to a group resolved by display name.
func (d *Dispatcher) SendGroupText(ctx context.Context, req GroupTextRequest) (Result, error) {
	if err := requireFields(map[string]string{
		"group":   req.Group,
		"message": req.Message,
	}); err != nil {
		return Result{}, err
	}

	if err := d.gate(); err != nil {
		return Result{}, err
	}

	recipient, err := d.resolver.ResolveGroup(ctx, req.Group)
	if err != nil {
		return Result{}, err
	}

	return d.send(ctx, recipient, func() (transport.Receipt, error) {
		return d.sess.SendText(ctx, recipient.ChatID, req.Message)
	})
}

// SendMedia fetches a remote file and delivers it as media with a caption.
// The fetch happens only after the recipient resolves, and the transport is
// never called when the fetch fails.
func (d *Dispatcher) SendMedia(ctx context.Context, req MediaRequest) (Result, error) {
	if err := requireFields(map[string]string{
		"number": req.Number,
		"file":   req.FileURL,
	}); err != nil {
		return Result{}, err
	}

	if err := d.gate(); err != nil {
		return Result{}, err
	}

	recipient, err := d.resolver.ResolveDirect(ctx, req.Number)
	if err != nil {
		return Result{}, err
	}

	media, err := d.fetcher.Fetch(ctx, req.FileURL, req.Caption)
	if err != nil {
		return Result{}, err
	}

	return d.send(ctx, recipient, func() (transport.Receipt, error) {
		return d.sess.SendMedia(ctx, recipient.ChatID, media)
	})
}

// gate rejects sends outright while the session state forbids them, instead
// of letting the transport fail with a less specific error.
func (d *Dispatcher) gate() error {
	if state := d.tracker.Current(); !state.CanSend() {
		return &SessionNotReadyError{State: state}
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, recipient resolver.Recipient, doSend func() (transport.Receipt, error)) (Result, error) {
	receipt, err := doSend()
	if err != nil {
		d.log.Error("Transport send failed", "chat_id", recipient.ChatID, "kind", string(recipient.Kind), "error", err)
		return Result{}, &TransportError{Err: err}
	}

	d.log.Info("Message sent", "chat_id", recipient.ChatID, "kind", string(recipient.Kind), "message_id", receipt.ID)
	return Result{Receipt: receipt}, nil
}

func requireFields(fields map[string]string) error {
	missing := make(map[string]string)
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing[name] = "the " + name + " field is required"
		}
	}

	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	return nil
}
