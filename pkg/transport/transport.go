// Package transport defines the contract the rest of wabridge uses to talk
// to the single WhatsApp account session. The concrete implementation lives
// in the whatsapp subpackage; everything above it treats the session as an
// opaque collaborator.
package transport

import (
	"context"
	"time"

	"wabridge/pkg/events"
)

// Receipt is the transport acknowledgment for one delivered message.
type Receipt struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// Media is one outbound attachment, already fetched and decoded.
type Media struct {
	MimeType string
	Data     []byte
	Caption  string
}

// GroupInfo describes one group chat the account participates in.
type GroupInfo struct {
	ChatID string
	Name   string
}

// Session is one messaging-account connection: lifecycle control, read-only
// recipient lookups, and send primitives. Implementations emit lifecycle
// events on the Events channel for the whole life of the value, across
// reconnects.
type Session interface {
	// Connect initializes the underlying client and starts pairing when the
	// account has no stored credentials.
	Connect(ctx context.Context) error

	// Disconnect tears the live connection down. Safe to call when already
	// disconnected.
	Disconnect()

	// IsRegistered reports whether the normalized phone number belongs to a
	// registered account, and if so returns its canonical chat ID.
	IsRegistered(ctx context.Context, number string) (chatID string, ok bool, err error)

	// Groups lists the group chats the account currently participates in.
	Groups(ctx context.Context) ([]GroupInfo, error)

	SendText(ctx context.Context, chatID, body string) (Receipt, error)
	SendMedia(ctx context.Context, chatID string, media Media) (Receipt, error)

	// Events is the single lifecycle event stream. It is never re-created;
	// consumers subscribe once for the process lifetime.
	Events() <-chan events.Event
}
