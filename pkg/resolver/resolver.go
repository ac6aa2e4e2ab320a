// Package resolver confirms that a raw recipient identifier is a real,
// reachable contact or group before any send is attempted.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"wabridge/pkg/transport"
)

var (
	// ErrNotRegistered means the number does not belong to a registered
	// account, or registration could not be confirmed.
	ErrNotRegistered = errors.New("the number is not registered")

	// ErrGroupNotFound means no joined group chat carries the given name,
	// or the group listing could not be obtained.
	ErrGroupNotFound = errors.New("the group is not registered")
)

// RecipientKind distinguishes direct contacts from named groups.
type RecipientKind string

const (
	KindDirect RecipientKind = "direct"
	KindGroup  RecipientKind = "group"
)

// Recipient is a confirmed-reachable target for one dispatch call. It is a
// transient value; group membership and registration can change, so it is
// never cached across requests.
type Recipient struct {
	ChatID string
	Kind   RecipientKind
}

type Resolver struct {
	sess        transport.Session
	countryCode string
	log         *slog.Logger
}

func New(sess transport.Session, countryCode string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}

	return &Resolver{
		sess:        sess,
		countryCode: countryCode,
		log:         log.With("component", "resolver"),
	}
}

// Normalize strips punctuation from a raw phone number and rewrites a
// leading zero to the configured country code.
func (r *Resolver) Normalize(number string) string {
	var digits strings.Builder
	for _, ch := range number {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}

	normalized := digits.String()
	if strings.HasPrefix(normalized, "0") {
		normalized = r.countryCode + normalized[1:]
	}

	return normalized
}

// ResolveDirect confirms the number belongs to a registered account. Any
// transport-level failure degrades to ErrNotRegistered; resolution never
// reports a send target it could not positively confirm.
func (r *Resolver) ResolveDirect(ctx context.Context, raw string) (Recipient, error) {
	normalized := r.Normalize(raw)

	chatID, ok, err := r.sess.IsRegistered(ctx, normalized)
	if err != nil {
		r.log.Warn("Registration lookup failed", "number", normalized, "error", err)
		return Recipient{}, ErrNotRegistered
	}
	if !ok {
		return Recipient{}, ErrNotRegistered
	}

	return Recipient{ChatID: chatID, Kind: KindDirect}, nil
}

// ResolveGroup finds a joined group chat whose display name exactly equals
// name (case-sensitive). When several groups share the name, the one with
// the lowest chat ID wins, so repeated calls on an unchanged group list are
// deterministic.
func (r *Resolver) ResolveGroup(ctx context.Context, name string) (Recipient, error) {
	groups, err := r.sess.Groups(ctx)
	if err != nil {
		r.log.Warn("Group listing failed", "error", err)
		return Recipient{}, ErrGroupNotFound
	}

	matches := make([]transport.GroupInfo, 0, 1)
	for _, group := range groups {
		if group.Name == name {
			matches = append(matches, group)
		}
	}
	if len(matches) == 0 {
		return Recipient{}, ErrGroupNotFound
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].ChatID < matches[j].ChatID })
	if len(matches) > 1 {
		r.log.Warn("Duplicate group name, using lowest chat id", "group", name, "matches", len(matches))
	}

	return Recipient{ChatID: matches[0].ChatID, Kind: KindGroup}, nil
}
