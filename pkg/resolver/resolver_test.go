package resolver

import (
	"context"
	"errors"
	"testing"

	"wabridge/pkg/events"
	"wabridge/pkg/transport"
)

type fakeSession struct {
	registered map[string]string
	groups     []transport.GroupInfo
	lookupErr  error
	groupsErr  error

	lookupCalls int
}

func (f *fakeSession) Connect(context.Context) error { return nil }
func (f *fakeSession) Disconnect()                   {}
func (f *fakeSession) Events() <-chan events.Event   { return nil }

func (f *fakeSession) IsRegistered(_ context.Context, number string) (string, bool, error) {
	f.lookupCalls++
	if f.lookupErr != nil {
		return "", false, f.lookupErr
	}
	chatID, ok := f.registered[number]
	return chatID, ok, nil
}

func (f *fakeSession) Groups(context.Context) ([]transport.GroupInfo, error) {
	if f.groupsErr != nil {
		return nil, f.groupsErr
	}
	return f.groups, nil
}

func (f *fakeSession) SendText(context.Context, string, string) (transport.Receipt, error) {
	return transport.Receipt{}, nil
}

func (f *fakeSession) SendMedia(context.Context, string, transport.Media) (transport.Receipt, error) {
	return transport.Receipt{}, nil
}

func TestNormalize(t *testing.T) {
	r := New(&fakeSession{}, "62", nil)

	cases := []struct {
		raw  string
		want string
	}{
		{"+1 555-0100", "15550100"},
		{"0812 3456 789", "628123456789"},
		{"628123456789", "628123456789"},
		{"(081) 234-5678", "62812345678"},
	}
	for _, tc := range cases {
		if got := r.Normalize(tc.raw); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestResolveDirectRegistered(t *testing.T) {
	sess := &fakeSession{registered: map[string]string{"15550100": "15550100@s.whatsapp.net"}}
	r := New(sess, "62", nil)

	recipient, err := r.ResolveDirect(context.Background(), "+1 555-0100")
	if err != nil {
		t.Fatalf("ResolveDirect error: %v", err)
	}
	if recipient.ChatID != "15550100@s.whatsapp.net" {
		t.Fatalf("chat id = %q", recipient.ChatID)
	}
	if recipient.Kind != KindDirect {
		t.Fatalf("kind = %q, want %q", recipient.Kind, KindDirect)
	}
}

func TestResolveDirectUnregistered(t *testing.T) {
	r := New(&fakeSession{}, "62", nil)

	if _, err := r.ResolveDirect(context.Background(), "+1 555-0100"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered", err)
	}
}

func TestResolveDirectFailsClosed(t *testing.T) {
	sess := &fakeSession{lookupErr: errors.New("socket closed")}
	r := New(sess, "62", nil)

	if _, err := r.ResolveDirect(context.Background(), "+1 555-0100"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered on transport failure", err)
	}
}

func TestResolveDirectIdempotent(t *testing.T) {
	sess := &fakeSession{registered: map[string]string{"15550100": "15550100@s.whatsapp.net"}}
	r := New(sess, "62", nil)

	first, err := r.ResolveDirect(context.Background(), "+1 555-0100")
	if err != nil {
		t.Fatalf("first resolve error: %v", err)
	}
	second, err := r.ResolveDirect(context.Background(), "+1 555-0100")
	if err != nil {
		t.Fatalf("second resolve error: %v", err)
	}
	if first != second {
		t.Fatalf("resolutions differ: %v vs %v", first, second)
	}
	if sess.lookupCalls != 2 {
		t.Fatalf("lookup calls = %d, want 2 (no caching)", sess.lookupCalls)
	}
}

func TestResolveGroupExactMatch(t *testing.T) {
	sess := &fakeSession{groups: []transport.GroupInfo{
		{ChatID: "111@g.us", Name: "Team Alpha"},
		{ChatID: "222@g.us", Name: "team alpha"},
	}}
	r := New(sess, "62", nil)

	recipient, err := r.ResolveGroup(context.Background(), "Team Alpha")
	if err != nil {
		t.Fatalf("ResolveGroup error: %v", err)
	}
	if recipient.ChatID != "111@g.us" {
		t.Fatalf("chat id = %q, want case-sensitive match", recipient.ChatID)
	}
	if recipient.Kind != KindGroup {
		t.Fatalf("kind = %q, want %q", recipient.Kind, KindGroup)
	}
}

func TestResolveGroupNotFound(t *testing.T) {
	r := New(&fakeSession{}, "62", nil)

	if _, err := r.ResolveGroup(context.Background(), "Team Alpha"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("error = %v, want ErrGroupNotFound", err)
	}
}

func TestResolveGroupListingFailureFailsClosed(t *testing.T) {
	sess := &fakeSession{groupsErr: errors.New("not connected")}
	r := New(sess, "62", nil)

	if _, err := r.ResolveGroup(context.Background(), "Team Alpha"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("error = %v, want ErrGroupNotFound on listing failure", err)
	}
}

func TestResolveGroupDuplicateNamesDeterministic(t *testing.T) {
	sess := &fakeSession{groups: []transport.GroupInfo{
		{ChatID: "999@g.us", Name: "Team Alpha"},
		{ChatID: "111@g.us", Name: "Team Alpha"},
	}}
	r := New(sess, "62", nil)

	for i := 0; i < 3; i++ {
		recipient, err := r.ResolveGroup(context.Background(), "Team Alpha")
		if err != nil {
			t.Fatalf("ResolveGroup error: %v", err)
		}
		if recipient.ChatID != "111@g.us" {
			t.Fatalf("chat id = %q, want lowest chat id on every call", recipient.ChatID)
		}
	}
}
