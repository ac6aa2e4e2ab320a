package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wabridge/pkg/events"
	"wabridge/pkg/resolver"
	"wabridge/pkg/session"
	"wabridge/pkg/transport"
)

// spySession records every transport call so tests can assert that dispatch
// never touches the transport on early rejection.
type spySession struct {
	registered map[string]string
	groups     []transport.GroupInfo
	sendErr    error

	lookupCalls int
	sendCalls   int
	sentBody    string
	sentChatID  string
	sentMedia   transport.Media
}

func (f *spySession) Connect(context.Context) error { return nil }
func (f *spySession) Disconnect()                   {}
func (f *spySession) Events() <-chan events.Event   { return nil }

func (f *spySession) IsRegistered(_ context.Context, number string) (string, bool, error) {
	f.lookupCalls++
	chatID, ok := f.registered[number]
	return chatID, ok, nil
}

func (f *spySession) Groups(context.Context) ([]transport.GroupInfo, error) {
	return f.groups, nil
}

func (f *spySession) SendText(_ context.Context, chatID, body string) (transport.Receipt, error) {
	f.sendCalls++
	f.sentChatID = chatID
	f.sentBody = body
	if f.sendErr != nil {
		return transport.Receipt{}, f.sendErr
	}
	return transport.Receipt{ID: "MSG1", Timestamp: time.Unix(1700000000, 0)}, nil
}

func (f *spySession) SendMedia(_ context.Context, chatID string, media transport.Media) (transport.Receipt, error) {
	f.sendCalls++
	f.sentChatID = chatID
	f.sentMedia = media
	if f.sendErr != nil {
		return transport.Receipt{}, f.sendErr
	}
	return transport.Receipt{ID: "MSG2", Timestamp: time.Unix(1700000000, 0)}, nil
}

func newDispatcher(sess *spySession, state session.State) (*Dispatcher, *session.Tracker) {
	tracker := session.NewTracker()
	tracker.Set(state)
	res := resolver.New(sess, "62", nil)
	fetcher := NewFetcher(2*time.Second, 1<<20)
	return New(tracker, res, sess, fetcher, nil), tracker
}

func TestSendTextValidationBeforeTransport(t *testing.T) {
	cases := []TextRequest{
		{Number: "", Message: "hi"},
		{Number: "+1 555-0100", Message: ""},
		{Number: "", Message: ""},
	}

	for _, req := range cases {
		sess := &spySession{}
		d, _ := newDispatcher(sess, session.StateConnected)

		_, err := d.SendText(context.Background(), req)

		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("error = %v, want ValidationError", err)
		}
		if sess.lookupCalls != 0 || sess.sendCalls != 0 {
			t.Fatalf("transport touched on invalid request: lookups=%d sends=%d", sess.lookupCalls, sess.sendCalls)
		}
	}
}

func TestSendTextValidationFieldMessages(t *testing.T) {
	d, _ := newDispatcher(&spySession{}, session.StateConnected)

	_, err := d.SendText(context.Background(), TextRequest{})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	for _, field := range []string{"number", "message"} {
		if _, ok := validationErr.Fields[field]; !ok {
			t.Fatalf("missing per-field message for %q: %v", field, validationErr.Fields)
		}
	}
}

func TestSendTextGatedOnSessionState(t *testing.T) {
	sess := &spySession{registered: map[string]string{"15550100": "15550100@s.whatsapp.net"}}
	d, _ := newDispatcher(sess, session.StateOpening)

	_, err := d.SendText(context.Background(), TextRequest{Number: "+1 555-0100", Message: "hi"})

	var notReady *SessionNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("error = %v, want SessionNotReadyError", err)
	}
	if notReady.State != session.StateOpening {
		t.Fatalf("gated state = %q, want OPENING", notReady.State)
	}
	if sess.lookupCalls != 0 || sess.sendCalls != 0 {
		t.Fatal("transport touched while session not connected")
	}
}

func TestSendTextUnregisteredNumber(t *testing.T) {
	sess := &spySession{}
	d, _ := newDispatcher(sess, session.StateConnected)

	_, err := d.SendText(context.Background(), TextRequest{Number: "+1 555-0100", Message: "hi"})
	if !errors.Is(err, resolver.ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered", err)
	}
	if sess.sendCalls != 0 {
		t.Fatal("send attempted for unregistered number")
	}
}

func TestSendTextSuccess(t *testing.T) {
	sess := &spySession{registered: map[string]string{"15550100": "15550100@s.whatsapp.net"}}
	d, _ := newDispatcher(sess, session.StateConnected)

	result, err := d.SendText(context.Background(), TextRequest{Number: "+1 555-0100", Message: "hi"})
	if err != nil {
		t.Fatalf("SendText error: %v", err)
	}
	if result.Receipt.ID != "MSG1" {
		t.Fatalf("receipt id = %q", result.Receipt.ID)
	}
	if sess.sentChatID != "15550100@s.whatsapp.net" || sess.sentBody != "hi" {
		t.Fatalf("sent to %q body %q", sess.sentChatID, sess.sentBody)
	}
	if sess.sendCalls != 1 {
		t.Fatalf("send calls = %d, want exactly one attempt", sess.sendCalls)
	}
}

func TestSendTextTransportFailurePassthrough(t *testing.T) {
	sendErr := errors.New("server rejected message")
	sess := &spySession{
		registered: map[string]string{"15550100": "15550100@s.whatsapp.net"},
		sendErr:    sendErr,
	}
	d, _ := newDispatcher(sess, session.StateConnected)

	_, err := d.SendText(context.Background(), TextRequest{Number: "+1 555-0100", Message: "hi"})

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if !errors.Is(err, sendErr) {
		t.Fatal("transport detail was not passed through")
	}
	if sess.sendCalls != 1 {
		t.Fatalf("send calls = %d, want exactly one attempt, no retries", sess.sendCalls)
	}
}

func TestSendGroupTextSuccess(t *testing.T) {
	sess := &spySession{groups: []transport.GroupInfo{{ChatID: "111@g.us", Name: "Team Alpha"}}}
	d, _ := newDispatcher(sess, session.StateConnected)

	result, err := d.SendGroupText(context.Background(), GroupTextRequest{Group: "Team Alpha", Message: "standup"})
	if err != nil {
		t.Fatalf("SendGroupText error: %v", err)
	}
	if result.Receipt.ID == "" {
		t.Fatal("expected a receipt")
	}
	if sess.sentChatID != "111@g.us" {
		t.Fatalf("sent to %q, want group chat", sess.sentChatID)
	}
}

func TestSendGroupTextUnknownGroup(t *testing.T) {
	sess := &spySession{}
	d, _ := newDispatcher(sess, session.StateConnected)

	_, err := d.SendGroupText(context.Background(), GroupTextRequest{Group: "Team Alpha", Message: "standup"})
	if !errors.Is(err, resolver.ErrGroupNotFound) {
		t.Fatalf("error = %v, want ErrGroupNotFound", err)
	}
	if sess.sendCalls != 0 {
		t.Fatal("send attempted for unknown group")
	}
}

func TestSendMediaSuccess(t *testing.T) {
	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake image bytes"))
	}))
	defer fileServer.Close()

	sess := &spySession{registered: map[string]string{"15550100": "15550100@s.whatsapp.net"}}
	d, _ := newDispatcher(sess, session.StateConnected)

	result, err := d.SendMedia(context.Background(), MediaRequest{
		Number:  "+1 555-0100",
		Caption: "look",
		FileURL: fileServer.URL,
	})
	if err != nil {
		t.Fatalf("SendMedia error: %v", err)
	}
	if result.Receipt.ID != "MSG2" {
		t.Fatalf("receipt id = %q", result.Receipt.ID)
	}
	if sess.sentMedia.MimeType != "image/png" {
		t.Fatalf("mime type = %q, want image/png", sess.sentMedia.MimeType)
	}
	if sess.sentMedia.Caption != "look" {
		t.Fatalf("caption = %q", sess.sentMedia.Caption)
	}
}

func TestSendMediaUnreachableURLNoTransportCall(t *testing.T) {
	sess := &spySession{registered: map[string]string{"15550100": "15550100@s.whatsapp.net"}}
	d, _ := newDispatcher(sess, session.StateConnected)

	_, err := d.SendMedia(context.Background(), MediaRequest{
		Number:  "+1 555-0100",
		FileURL: "http://127.0.0.1:1/missing.png",
	})

	var fetchErr *MediaFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want MediaFetchError", err)
	}
	if sess.sendCalls != 0 {
		t.Fatal("transport send attempted after failed media fetch")
	}
}

func TestSendMediaOverLimit(t *testing.T) {
	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer fileServer.Close()

	sess := &spySession{registered: map[string]string{"15550100": "15550100@s.whatsapp.net"}}
	tracker := session.NewTracker()
	tracker.Set(session.StateConnected)
	res := resolver.New(sess, "62", nil)
	d := New(tracker, res, sess, NewFetcher(2*time.Second, 1024), nil)

	_, err := d.SendMedia(context.Background(), MediaRequest{Number: "+1 555-0100", FileURL: fileServer.URL})

	var fetchErr *MediaFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want MediaFetchError for oversized file", err)
	}
	if sess.sendCalls != 0 {
		t.Fatal("transport send attempted for oversized media")
	}
}
