// Package whatsapp implements transport.Session on top of whatsmeow.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waevents "go.mau.fi/whatsmeow/types/events"

	_ "modernc.org/sqlite"

	"wabridge/pkg/config"
	"wabridge/pkg/events"
	"wabridge/pkg/session"
	"wabridge/pkg/transport"
)

const eventBufferSize = 64

var errNotConnected = errors.New("whatsapp client is not initialized")

// Session is the whatsmeow-backed transport. Pairing credentials live in a
// local sqlite store owned by whatsmeow; wabridge only points it at a path.
type Session struct {
	cfg    config.WhatsAppConfig
	log    *slog.Logger
	events chan events.Event

	container *sqlstore.Container

	mu     sync.Mutex
	client *whatsmeow.Client
}

func NewSession(ctx context.Context, cfg config.WhatsAppConfig, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "transport.whatsapp")

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)", cfg.StorePath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, newWALog(log.With("module", "store")))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	return &Session{
		cfg:       cfg,
		log:       log,
		events:    make(chan events.Event, eventBufferSize),
		container: container,
	}, nil
}

// Connect builds a fresh client from the stored device and opens the socket.
// When the store holds no paired device, QR pairing starts and codes are
// emitted as events until the operator scans one.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.client.IsConnected() {
		return nil
	}

	device, err := s.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, newWALog(s.log.With("module", "client")))
	// Recovery is owned by the supervisor, not the library.
	client.EnableAutoReconnect = false
	client.AddEventHandler(s.handleEvent)

	s.emit(events.StateChanged(session.StateOpening))

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open qr channel: %w", err)
		}
		go s.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	s.client = client
	return nil
}

// Disconnect tears the live client down. The stored credentials survive, so
// a later Connect resumes the same account without re-pairing.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Disconnect()
		s.client = nil
	}
}

func (s *Session) Events() <-chan events.Event {
	return s.events
}

func (s *Session) IsRegistered(ctx context.Context, number string) (string, bool, error) {
	client, err := s.currentClient()
	if err != nil {
		return "", false, err
	}

	resp, err := client.IsOnWhatsApp(ctx, []string{"+" + number})
	if err != nil {
		return "", false, fmt.Errorf("registration lookup: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return "", false, nil
	}

	return resp[0].JID.String(), true, nil
}

func (s *Session) Groups(ctx context.Context) ([]transport.GroupInfo, error) {
	client, err := s.currentClient()
	if err != nil {
		return nil, err
	}

	joined, err := client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	groups := make([]transport.GroupInfo, 0, len(joined))
	for _, info := range joined {
		groups = append(groups, transport.GroupInfo{
			ChatID: info.JID.String(),
			Name:   info.GroupName.Name,
		})
	}

	return groups, nil
}

func (s *Session) SendText(ctx context.Context, chatID, body string) (transport.Receipt, error) {
	client, err := s.currentClient()
	if err != nil {
		return transport.Receipt{}, err
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return transport.Receipt{}, fmt.Errorf("parse chat id: %w", err)
	}

	resp, err := client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return transport.Receipt{}, err
	}

	return transport.Receipt{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (s *Session) SendMedia(ctx context.Context, chatID string, media transport.Media) (transport.Receipt, error) {
	client, err := s.currentClient()
	if err != nil {
		return transport.Receipt{}, err
	}

	jid, err := types.ParseJID(chatID)
	if err != nil {
		return transport.Receipt{}, fmt.Errorf("parse chat id: %w", err)
	}

	var msg *waE2E.Message
	if strings.HasPrefix(media.MimeType, "image/") {
		uploaded, err := client.Upload(ctx, media.Data, whatsmeow.MediaImage)
		if err != nil {
			return transport.Receipt{}, fmt.Errorf("upload image: %w", err)
		}
		msg = &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				Mimetype:      proto.String(media.MimeType),
				Caption:       proto.String(media.Caption),
				FileLength:    proto.Uint64(uploaded.FileLength),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
				MediaKey:      uploaded.MediaKey,
			},
		}
	} else {
		uploaded, err := client.Upload(ctx, media.Data, whatsmeow.MediaDocument)
		if err != nil {
			return transport.Receipt{}, fmt.Errorf("upload document: %w", err)
		}
		msg = &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				Mimetype:      proto.String(media.MimeType),
				Caption:       proto.String(media.Caption),
				FileName:      proto.String("media"),
				FileLength:    proto.Uint64(uploaded.FileLength),
				FileSHA256:    uploaded.FileSHA256,
				FileEncSHA256: uploaded.FileEncSHA256,
				MediaKey:      uploaded.MediaKey,
			},
		}
	}

	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return transport.Receipt{}, err
	}

	return transport.Receipt{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (s *Session) currentClient() (*whatsmeow.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, errNotConnected
	}
	return s.client, nil
}

// handleEvent translates whatsmeow lifecycle events into the bridge's own
// event union. Registered once per client; the fan-out to observers happens
// upstream.
func (s *Session) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *waevents.Connected:
		s.emit(events.StateChanged(session.StateConnected))
		s.emit(events.Ready())
	case *waevents.PairSuccess:
		s.emit(events.Authenticated())
	case *waevents.PairError:
		s.emit(events.AuthFailure(evt.Error.Error()))
	case *waevents.LoggedOut:
		s.emit(events.StateChanged(session.StateUnpaired))
		s.emit(events.AuthFailure(fmt.Sprintf("logged out: %v", evt.Reason)))
	case *waevents.StreamReplaced:
		s.emit(events.StateChanged(session.StateConflict))
		s.emit(events.Disconnected("stream replaced by another client"))
	case *waevents.KeepAliveTimeout:
		s.emit(events.StateChanged(session.StateTimeout))
	case *waevents.ConnectFailure:
		s.emit(events.Disconnected(fmt.Sprintf("connect failure: %v", evt.Reason)))
	case *waevents.TemporaryBan:
		s.emit(events.Disconnected(fmt.Sprintf("temporary ban: %v", evt.Code)))
	case *waevents.Disconnected:
		s.emit(events.Disconnected("connection closed"))
	case *waevents.Message:
		if evt.Info.IsFromMe {
			return
		}
		body := evt.Message.GetConversation()
		if body == "" {
			body = evt.Message.GetExtendedTextMessage().GetText()
		}
		if body == "" {
			return
		}
		s.emit(events.Message(evt.Info.Chat.String(), body))
	}
}

// pumpQR forwards pairing codes from the QR channel until pairing concludes.
func (s *Session) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	first := true
	for item := range qrChan {
		switch item.Event {
		case "code":
			if first {
				s.emit(events.StateChanged(session.StatePairing))
				first = false
			}
			if s.cfg.PrintQR {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			}
			s.emit(events.QR(item.Code))
		case whatsmeow.QRChannelSuccess.Event:
			return
		case whatsmeow.QRChannelTimeout.Event:
			s.emit(events.StateChanged(session.StateTimeout))
			s.emit(events.Disconnected("pairing timed out"))
			return
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			s.emit(events.Disconnected("pairing failed: " + reason))
			return
		}
	}
}

// emit queues a lifecycle event without ever blocking the whatsmeow handler.
// State transitions must not be lost even when the consumer lags, or the
// tracker would wedge in a stale state; on a full buffer they evict the
// oldest queued event until they fit. Everything else is dropped.
func (s *Session) emit(event events.Event) {
	for {
		select {
		case s.events <- event:
			return
		default:
		}

		if event.Kind != events.KindState {
			s.log.Warn("Dropping lifecycle event, buffer full", "kind", string(event.Kind))
			return
		}

		select {
		case dropped := <-s.events:
			s.log.Warn("Evicting queued event for state transition", "kind", string(dropped.Kind))
		default:
		}
	}
}
