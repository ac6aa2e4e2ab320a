package broadcast

import (
	"encoding/base64"
	"encoding/json"

	qrcode "github.com/skip2/go-qrcode"

	"wabridge/pkg/events"
)

// Frame is one named event pushed to observers, mirroring the socket.io
// style contract of the operator dashboard.
type Frame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

const (
	frameMessage       = "message"
	frameQR            = "qr"
	frameReady         = "ready"
	frameAuthenticated = "authenticated"
	frameState         = "state"
)

const qrImageSize = 256

// framesFor translates one lifecycle event into the frames observers see.
// Most events carry a free-text narration alongside the named event.
func framesFor(event events.Event) []Frame {
	switch event.Kind {
	case events.KindQR:
		dataURL, err := qrDataURL(event.Code)
		if err != nil {
			return []Frame{{Event: frameMessage, Data: "QR Code received, but rendering failed"}}
		}
		return []Frame{
			{Event: frameQR, Data: dataURL},
			{Event: frameMessage, Data: "QR Code received, scan please!"},
		}
	case events.KindReady:
		return []Frame{
			{Event: frameReady, Data: "Whatsapp is ready!"},
			{Event: frameMessage, Data: "Whatsapp is ready!"},
		}
	case events.KindAuthenticated:
		return []Frame{
			{Event: frameAuthenticated, Data: "Whatsapp is authenticated!"},
			{Event: frameMessage, Data: "Whatsapp is authenticated!"},
		}
	case events.KindAuthFailure:
		return []Frame{{Event: frameMessage, Data: "Auth failure, restarting..."}}
	case events.KindDisconnected:
		return []Frame{{Event: frameMessage, Data: "Whatsapp is disconnected!"}}
	case events.KindState:
		return []Frame{{Event: frameState, Data: string(event.State)}}
	case events.KindInfo:
		return []Frame{{Event: frameMessage, Data: event.Text}}
	default:
		return nil
	}
}

// qrDataURL turns a raw pairing payload into a displayable PNG data URL.
func qrDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func encodeFrame(frame Frame) []byte {
	data, _ := json.Marshal(frame)
	return data
}
