package events

import "wabridge/pkg/session"

// Kind discriminates the lifecycle event union emitted by the transport and
// fanned out to observers.
type Kind string

const (
	KindQR            Kind = "qr"
	KindAuthenticated Kind = "authenticated"
	KindAuthFailure   Kind = "auth_failure"
	KindReady         Kind = "ready"
	KindDisconnected  Kind = "disconnected"
	KindState         Kind = "state"
	KindMessage       Kind = "message"
	KindInfo          Kind = "info"
)

// Event is one session lifecycle event. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind Kind

	// Code is the raw pairing payload for KindQR.
	Code string

	// State is the new session state for KindState.
	State session.State

	// Reason narrates KindDisconnected and KindAuthFailure.
	Reason string

	// ChatID and Body carry an inbound message for KindMessage.
	ChatID string
	Body   string

	// Text is free-form narration for KindInfo.
	Text string
}

func QR(code string) Event { return Event{Kind: KindQR, Code: code} }

func Authenticated() Event { return Event{Kind: KindAuthenticated} }

func AuthFailure(reason string) Event { return Event{Kind: KindAuthFailure, Reason: reason} }

func Ready() Event { return Event{Kind: KindReady} }

func Disconnected(reason string) Event { return Event{Kind: KindDisconnected, Reason: reason} }

func StateChanged(s session.State) Event { return Event{Kind: KindState, State: s} }

func Message(chatID, body string) Event {
	return Event{Kind: KindMessage, ChatID: chatID, Body: body}
}

func Info(text string) Event { return Event{Kind: KindInfo, Text: text} }
