package whatsapp

import "context"

// ConnectionState is the live link state reported by a transport.
type ConnectionState string

const (
	ConnConnected    ConnectionState = "CONNECTED"
	ConnDisconnected ConnectionState = "DISCONNECTED"
	ConnUnpaired     ConnectionState = "UNPAIRED"
)

// Transport is one user's connection to WhatsApp. A transport is owned by
// exactly one Session and is never shared.
type Transport interface {
	// Connect starts the connection. It must not block on QR pairing,
	// pairing progress is reported through emitted events.
	Connect(ctx context.Context) error
	SendText(ctx context.Context, phone string, text string) error
	ConnectionState() ConnectionState
	Logout(ctx context.Context) error
	Close() error
}

// TransportFactory builds transports and owns their on-disk credentials.
type TransportFactory interface {
	NewTransport(ctx context.Context, userID string, emit func(Event)) (Transport, error)
	WipeCredentials(userID string) error
}

type EventKind int

const (
	EventReady EventKind = iota
	EventQRReceived
	EventAuthenticated
	EventAuthFailure
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventQRReceived:
		return "qr"
	case EventAuthenticated:
		return "authenticated"
	case EventAuthFailure:
		return "auth_failure"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification coming from a transport.
type Event struct {
	Kind   EventKind
	QRCode string
	Reason string
}

func ReadyEvent() Event { return Event{Kind: EventReady} }

func QREvent(code string) Event { return Event{Kind: EventQRReceived, QRCode: code} }

func AuthenticatedEvent() Event { return Event{Kind: EventAuthenticated} }

func AuthFailureEvent(reason string) Event { return Event{Kind: EventAuthFailure, Reason: reason} }

func DisconnectedEvent(reason string) Event { return Event{Kind: EventDisconnected, Reason: reason} }
