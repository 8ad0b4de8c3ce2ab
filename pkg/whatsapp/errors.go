package whatsapp

import "fmt"

type ErrorKind string

const (
	KindClientNotInitialized ErrorKind = "CLIENT_NOT_INITIALIZED"
	KindClientNotReady       ErrorKind = "CLIENT_NOT_READY"
	KindNotConnected         ErrorKind = "NOT_CONNECTED"
	KindSessionFatal         ErrorKind = "SESSION_FATAL"
	KindInvalidRecipient     ErrorKind = "INVALID_RECIPIENT"
	KindRejected             ErrorKind = "REJECTED"
	KindDeliveryFailed       ErrorKind = "DELIVERY_FAILED"
	KindInvalidPhone         ErrorKind = "INVALID_PHONE"
)

var kindMessages = map[ErrorKind]string{
	KindClientNotInitialized: "whatsapp client is not initialized",
	KindClientNotReady:       "whatsapp client is not ready, scan the QR code first",
	KindNotConnected:         "whatsapp client is not connected, re-authorization scheduled",
	KindSessionFatal:         "whatsapp session is no longer usable",
	KindInvalidRecipient:     "recipient is not a valid whatsapp number",
	KindRejected:             "message was rejected by whatsapp",
	KindDeliveryFailed:       "message delivery failed",
	KindInvalidPhone:         "invalid phone number",
}

// SendError is the error type of every delivery failure.
type SendError struct {
	Kind ErrorKind
	Err  error
}

var (
	ErrClientNotInitialized = &SendError{Kind: KindClientNotInitialized}
	ErrClientNotReady       = &SendError{Kind: KindClientNotReady}
	ErrNotConnected         = &SendError{Kind: KindNotConnected}
	ErrSessionFatal         = &SendError{Kind: KindSessionFatal}
	ErrInvalidRecipient     = &SendError{Kind: KindInvalidRecipient}
	ErrRejected             = &SendError{Kind: KindRejected}
	ErrDeliveryFailed       = &SendError{Kind: KindDeliveryFailed}
	ErrInvalidPhone         = &SendError{Kind: KindInvalidPhone}
)

func newSendError(kind ErrorKind, err error) *SendError {
	return &SendError{Kind: kind, Err: err}
}

func (e *SendError) Error() string {
	msg, ok := kindMessages[e.Kind]
	if !ok {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Is matches any SendError of the same kind, so the package sentinels work
// with errors.Is regardless of the wrapped cause.
func (e *SendError) Is(target error) bool {
	t, ok := target.(*SendError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
