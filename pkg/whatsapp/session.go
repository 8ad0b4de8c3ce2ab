package whatsapp

import (
	"sync"
	"time"
)

type State string

const (
	StateInitializing   State = "INITIALIZING"
	StateQRPending      State = "QR_PENDING"
	StateReady          State = "READY"
	StateReconnecting   State = "RECONNECTING"
	StateReauthRequired State = "REAUTH_REQUIRED"
	StateDisconnected   State = "DISCONNECTED"
)

// Session is the in-memory state of one user's messaging session.
type Session struct {
	UserID    string
	CreatedAt time.Time

	transport Transport
	guard     *rebuildGuard

	mu                   sync.Mutex
	state                State
	isReady              bool
	qrCode               string
	reconnectAttempts    int
	maxReconnectAttempts int
	needsReauth          bool
	isInitializing       bool
	retired              bool
}

// SessionStatus is a point-in-time copy of a session's flags.
type SessionStatus struct {
	UserID            string    `json:"userId"`
	State             State     `json:"state"`
	Ready             bool      `json:"ready"`
	NeedsAuth         bool      `json:"needsAuth"`
	QRCode            string    `json:"-"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	Initializing      bool      `json:"initializing"`
	CreatedAt         time.Time `json:"createdAt"`
}

func newSession(userID string, maxReconnectAttempts int, guard *rebuildGuard) *Session {
	if guard == nil {
		guard = &rebuildGuard{}
	}
	return &Session{
		UserID:               userID,
		CreatedAt:            time.Now(),
		guard:                guard,
		state:                StateInitializing,
		maxReconnectAttempts: maxReconnectAttempts,
		isInitializing:       true,
	}
}

func (s *Session) Snapshot() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionStatus{
		UserID:            s.UserID,
		State:             s.state,
		Ready:             s.isReady,
		NeedsAuth:         s.needsReauth,
		QRCode:            s.qrCode,
		ReconnectAttempts: s.reconnectAttempts,
		Initializing:      s.isInitializing,
		CreatedAt:         s.CreatedAt,
	}
}

func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isReady
}

func (s *Session) QRCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qrCode
}

func (s *Session) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempts
}

// markReauthRequired takes the session out of service until a reauth
// rebuild replaces it.
func (s *Session) markReauthRequired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isReady = false
	s.qrCode = ""
	s.needsReauth = true
	s.state = StateReauthRequired
}

// markIdle reports a session that lost its link while no rebuild could be
// scheduled for it.
func (s *Session) markIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isReady && !s.retired {
		s.state = StateDisconnected
	}
}

// retire detaches the session from its lifecycle. Events and sends on a
// retired session are ignored.
func (s *Session) retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = true
	s.isReady = false
	s.qrCode = ""
}

func (s *Session) isRetired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

type rebuildKind int

const (
	rebuildNone rebuildKind = iota
	rebuildReconnect
	rebuildReauth
)

func (k rebuildKind) String() string {
	switch k {
	case rebuildReconnect:
		return "reconnect"
	case rebuildReauth:
		return "reauth"
	default:
		return "none"
	}
}

// rebuildGuard is shared by every session generation of one user, so a
// rebuild never overlaps another rebuild of the same user.
type rebuildGuard struct {
	mu      sync.Mutex
	kind    rebuildKind
	pending bool
}

func (g *rebuildGuard) tryAcquire(kind rebuildKind) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.kind != rebuildNone {
		return nil, false
	}
	g.kind = kind

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.kind = rebuildNone
			g.mu.Unlock()
		})
	}, true
}

// deferReauth remembers a reauth that arrived while the guard was held.
func (g *rebuildGuard) deferReauth() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = true
}

// takePending reports and clears a deferred reauth.
func (g *rebuildGuard) takePending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	pending := g.pending
	g.pending = false
	return pending
}

func (g *rebuildGuard) current() rebuildKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kind
}
