package whatsapp

// Action is the follow-up a lifecycle event asks the registry to run.
type Action int

const (
	ActionNone Action = iota
	ActionReconnect
	ActionReauth
)

func (a Action) String() string {
	switch a {
	case ActionReconnect:
		return "reconnect"
	case ActionReauth:
		return "reauth"
	default:
		return "none"
	}
}

// transition mutates a session under its lock.
type transition func(s *Session, ev Event) Action

var transitions = map[EventKind]transition{
	EventQRReceived: func(s *Session, ev Event) Action {
		s.qrCode = ev.QRCode
		s.isReady = false
		s.needsReauth = true
		s.isInitializing = false
		s.state = StateQRPending
		return ActionNone
	},
	EventReady: func(s *Session, _ Event) Action {
		s.isReady = true
		s.qrCode = ""
		s.reconnectAttempts = 0
		s.needsReauth = false
		s.isInitializing = false
		s.state = StateReady
		return ActionNone
	},
	EventAuthenticated: func(s *Session, _ Event) Action {
		s.isInitializing = false
		return ActionNone
	},
	EventAuthFailure: func(s *Session, _ Event) Action {
		s.isReady = false
		s.needsReauth = true
		s.qrCode = ""
		s.state = StateReauthRequired
		return ActionReauth
	},
	EventDisconnected: func(s *Session, _ Event) Action {
		s.isReady = false
		s.qrCode = ""
		if s.reconnectAttempts < s.maxReconnectAttempts {
			s.reconnectAttempts++
			s.state = StateReconnecting
			return ActionReconnect
		}
		s.needsReauth = true
		s.state = StateReauthRequired
		return ActionReauth
	},
}

// HandleEvent applies a transport event and returns the rebuild it requires.
// It never blocks on the rebuild itself.
func (s *Session) HandleEvent(ev Event) Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired {
		return ActionNone
	}
	t, ok := transitions[ev.Kind]
	if !ok {
		return ActionNone
	}
	return t(s, ev)
}
