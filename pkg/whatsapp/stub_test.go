package whatsapp

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sentMessage struct {
	Phone string
	Text  string
}

type stubTransport struct {
	mu     sync.Mutex
	emit   func(Event)
	state  ConnectionState
	sent   []sentMessage
	calls  map[string]int
	closed bool

	ConnectFunc    func(ctx context.Context) error
	SendTextFunc   func(ctx context.Context, attempt int, phone string, text string) error
	ReadyOnConnect bool
}

func newStubTransport(emit func(Event)) *stubTransport {
	return &stubTransport{
		emit:           emit,
		state:          ConnConnected,
		calls:          make(map[string]int),
		ReadyOnConnect: true,
	}
}

func (t *stubTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.calls["Connect"]++
	connect := t.ConnectFunc
	ready := t.ReadyOnConnect
	t.mu.Unlock()

	if connect != nil {
		if err := connect(ctx); err != nil {
			return err
		}
	}
	if ready {
		t.emit(ReadyEvent())
	}
	return nil
}

func (t *stubTransport) SendText(ctx context.Context, phone string, text string) error {
	t.mu.Lock()
	t.calls["SendText"]++
	attempt := t.calls["SendText"]
	send := t.SendTextFunc
	t.mu.Unlock()

	if send != nil {
		if err := send(ctx, attempt, phone, text); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.sent = append(t.sent, sentMessage{Phone: phone, Text: text})
	t.mu.Unlock()
	return nil
}

func (t *stubTransport) ConnectionState() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *stubTransport) SetState(state ConnectionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

func (t *stubTransport) Logout(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls["Logout"]++
	return nil
}

func (t *stubTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls["Close"]++
	t.closed = true
	return nil
}

func (t *stubTransport) Calls(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[name]
}

func (t *stubTransport) Sent() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

type stubFactory struct {
	mu         sync.Mutex
	transports []*stubTransport
	wiped      []string

	// Configure runs on every new transport before it is handed out.
	Configure func(userID string, n int, t *stubTransport)
}

func (f *stubFactory) NewTransport(ctx context.Context, userID string, emit func(Event)) (Transport, error) {
	t := newStubTransport(emit)

	f.mu.Lock()
	f.transports = append(f.transports, t)
	n := len(f.transports)
	configure := f.Configure
	f.mu.Unlock()

	if configure != nil {
		configure(userID, n, t)
	}
	return t, nil
}

func (f *stubFactory) WipeCredentials(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wiped = append(f.wiped, userID)
	return nil
}

func (f *stubFactory) Built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *stubFactory) Transport(i int) *stubTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[i]
}

func (f *stubFactory) Wiped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.wiped...)
}

type stubHistory struct {
	mu      sync.Mutex
	records []HistoryRecord
	err     error
}

func (h *stubHistory) Create(ctx context.Context, record HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return h.err
}

func (h *stubHistory) Records() []HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryRecord(nil), h.records...)
}

type stubVehicles struct {
	FindFunc func(ctx context.Context, organizationID string, customerID string) ([]Vehicle, error)
	calls    int
}

func (v *stubVehicles) FindByCustomer(ctx context.Context, organizationID string, customerID string) ([]Vehicle, error) {
	v.calls++
	if v.FindFunc != nil {
		return v.FindFunc(ctx, organizationID, customerID)
	}
	return nil, nil
}

func testConfig() Config {
	return Config{
		MaxReconnectAttempts:    3,
		SendTimeout:             time.Second,
		RetryBackoff:            time.Millisecond,
		BulkDelay:               0,
		OrganizationPlaceholder: "Автосервис",
	}
}

func newTestRegistry(t *testing.T, factory *stubFactory, collab Collaborators) *Registry {
	t.Helper()
	r := NewRegistry(testConfig(), factory, collab)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}

// readySession builds a session for userID and waits until it reports ready.
func readySession(t *testing.T, r *Registry, userID string) *Session {
	t.Helper()
	s, err := r.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !s.IsReady() {
		t.Fatalf("session %s is not ready", userID)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
