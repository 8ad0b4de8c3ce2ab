package whatsapp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
)

var (
	ErrRebuildInProgress = errors.New("session rebuild already in progress")
	ErrRegistryClosed    = errors.New("session registry is closed")
)

type Config struct {
	MaxReconnectAttempts    int
	SendTimeout             time.Duration
	RetryBackoff            time.Duration
	BulkDelay               time.Duration
	OrganizationPlaceholder string
}

func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts:    3,
		SendTimeout:             90 * time.Second,
		RetryBackoff:            3 * time.Second,
		BulkDelay:               5 * time.Second,
		OrganizationPlaceholder: "Автосервис",
	}
}

func LoadConfig() Config {
	d := DefaultConfig()
	return Config{
		MaxReconnectAttempts:    env.GetEnvIntOrDefault("WHATSAPP_MAX_RECONNECT_ATTEMPTS", d.MaxReconnectAttempts),
		SendTimeout:             env.GetEnvDurationOrDefault("WHATSAPP_SEND_TIMEOUT", d.SendTimeout),
		RetryBackoff:            env.GetEnvDurationOrDefault("WHATSAPP_RETRY_BACKOFF", d.RetryBackoff),
		BulkDelay:               env.GetEnvDurationOrDefault("WHATSAPP_BULK_DELAY", d.BulkDelay),
		OrganizationPlaceholder: env.GetEnvStringOrDefault("WHATSAPP_ORGANIZATION_PLACEHOLDER", d.OrganizationPlaceholder),
	}
}

// Collaborators are the optional services a campaign run depends on.
type Collaborators struct {
	Vehicles  VehicleFinder
	Templates TemplateFiller
	History   HistoryRecorder
}

// Registry owns every user's session. The zero value is not usable, build
// one with NewRegistry.
type Registry struct {
	cfg     Config
	factory TransportFactory
	collab  Collaborators

	mu       sync.RWMutex
	sessions map[string]*Session
	guards   map[string]*rebuildGuard
	closed   bool

	group    singleflight.Group
	rebuilds sync.WaitGroup
}

func NewRegistry(cfg Config, factory TransportFactory, collab Collaborators) *Registry {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if collab.Templates == nil {
		collab.Templates = TemplateFillerFunc(func(template string, _ map[string]string) string { return template })
	}
	return &Registry{
		cfg:      cfg,
		factory:  factory,
		collab:   collab,
		sessions: make(map[string]*Session),
		guards:   make(map[string]*rebuildGuard),
	}
}

func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) lookup(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

func (r *Registry) guardFor(userID string) *rebuildGuard {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guards[userID]
	if !ok {
		g = &rebuildGuard{}
		r.guards[userID] = g
	}
	return g
}

// remove deletes the entry only while it still points at s.
func (r *Registry) remove(userID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[userID]; ok && cur == s {
		delete(r.sessions, userID)
	}
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// GetOrCreate returns the user's live session or builds a new one. Concurrent
// callers for the same user share a single build.
func (r *Registry) GetOrCreate(ctx context.Context, userID string) (*Session, error) {
	if s := r.lookup(userID); s != nil {
		return s, nil
	}
	return r.buildShared(ctx, userID, 0)
}

func (r *Registry) buildShared(ctx context.Context, userID string, attempts int) (*Session, error) {
	// The build outlives the first caller's request.
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(userID, func() (interface{}, error) {
		if s := r.lookup(userID); s != nil {
			return s, nil
		}
		return r.build(buildCtx, userID, attempts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) build(ctx context.Context, userID string, attempts int) (*Session, error) {
	if r.isClosed() {
		return nil, ErrRegistryClosed
	}

	s := newSession(userID, r.cfg.MaxReconnectAttempts, r.guardFor(userID))
	s.reconnectAttempts = attempts

	t, err := r.factory.NewTransport(ctx, userID, func(ev Event) { r.dispatch(s, ev) })
	if err != nil {
		return nil, err
	}
	s.transport = t

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = t.Close()
		return nil, ErrRegistryClosed
	}
	r.sessions[userID] = s
	r.mu.Unlock()

	if err := t.Connect(ctx); err != nil {
		s.retire()
		if errClose := t.Close(); errClose != nil {
			log.Session(userID, "build").WithError(errClose).Warn("Failed to close transport after connect error")
		}
		r.remove(userID, s)
		return nil, err
	}

	log.Session(userID, "build").WithField("reconnect_attempts", attempts).Info("WhatsApp session created")
	return s, nil
}

func (r *Registry) dispatch(s *Session, ev Event) {
	action := s.HandleEvent(ev)

	entry := log.Session(s.UserID, "event").WithField("event", ev.Kind.String())
	if ev.Reason != "" {
		entry = entry.WithField("reason", ev.Reason)
	}
	entry.WithField("action", action.String()).Info("WhatsApp session event")

	switch action {
	case ActionReconnect:
		r.scheduleRebuild(s, rebuildReconnect)
	case ActionReauth:
		r.scheduleRebuild(s, rebuildReauth)
	}
}

// scheduleRebuild starts a background rebuild unless one is already running
// for the same user. A reauth that finds the guard held runs once the
// running rebuild releases it.
func (r *Registry) scheduleRebuild(s *Session, kind rebuildKind) {
	release, ok := s.guard.tryAcquire(kind)
	if !ok {
		log.Session(s.UserID, kind.String()).
			WithField("running", s.guard.current().String()).
			Debug("Rebuild deferred, another rebuild is running")
		if kind == rebuildReauth {
			s.guard.deferReauth()
			return
		}
		s.markIdle()
		return
	}

	r.rebuilds.Add(1)
	go func() {
		defer r.rebuilds.Done()

		attempts := 0
		if kind == rebuildReconnect {
			attempts = s.attempts()
		}
		if _, err := r.rebuild(context.Background(), s, kind, attempts); err != nil {
			log.Session(s.UserID, kind.String()).WithError(err).Error("WhatsApp session rebuild failed")
		}
		r.finishRebuild(s.UserID, s.guard, release)
	}()
}

// finishRebuild releases the guard and starts a reauth deferred while it
// was held.
func (r *Registry) finishRebuild(userID string, guard *rebuildGuard, release func()) {
	release()
	if !guard.takePending() || r.isClosed() {
		return
	}
	cur := r.lookup(userID)
	if cur == nil {
		return
	}
	cur.markReauthRequired()
	r.scheduleRebuild(cur, rebuildReauth)
}

// rebuild replaces s with a fresh session. The caller holds the rebuild guard.
func (r *Registry) rebuild(ctx context.Context, s *Session, kind rebuildKind, attempts int) (*Session, error) {
	userID := s.UserID
	if s.isRetired() || r.lookup(userID) != s {
		return nil, nil
	}

	s.retire()
	if err := s.transport.Close(); err != nil {
		log.Session(userID, kind.String()).WithError(err).Warn("Failed to close old transport")
	}
	if kind == rebuildReauth {
		if err := r.factory.WipeCredentials(userID); err != nil {
			log.Session(userID, kind.String()).WithError(err).Warn("Failed to wipe credentials")
		}
	}
	r.remove(userID, s)

	return r.buildShared(ctx, userID, attempts)
}

// Reconnect rebuilds the user's session keeping its credentials and waits
// for the new transport to connect.
func (r *Registry) Reconnect(ctx context.Context, userID string) error {
	s := r.lookup(userID)
	if s == nil {
		_, err := r.GetOrCreate(ctx, userID)
		return err
	}

	release, ok := s.guard.tryAcquire(rebuildReconnect)
	if !ok {
		return ErrRebuildInProgress
	}
	defer r.finishRebuild(userID, s.guard, release)

	if _, err := r.rebuild(ctx, s, rebuildReconnect, 0); err != nil {
		return err
	}
	if r.lookup(userID) == nil {
		_, err := r.GetOrCreate(ctx, userID)
		return err
	}
	return nil
}

// Destroy logs the user out, closes the transport and wipes stored
// credentials. Errors from the remote logout are only logged.
func (r *Registry) Destroy(ctx context.Context, userID string) error {
	// Taken even without a live session: a rebuild between removing the
	// old session and storing the new one holds it.
	guard := r.guardFor(userID)
	release, ok := guard.tryAcquire(rebuildReauth)
	if !ok {
		return ErrRebuildInProgress
	}
	defer release()
	defer guard.takePending()

	if s := r.lookup(userID); s != nil {
		s.retire()
		if err := s.transport.Logout(ctx); err != nil {
			log.Session(userID, "destroy").WithError(err).Warn("Failed to log out transport")
		}
		if err := s.transport.Close(); err != nil {
			log.Session(userID, "destroy").WithError(err).Warn("Failed to close transport")
		}
		r.remove(userID, s)
	}
	return r.factory.WipeCredentials(userID)
}

func (r *Registry) ListReady() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ready := make([]string, 0, len(r.sessions))
	for userID, s := range r.sessions {
		if s.IsReady() {
			ready = append(ready, userID)
		}
	}
	sort.Strings(ready)
	return ready
}

func (r *Registry) IsReady(userID string) bool {
	s := r.lookup(userID)
	return s != nil && s.IsReady()
}

func (r *Registry) QRCode(userID string) string {
	s := r.lookup(userID)
	if s == nil {
		return ""
	}
	return s.QRCode()
}

func (r *Registry) Status(userID string) (SessionStatus, bool) {
	s := r.lookup(userID)
	if s == nil {
		return SessionStatus{}, false
	}
	return s.Snapshot(), true
}

// Sessions returns a snapshot of every live session ordered by user id.
func (r *Registry) Sessions() []SessionStatus {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	out := make([]SessionStatus, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// CheckHealth feeds a disconnect into every session whose transport dropped
// without telling us, and into idle disconnected sessions. It returns the
// number of sessions it touched.
func (r *Registry) CheckHealth() int {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	touched := 0
	for _, s := range list {
		st := s.Snapshot()
		stale := st.Ready && s.transport.ConnectionState() != ConnConnected
		idle := st.State == StateDisconnected && s.guard.current() == rebuildNone
		if stale || idle {
			r.dispatch(s, DisconnectedEvent("health check"))
			touched++
		}
	}
	return touched
}

// Close shuts every transport down without touching stored credentials and
// waits for running rebuilds until ctx expires.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	list := make([]*Session, 0, len(r.sessions))
	for userID, s := range r.sessions {
		list = append(list, s)
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	for _, s := range list {
		s.retire()
		if err := s.transport.Close(); err != nil {
			log.Session(s.UserID, "close").WithError(err).Warn("Failed to close transport")
		}
	}

	done := make(chan struct{})
	go func() {
		r.rebuilds.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
