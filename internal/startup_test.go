package internal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/robfig/cron/v3"

	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

type restoreTransport struct {
	emit func(pkgWhatsApp.Event)
}

func (t *restoreTransport) Connect(ctx context.Context) error {
	t.emit(pkgWhatsApp.ReadyEvent())
	return nil
}
func (t *restoreTransport) SendText(ctx context.Context, phone string, text string) error {
	return nil
}
func (t *restoreTransport) ConnectionState() pkgWhatsApp.ConnectionState {
	return pkgWhatsApp.ConnConnected
}
func (t *restoreTransport) Logout(ctx context.Context) error { return nil }
func (t *restoreTransport) Close() error                     { return nil }

type restoreFactory struct {
	mu    sync.Mutex
	built []string
	fail  map[string]bool
}

func (f *restoreFactory) NewTransport(ctx context.Context, userID string, emit func(pkgWhatsApp.Event)) (pkgWhatsApp.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[userID] {
		return nil, errors.New("corrupt credential store")
	}
	f.built = append(f.built, userID)
	return &restoreTransport{emit: emit}, nil
}

func (f *restoreFactory) WipeCredentials(userID string) error { return nil }

type storedList []string

func (s storedList) StoredUserIDs() ([]string, error) { return s, nil }

type storedErr struct{}

func (storedErr) StoredUserIDs() ([]string, error) { return nil, errors.New("permission denied") }

func TestStartupRestoresStoredSessions(t *testing.T) {
	t.Setenv("WHATSAPP_STARTUP_RESTORE_JITTER_MAX", "0")
	t.Setenv("WHATSAPP_STARTUP_RESTORE_CONCURRENCY", "2")

	factory := &restoreFactory{fail: map[string]bool{"user-c": true}}
	registry := pkgWhatsApp.NewRegistry(pkgWhatsApp.DefaultConfig(), factory, pkgWhatsApp.Collaborators{})
	defer registry.Close(context.Background())

	Startup(context.Background(), registry, storedList{"user-a", "user-b", "user-c"})

	sort.Strings(factory.built)
	if len(factory.built) != 2 || factory.built[0] != "user-a" || factory.built[1] != "user-b" {
		t.Fatalf("unexpected builds: %v", factory.built)
	}
	ready := registry.ListReady()
	if len(ready) != 2 {
		t.Fatalf("expected two ready sessions, got %v", ready)
	}
}

func TestStartupToleratesListErrors(t *testing.T) {
	factory := &restoreFactory{}
	registry := pkgWhatsApp.NewRegistry(pkgWhatsApp.DefaultConfig(), factory, pkgWhatsApp.Collaborators{})
	defer registry.Close(context.Background())

	Startup(context.Background(), registry, storedErr{})
	if len(factory.built) != 0 {
		t.Fatalf("nothing must be built, got %v", factory.built)
	}
}

func TestStartupCanBeDisabled(t *testing.T) {
	t.Setenv("WHATSAPP_STARTUP_RESTORE", "false")

	factory := &restoreFactory{}
	registry := pkgWhatsApp.NewRegistry(pkgWhatsApp.DefaultConfig(), factory, pkgWhatsApp.Collaborators{})
	defer registry.Close(context.Background())

	Startup(context.Background(), registry, storedList{"user-a"})
	if len(factory.built) != 0 {
		t.Fatalf("restore must be skipped, got %v", factory.built)
	}
}

func TestRoutinesRegistersHealthCheck(t *testing.T) {
	t.Setenv("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", "true")
	t.Setenv("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", "false")

	registry := pkgWhatsApp.NewRegistry(pkgWhatsApp.DefaultConfig(), &restoreFactory{}, pkgWhatsApp.Collaborators{})
	defer registry.Close(context.Background())

	c := cron.New(cron.WithSeconds())
	Routines(c, registry)
	defer c.Stop()

	if n := len(c.Entries()); n != 1 {
		t.Fatalf("expected one cron entry, got %d", n)
	}
}

func TestHealthCheckWithoutSessions(t *testing.T) {
	registry := pkgWhatsApp.NewRegistry(pkgWhatsApp.DefaultConfig(), &restoreFactory{}, pkgWhatsApp.Collaborators{})
	defer registry.Close(context.Background())

	healthCheck(registry)
}
