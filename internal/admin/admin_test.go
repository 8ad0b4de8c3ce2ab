package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/autoservice-whatsapp/pkg/auth"
	"github.com/gdbrns/autoservice-whatsapp/pkg/router"
	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

type readyTransport struct {
	emit func(pkgWhatsApp.Event)
}

func (t *readyTransport) Connect(ctx context.Context) error {
	t.emit(pkgWhatsApp.ReadyEvent())
	return nil
}
func (t *readyTransport) SendText(ctx context.Context, phone string, text string) error { return nil }
func (t *readyTransport) ConnectionState() pkgWhatsApp.ConnectionState {
	return pkgWhatsApp.ConnConnected
}
func (t *readyTransport) Logout(ctx context.Context) error { return nil }
func (t *readyTransport) Close() error                     { return nil }

type readyFactory struct{}

func (readyFactory) NewTransport(ctx context.Context, userID string, emit func(pkgWhatsApp.Event)) (pkgWhatsApp.Transport, error) {
	return &readyTransport{emit: emit}, nil
}
func (readyFactory) WipeCredentials(userID string) error { return nil }

func newAdminApp(t *testing.T) (*fiber.App, *pkgWhatsApp.Registry) {
	t.Helper()

	prev := auth.AdminSecretKey
	auth.AdminSecretKey = "admin-secret"
	t.Cleanup(func() { auth.AdminSecretKey = prev })

	registry := pkgWhatsApp.NewRegistry(pkgWhatsApp.DefaultConfig(), readyFactory{}, pkgWhatsApp.Collaborators{})
	t.Cleanup(func() { registry.Close(context.Background()) })

	h := NewHandler(registry)
	app := fiber.New()
	app.Get("/admin/whatsapp/sessions", auth.AdminAuth(), h.ListSessions)
	app.Delete("/admin/whatsapp/sessions/:user_id", auth.AdminAuth(), h.DestroySession)
	app.Get("/admin/whatsapp/version", auth.AdminAuth(), h.GetWhatsAppWebVersion)
	return app, registry
}

func TestListSessions(t *testing.T) {
	app, registry := newAdminApp(t)
	for _, userID := range []string{"user-b", "user-a"} {
		if _, err := registry.GetOrCreate(context.Background(), userID); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/whatsapp/sessions", nil)
	req.Header.Set("X-Admin-Secret", "admin-secret")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Sessions []pkgWhatsApp.SessionStatus `json:"sessions"`
			Ready    []string                    `json:"ready"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Sessions) != 2 || body.Data.Sessions[0].UserID != "user-a" {
		t.Fatalf("unexpected sessions: %+v", body.Data.Sessions)
	}
	if len(body.Data.Ready) != 2 {
		t.Fatalf("unexpected ready list: %v", body.Data.Ready)
	}
}

func TestDestroySession(t *testing.T) {
	app, registry := newAdminApp(t)
	if _, err := registry.GetOrCreate(context.Background(), "user-1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/admin/whatsapp/sessions/user-1", nil)
	req.Header.Set("X-Admin-Secret", "admin-secret")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if registry.IsReady("user-1") {
		t.Fatal("session must be gone")
	}
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	app, _ := newAdminApp(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/whatsapp/sessions", nil)
	req.Header.Set("X-Admin-Secret", "wrong")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	var body router.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status {
		t.Fatal("expected failed envelope")
	}
}

func TestGetWhatsAppWebVersion(t *testing.T) {
	app, _ := newAdminApp(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/whatsapp/version", nil)
	req.Header.Set("X-Admin-Secret", "admin-secret")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestFormatVersion(t *testing.T) {
	if got := formatVersion([3]uint32{2, 3000, 1015901307}); got != "2.3000.1015901307" {
		t.Fatalf("unexpected version: %s", got)
	}
}
