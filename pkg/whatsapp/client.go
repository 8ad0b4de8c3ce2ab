package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
)

const credentialFile = "session.db"

var (
	ErrNotRegistered = errors.New("number is not registered on whatsapp")
	errNotLoggedIn   = errors.New("whatsapp client is not logged in")
	errNotConnected  = errors.New("whatsapp client is not connected")

	unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	devicePropsOnce sync.Once
)

// ClientFactory builds whatsmeow transports backed by one sqlite credential
// database per user under BaseDir.
type ClientFactory struct {
	BaseDir  string
	ProxyURL string
}

func NewClientFactoryFromEnv() *ClientFactory {
	proxyURL, _ := env.GetEnvString("WHATSAPP_CLIENT_PROXY_URL")
	return &ClientFactory{
		BaseDir:  env.GetEnvStringOrDefault("WHATSAPP_SESSION_DIR", "./dbs/whatsapp"),
		ProxyURL: proxyURL,
	}
}

func SanitizeUserID(userID string) string {
	return unsafePathChars.ReplaceAllString(userID, "_")
}

func (f *ClientFactory) credentialDir(userID string) string {
	return filepath.Join(f.BaseDir, SanitizeUserID(userID))
}

func (f *ClientFactory) WipeCredentials(userID string) error {
	if err := os.RemoveAll(f.credentialDir(userID)); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// StoredUserIDs lists the directory names that hold a credential database.
// Names are sanitized user ids.
func (f *ClientFactory) StoredUserIDs() ([]string, error) {
	entries, err := os.ReadDir(f.BaseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(f.BaseDir, entry.Name(), credentialFile)); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func setDeviceProps() {
	devicePropsOnce.Do(func() {
		store.DeviceProps.Os = proto.String(env.GetEnvStringOrDefault("WHATSAPP_DEVICE_NAME", "Autoservice ("+runtime.GOOS+")"))
		store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
		store.DeviceProps.RequireFullSync = proto.Bool(false)

		if major, err := env.GetEnvInt("WHATSAPP_VERSION_MAJOR"); err == nil {
			store.DeviceProps.Version.Primary = proto.Uint32(uint32(major))
		}
		if minor, err := env.GetEnvInt("WHATSAPP_VERSION_MINOR"); err == nil {
			store.DeviceProps.Version.Secondary = proto.Uint32(uint32(minor))
		}
		if patch, err := env.GetEnvInt("WHATSAPP_VERSION_PATCH"); err == nil {
			store.DeviceProps.Version.Tertiary = proto.Uint32(uint32(patch))
		}
	})
}

func (f *ClientFactory) NewTransport(ctx context.Context, userID string, emit func(Event)) (Transport, error) {
	dir := f.credentialDir(userID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	dbURI := "file:" + filepath.Join(dir, credentialFile) + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dbURI, log.WhatsMeow("Database"))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	setDeviceProps()

	client := whatsmeow.NewClient(device, log.WhatsMeow("Client"))
	if f.ProxyURL != "" {
		if err := client.SetProxyAddress(f.ProxyURL); err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}
	// Reconnection is driven by the session lifecycle.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	t := &clientTransport{
		userID:    userID,
		client:    client,
		container: container,
		emit:      emit,
	}
	client.AddEventHandler(t.handleEvent)
	return t, nil
}

type clientTransport struct {
	userID    string
	client    *whatsmeow.Client
	container *sqlstore.Container
	emit      func(Event)

	mu       sync.Mutex
	qrCancel context.CancelFunc
	closed   bool
}

func (t *clientTransport) Connect(ctx context.Context) error {
	if t.client.Store.ID != nil {
		return t.client.Connect()
	}

	// The QR channel lives as long as the transport, not the request.
	qrCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	qrChan, err := t.client.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		if errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
			return t.client.Connect()
		}
		return err
	}

	t.mu.Lock()
	t.qrCancel = cancel
	t.mu.Unlock()

	if err := t.client.Connect(); err != nil {
		cancel()
		return err
	}

	go t.pumpQR(qrChan)
	return nil
}

func (t *clientTransport) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	logger := log.Session(t.userID, "qr")
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			t.emit(QREvent(item.Code))
		case whatsmeow.QRChannelSuccess.Event:
			logger.Info("QR pairing succeeded")
		case whatsmeow.QRChannelTimeout.Event:
			t.emit(DisconnectedEvent("qr pairing timed out"))
		case whatsmeow.QRChannelClientOutdated.Event:
			if _, _, err := RefreshWAVersion(context.Background(), true); err != nil {
				logger.WithError(err).Warn("Failed to refresh WhatsApp Web version")
			}
			t.emit(DisconnectedEvent("client version outdated"))
		case whatsmeow.QRChannelScannedWithoutMultidevice.Event:
			logger.Warn("QR scanned without multi-device enabled")
		case whatsmeow.QRChannelEventError:
			reason := "qr pairing error"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			t.emit(AuthFailureEvent(reason))
		}
	}
}

func (t *clientTransport) handleEvent(evt interface{}) {
	logger := log.Session(t.userID, "transport")
	switch e := evt.(type) {
	case *events.Connected:
		t.emit(ReadyEvent())
	case *events.PairSuccess:
		logger.WithField("platform", e.Platform).Info("Device paired")
		t.emit(AuthenticatedEvent())
	case *events.LoggedOut:
		t.emit(AuthFailureEvent("logged out: " + e.Reason.String()))
	case *events.StreamReplaced:
		t.emit(DisconnectedEvent("stream replaced"))
	case *events.Disconnected:
		t.emit(DisconnectedEvent("connection closed"))
	case *events.ConnectFailure:
		reason := fmt.Sprintf("connect failure: %s %s", e.Reason, e.Message)
		if e.Reason.IsLoggedOut() {
			t.emit(AuthFailureEvent(reason))
		} else {
			t.emit(DisconnectedEvent(reason))
		}
	case *events.TemporaryBan:
		logger.WithField("code", e.Code.String()).WithField("expire", e.Expire.String()).Error("Client temporarily banned")
	case *events.KeepAliveTimeout:
		logger.WithField("errors", e.ErrorCount).Warn("Keepalive timeout")
	}
}

func (t *clientTransport) ConnectionState() ConnectionState {
	if !t.client.IsConnected() {
		return ConnDisconnected
	}
	if !t.client.IsLoggedIn() {
		return ConnUnpaired
	}
	return ConnConnected
}

func (t *clientTransport) SendText(ctx context.Context, phone string, text string) error {
	if !t.client.IsConnected() {
		return errNotConnected
	}
	if !t.client.IsLoggedIn() {
		return errNotLoggedIn
	}

	infos, err := t.client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return err
	}
	if len(infos) == 0 || !infos[0].IsIn {
		return ErrNotRegistered
	}

	recipient := infos[0].JID
	if recipient.IsEmpty() {
		recipient = types.NewJID(phone, types.DefaultUserServer)
	}

	_, err = t.client.SendMessage(ctx, recipient, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

func (t *clientTransport) Logout(ctx context.Context) error {
	if t.client.Store.ID == nil {
		return nil
	}
	return t.client.Logout(ctx)
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.qrCancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.client.RemoveEventHandlers()
	t.client.Disconnect()
	return t.container.Close()
}
