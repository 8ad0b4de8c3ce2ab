package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
)

// VersionStatus reports the WhatsApp Web version announced during pairing.
type VersionStatus struct {
	Current       store.WAVersionContainer `json:"current"`
	LastRefreshed *time.Time               `json:"lastRefreshed,omitempty"`
	LastError     string                   `json:"lastError,omitempty"`
}

var (
	versionGroup singleflight.Group

	versionMu            sync.RWMutex
	versionRefreshedAt   *time.Time
	versionRefreshErrMsg string
)

func CurrentVersion() VersionStatus {
	versionMu.RLock()
	defer versionMu.RUnlock()

	var last *time.Time
	if versionRefreshedAt != nil {
		t := *versionRefreshedAt
		last = &t
	}
	return VersionStatus{
		Current:       store.GetWAVersion(),
		LastRefreshed: last,
		LastError:     versionRefreshErrMsg,
	}
}

func recordVersionRefresh(err error) {
	versionMu.Lock()
	defer versionMu.Unlock()
	now := time.Now()
	versionRefreshedAt = &now
	versionRefreshErrMsg = ""
	if err != nil {
		versionRefreshErrMsg = err.Error()
	}
}

// RefreshWAVersion fetches the latest WhatsApp Web version and applies it to
// every transport built afterwards. Without force it is throttled by
// WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL.
func RefreshWAVersion(ctx context.Context, force bool) (VersionStatus, bool, error) {
	minInterval := env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", 10*time.Minute)
	if !force && minInterval > 0 {
		versionMu.RLock()
		last := versionRefreshedAt
		versionMu.RUnlock()
		if last != nil && time.Since(*last) < minInterval {
			return CurrentVersion(), false, nil
		}
	}

	_, err, _ := versionGroup.Do("refresh", func() (interface{}, error) {
		latest, err := whatsmeow.GetLatestVersion(ctx, &http.Client{Timeout: 15 * time.Second})
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is empty")
		}
		if err != nil {
			recordVersionRefresh(err)
			return nil, err
		}

		store.SetWAVersion(*latest)
		recordVersionRefresh(nil)
		return nil, nil
	})
	return CurrentVersion(), true, err
}
