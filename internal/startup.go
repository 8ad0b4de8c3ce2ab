package internal

import (
	"context"
	mathrand "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

// StoredSessions lists users with credentials persisted on disk.
type StoredSessions interface {
	StoredUserIDs() ([]string, error)
}

func jitterSleep(ctx context.Context, max time.Duration) {
	if max <= 0 {
		return
	}
	ms := mathrand.Int64N(max.Milliseconds() + 1)
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
	}
}

// Startup rebuilds the session of every user that paired before the last
// restart. Sessions whose credentials were revoked meanwhile come back in
// QR_PENDING and wait for the user.
func Startup(ctx context.Context, registry *pkgWhatsApp.Registry, stored StoredSessions) {
	log.Print(nil).Info("Running Startup Tasks")

	if !env.GetEnvBoolOrDefault("WHATSAPP_STARTUP_RESTORE", true) {
		log.Print(nil).Info("Startup session restore disabled")
		return
	}

	userIDs, err := stored.StoredUserIDs()
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to list stored WhatsApp sessions")
		return
	}

	maxConcurrent := env.GetEnvIntOrDefault("WHATSAPP_STARTUP_RESTORE_CONCURRENCY", 10)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	jitterMax := env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_RESTORE_JITTER_MAX", 5*time.Second)

	var restored, failed int64
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }()

			jitterSleep(ctx, jitterMax)
			if ctx.Err() != nil {
				return
			}

			if _, err := registry.GetOrCreate(ctx, userID); err != nil {
				log.Session(userID, "restore").WithError(err).Warn("Failed to restore WhatsApp session")
				atomic.AddInt64(&failed, 1)
				return
			}
			atomic.AddInt64(&restored, 1)
		}(userID)
	}

	wg.Wait()
	log.Print(nil).
		WithField("stored", len(userIDs)).
		WithField("restored", restored).
		WithField("failed", failed).
		WithField("concurrency", maxConcurrent).
		Info("Startup restore pass complete")
}
