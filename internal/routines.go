package internal

import (
	"context"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

// Routines registers the periodic jobs and starts the scheduler.
func Routines(c *cron.Cron, registry *pkgWhatsApp.Registry) {
	log.Print(nil).Info("Running Routine Tasks")

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		spec := env.GetEnvStringOrDefault("WHATSAPP_HEALTH_CHECK_CRON_SPEC", "0 */5 * * * *")
		_, err := c.AddFunc(spec, func() { healthCheck(registry) })
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled; relying on whatsmeow event handlers")
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false) {
		// Six fields, seconds first. Default: daily at 03:00:00.
		spec := env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", "0 0 3 * * *")
		force := env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false)
		_, err := c.AddFunc(spec, func() { refreshVersion(force) })
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", spec).WithField("force", force).Info("WA Web version refresh cron enabled")
		}
	}

	c.Start()
}

func healthCheck(registry *pkgWhatsApp.Registry) {
	sessions := registry.Sessions()
	if len(sessions) == 0 {
		return
	}

	touched := registry.CheckHealth()
	entry := log.Print(nil).
		WithField("sessions", len(sessions)).
		WithField("ready", len(registry.ListReady())).
		WithField("reconnecting", touched)
	if touched > 0 {
		entry.Warn("Health check found dropped sessions")
		return
	}
	entry.Debug("Health check complete")
}

func refreshVersion(force bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, refreshed, err := pkgWhatsApp.RefreshWAVersion(ctx, force)
	v := status.Current
	versionStr := strconv.FormatUint(uint64(v[0]), 10) + "." + strconv.FormatUint(uint64(v[1]), 10) + "." + strconv.FormatUint(uint64(v[2]), 10)
	if err != nil {
		log.Print(nil).WithField("version", versionStr).WithField("force", force).Error("WA Web version refresh failed: " + err.Error())
		return
	}
	log.Print(nil).WithField("version", versionStr).WithField("refreshed", refreshed).WithField("force", force).Info("WA Web version refresh completed")
}
