package admin

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/autoservice-whatsapp/internal/types"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
	"github.com/gdbrns/autoservice-whatsapp/pkg/router"
	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

type Handler struct {
	registry *pkgWhatsApp.Registry
}

func NewHandler(registry *pkgWhatsApp.Registry) *Handler {
	return &Handler{registry: registry}
}

// ListSessions
// GET /admin/whatsapp/sessions
func (h *Handler) ListSessions(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success list sessions", typWhatsApp.ResponseSessions{
		Sessions: h.registry.Sessions(),
		Ready:    h.registry.ListReady(),
	})
}

// CheckHealth runs the health sweep immediately instead of waiting for cron.
// POST /admin/whatsapp/health
func (h *Handler) CheckHealth(c *fiber.Ctx) error {
	touched := h.registry.CheckHealth()
	return router.ResponseSuccessWithData(c, "Health check complete", map[string]int{"reconnecting": touched})
}

// DestroySession
// DELETE /admin/whatsapp/sessions/:user_id
func (h *Handler) DestroySession(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return router.ResponseBadRequest(c, "user_id is required")
	}
	if err := h.registry.Destroy(c.UserContext(), userID); err != nil {
		return router.ResponseInternalError(c, "Failed to destroy session: "+err.Error())
	}
	return router.ResponseSuccess(c, "Session destroyed")
}

func formatVersion(v [3]uint32) string {
	return strconv.FormatUint(uint64(v[0]), 10) + "." + strconv.FormatUint(uint64(v[1]), 10) + "." + strconv.FormatUint(uint64(v[2]), 10)
}

// GetWhatsAppWebVersion
// GET /admin/whatsapp/version
func (h *Handler) GetWhatsAppWebVersion(c *fiber.Ctx) error {
	status := pkgWhatsApp.CurrentVersion()
	return router.ResponseSuccessWithData(c, "Success get WhatsApp Web version", map[string]interface{}{
		"version": formatVersion(status.Current),
		"status":  status,
	})
}

// RefreshWhatsAppWebVersion
// POST /admin/whatsapp/version/refresh?force=true
func (h *Handler) RefreshWhatsAppWebVersion(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, refreshed, err := pkgWhatsApp.RefreshWAVersion(ctx, force)
	if err != nil {
		log.Print(c).WithField("force", force).WithError(err).Error("WA Web version refresh failed")
		return router.ResponseBadGateway(c, "Failed to refresh WhatsApp Web version: "+err.Error())
	}

	return router.ResponseSuccessWithData(c, "Success refresh WhatsApp Web version", map[string]interface{}{
		"version":   formatVersion(status.Current),
		"refreshed": refreshed,
		"status":    status,
	})
}
