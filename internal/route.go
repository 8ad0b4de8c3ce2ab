package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/autoservice-whatsapp/pkg/auth"
	"github.com/gdbrns/autoservice-whatsapp/pkg/router"
	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"

	ctlAdmin "github.com/gdbrns/autoservice-whatsapp/internal/admin"
	ctlHistory "github.com/gdbrns/autoservice-whatsapp/internal/history"
	ctlIndex "github.com/gdbrns/autoservice-whatsapp/internal/index"
	ctlWhatsApp "github.com/gdbrns/autoservice-whatsapp/internal/whatsapp"
)

// Dependencies are the long-lived services the routes are bound to.
type Dependencies struct {
	Registry *pkgWhatsApp.Registry
	History  *ctlHistory.Repository
}

func Routes(app *fiber.App, deps Dependencies) {
	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// ============================================================
	// ADMIN ROUTES (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()
	admin := ctlAdmin.NewHandler(deps.Registry)

	app.Get(router.BaseURL+"/admin/whatsapp/sessions", adminMiddleware, admin.ListSessions)
	app.Delete(router.BaseURL+"/admin/whatsapp/sessions/:user_id", adminMiddleware, admin.DestroySession)
	app.Post(router.BaseURL+"/admin/whatsapp/health", adminMiddleware, admin.CheckHealth)
	app.Get(router.BaseURL+"/admin/whatsapp/version", adminMiddleware, admin.GetWhatsAppWebVersion)
	app.Post(router.BaseURL+"/admin/whatsapp/version/refresh", adminMiddleware, admin.RefreshWhatsAppWebVersion)

	// ============================================================
	// USER ROUTES (Bearer token of the back office user)
	// ============================================================
	var history ctlWhatsApp.HistoryLister
	if deps.History != nil {
		history = deps.History
	}
	wa := ctlWhatsApp.NewHandler(deps.Registry, history)
	sendLimit := router.HttpRateLimit(router.SendRatePerMinute, auth.UserID)

	user := app.Group(router.BaseURL+"/whatsapp", auth.UserAuth())
	user.Get("/status", wa.Status)
	user.Get("/qr", wa.QR)
	user.Post("/send", sendLimit, wa.Send)
	user.Post("/send-bulk", sendLimit, wa.SendBulk)
	user.Post("/send-media", sendLimit, wa.SendMedia)
	user.Post("/reconnect", wa.Reconnect)
	user.Delete("/session", wa.Logout)
	user.Get("/history", wa.History)
}
