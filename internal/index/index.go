package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/autoservice-whatsapp/pkg/router"
)

// Index
// GET /
func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "Auto-service WhatsApp messaging is running")
}
