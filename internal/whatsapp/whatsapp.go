package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	qrCode "github.com/skip2/go-qrcode"

	ctlHistory "github.com/gdbrns/autoservice-whatsapp/internal/history"
	"github.com/gdbrns/autoservice-whatsapp/internal/template"
	typWhatsApp "github.com/gdbrns/autoservice-whatsapp/internal/types"
	"github.com/gdbrns/autoservice-whatsapp/pkg/auth"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
	"github.com/gdbrns/autoservice-whatsapp/pkg/router"
	"github.com/gdbrns/autoservice-whatsapp/pkg/validation"
	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryLister reads the organization's message history.
type HistoryLister interface {
	ListByOrganization(ctx context.Context, organizationID string, limit int, offset int) ([]ctlHistory.Entry, error)
}

type Handler struct {
	registry *pkgWhatsApp.Registry
	history  HistoryLister
}

func NewHandler(registry *pkgWhatsApp.Registry, history HistoryLister) *Handler {
	return &Handler{registry: registry, history: history}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// StatusForSendError maps a delivery failure to its HTTP status code.
func StatusForSendError(err error) int {
	var sendErr *pkgWhatsApp.SendError
	if !errors.As(err, &sendErr) {
		return http.StatusInternalServerError
	}
	switch sendErr.Kind {
	case pkgWhatsApp.KindInvalidPhone, pkgWhatsApp.KindInvalidRecipient:
		return http.StatusBadRequest
	case pkgWhatsApp.KindClientNotInitialized, pkgWhatsApp.KindClientNotReady, pkgWhatsApp.KindNotConnected:
		return http.StatusConflict
	case pkgWhatsApp.KindRejected:
		return http.StatusTooManyRequests
	case pkgWhatsApp.KindSessionFatal, pkgWhatsApp.KindDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func statusMessage(st pkgWhatsApp.SessionStatus) string {
	switch {
	case st.Ready:
		return "WhatsApp is connected"
	case st.QRCode != "":
		return "Scan the QR code to connect WhatsApp"
	case st.State == pkgWhatsApp.StateReconnecting:
		return "WhatsApp is reconnecting"
	case st.NeedsAuth:
		return "WhatsApp requires authorization"
	default:
		return "WhatsApp is initializing"
	}
}

// Status
// GET /whatsapp/status
func (h *Handler) Status(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	st, ok := h.registry.Status(userID)
	if !ok {
		if _, err := h.registry.GetOrCreate(requestContext(c), userID); err != nil {
			log.Session(userID, "status").WithError(err).Error("Failed to create WhatsApp session")
			return router.ResponseInternalError(c, "Failed to initialize WhatsApp session: "+err.Error())
		}
		st, _ = h.registry.Status(userID)
	}

	return router.ResponseSuccessWithData(c, "Success get status", typWhatsApp.ResponseStatus{
		Ready:     st.Ready,
		NeedsAuth: st.NeedsAuth,
		State:     string(st.State),
		Message:   statusMessage(st),
	})
}

// QR
// GET /whatsapp/qr
func (h *Handler) QR(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	var resp typWhatsApp.ResponseQR
	code := h.registry.QRCode(userID)
	switch {
	case code != "":
		qrPNG, err := qrCode.Encode(code, qrCode.Medium, 256)
		if err != nil {
			log.Session(userID, "qr").WithError(err).Error("Failed to encode QR code")
			return router.ResponseInternalError(c, "Failed to encode QR code")
		}
		resp.QRCode = &code
		resp.QRImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG)
		resp.Message = "Scan the QR code with WhatsApp"
	case h.registry.IsReady(userID):
		resp.Message = "WhatsApp is already connected"
	default:
		resp.Message = "QR code is not available yet"
	}

	return router.ResponseSuccessWithData(c, "Success get QR code", resp)
}

func (h *Handler) sendOne(c *fiber.Ctx, op string, phone string, text string, customerID string) error {
	userID := auth.UserID(c)
	ctx := requestContext(c)

	err := h.registry.Send(ctx, userID, phone, text, 0)

	record := pkgWhatsApp.HistoryRecord{
		OrganizationID: auth.OrganizationID(c),
		SentBy:         userID,
		CustomerID:     customerID,
		Phone:          phone,
		Message:        text,
		Status:         pkgWhatsApp.HistorySent,
		SentAt:         time.Now(),
	}
	if normalized, errPhone := validation.NormalizePhone(phone); errPhone == nil {
		record.Phone = normalized
	}
	if err != nil {
		record.Status = pkgWhatsApp.HistoryFailed
		record.ErrorMessage = err.Error()
	}
	h.registry.RecordHistory(ctx, record)

	if err != nil {
		log.Session(userID, op).WithField("phone", log.MaskPhone(phone)).WithError(err).Warn("Failed to send message")
		return router.ResponseError(c, StatusForSendError(err), err.Error())
	}
	return router.ResponseSuccess(c, "Message sent")
}

// Send
// POST /whatsapp/send
func (h *Handler) Send(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSend
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return router.ResponseBadRequest(c, "phone is required")
	}
	if err := validation.ValidateMessage(req.Message); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	return h.sendOne(c, "send", req.Phone, req.Message, req.CustomerID)
}

// SendMedia
// POST /whatsapp/send-media
func (h *Handler) SendMedia(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendMedia
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return router.ResponseBadRequest(c, "phone is required")
	}
	if err := validation.ValidateURL(req.MediaURL); err != nil {
		return router.ResponseBadRequest(c, "mediaUrl must be an absolute URL")
	}

	text := req.MediaURL
	if caption := strings.TrimSpace(req.Caption); caption != "" {
		text = caption + "\n" + req.MediaURL
	}
	if err := validation.ValidateMessage(text); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	return h.sendOne(c, "send_media", req.Phone, text, "")
}

// SendBulk
// POST /whatsapp/send-bulk
func (h *Handler) SendBulk(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	var req typWhatsApp.RequestSendBulk
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if len(req.Recipients) == 0 {
		return router.ResponseBadRequest(c, "recipients are required")
	}
	if err := template.Validate(req.Template); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateMessage(req.Template); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	delay := time.Duration(-1)
	if req.DelayMs != nil {
		if *req.DelayMs < 0 {
			return router.ResponseBadRequest(c, "delayMs must not be negative")
		}
		delay = time.Duration(*req.DelayMs) * time.Millisecond
	}

	recipients := make([]pkgWhatsApp.Recipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		recipients = append(recipients, pkgWhatsApp.Recipient{
			Phone:      r.Phone,
			Name:       r.Name,
			CustomerID: r.CustomerID,
		})
	}

	result, err := h.registry.SendBulk(requestContext(c), userID, recipients, req.Template, delay, pkgWhatsApp.BulkOptions{
		OrganizationID: auth.OrganizationID(c),
		CampaignName:   req.CampaignName,
	})
	if err != nil {
		var sendErr *pkgWhatsApp.SendError
		if errors.As(err, &sendErr) {
			return router.ResponseError(c, StatusForSendError(err), err.Error())
		}
		log.Session(userID, "send_bulk").WithError(err).Warn("Bulk send interrupted")
		return router.ResponseInternalError(c, "Bulk send interrupted: "+err.Error())
	}

	return router.ResponseSuccessWithData(c, "Bulk send complete", result)
}

// Reconnect
// POST /whatsapp/reconnect
func (h *Handler) Reconnect(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	if err := h.registry.Reconnect(requestContext(c), userID); err != nil {
		if errors.Is(err, pkgWhatsApp.ErrRebuildInProgress) {
			return router.ResponseConflict(c, "Reconnect already in progress")
		}
		log.Session(userID, "reconnect").WithError(err).Error("Failed to reconnect WhatsApp session")
		return router.ResponseInternalError(c, "Failed to reconnect: "+err.Error())
	}
	return router.ResponseSuccess(c, "Reconnect started")
}

// Logout
// DELETE /whatsapp/session
func (h *Handler) Logout(c *fiber.Ctx) error {
	userID := auth.UserID(c)

	if err := h.registry.Destroy(requestContext(c), userID); err != nil {
		if errors.Is(err, pkgWhatsApp.ErrRebuildInProgress) {
			return router.ResponseConflict(c, "Session is being rebuilt, try again later")
		}
		log.Session(userID, "destroy").WithError(err).Error("Failed to destroy WhatsApp session")
		return router.ResponseInternalError(c, "Failed to destroy session: "+err.Error())
	}
	return router.ResponseSuccess(c, "Session destroyed")
}

// History
// GET /whatsapp/history?limit=&offset=
func (h *Handler) History(c *fiber.Ctx) error {
	if h.history == nil {
		return router.ResponseNotFound(c, "Message history is not configured")
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return router.ResponseBadRequest(c, "limit must be between 1 and 500")
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		return router.ResponseBadRequest(c, "offset must not be negative")
	}

	entries, err := h.history.ListByOrganization(requestContext(c), auth.OrganizationID(c), limit, offset)
	if err != nil {
		log.Print(c).WithError(err).Error("Failed to list message history")
		return router.ResponseInternalError(c, "Failed to list message history")
	}
	return router.ResponseSuccessWithData(c, "Success get message history", entries)
}
