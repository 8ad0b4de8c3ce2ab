package whatsapp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
	"github.com/gdbrns/autoservice-whatsapp/pkg/validation"
)

const (
	DefaultRecipientName = "Уважаемый клиент"
	DefaultCarModel      = "автомобиль"
)

type Recipient struct {
	Phone      string `json:"phone"`
	Name       string `json:"name,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
}

type BulkOptions struct {
	OrganizationID string
	CampaignName   string
}

type BulkResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
	Total  int      `json:"total"`
}

type Vehicle struct {
	Brand string
	Model string
	Year  int
}

// Describe renders "brand model year", dropping the year when unknown.
func (v Vehicle) Describe() string {
	parts := []string{strings.TrimSpace(v.Brand), strings.TrimSpace(v.Model)}
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

type HistoryStatus string

const (
	HistorySent    HistoryStatus = "sent"
	HistoryFailed  HistoryStatus = "failed"
	HistoryPending HistoryStatus = "pending"
)

type HistoryRecord struct {
	OrganizationID string
	SentBy         string
	CustomerID     string
	Phone          string
	Message        string
	Status         HistoryStatus
	ErrorMessage   string
	IsBulk         bool
	CampaignName   string
	SentAt         time.Time
}

type VehicleFinder interface {
	FindByCustomer(ctx context.Context, organizationID string, customerID string) ([]Vehicle, error)
}

type TemplateFiller interface {
	Fill(template string, vars map[string]string) string
}

type TemplateFillerFunc func(template string, vars map[string]string) string

func (f TemplateFillerFunc) Fill(template string, vars map[string]string) string {
	return f(template, vars)
}

type HistoryRecorder interface {
	Create(ctx context.Context, record HistoryRecord) error
}

// SendBulk delivers a templated message to every recipient in order. A
// failing recipient never stops the run. A negative delay selects the
// configured default, zero sends back to back. Cancelling ctx stops the run
// between recipients and returns the partial result with ctx.Err().
func (r *Registry) SendBulk(ctx context.Context, userID string, recipients []Recipient, template string, delay time.Duration, opts BulkOptions) (BulkResult, error) {
	result := BulkResult{Errors: []string{}, Total: len(recipients)}
	if !r.IsReady(userID) {
		return result, newSendError(KindClientNotReady, nil)
	}
	if delay < 0 {
		delay = r.cfg.BulkDelay
	}

	logger := log.Session(userID, "send_bulk").
		WithField("run_id", uuid.NewString()).
		WithField("campaign", opts.CampaignName)
	logger.WithField("recipients", len(recipients)).Info("Bulk send started")

	for i, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			logger.WithError(err).Warn("Bulk send cancelled")
			return result, err
		}

		text := r.collab.Templates.Fill(template, r.templateVars(ctx, rcpt, opts))
		record := HistoryRecord{
			OrganizationID: opts.OrganizationID,
			SentBy:         userID,
			CustomerID:     rcpt.CustomerID,
			Phone:          rcpt.Phone,
			Message:        text,
			Status:         HistorySent,
			IsBulk:         true,
			CampaignName:   opts.CampaignName,
		}
		if normalized, err := validation.NormalizePhone(rcpt.Phone); err == nil {
			record.Phone = normalized
		}

		if err := r.Send(ctx, userID, rcpt.Phone, text, 0); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rcpt.Phone, err))
			record.Status = HistoryFailed
			record.ErrorMessage = err.Error()
		} else {
			result.Sent++
		}

		record.SentAt = time.Now()
		r.recordHistory(ctx, record)

		if delay > 0 && i < len(recipients)-1 {
			if err := sleepContext(ctx, delay); err != nil {
				logger.WithError(err).Warn("Bulk send cancelled")
				return result, err
			}
		}
	}

	logger.WithField("sent", result.Sent).WithField("failed", result.Failed).Info("Bulk send complete")
	return result, nil
}

func (r *Registry) templateVars(ctx context.Context, rcpt Recipient, opts BulkOptions) map[string]string {
	vars := map[string]string{
		"name":     DefaultRecipientName,
		"carModel": DefaultCarModel,
	}
	if name := strings.TrimSpace(rcpt.Name); name != "" {
		vars["name"] = name
	}
	if opts.OrganizationID != "" {
		vars["organizationName"] = r.cfg.OrganizationPlaceholder
	}

	if rcpt.CustomerID == "" || r.collab.Vehicles == nil {
		return vars
	}
	vehicles, err := r.collab.Vehicles.FindByCustomer(ctx, opts.OrganizationID, rcpt.CustomerID)
	if err != nil {
		log.Print(nil).WithField("customer_id", rcpt.CustomerID).WithError(err).Warn("Vehicle lookup failed")
		return vars
	}
	if len(vehicles) > 0 {
		if desc := vehicles[0].Describe(); desc != "" {
			vars["carModel"] = desc
		}
	}
	return vars
}

// RecordHistory stores one history row. Failures are logged, never returned.
func (r *Registry) RecordHistory(ctx context.Context, record HistoryRecord) {
	r.recordHistory(ctx, record)
}

func (r *Registry) recordHistory(ctx context.Context, record HistoryRecord) {
	if r.collab.History == nil {
		return
	}
	if record.SentAt.IsZero() {
		record.SentAt = time.Now()
	}
	if err := r.collab.History.Create(context.WithoutCancel(ctx), record); err != nil {
		log.Session(record.SentBy, "history").WithError(err).Warn("Failed to record message history")
	}
}
