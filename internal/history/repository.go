package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

// Entry is one stored row of the organization's message history.
type Entry struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organizationId"`
	SentBy         string    `json:"sentBy"`
	CustomerID     *string   `json:"customerId,omitempty"`
	Phone          string    `json:"phone"`
	Message        string    `json:"message"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"errorMessage,omitempty"`
	IsBulk         bool      `json:"isBulk"`
	CampaignName   *string   `json:"campaignName,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// Create stores one delivery outcome.
func (r *Repository) Create(ctx context.Context, record pkgWhatsApp.HistoryRecord) error {
	query := `
		INSERT INTO whatsapp_message_history
			(organization_id, sent_by, customer_id, phone, message, status, error_message, is_bulk, campaign_name, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		record.OrganizationID,
		record.SentBy,
		nullable(record.CustomerID),
		record.Phone,
		record.Message,
		string(record.Status),
		nullable(record.ErrorMessage),
		record.IsBulk,
		nullable(record.CampaignName),
		record.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message history: %w", err)
	}
	return nil
}

// ListByOrganization returns the newest entries first.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string, limit int, offset int) ([]Entry, error) {
	query := `
		SELECT id, organization_id, sent_by, customer_id, phone, message, status,
			error_message, is_bulk, campaign_name, sent_at
		FROM whatsapp_message_history
		WHERE organization_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list message history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                                  Entry
			customerID, errorMessage, campaign sql.NullString
		)
		if err := rows.Scan(
			&e.ID,
			&e.OrganizationID,
			&e.SentBy,
			&customerID,
			&e.Phone,
			&e.Message,
			&e.Status,
			&errorMessage,
			&e.IsBulk,
			&campaign,
			&e.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message history: %w", err)
		}
		if customerID.Valid {
			e.CustomerID = &customerID.String
		}
		if errorMessage.Valid {
			e.ErrorMessage = &errorMessage.String
		}
		if campaign.Valid {
			e.CampaignName = &campaign.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message history: %w", err)
	}
	return entries, nil
}
