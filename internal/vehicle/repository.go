package vehicle

import (
	"context"
	"database/sql"
	"fmt"

	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"
)

// Repository reads customer vehicles owned by the back office CRUD schema.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByCustomer returns the customer's vehicles, most recently added first.
func (r *Repository) FindByCustomer(ctx context.Context, organizationID string, customerID string) ([]pkgWhatsApp.Vehicle, error) {
	query := `
		SELECT brand, model, year
		FROM vehicles
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`
	args := []interface{}{customerID}
	if organizationID != "" {
		query = `
		SELECT brand, model, year
		FROM vehicles
		WHERE customer_id = $1 AND organization_id = $2
		ORDER BY created_at DESC
	`
		args = append(args, organizationID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []pkgWhatsApp.Vehicle
	for rows.Next() {
		var (
			v     pkgWhatsApp.Vehicle
			brand sql.NullString
			model sql.NullString
			year  sql.NullInt64
		)
		if err := rows.Scan(&brand, &model, &year); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		v.Brand = brand.String
		v.Model = model.String
		v.Year = int(year.Int64)
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vehicles: %w", err)
	}
	return vehicles, nil
}
