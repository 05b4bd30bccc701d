package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/sapliy/rental-ecosystem/pkg/database"
)

// PostgresSource reads owed payments from the rental database.
type PostgresSource struct {
	db database.DB
}

func NewPostgresSource(db database.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// DuePayments returns pending or late payments with a tenant account, ordered by due date.
func (s *PostgresSource) DuePayments(ctx context.Context, from, to time.Time) ([]Payment, error) {
	query := `
		SELECT p.id::text, t.user_id::text, c.id::text, COALESCE(pr.name, ''), p.amount, p.due_date, p.status::text
		FROM payments p
		JOIN contracts c ON c.id = p.contract_id
		JOIN tenants t ON t.id = c.tenant_id
		LEFT JOIN properties pr ON pr.id = c.property_id
		WHERE UPPER(p.status::text) IN ('PENDING', 'LATE')
		  AND p.due_date BETWEEN $1 AND $2
		  AND t.user_id IS NOT NULL
		ORDER BY p.due_date, p.id
	`
	rows, err := s.db.QueryContext(ctx, query, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.ContractID, &p.Property, &p.Amount, &p.DueDate, &p.Status); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
