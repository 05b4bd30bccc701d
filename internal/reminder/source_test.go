package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sapliy/rental-ecosystem/pkg/database"
)

func TestPostgresSource_DuePayments(t *testing.T) {
	due := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	rows := &database.MockRows{
		Data: [][]any{
			{"p1", "u1", "c1", "Casa Roma", 12500.0, due, "PENDING"},
		},
		ScanFunc: func(row []any, dest ...any) error {
			*dest[0].(*string) = row[0].(string)
			*dest[1].(*string) = row[1].(string)
			*dest[2].(*string) = row[2].(string)
			*dest[3].(*string) = row[3].(string)
			*dest[4].(*float64) = row[4].(float64)
			*dest[5].(*time.Time) = row[5].(time.Time)
			*dest[6].(*string) = row[6].(string)
			return nil
		},
	}

	var gotArgs []any
	db := &database.MockDB{
		QueryContextFunc: func(ctx context.Context, query string, args ...any) (database.Rows, error) {
			gotArgs = args
			return rows, nil
		},
	}

	from := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	payments, err := NewPostgresSource(db).DuePayments(context.Background(), from, to)
	if err != nil {
		t.Fatalf("DuePayments failed: %v", err)
	}

	if len(gotArgs) != 2 || gotArgs[0] != "2026-02-08" || gotArgs[1] != "2026-03-17" {
		t.Errorf("Expected date-only bounds, got %v", gotArgs)
	}
	if len(payments) != 1 {
		t.Fatalf("Expected 1 payment, got %d", len(payments))
	}
	p := payments[0]
	if p.ID != "p1" || p.UserID != "u1" || p.Property != "Casa Roma" || !p.DueDate.Equal(due) {
		t.Errorf("Unexpected payment %+v", p)
	}
	if !rows.Closed {
		t.Error("Expected rows to be closed")
	}
}

func TestPostgresSource_QueryError(t *testing.T) {
	db := &database.MockDB{
		QueryContextFunc: func(ctx context.Context, query string, args ...any) (database.Rows, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := NewPostgresSource(db).DuePayments(context.Background(), time.Now(), time.Now())
	if err == nil {
		t.Fatal("Expected an error")
	}
}
