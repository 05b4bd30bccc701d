package database

import (
	"context"
	"database/sql"
)

type MockDB struct {
	ExecContextFunc     func(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContextFunc    func(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRowContextFunc func(ctx context.Context, query string, args ...any) Row
}

func (m *MockDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return m.ExecContextFunc(ctx, query, args...)
}

func (m *MockDB) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return m.QueryContextFunc(ctx, query, args...)
}

func (m *MockDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return m.QueryRowContextFunc(ctx, query, args...)
}

type MockRow struct {
	ScanFunc func(dest ...any) error
}

func (m *MockRow) Scan(dest ...any) error {
	return m.ScanFunc(dest...)
}

// MockRows replays Data row by row through ScanFunc.
type MockRows struct {
	Data     [][]any
	ScanFunc func(row []any, dest ...any) error
	ErrValue error
	pos      int
	Closed   bool
}

func (m *MockRows) Next() bool {
	if m.pos >= len(m.Data) {
		return false
	}
	m.pos++
	return true
}

func (m *MockRows) Scan(dest ...any) error {
	return m.ScanFunc(m.Data[m.pos-1], dest...)
}

func (m *MockRows) Err() error {
	return m.ErrValue
}

func (m *MockRows) Close() error {
	m.Closed = true
	return nil
}

type MockResult struct {
	Affected int64
}

func (m MockResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (m MockResult) RowsAffected() (int64, error) {
	return m.Affected, nil
}
