package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"inspection-bot/internal/domain"
)

const (
	createRowsTable = `CREATE TABLE IF NOT EXISTS inspection_rows (
	id           BIGSERIAL PRIMARY KEY,
	sheet        TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	row_date     TEXT NOT NULL,
	unit_label   TEXT NOT NULL,
	defect_text  TEXT NOT NULL,
	company_name TEXT NOT NULL,
	photo_link   TEXT NOT NULL DEFAULT ''
)`
	createRowsIndex = `CREATE INDEX IF NOT EXISTS inspection_rows_sheet_idx ON inspection_rows (sheet, id)`

	insertRow = `INSERT INTO inspection_rows (sheet, row_date, unit_label, defect_text, company_name, photo_link)
VALUES ($1, $2, $3, $4, $5, $6)`

	selectRows = `SELECT row_date, unit_label, defect_text, company_name, photo_link
FROM inspection_rows WHERE sheet = $1 ORDER BY id`
)

// pgxAPI is the part of *pgxpool.Pool the store uses.
type pgxAPI interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRowStore keeps rows in a single table keyed by sheet.
type PostgresRowStore struct {
	db pgxAPI
}

func NewPostgresRowStore(db pgxAPI) (*PostgresRowStore, error) {
	if db == nil {
		return nil, errors.New("repository: postgres pool must not be nil")
	}
	return &PostgresRowStore{db: db}, nil
}

// EnsureSchema creates the rows table and its index when missing.
func (s *PostgresRowStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createRowsTable, createRowsIndex} {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repository: EnsureSchema: %w", err)
		}
	}
	return nil
}

func (s *PostgresRowStore) AppendRow(ctx context.Context, sheet string, row domain.Row) error {
	if strings.TrimSpace(sheet) == "" {
		return errors.New("repository: AppendRow: sheet is required")
	}
	tag, err := s.db.Exec(ctx, insertRow, sheet, row.Date, row.UnitLabel, row.DefectText, row.CompanyName, row.PhotoLink)
	if err != nil {
		return fmt.Errorf("repository: AppendRow: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("repository: AppendRow: %d rows affected", tag.RowsAffected())
	}
	return nil
}

func (s *PostgresRowStore) ReadAllRows(ctx context.Context, sheet string) ([]domain.Row, error) {
	rows, err := s.db.Query(ctx, selectRows, sheet)
	if err != nil {
		return nil, fmt.Errorf("repository: ReadAllRows query: %w", err)
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		var r domain.Row
		if err := rows.Scan(&r.Date, &r.UnitLabel, &r.DefectText, &r.CompanyName, &r.PhotoLink); err != nil {
			return nil, fmt.Errorf("repository: ReadAllRows scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: ReadAllRows: %w", err)
	}
	return out, nil
}
