package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"inspection-bot/internal/domain"
)

type execCall struct {
	sql  string
	args []any
}

type fakePG struct {
	execTag   pgconn.CommandTag
	execErr   error
	queryRows *fakeRows
	queryErr  error
	execs     []execCall
	queryArgs []any
}

func (f *fakePG) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return f.execTag, f.execErr
}

func (f *fakePG) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	f.queryArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryRows, nil
}

type fakeRows struct {
	data    [][]string
	pos     int
	err     error
	scanErr error
	closed  bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	cur := r.data[r.pos-1]
	for i, d := range dest {
		*(d.(*string)) = cur[i]
	}
	return nil
}

func TestPostgresRowStore_Validation(t *testing.T) {
	_, err := NewPostgresRowStore(nil)
	require.Error(t, err)
}

func TestPostgresRowStore_EnsureSchema(t *testing.T) {
	db := &fakePG{}
	s, err := NewPostgresRowStore(db)
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.Len(t, db.execs, 2)
	require.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS inspection_rows")

	db.execErr = errors.New("permission denied")
	require.ErrorContains(t, s.EnsureSchema(context.Background()), "permission denied")
}

func TestPostgresRowStore_AppendRow(t *testing.T) {
	db := &fakePG{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	s, err := NewPostgresRowStore(db)
	require.NoError(t, err)

	row := sampleRow("B5 - 1")
	require.NoError(t, s.AppendRow(context.Background(), "Inspections", row))
	require.Len(t, db.execs, 1)
	require.Equal(t, []any{"Inspections", row.Date, row.UnitLabel, row.DefectText, row.CompanyName, row.PhotoLink}, db.execs[0].args)

	db.execTag = pgconn.NewCommandTag("INSERT 0 0")
	require.ErrorContains(t, s.AppendRow(context.Background(), "Inspections", row), "0 rows affected")

	require.ErrorContains(t, s.AppendRow(context.Background(), " ", row), "sheet is required")
}

func TestPostgresRowStore_ReadAllRows(t *testing.T) {
	rows := &fakeRows{data: [][]string{
		sampleRow("B5").Columns(),
		sampleRow("46/2").Columns(),
	}}
	db := &fakePG{queryRows: rows}
	s, err := NewPostgresRowStore(db)
	require.NoError(t, err)

	got, err := s.ReadAllRows(context.Background(), "Inspections")
	require.NoError(t, err)
	require.Equal(t, []domain.Row{sampleRow("B5"), sampleRow("46/2")}, got)
	require.Equal(t, []any{"Inspections"}, db.queryArgs)
	require.True(t, rows.closed)
}

func TestPostgresRowStore_ReadAllRowsErrors(t *testing.T) {
	s, err := NewPostgresRowStore(&fakePG{queryErr: errors.New("conn refused")})
	require.NoError(t, err)
	_, err = s.ReadAllRows(context.Background(), "Inspections")
	require.ErrorContains(t, err, "conn refused")

	s, err = NewPostgresRowStore(&fakePG{queryRows: &fakeRows{data: [][]string{{"a"}}, scanErr: errors.New("bad type")}})
	require.NoError(t, err)
	_, err = s.ReadAllRows(context.Background(), "Inspections")
	require.ErrorContains(t, err, "bad type")

	s, err = NewPostgresRowStore(&fakePG{queryRows: &fakeRows{err: errors.New("stream broke")}})
	require.NoError(t, err)
	_, err = s.ReadAllRows(context.Background(), "Inspections")
	require.ErrorContains(t, err, "stream broke")
}
