package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/marketboard/internal/core"
)

// fakeDB records statements and answers from canned rows.
type fakeDB struct {
	execs    []string
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error

	queries []string
	rows    [][]any
	rowErr  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.execArgs = append(f.execArgs, args)
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	if f.rowErr != nil {
		return nil, f.rowErr
	}
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	f.execArgs = append(f.execArgs, args)
	if f.rowErr != nil {
		return fakeRow{err: f.rowErr}
	}
	if len(f.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: f.rows[0]}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(r.rows[r.pos], dest)
}

func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *pgtype.Text:
			if v == nil {
				*d = pgtype.Text{}
			} else {
				*d = pgtype.Text{String: v.(string), Valid: true}
			}
		case *time.Time:
			*d = v.(time.Time)
		case *[]byte:
			*d = v.([]byte)
		default:
			return fmt.Errorf("scan: unsupported target %T", dest[i])
		}
	}
	return nil
}

var uploaded = time.Date(2024, 3, 15, 6, 31, 0, 0, time.UTC)

// =============================================================================
// Tests
// =============================================================================

func TestPostgres_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewPostgres(db).EnsureSchema(context.Background()))

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS market_reports")
	assert.Contains(t, db.execs[1], "upload_date DESC")
}

func TestPostgres_EnsureSchemaError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	err := NewPostgres(db).EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure schema")
}

func TestPostgres_Create(t *testing.T) {
	db := &fakeDB{rows: [][]any{{int64(4), "daily.csv", uploaded, []byte(`{}`)}}}

	rec, err := NewPostgres(db).Create(context.Background(), "daily.csv", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.ID)
	assert.Equal(t, "daily.csv", rec.FileName)
	assert.Equal(t, uploaded, rec.UploadDate)
	assert.Equal(t, "{}", string(rec.Report))

	require.Len(t, db.execArgs, 1)
	assert.Equal(t, pgtype.Text{String: "daily.csv", Valid: true}, db.execArgs[0][0])
}

func TestPostgres_CreateWithoutNameStoresNull(t *testing.T) {
	db := &fakeDB{rows: [][]any{{int64(1), nil, uploaded, []byte(`{}`)}}}

	rec, err := NewPostgres(db).Create(context.Background(), "", []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, rec.FileName)
	assert.False(t, db.execArgs[0][0].(pgtype.Text).Valid)
}

func TestPostgres_Latest(t *testing.T) {
	db := &fakeDB{rows: [][]any{{int64(9), "b.csv", uploaded, []byte(`{"x":1}`)}}}

	rec, err := NewPostgres(db).Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), rec.ID)
	assert.True(t, strings.Contains(db.queries[0], "LIMIT 1"))
}

func TestPostgres_LatestEmpty(t *testing.T) {
	_, err := NewPostgres(&fakeDB{}).Latest(context.Background())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgres_LatestFailure(t *testing.T) {
	db := &fakeDB{rowErr: errors.New("dial tcp: connection refused")}
	_, err := NewPostgres(db).Latest(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, "DB004", core.MapError(err).Code)
}

func TestPostgres_List(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{int64(2), "b.csv", uploaded.Add(time.Hour), []byte("b")},
		{int64(1), nil, uploaded, []byte("a")},
	}}

	recs, err := NewPostgres(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []int64{2, 1}, []int64{recs[0].ID, recs[1].ID})
	assert.Empty(t, recs[1].FileName)
}

func TestPostgres_ListEmptyIsNotNil(t *testing.T) {
	recs, err := NewPostgres(&fakeDB{}).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestPostgres_Delete(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr error
	}{
		{"deleted", "DELETE 1", nil},
		{"unknown id", "DELETE 0", core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{execTag: pgconn.NewCommandTag(tt.tag)}
			err := NewPostgres(db).Delete(context.Background(), 7)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, []any{int64(7)}, db.execArgs[0])
		})
	}
}
