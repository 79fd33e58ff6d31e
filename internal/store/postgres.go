package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/marketboard/internal/core"
)

// DBTX is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	createTable = `CREATE TABLE IF NOT EXISTS market_reports (
	id          BIGSERIAL PRIMARY KEY,
	file_name   TEXT,
	upload_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	report      BYTEA NOT NULL
)`
	createIndex = `CREATE INDEX IF NOT EXISTS market_reports_upload_date_idx
	ON market_reports (upload_date DESC, id DESC)`

	insertReport = `INSERT INTO market_reports (file_name, report)
VALUES ($1, $2)
RETURNING id, file_name, upload_date, report`

	selectLatest = `SELECT id, file_name, upload_date, report
FROM market_reports
ORDER BY upload_date DESC, id DESC
LIMIT 1`

	selectAll = `SELECT id, file_name, upload_date, report
FROM market_reports
ORDER BY upload_date DESC, id DESC`

	deleteReport = `DELETE FROM market_reports WHERE id = $1`
)

// Postgres is a Repository over the market_reports table.
type Postgres struct {
	db DBTX
}

// NewPostgres creates a repository on db.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the table and its index if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createTable, createIndex} {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts a record. An empty fileName is stored as NULL.
func (p *Postgres) Create(ctx context.Context, fileName string, report []byte) (core.StoredRecord, error) {
	name := pgtype.Text{String: fileName, Valid: fileName != ""}
	rec, err := scanRecord(p.db.QueryRow(ctx, insertReport, name, report))
	if err != nil {
		return core.StoredRecord{}, fmt.Errorf("insert report: %w", err)
	}
	return rec, nil
}

// Latest returns the record with the newest upload date.
func (p *Postgres) Latest(ctx context.Context) (core.StoredRecord, error) {
	rec, err := scanRecord(p.db.QueryRow(ctx, selectLatest))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.StoredRecord{}, core.ErrNotFound
	}
	if err != nil {
		return core.StoredRecord{}, fmt.Errorf("select latest report: %w", err)
	}
	return rec, nil
}

// List returns every record, newest first.
func (p *Postgres) List(ctx context.Context) ([]core.StoredRecord, error) {
	rows, err := p.db.Query(ctx, selectAll)
	if err != nil {
		return nil, fmt.Errorf("select reports: %w", err)
	}
	defer rows.Close()

	out := []core.StoredRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select reports: %w", err)
	}
	return out, nil
}

// Delete removes the record with id.
func (p *Postgres) Delete(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx, deleteReport, id)
	if err != nil {
		return fmt.Errorf("delete report %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Ping checks connectivity when the underlying handle supports it.
func (p *Postgres) Ping(ctx context.Context) error {
	if pinger, ok := p.db.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func scanRecord(row pgx.Row) (core.StoredRecord, error) {
	var (
		rec  core.StoredRecord
		name pgtype.Text
		data []byte
	)
	if err := row.Scan(&rec.ID, &name, &rec.UploadDate, &data); err != nil {
		return core.StoredRecord{}, err
	}
	rec.FileName = name.String
	rec.Report = data
	return rec, nil
}
