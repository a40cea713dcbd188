package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_document (
    id              TEXT PRIMARY KEY,
    source_name     TEXT NOT NULL DEFAULT '',
    schema_version  TEXT NOT NULL,
    page_count      INTEGER NOT NULL,
    visit_count     INTEGER NOT NULL,
    review_required INTEGER NOT NULL DEFAULT 0,
    processed_at    TEXT NOT NULL,
    body            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processed_document_processed_at
    ON processed_document (processed_at DESC);
`

// sqliteTime sorts lexically in chronological order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

type repoSQLite struct {
	db  *sql.DB
	cfg repoConfig
}

// NewSQLiteRepo stores documents in a SQLite database, creating the table
// when missing.
func NewSQLiteRepo(ctx context.Context, db *sql.DB, opts ...RepoOption) (Repository, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &repoSQLite{db: db, cfg: newRepoConfig(opts)}, nil
}

func (r *repoSQLite) Create(ctx context.Context, doc *MedicalDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	body, err := r.cfg.encodeBody(doc)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO processed_document (
			id, source_name, schema_version, page_count, visit_count,
			review_required, processed_at, body
		) VALUES (?,?,?,?,?,?,?,?)`,
		doc.ID.String(), doc.SourceName, doc.SchemaVersion, doc.PageCount, len(doc.Visits),
		doc.ReviewRequired(), doc.ProcessedAt.UTC().Format(sqliteTime), string(body),
	)
	return err
}

func (r *repoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM processed_document WHERE id = ?`, id.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.cfg.decodeBody(id, []byte(body))
}

func (r *repoSQLite) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Summary, int, error) {
	where := ""
	if filter.ReviewRequired {
		where = ` WHERE review_required = 1`
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_document`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+summaryCols+` FROM processed_document`+where+` ORDER BY processed_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*Summary{}
	for rows.Next() {
		var (
			s         Summary
			id, stamp string
		)
		if err := rows.Scan(&id, &s.SourceName, &s.SchemaVersion, &s.PageCount, &s.VisitCount, &s.ReviewRequired, &stamp); err != nil {
			return nil, 0, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, 0, fmt.Errorf("parse document id %q: %w", id, err)
		}
		if s.ProcessedAt, err = time.Parse(sqliteTime, stamp); err != nil {
			return nil, 0, fmt.Errorf("parse processed_at %q: %w", stamp, err)
		}
		out = append(out, &s)
	}
	return out, total, rows.Err()
}

func (r *repoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_document WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
