package document

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
	cfg  repoConfig
}

// NewPGRepo stores documents in PostgreSQL as JSONB.
func NewPGRepo(pool *pgxpool.Pool, opts ...RepoOption) Repository {
	return &repoPG{pool: pool, cfg: newRepoConfig(opts)}
}

const summaryCols = `id, source_name, schema_version, page_count, visit_count, review_required, processed_at`

func (r *repoPG) Create(ctx context.Context, doc *MedicalDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	body, err := r.cfg.encodeBody(doc)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO processed_document (
			id, source_name, schema_version, page_count, visit_count,
			review_required, processed_at, body
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		doc.ID, doc.SourceName, doc.SchemaVersion, doc.PageCount, len(doc.Visits),
		doc.ReviewRequired(), doc.ProcessedAt, body,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, `SELECT body FROM processed_document WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.cfg.decodeBody(id, body)
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Summary, int, error) {
	where := ""
	if filter.ReviewRequired {
		where = ` WHERE review_required`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_document`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+summaryCols+` FROM processed_document`+where+` ORDER BY processed_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.SourceName, &s.SchemaVersion, &s.PageCount, &s.VisitCount, &s.ReviewRequired, &s.ProcessedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &s)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM processed_document WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
