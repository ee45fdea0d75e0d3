package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries evidence_snapshots with plainto_tsquery and ts_rank, using
// ts_headline for snippets. The tsvector expression matches the GIN index in
// the schema.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{q.Text}
	argN := 2

	where := "to_tsvector('english', e.title || ' ' || COALESCE(e.payload::text, '')) @@ plainto_tsquery('english', $1)"
	if q.TraineeID != "" {
		where += fmt.Sprintf(" AND e.trainee_id = $%d", argN)
		args = append(args, q.TraineeID)
		argN++
	}
	if q.FilterFormType != "" {
		where += fmt.Sprintf(" AND e.form_type = $%d", argN)
		args = append(args, q.FilterFormType)
		argN++
	}

	countSQL := "SELECT count(*) FROM evidence_snapshots e WHERE " + where

	dataSQL := fmt.Sprintf(`
		SELECT e.id, e.title,
			ts_headline('english', COALESCE(e.payload::text, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			e.form_type, e.status, e.level, e.trainee_id,
			ts_rank(to_tsvector('english', e.title || ' ' || COALESCE(e.payload::text, '')), plainto_tsquery('english', $1)) AS rank
		FROM evidence_snapshots e
		WHERE %s
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.FormType, &r.Status, &r.Level, &r.TraineeID, &rank); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all evidence records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]EvidenceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(payload::text, ''), form_type, status, level, trainee_id
		FROM evidence_snapshots
	`)
	if err != nil {
		return nil, fmt.Errorf("load evidence: %w", err)
	}
	defer rows.Close()

	records := make([]EvidenceRecord, 0)
	for rows.Next() {
		var rec EvidenceRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Text, &rec.FormType, &rec.Status, &rec.Level, &rec.TraineeID); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}

	return records, nil
}
