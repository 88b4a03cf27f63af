package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MaxListLimit caps prediction history pages.
const MaxListLimit = 200

// SavePrediction stores a prediction record.
func (r *SQLRepository) SavePrediction(ctx context.Context, p *domain.Prediction) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: prediction id is required", ErrInvalidInput)
	}
	if !p.Domain.Valid() {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidInput, p.Domain)
	}

	input, err := json.Marshal(p.Input)
	if err != nil {
		return fmt.Errorf("failed to encode prediction input: %w", err)
	}
	output := p.Output
	if len(output) == 0 {
		output = json.RawMessage("{}")
	}

	query := `
		INSERT INTO predictions (
			id, domain, score, label, input, output, source, process_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, string(p.Domain), p.Score, p.Label,
		string(input), string(output), p.Source, p.ProcessMs,
		p.CreatedAt.UTC(),
	)
	return err
}

// GetPrediction retrieves a prediction by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, id string) (*domain.Prediction, error) {
	query := `
		SELECT id, domain, score, label, input, output, source, process_ms, created_at
		FROM predictions
		WHERE id = ?
	`

	p, err := scanPrediction(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPredictions returns the most recent predictions, newest first.
func (r *SQLRepository) ListPredictions(ctx context.Context, filter domain.PredictionFilter) ([]*domain.Prediction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT id, domain, score, label, input, output, source, process_ms, created_at
		FROM predictions
	`
	args := []any{}
	if filter.Domain != "" {
		query += ` WHERE domain = ?`
		args = append(args, string(filter.Domain))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := []*domain.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}

	return predictions, rows.Err()
}

// CountPredictions counts predictions created at or after since. An empty
// domain counts every domain.
func (r *SQLRepository) CountPredictions(ctx context.Context, d domain.ScoringDomain, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM predictions WHERE created_at >= ?`
	args := []any{since.UTC()}
	if d != "" {
		query += ` AND domain = ?`
		args = append(args, string(d))
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*domain.Prediction, error) {
	var p domain.Prediction
	var d, input, output string

	if err := row.Scan(
		&p.ID, &d, &p.Score, &p.Label,
		&input, &output, &p.Source, &p.ProcessMs, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	p.Domain = domain.ScoringDomain(d)
	if err := json.Unmarshal([]byte(input), &p.Input); err != nil {
		return nil, fmt.Errorf("failed to parse prediction input for %s: %w", p.ID, err)
	}
	p.Output = json.RawMessage(output)

	return &p, nil
}
