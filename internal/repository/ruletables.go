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

// SaveRuleTable upserts the table for its domain.
func (r *SQLRepository) SaveRuleTable(ctx context.Context, table *domain.RuleTable) error {
	if table == nil || table.Domain == "" {
		return fmt.Errorf("%w: table domain is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if table.UpdatedAt.IsZero() {
		table.UpdatedAt = now
	}

	definition, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode rule table: %w", err)
	}

	query := `
		INSERT INTO rule_tables (domain, version, definition, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			version = excluded.version,
			definition = excluded.definition,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		string(table.Domain), table.Version, string(definition),
		boolToInt(table.Enabled), now, table.UpdatedAt.UTC(),
	)
	return err
}

// GetRuleTable retrieves the table stored for a domain.
func (r *SQLRepository) GetRuleTable(ctx context.Context, d domain.ScoringDomain) (*domain.RuleTable, error) {
	query := `SELECT definition FROM rule_tables WHERE domain = ?`

	var definition string
	err := r.db.QueryRowContext(ctx, r.rebind(query), string(d)).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var table domain.RuleTable
	if err := json.Unmarshal([]byte(definition), &table); err != nil {
		return nil, fmt.Errorf("failed to parse rule table %s: %w", d, err)
	}
	return &table, nil
}

// ListRuleTables retrieves every stored table, enabled or not.
func (r *SQLRepository) ListRuleTables(ctx context.Context) ([]*domain.RuleTable, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT domain, definition FROM rule_tables ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*domain.RuleTable
	for rows.Next() {
		var d, definition string
		if err := rows.Scan(&d, &definition); err != nil {
			return nil, err
		}

		var table domain.RuleTable
		if err := json.Unmarshal([]byte(definition), &table); err != nil {
			return nil, fmt.Errorf("failed to parse rule table %s: %w", d, err)
		}
		tables = append(tables, &table)
	}

	return tables, rows.Err()
}
