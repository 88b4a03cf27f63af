// Package rules provides the CEL-Go based rule table evaluator.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
)

var (
	// ErrUnknownDomain is returned when no table is loaded for a domain.
	ErrUnknownDomain = errors.New("no rule table loaded for domain")

	// ErrInvalidTable is returned when a table fails validation or compilation.
	ErrInvalidTable = errors.New("invalid rule table")
)

// Engine evaluates scoring requests against compiled rule tables.
type Engine struct {
	mu     sync.RWMutex
	tables map[domain.ScoringDomain]*CompiledTable
	source noise.Source
	scale  float64
}

// CompiledTable holds a table with its pre-compiled CEL programs.
type CompiledTable struct {
	Table   *domain.RuleTable
	rules   []compiledRule
	factors []compiledFactor
}

type compiledRule struct {
	rule    domain.Rule
	program cel.Program // nil for category rules
}

type compiledFactor struct {
	spec    domain.FactorSpec
	program cel.Program // nil for rule-derived factors
}

// Option configures an Engine.
type Option func(*Engine)

// WithPerturbationScale scales every table's perturbation range around
// its identity. Zero disables perturbation.
func WithPerturbationScale(scale float64) Option {
	return func(e *Engine) {
		e.scale = scale
	}
}

// NewEngine creates a new evaluator drawing perturbations from source.
// A nil source never perturbs.
func NewEngine(source noise.Source, opts ...Option) *Engine {
	if source == nil {
		source = noise.Zero
	}
	e := &Engine{
		tables: make(map[domain.ScoringDomain]*CompiledTable),
		source: source,
		scale:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateTable compiles and validates a table without mutating loaded tables.
func (e *Engine) ValidateTable(table *domain.RuleTable) error {
	if table == nil {
		return fmt.Errorf("%w: table is required", ErrInvalidTable)
	}
	_, err := compileTable(table)
	return err
}

// LoadTable compiles and loads a table, replacing any table for its domain.
func (e *Engine) LoadTable(table *domain.RuleTable) error {
	if table == nil {
		return fmt.Errorf("%w: table is required", ErrInvalidTable)
	}
	compiled, err := compileTable(table)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[table.Domain] = compiled
	return nil
}

// LoadTables compiles and loads multiple tables. Disabled tables are skipped.
func (e *Engine) LoadTables(tables []*domain.RuleTable) error {
	for _, table := range tables {
		if table.Enabled {
			if err := e.LoadTable(table); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadTables replaces all loaded tables. Nothing changes if any table
// fails to compile.
func (e *Engine) ReloadTables(tables []*domain.RuleTable) error {
	next := make(map[domain.ScoringDomain]*CompiledTable)
	for _, table := range tables {
		if !table.Enabled {
			continue
		}
		compiled, err := compileTable(table)
		if err != nil {
			return err
		}
		next[table.Domain] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables = next
	return nil
}

// GetTable returns the loaded table for a domain.
func (e *Engine) GetTable(d domain.ScoringDomain) (*domain.RuleTable, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ct, ok := e.tables[d]
	if !ok {
		return nil, false
	}
	return ct.Table, true
}

// GetLoadedTables returns the loaded tables in domain order.
// The returned tables must not be modified.
func (e *Engine) GetLoadedTables() []*domain.RuleTable {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tables := make([]*domain.RuleTable, 0, len(e.tables))
	for _, d := range domain.Domains() {
		if ct, ok := e.tables[d]; ok {
			tables = append(tables, ct.Table)
		}
	}
	for d, ct := range e.tables {
		if !d.Valid() {
			tables = append(tables, ct.Table)
		}
	}
	return tables
}

// TablesCount returns the number of loaded tables.
func (e *Engine) TablesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tables)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables = make(map[domain.ScoringDomain]*CompiledTable)
	return nil
}

// Evaluate scores req against the table loaded for d. The only error is
// a missing table: unusable fields are defaulted and reported on the result.
func (e *Engine) Evaluate(ctx context.Context, d domain.ScoringDomain, req domain.ScoringRequest) (*domain.ScoreResult, error) {
	e.mu.RLock()
	ct, ok := e.tables[d]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, d)
	}

	table := ct.Table
	inputs, defaulted := ParseFields(table.Fields, req)
	result := &domain.ScoreResult{
		Domain:        table.Domain,
		TableVersion:  table.Version,
		Contributions: make([]domain.Contribution, 0, len(ct.rules)),
		Inputs:        inputs,
		Defaulted:     defaulted,
	}

	combine := table.Combine
	identity := combine.Identity()
	raw := table.Base
	byRule := make(map[string]float64, len(ct.rules))

	// Sequential so accumulation order, and therefore rounding, is fixed.
	for _, cr := range ct.rules {
		value, matched, err := evaluateRule(ctx, cr, inputs, identity)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("rule %s: %v", cr.rule.ID, err))
		}
		result.Contributions = append(result.Contributions, domain.Contribution{
			RuleID:  cr.rule.ID,
			Value:   value,
			Matched: matched,
		})
		byRule[cr.rule.ID] = value
		raw = apply(combine, raw, value)
	}
	result.Raw = raw

	result.Perturbation = identity
	if e.scale != 0 && !table.Perturbation.IsZero() {
		p := table.Perturbation
		drawn := p.Min + (p.Max-p.Min)*e.source.Float64()
		result.Perturbation = identity + (drawn-identity)*e.scale
	}

	score := apply(combine, raw, result.Perturbation)
	if table.Floor {
		score = math.Floor(score)
	}
	score = clamp(score, table.Clamp.Min, table.Clamp.Max)
	if !finite(score) {
		result.Warnings = append(result.Warnings, "score is not finite, using lower bound")
		score = clamp(0, table.Clamp.Min, table.Clamp.Max)
	}
	result.Score = score
	result.Label = MatchBand(score, table.Bands, table.DefaultLabel)

	for _, cf := range ct.factors {
		value, err := evaluateFactor(ctx, cf, inputs, byRule)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("factor %s: %v", cf.spec.Name, err))
		}
		result.Factors = append(result.Factors, domain.Factor{Name: cf.spec.Name, Value: value})
	}

	return result, nil
}

// evaluateRule returns the contribution of one rule. Failures yield the
// identity so a single bad rule cannot poison the score.
func evaluateRule(ctx context.Context, cr compiledRule, inputs map[string]any, identity float64) (float64, bool, error) {
	switch cr.rule.Kind {
	case domain.RuleCategory:
		key, _ := inputs[cr.rule.Field].(string)
		value, ok := cr.rule.Values[key]
		if !ok {
			return identity, false, nil
		}
		return value, true, nil

	case domain.RuleThreshold:
		out, _, err := cr.program.ContextEval(ctx, inputs)
		if err != nil {
			return identity, false, err
		}
		if out == types.True {
			return cr.rule.Adjustment, true, nil
		}
		return identity, false, nil

	default:
		out, _, err := cr.program.ContextEval(ctx, inputs)
		if err != nil {
			return identity, false, err
		}
		value := toNumber(out)
		if !finite(value) {
			return identity, false, fmt.Errorf("term is not finite")
		}
		return value, true, nil
	}
}

func evaluateFactor(ctx context.Context, cf compiledFactor, inputs map[string]any, byRule map[string]float64) (float64, error) {
	spec := cf.spec

	var value float64
	if cf.program != nil {
		out, _, err := cf.program.ContextEval(ctx, inputs)
		if err != nil {
			return 0, err
		}
		value = toNumber(out)
	} else {
		for _, id := range spec.Rules {
			value += byRule[id]
		}
		scale := spec.Scale
		if scale == 0 {
			scale = 1
		}
		value = (value + spec.Offset) * scale
	}

	if !finite(value) {
		return 0, fmt.Errorf("value is not finite")
	}
	switch {
	case spec.Round:
		value = math.Round(value)
	case spec.Floor:
		value = math.Floor(value)
	}
	return clamp(value, spec.Min, spec.Max), nil
}

// MatchBand returns the label of the first band whose lower bound the score
// strictly exceeds. Bands must be sorted by Above, descending.
func MatchBand(score float64, bands []domain.Band, defaultLabel string) string {
	for _, band := range bands {
		if score > band.Above {
			return band.Label
		}
	}
	return defaultLabel
}

// toNumber converts a CEL value to a float.
func toNumber(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	case types.Uint:
		return float64(v)
	default:
		return math.NaN()
	}
}

func apply(mode domain.CombineMode, acc, value float64) float64 {
	if mode == domain.CombineProduct {
		return acc * value
	}
	return acc + value
}

func clamp(v float64, lo, hi *float64) float64 {
	if lo != nil && v < *lo {
		v = *lo
	}
	if hi != nil && v > *hi {
		v = *hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
