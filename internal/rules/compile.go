package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// compileTable validates a table and compiles every expression against an
// environment declaring its fields.
func compileTable(table *domain.RuleTable) (*CompiledTable, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	env, err := newEnv(table.Fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, table.Domain, err)
	}

	ct := &CompiledTable{
		Table:   table,
		rules:   make([]compiledRule, 0, len(table.Rules)),
		factors: make([]compiledFactor, 0, len(table.Factors)),
	}

	for _, rule := range table.Rules {
		cr := compiledRule{rule: rule}
		switch rule.Kind {
		case domain.RuleThreshold:
			cr.program, err = compileExpression(env, rule.Expression, cel.BoolType)
		case domain.RuleTerm:
			cr.program, err = compileExpression(env, rule.Expression, cel.DoubleType, cel.IntType)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: rule %s: %v", ErrInvalidTable, table.Domain, rule.ID, err)
		}
		ct.rules = append(ct.rules, cr)
	}

	for _, spec := range table.Factors {
		cf := compiledFactor{spec: spec}
		if spec.Expression != "" {
			cf.program, err = compileExpression(env, spec.Expression, cel.DoubleType, cel.IntType)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: factor %s: %v", ErrInvalidTable, table.Domain, spec.Name, err)
			}
		}
		ct.factors = append(ct.factors, cf)
	}

	return ct, nil
}

// newEnv declares numeric fields as double and enum fields as string.
func newEnv(fields []domain.FieldSpec) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(fields))
	for _, f := range fields {
		if f.Type == domain.FieldEnum {
			opts = append(opts, cel.Variable(f.Name, cel.StringType))
		} else {
			opts = append(opts, cel.Variable(f.Name, cel.DoubleType))
		}
	}
	return cel.NewEnv(opts...)
}

func compileExpression(env *cel.Env, expr string, allowed ...*cel.Type) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", expr, issues.Err())
	}

	outputType := ast.OutputType()
	ok := false
	for _, t := range allowed {
		if outputType.IsExactType(t) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("expression %q must return %v, got %s", expr, allowed, outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

func validateTable(table *domain.RuleTable) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidTable, table.Domain, fmt.Sprintf(format, args...))
	}

	if table.Domain == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidTable)
	}
	if table.Combine != domain.CombineSum && table.Combine != domain.CombineProduct {
		return invalid("combine must be %q or %q", domain.CombineSum, domain.CombineProduct)
	}

	fields := make(map[string]domain.FieldType, len(table.Fields))
	for _, f := range table.Fields {
		if !isIdentifier(f.Name) {
			return invalid("field name %q is not an identifier", f.Name)
		}
		if _, dup := fields[f.Name]; dup {
			return invalid("duplicate field %q", f.Name)
		}
		switch f.Type {
		case domain.FieldInt, domain.FieldFloat, domain.FieldEnum:
		default:
			return invalid("field %q has unknown type %q", f.Name, f.Type)
		}
		fields[f.Name] = f.Type
	}

	ruleIDs := make(map[string]bool, len(table.Rules))
	for _, rule := range table.Rules {
		if rule.ID == "" {
			return invalid("rule id is required")
		}
		if ruleIDs[rule.ID] {
			return invalid("duplicate rule %q", rule.ID)
		}
		ruleIDs[rule.ID] = true

		switch rule.Kind {
		case domain.RuleThreshold, domain.RuleTerm:
			if rule.Expression == "" {
				return invalid("rule %s: expression is required", rule.ID)
			}
		case domain.RuleCategory:
			if fields[rule.Field] != domain.FieldEnum {
				return invalid("rule %s: field %q must be a declared enum", rule.ID, rule.Field)
			}
			if len(rule.Values) == 0 {
				return invalid("rule %s: values are required", rule.ID)
			}
		default:
			return invalid("rule %s: unknown kind %q", rule.ID, rule.Kind)
		}
	}

	if table.Perturbation.Min > table.Perturbation.Max {
		return invalid("perturbation min exceeds max")
	}
	if lo, hi := table.Clamp.Min, table.Clamp.Max; lo != nil && hi != nil && *lo > *hi {
		return invalid("clamp min exceeds max")
	}
	for i := 1; i < len(table.Bands); i++ {
		if table.Bands[i].Above >= table.Bands[i-1].Above {
			return invalid("bands must be strictly descending")
		}
	}

	for _, f := range table.Factors {
		if f.Name == "" {
			return invalid("factor name is required")
		}
		if f.Expression == "" && len(f.Rules) == 0 {
			return invalid("factor %s: expression or rules required", f.Name)
		}
		for _, id := range f.Rules {
			if !ruleIDs[id] {
				return invalid("factor %s: unknown rule %q", f.Name, id)
			}
		}
	}

	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
