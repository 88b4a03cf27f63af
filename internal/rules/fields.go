package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ParseFields converts raw request values to the declared field types.
// Numeric fields become float64 (int fields truncated toward zero) and enum
// fields become trimmed strings. Missing or unparseable values take the zero
// value and are listed, in declaration order, in the second return.
func ParseFields(specs []domain.FieldSpec, req domain.ScoringRequest) (map[string]any, []string) {
	values := make(map[string]any, len(specs))
	var defaulted []string

	for _, spec := range specs {
		raw, present := req[spec.Name]

		if spec.Type == domain.FieldEnum {
			s, ok := parseEnum(raw)
			if !present || !ok {
				defaulted = append(defaulted, spec.Name)
			}
			values[spec.Name] = s
			continue
		}

		n, ok := parseNumber(raw)
		if !present || !ok {
			defaulted = append(defaulted, spec.Name)
			n = 0
		}
		if spec.Type == domain.FieldInt {
			n = math.Trunc(n)
		}
		values[spec.Name] = n
	}

	return values, defaulted
}

func parseNumber(raw any) (float64, bool) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case uint:
		n = float64(v)
	case uint32:
		n = float64(v)
	case uint64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func parseEnum(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case bool, map[string]any, []any:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
