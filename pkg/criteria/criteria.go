// Package criteria provides evaluation logic for tier criteria documents.
// It supports simple equality checks and numeric bounds via min_/max_ key
// prefixes (e.g. {"segment": "Institutional", "min_aum": 500000}).
package criteria

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Condition operators
const (
	OpEquals = ""     // default - simple equality
	OpGte    = "$gte" // min_ prefix
	OpLte    = "$lte" // max_ prefix
)

// Condition represents a single field condition to evaluate
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// IsBound reports whether the condition is a numeric range check rather than
// an exact match.
func (c Condition) IsBound() bool {
	return c.Operator == OpGte || c.Operator == OpLte
}

// ParseCriteria converts a raw criteria document to structured conditions.
// Keys prefixed min_/max_ become >= / <= bounds on the unprefixed field;
// everything else is an equality check. Returns an error for empty documents
// or non-numeric bound values so a bad tier definition fails the run up front.
func ParseCriteria(raw json.RawMessage) ([]Condition, error) {
	var criteria map[string]any
	if err := json.Unmarshal(raw, &criteria); err != nil {
		return nil, fmt.Errorf("malformed criteria document: %w", err)
	}
	if len(criteria) == 0 {
		return nil, fmt.Errorf("criteria document has no conditions")
	}

	var conditions []Condition
	for field, value := range criteria {
		switch {
		case strings.HasPrefix(field, "min_"):
			if _, ok := toFloat64(value); !ok {
				return nil, fmt.Errorf("criteria %q: bound value %v is not numeric", field, value)
			}
			conditions = append(conditions, Condition{
				Field:    strings.TrimPrefix(field, "min_"),
				Operator: OpGte,
				Value:    value,
			})
		case strings.HasPrefix(field, "max_"):
			if _, ok := toFloat64(value); !ok {
				return nil, fmt.Errorf("criteria %q: bound value %v is not numeric", field, value)
			}
			conditions = append(conditions, Condition{
				Field:    strings.TrimPrefix(field, "max_"),
				Operator: OpLte,
				Value:    value,
			})
		default:
			conditions = append(conditions, Condition{
				Field:    field,
				Operator: OpEquals,
				Value:    value,
			})
		}
	}

	return conditions, nil
}

// Matches evaluates client data against all conditions.
// Returns true only if ALL conditions match (AND logic).
func Matches(data map[string]any, conditions []Condition) bool {
	for _, cond := range conditions {
		if !evaluateCondition(data, cond) {
			return false
		}
	}
	return true
}

// Specificity scores how narrow a condition set is. Exact-match conditions
// count double a range bound, so a tier pinned to specific values ranks above
// one matching a broad numeric band.
func Specificity(conditions []Condition) int {
	score := 0
	for _, cond := range conditions {
		if cond.IsBound() {
			score++
		} else {
			score += 2
		}
	}
	return score
}

// getNestedValue retrieves a value from a nested map using dot notation
func getNestedValue(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = data
	for _, part := range parts {
		switch v := current.(type) {
		case map[string]any:
			val, exists := v[part]
			if !exists {
				return nil, false
			}
			current = val
		default:
			return nil, false
		}
	}

	return current, true
}

// evaluateCondition evaluates a single condition against client data
func evaluateCondition(data map[string]any, cond Condition) bool {
	value, exists := getNestedValue(data, cond.Field)
	if !exists {
		return false
	}

	switch cond.Operator {
	case OpEquals:
		return valuesEqual(value, cond.Value)
	case OpGte, OpLte:
		return compareNumeric(value, cond.Operator, cond.Value)
	default:
		return false
	}
}

// valuesEqual compares two values with type coercion
func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if reflect.DeepEqual(a, b) {
		return true
	}

	// Convert both to strings for comparison (handles type differences like float64 vs int)
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareNumeric performs numeric comparison
func compareNumeric(actual any, op string, expected any) bool {
	actualNum, ok := toFloat64(actual)
	if !ok {
		return false
	}

	expectedNum, ok := toFloat64(expected)
	if !ok {
		return false
	}

	switch op {
	case OpGte:
		return actualNum >= expectedNum
	case OpLte:
		return actualNum <= expectedNum
	default:
		return false
	}
}

// toFloat64 converts various types to float64
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
