package source

import (
	"fmt"
	"strconv"
	"strings"
)

// conditionOperators are listed longest first so "<=" wins over "<" at the same position.
var conditionOperators = []struct {
	token string
	op    Op
}{
	{"<>", OpNe},
	{"!=", OpNe},
	{">=", OpGe},
	{"<=", OpLe},
	{"=", OpEq},
	{">", OpGt},
	{"<", OpLt},
}

// ParseWhere turns textual conditions into one pushed-down predicate. Conditions are
// ANDed. Each is "COL <op> VALUE", "COL IS NULL", "COL IS NOT NULL" or
// "COL IN (v1, v2)".
func ParseWhere(conditions []string) (Predicate, error) {
	var predicates []Predicate
	for _, raw := range conditions {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		predicate, err := ParseCondition(raw)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, predicate)
	}
	switch len(predicates) {
	case 0:
		return nil, nil
	case 1:
		return predicates[0], nil
	default:
		return And(predicates...), nil
	}
}

// ParseCondition parses a single condition.
func ParseCondition(raw string) (Predicate, error) {
	condition := strings.TrimSpace(raw)
	upper := strings.ToUpper(condition)

	if strings.HasSuffix(upper, " IS NOT NULL") {
		return IsNotNull(columnName(condition[:len(condition)-len(" IS NOT NULL")])), nil
	}
	if strings.HasSuffix(upper, " IS NULL") {
		return IsNull(columnName(condition[:len(condition)-len(" IS NULL")])), nil
	}
	if i := strings.Index(upper, " IN ("); i > 0 && strings.HasSuffix(condition, ")") {
		items, err := splitList(condition[i+len(" IN (") : len(condition)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid condition %q: %w", raw, err)
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			value, err := literal(item)
			if err != nil {
				return nil, fmt.Errorf("invalid condition %q: %w", raw, err)
			}
			values = append(values, value)
		}
		return In(columnName(condition[:i]), values...), nil
	}
	at, token := -1, ""
	var op Op
	for _, candidate := range conditionOperators {
		i := strings.Index(condition, candidate.token)
		if i > 0 && (at < 0 || i < at) {
			at, token, op = i, candidate.token, candidate.op
		}
	}
	if at > 0 {
		column := columnName(condition[:at])
		value := strings.TrimSpace(condition[at+len(token):])
		if column != "" && value != "" {
			typed, err := literal(value)
			if err != nil {
				return nil, fmt.Errorf("invalid condition %q: %w", raw, err)
			}
			return Compare(column, op, typed), nil
		}
	}
	return nil, fmt.Errorf("invalid condition %q", raw)
}

func columnName(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"`)
}

// splitList splits an IN list on commas outside single-quoted strings.
func splitList(list string) ([]string, error) {
	var (
		items  []string
		start  int
		quoted bool
	)
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '\'':
			// '' inside a string is an escaped quote and leaves quoted unchanged.
			quoted = !quoted
		case ',':
			if !quoted {
				items = append(items, list[start:i])
				start = i + 1
			}
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated string literal")
	}
	items = append(items, list[start:])
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			return nil, fmt.Errorf("empty list item")
		}
	}
	return items, nil
}

// literal types a condition value: quoted text stays a string, otherwise integers,
// floats and booleans are recognised. Quotes outside a well-formed string are an error.
func literal(raw string) (any, error) {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "'") {
		text, ok := unquote(value)
		if !ok {
			return nil, fmt.Errorf("unterminated string literal %s", value)
		}
		return text, nil
	}
	if strings.Contains(value, "'") {
		return nil, fmt.Errorf("unexpected quote in %s", value)
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f, nil
	}
	switch strings.ToLower(value) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return value, nil
}

// unquote strips the outer quotes of 'text' and collapses '' to '.
func unquote(value string) (string, bool) {
	if len(value) < 2 || value[0] != '\'' || value[len(value)-1] != '\'' {
		return "", false
	}
	inner := value[1 : len(value)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] != '\'' {
			b.WriteByte(inner[i])
			continue
		}
		if i+1 >= len(inner) || inner[i+1] != '\'' {
			return "", false
		}
		b.WriteByte('\'')
		i++
	}
	return b.String(), true
}
