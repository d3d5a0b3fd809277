package source

import (
	"fmt"
	"strconv"
	"strings"
)

type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Predicate is a filter pushed down to the store. Literal values are always sent as
// statement parameters, never spliced into the SQL text.
type Predicate interface {
	writeSQL(w *sqlWriter) error
}

type Comparison struct {
	Column string
	Op     Op
	Value  any
}

type Conjunction []Predicate

type Disjunction []Predicate

type Negation struct {
	Inner Predicate
}

type NullCheck struct {
	Column  string
	NotNull bool
}

type Membership struct {
	Column string
	Values []any
}

func Compare(column string, op Op, value any) Comparison {
	return Comparison{Column: column, Op: op, Value: value}
}

func Eq(column string, value any) Comparison {
	return Compare(column, OpEq, value)
}

func And(predicates ...Predicate) Conjunction {
	return Conjunction(predicates)
}

func Or(predicates ...Predicate) Disjunction {
	return Disjunction(predicates)
}

func Not(inner Predicate) Negation {
	return Negation{Inner: inner}
}

func IsNull(column string) NullCheck {
	return NullCheck{Column: column}
}

func IsNotNull(column string) NullCheck {
	return NullCheck{Column: column, NotNull: true}
}

func In(column string, values ...any) Membership {
	return Membership{Column: column, Values: values}
}

func (c Comparison) writeSQL(w *sqlWriter) error {
	switch c.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
	default:
		return fmt.Errorf("unsupported comparison operator %q", c.Op)
	}
	if c.Value == nil {
		return fmt.Errorf("comparison on %q has a nil value; use IsNull", c.Column)
	}
	column, err := quoteIdent(c.Column)
	if err != nil {
		return err
	}
	w.WriteString(column + " " + string(c.Op) + " " + w.bind(c.Value))
	return nil
}

func (c Conjunction) writeSQL(w *sqlWriter) error {
	return writeJunction(w, []Predicate(c), " AND ")
}

func (d Disjunction) writeSQL(w *sqlWriter) error {
	return writeJunction(w, []Predicate(d), " OR ")
}

func (n Negation) writeSQL(w *sqlWriter) error {
	if n.Inner == nil {
		return fmt.Errorf("negation requires an operand")
	}
	w.WriteString("NOT (")
	if err := n.Inner.writeSQL(w); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

func (n NullCheck) writeSQL(w *sqlWriter) error {
	column, err := quoteIdent(n.Column)
	if err != nil {
		return err
	}
	if n.NotNull {
		w.WriteString(column + " IS NOT NULL")
	} else {
		w.WriteString(column + " IS NULL")
	}
	return nil
}

func (m Membership) writeSQL(w *sqlWriter) error {
	if len(m.Values) == 0 {
		return fmt.Errorf("IN on %q requires at least one value", m.Column)
	}
	column, err := quoteIdent(m.Column)
	if err != nil {
		return err
	}
	placeholders := make([]string, 0, len(m.Values))
	for _, value := range m.Values {
		if value == nil {
			return fmt.Errorf("IN on %q has a nil value", m.Column)
		}
		placeholders = append(placeholders, w.bind(value))
	}
	w.WriteString(column + " IN (" + strings.Join(placeholders, ", ") + ")")
	return nil
}

func writeJunction(w *sqlWriter, predicates []Predicate, separator string) error {
	if len(predicates) == 0 {
		return fmt.Errorf("logical expression requires at least one operand")
	}
	for _, predicate := range predicates {
		if predicate == nil {
			return fmt.Errorf("logical expression has a nil operand")
		}
	}
	if len(predicates) == 1 {
		return predicates[0].writeSQL(w)
	}
	w.WriteString("(")
	for i, predicate := range predicates {
		if i > 0 {
			w.WriteString(separator)
		}
		if err := predicate.writeSQL(w); err != nil {
			return err
		}
	}
	w.WriteString(")")
	return nil
}

type sqlWriter struct {
	strings.Builder
	args []any
}

func (w *sqlWriter) bind(value any) string {
	w.args = append(w.args, value)
	return "$" + strconv.Itoa(len(w.args))
}
