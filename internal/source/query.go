package source

import (
	"fmt"
	"strconv"
	"strings"
)

// Statement is the projection and pushed predicate shared by every partition of one scan.
type Statement struct {
	SQL  string
	Args []any

	filtered bool
}

// BuildSQL renders SELECT "c1", "c2" FROM "table". Identifiers are always quoted so the
// store sees them with their original case.
func BuildSQL(table string, columns []string) (string, error) {
	statement, err := BuildStatement(table, columns, nil)
	if err != nil {
		return "", err
	}
	return statement.SQL, nil
}

func BuildStatement(table string, columns []string, predicate Predicate) (Statement, error) {
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("at least one column is required")
	}
	quotedTable, err := quoteIdent(table)
	if err != nil {
		return Statement{}, err
	}
	projection := make([]string, 0, len(columns))
	for _, column := range columns {
		quoted, err := quoteIdent(column)
		if err != nil {
			return Statement{}, err
		}
		projection = append(projection, quoted)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(projection, ", "))
	b.WriteString(" FROM ")
	b.WriteString(quotedTable)

	statement := Statement{}
	if predicate != nil {
		w := &sqlWriter{}
		if err := predicate.writeSQL(w); err != nil {
			return Statement{}, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(w.String())
		statement.Args = w.args
		statement.filtered = true
	}
	statement.SQL = b.String()
	return statement, nil
}

// ForPartition appends the partition's key range to the shared statement, continuing
// the parameter numbering after the predicate's own arguments.
func (s Statement) ForPartition(p Partition) (string, []any, error) {
	args := append([]any(nil), s.Args...)
	if p.KeyColumn == "" || (p.Lower == nil && p.Upper == nil) {
		return s.SQL, args, nil
	}
	key, err := quoteIdent(p.KeyColumn)
	if err != nil {
		return "", nil, err
	}

	bounds := make([]string, 0, 2)
	if p.Lower != nil {
		args = append(args, p.Lower)
		bounds = append(bounds, key+" >= $"+strconv.Itoa(len(args)))
	}
	if p.Upper != nil {
		args = append(args, p.Upper)
		bounds = append(bounds, key+" < $"+strconv.Itoa(len(args)))
	}

	keyword := " WHERE "
	if s.filtered {
		keyword = " AND "
	}
	return s.SQL + keyword + strings.Join(bounds, " AND "), args, nil
}

func quoteIdent(name string) (string, error) {
	if name == "" {
		return "", &InvalidIdentifierError{Identifier: name, Reason: "empty identifier"}
	}
	if strings.Contains(name, `"`) {
		return "", &InvalidIdentifierError{Identifier: name, Reason: "embedded double quote"}
	}
	return `"` + name + `"`, nil
}
