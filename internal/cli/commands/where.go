package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapdb/pkg/query"
)

// whereOperators are matched longest first.
var whereOperators = []struct {
	token string
	cmp   func(v any) query.Comparison
}{
	{">=", query.Gte},
	{"<=", query.Lte},
	{"!=", query.NotEq},
	{"=", query.Eq},
	{">", query.Gt},
	{"<", query.Lt},
	{"~", func(v any) query.Comparison { return query.Like(fmt.Sprint(v)) }},
}

// ParseWhere parses a filter such as "priority>=2" or "title~%draft%".
// The value is read as null, a boolean, a number or a string, in that
// order; double quotes force a string.
func ParseWhere(expr string) (query.Clause, error) {
	for i := 0; i < len(expr); i++ {
		for _, op := range whereOperators {
			if !strings.HasPrefix(expr[i:], op.token) {
				continue
			}
			column := strings.TrimSpace(expr[:i])
			if column == "" {
				return nil, fmt.Errorf("invalid filter %q: missing column", expr)
			}
			if err := query.CheckName(column); err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
			}
			value := parseValue(strings.TrimSpace(expr[i+len(op.token):]))
			return query.Where(column, op.cmp(value)), nil
		}
	}
	return nil, fmt.Errorf("invalid filter %q: expected column, operator and value", expr)
}

func parseValue(s string) any {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// ParseSort parses "column" or "column:asc|desc".
func ParseSort(expr string) (query.Clause, error) {
	column, order, found := strings.Cut(expr, ":")
	if !found {
		return query.SortBy(column, query.Asc), nil
	}
	switch strings.ToLower(order) {
	case "asc":
		return query.SortBy(column, query.Asc), nil
	case "desc":
		return query.SortBy(column, query.Desc), nil
	}
	return nil, fmt.Errorf("invalid sort order %q in %q (want asc or desc)", order, expr)
}
