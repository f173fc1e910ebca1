package dialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/astreltsov/db-mcp-server/dberr"
)

// Structured operations are rendered with ? placeholders and rebound to the
// backend's native form at the end. Values are always bound, never
// interpolated; only validated identifiers are spliced into the SQL text.

// A filter maps column names to either a plain value (equality, nil for
// IS NULL) or an operator object {"op": ..., "value": ...}. Supported
// operators: = > < >= <= != <> like not_like in not_in between is_null.

func BuildSelect(d Dialect, table string, columns []string, filter map[string]any, orderBy []string, limit, offset int) (string, []any, error) {
	if err := ValidIdent(table); err != nil {
		return "", nil, err
	}

	columnClause := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, col := range columns {
			if err := ValidIdent(col); err != nil {
				return "", nil, err
			}
			quoted[i] = d.QuoteIdent(col)
		}
		columnClause = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", columnClause, d.QuoteIdent(table))
	var args []any

	if len(filter) > 0 {
		clause, filterArgs, err := buildWhere(d, filter)
		if err != nil {
			return "", nil, err
		}
		query += " WHERE " + clause
		args = append(args, filterArgs...)
	}

	ordered := false
	if len(orderBy) > 0 {
		terms := make([]string, len(orderBy))
		for i, col := range orderBy {
			dir := " ASC"
			if strings.HasPrefix(col, "-") {
				col = col[1:]
				dir = " DESC"
			}
			if err := ValidIdent(col); err != nil {
				return "", nil, err
			}
			terms[i] = d.QuoteIdent(col) + dir
		}
		query += " ORDER BY " + strings.Join(terms, ", ")
		ordered = true
	}

	query += d.Paginate(limit, offset, ordered)
	return d.Rebind(query), args, nil
}

func BuildInsert(d Dialect, table string, data map[string]any) (string, []any, error) {
	if err := ValidIdent(table); err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, dberr.New(dberr.InvalidParams, "no data provided for insert into %q", table)
	}

	columns := make([]string, 0, len(data))
	placeholders := make([]string, 0, len(data))
	args := make([]any, 0, len(data))
	for _, col := range sortedKeys(data) {
		if err := ValidIdent(col); err != nil {
			return "", nil, err
		}
		columns = append(columns, d.QuoteIdent(col))
		placeholders = append(placeholders, "?")
		args = append(args, data[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return d.Rebind(query), args, nil
}

func BuildUpdate(d Dialect, table string, data, filter map[string]any) (string, []any, error) {
	if err := ValidIdent(table); err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, dberr.New(dberr.InvalidParams, "no data provided for update of %q", table)
	}
	if len(filter) == 0 {
		return "", nil, dberr.New(dberr.InvalidParams, "update of %q requires a filter", table)
	}

	sets := make([]string, 0, len(data))
	args := make([]any, 0, len(data)+len(filter))
	for _, col := range sortedKeys(data) {
		if err := ValidIdent(col); err != nil {
			return "", nil, err
		}
		sets = append(sets, d.QuoteIdent(col)+" = ?")
		args = append(args, data[col])
	}

	clause, filterArgs, err := buildWhere(d, filter)
	if err != nil {
		return "", nil, err
	}
	args = append(args, filterArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", d.QuoteIdent(table), strings.Join(sets, ", "), clause)
	return d.Rebind(query), args, nil
}

func BuildDelete(d Dialect, table string, filter map[string]any) (string, []any, error) {
	if err := ValidIdent(table); err != nil {
		return "", nil, err
	}
	if len(filter) == 0 {
		return "", nil, dberr.New(dberr.InvalidParams, "delete from %q requires a filter", table)
	}

	clause, args, err := buildWhere(d, filter)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", d.QuoteIdent(table), clause)
	return d.Rebind(query), args, nil
}

var comparisonOps = map[string]string{
	"=":        "=",
	">":        ">",
	"<":        "<",
	">=":       ">=",
	"<=":       "<=",
	"!=":       "!=",
	"<>":       "<>",
	"like":     "LIKE",
	"not_like": "NOT LIKE",
}

func buildWhere(d Dialect, filter map[string]any) (string, []any, error) {
	conditions := make([]string, 0, len(filter))
	var args []any

	for _, col := range sortedKeys(filter) {
		if err := ValidIdent(col); err != nil {
			return "", nil, err
		}
		quoted := d.QuoteIdent(col)
		value := filter[col]

		cond, ok := value.(map[string]any)
		if !ok {
			if value == nil {
				conditions = append(conditions, quoted+" IS NULL")
			} else {
				conditions = append(conditions, quoted+" = ?")
				args = append(args, value)
			}
			continue
		}

		op, _ := cond["op"].(string)
		operand := cond["value"]

		switch {
		case comparisonOps[op] != "":
			conditions = append(conditions, fmt.Sprintf("%s %s ?", quoted, comparisonOps[op]))
			args = append(args, operand)
		case op == "in", op == "not_in":
			list, err := operandList(col, op, operand)
			if err != nil {
				return "", nil, err
			}
			if len(list) == 0 {
				// Empty IN never matches; empty NOT IN always does.
				if op == "in" {
					conditions = append(conditions, "1 = 0")
				} else {
					conditions = append(conditions, "1 = 1")
				}
				continue
			}
			not := ""
			if op == "not_in" {
				not = "NOT "
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
			conditions = append(conditions, fmt.Sprintf("%s %sIN (%s)", quoted, not, placeholders))
			args = append(args, list...)
		case op == "between":
			list, err := operandList(col, op, operand)
			if err != nil {
				return "", nil, err
			}
			if len(list) != 2 {
				return "", nil, dberr.New(dberr.InvalidParams, "between filter on %q needs exactly two values", col)
			}
			conditions = append(conditions, quoted+" BETWEEN ? AND ?")
			args = append(args, list...)
		case op == "is_null":
			if isNull, _ := operand.(bool); isNull {
				conditions = append(conditions, quoted+" IS NULL")
			} else {
				conditions = append(conditions, quoted+" IS NOT NULL")
			}
		default:
			return "", nil, dberr.New(dberr.InvalidParams, "unknown filter operator %q on column %q", op, col)
		}
	}

	return strings.Join(conditions, " AND "), args, nil
}

func operandList(col, op string, operand any) ([]any, error) {
	list, ok := operand.([]any)
	if !ok {
		return nil, dberr.New(dberr.InvalidParams, "%s filter on %q needs a list value", op, col)
	}
	return list, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic statement text keeps tests and logs stable.
	sort.Strings(keys)
	return keys
}
