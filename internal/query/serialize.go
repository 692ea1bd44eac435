package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oddnoc/silverstripe-fluent/internal/schema"
)

// Serialize renders a statement as SQL with bind arguments. Every identifier
// passes through schema.QuoteIdentifier.
func Serialize(stmt *Statement) (string, []any, error) {
	if stmt == nil {
		return "", nil, errors.New("statement is required")
	}
	if stmt.From.Name == "" {
		return "", nil, errors.New("from table is required")
	}

	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if len(stmt.Columns) == 0 {
		sb.WriteString("*")
	} else {
		for i, column := range stmt.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(renderSelectColumn(column))
		}
	}

	sb.WriteString(" FROM ")
	sb.WriteString(renderTable(stmt.From))

	for _, join := range stmt.Joins {
		joinType := join.Type
		if joinType == "" {
			joinType = JoinLeft
		}
		sb.WriteString(" ")
		sb.WriteString(string(joinType))
		sb.WriteString(" JOIN ")
		sb.WriteString(renderTable(join.Table))
		if len(join.On) > 0 {
			sb.WriteString(" ON ")
			clause, joinArgs := renderConditions(join.On, " AND ")
			sb.WriteString(clause)
			args = append(args, joinArgs...)
		}
	}

	if len(stmt.Where) > 0 {
		sb.WriteString(" WHERE ")
		clause, whereArgs := renderConditions(stmt.Where, " AND ")
		sb.WriteString(clause)
		args = append(args, whereArgs...)
	}

	if len(stmt.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, ordering := range stmt.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(renderColumn(ordering.Column))
			if ordering.Desc {
				sb.WriteString(" DESC")
			}
		}
	}

	if stmt.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(stmt.Limit))
	}

	return sb.String(), args, nil
}

func renderTable(table Table) string {
	out := schema.QuoteIdentifier(table.Name)
	if table.Alias != "" && table.Alias != table.Name {
		out += " AS " + schema.QuoteIdentifier(table.Alias)
	}
	return out
}

func renderColumn(ref ColumnRef) string {
	if ref.Table == "" {
		return schema.QuoteIdentifier(ref.Column)
	}
	return schema.QuoteIdentifier(ref.Table) + "." + schema.QuoteIdentifier(ref.Column)
}

func renderSelectColumn(column SelectColumn) string {
	var expr string
	if len(column.Coalesce) > 1 {
		refs := make([]string, 0, len(column.Coalesce))
		for _, ref := range column.Coalesce {
			refs = append(refs, renderColumn(ref))
		}
		expr = "COALESCE(" + strings.Join(refs, ", ") + ")"
	} else if len(column.Coalesce) == 1 {
		expr = renderColumn(column.Coalesce[0])
	} else {
		expr = renderColumn(column.Expr)
	}
	if column.Alias != "" {
		expr += " AS " + schema.QuoteIdentifier(column.Alias)
	}
	return expr
}

func renderConditions(conditions []Condition, separator string) (string, []any) {
	parts := make([]string, 0, len(conditions))
	var args []any
	for _, condition := range conditions {
		op := condition.Op
		if op == "" {
			op = "="
		}
		switch right := condition.Right.(type) {
		case ColumnRef:
			parts = append(parts, fmt.Sprintf("%s %s %s", renderColumn(condition.Left), op, renderColumn(right)))
		case Bind:
			parts = append(parts, fmt.Sprintf("%s %s ?", renderColumn(condition.Left), op))
			args = append(args, right.Value)
		default:
			parts = append(parts, fmt.Sprintf("%s %s NULL", renderColumn(condition.Left), op))
		}
	}
	return strings.Join(parts, separator), args
}
