// Package query models SELECT statements as typed nodes and rewrites them
// for locale- and stage-aware reads. SQL text is produced only at the
// serialization boundary.
package query

// Table is one table reference with an optional alias.
type Table struct {
	Name  string
	Alias string
}

// Ref returns the name the rest of the statement uses to address the table.
func (t Table) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// JoinType is the SQL join variant.
type JoinType string

const (
	// JoinLeft is a LEFT JOIN.
	JoinLeft JoinType = "LEFT"
	// JoinInner is an INNER JOIN.
	JoinInner JoinType = "INNER"
)

// Operand is the right-hand side of a condition: a column or a bind param.
type Operand interface {
	isOperand()
}

// ColumnRef addresses one column, optionally qualified by table ref.
type ColumnRef struct {
	Table  string
	Column string
}

func (ColumnRef) isOperand() {}

// Bind is a bound query parameter.
type Bind struct {
	Value any
}

func (Bind) isOperand() {}

// Condition is one equality-style predicate.
type Condition struct {
	Left  ColumnRef
	Op    string // defaults to "="
	Right Operand
}

// Join is one joined table with its ON predicates.
type Join struct {
	Type  JoinType
	Table Table
	On    []Condition
}

// SelectColumn is one projected column. When Coalesce is set the column
// renders as COALESCE over the listed refs, first non-null wins.
type SelectColumn struct {
	Expr     ColumnRef
	Coalesce []ColumnRef
	Alias    string
}

// Ordering is one ORDER BY term.
type Ordering struct {
	Column ColumnRef
	Desc   bool
}

// Statement is a SELECT query scoped to one record type.
type Statement struct {
	Columns []SelectColumn
	From    Table
	Joins   []Join
	Where   []Condition
	OrderBy []Ordering
	Limit   int
}

// Col builds a table-qualified column reference.
func Col(table, column string) ColumnRef {
	return ColumnRef{Table: table, Column: column}
}

// Eq builds an equality condition.
func Eq(left ColumnRef, right Operand) Condition {
	return Condition{Left: left, Op: "=", Right: right}
}

// tableRef returns the ref under which the named table appears in the
// statement, either as the FROM table or as a join.
func (s *Statement) tableRef(name string) (string, bool) {
	if s.From.Name == name {
		return s.From.Ref(), true
	}
	for _, join := range s.Joins {
		if join.Table.Name == name {
			return join.Table.Ref(), true
		}
	}
	return "", false
}

// join returns the join addressed by ref, or nil.
func (s *Statement) join(ref string) *Join {
	for i := range s.Joins {
		if s.Joins[i].Table.Ref() == ref {
			return &s.Joins[i]
		}
	}
	return nil
}

// removeJoin drops the join addressed by ref.
func (s *Statement) removeJoin(ref string) {
	for i := range s.Joins {
		if s.Joins[i].Table.Ref() == ref {
			s.Joins = append(s.Joins[:i], s.Joins[i+1:]...)
			return
		}
	}
}
