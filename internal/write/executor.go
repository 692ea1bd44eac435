package write

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/oddnoc/silverstripe-fluent/internal/schema"
)

// DBTX is the storage handle shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor applies manipulations to SQL storage. All identifiers pass
// through schema.QuoteIdentifier.
type Executor struct{}

// Apply executes every table write of the manipulation. Tables are applied
// in name order so statement order is deterministic.
func (Executor) Apply(ctx context.Context, db DBTX, m Manipulation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("storage is not configured")
	}

	tables := make([]string, 0, len(m))
	for table := range m {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		if err := applyTableWrite(ctx, db, table, m[table]); err != nil {
			return fmt.Errorf("apply %s: %w", table, err)
		}
	}
	return nil
}

func applyTableWrite(ctx context.Context, db DBTX, table string, tw TableWrite) error {
	keyColumns, keyValues := writeKey(tw)

	switch tw.Command {
	case CommandInsert, CommandUpsert:
		columns := append([]string{}, keyColumns...)
		values := append([]any{}, keyValues...)
		for _, column := range sortedColumns(tw.Fields) {
			columns = append(columns, column)
			values = append(values, tw.Fields[column])
		}

		var sb strings.Builder
		sb.WriteString("INSERT INTO ")
		sb.WriteString(schema.QuoteIdentifier(table))
		sb.WriteString(" (")
		for i, column := range columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(schema.QuoteIdentifier(column))
		}
		sb.WriteString(") VALUES (")
		sb.WriteString(placeholders(len(columns)))
		sb.WriteString(")")

		if tw.Command == CommandUpsert {
			sb.WriteString(" ON CONFLICT (")
			for i, column := range keyColumns {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(schema.QuoteIdentifier(column))
			}
			sb.WriteString(")")
			if len(tw.Fields) == 0 {
				sb.WriteString(" DO NOTHING")
			} else {
				sb.WriteString(" DO UPDATE SET ")
				for i, column := range sortedColumns(tw.Fields) {
					if i > 0 {
						sb.WriteString(", ")
					}
					quoted := schema.QuoteIdentifier(column)
					sb.WriteString(quoted + " = excluded." + quoted)
				}
			}
		}

		_, err := db.ExecContext(ctx, sb.String(), values...)
		return err

	case CommandUpdate:
		if len(tw.Fields) == 0 {
			return nil
		}
		var sb strings.Builder
		sb.WriteString("UPDATE ")
		sb.WriteString(schema.QuoteIdentifier(table))
		sb.WriteString(" SET ")
		var args []any
		for i, column := range sortedColumns(tw.Fields) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(schema.QuoteIdentifier(column) + " = ?")
			args = append(args, tw.Fields[column])
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(keyClause(keyColumns))
		args = append(args, keyValues...)
		_, err := db.ExecContext(ctx, sb.String(), args...)
		return err

	case CommandDelete:
		stmt := "DELETE FROM " + schema.QuoteIdentifier(table) + " WHERE " + keyClause(keyColumns)
		_, err := db.ExecContext(ctx, stmt, keyValues...)
		return err

	default:
		return fmt.Errorf("unsupported write command %q", tw.Command)
	}
}

// writeKey returns the row-key columns for a table write: (RecordID, Locale)
// for localized targets, extended with Version for version appends, and the
// plain ID column for base targets.
func writeKey(tw TableWrite) ([]string, []any) {
	if tw.Locale == "" {
		return []string{schema.ColID}, []any{tw.RecordID}
	}
	columns := []string{schema.ColRecordID, schema.ColLocale}
	values := []any{tw.RecordID, tw.Locale}
	if tw.Version > 0 {
		columns = append(columns, schema.ColVersion)
		values = append(values, tw.Version)
	}
	return columns, values
}

func keyClause(columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, schema.QuoteIdentifier(column)+" = ?")
	}
	return strings.Join(parts, " AND ")
}

func sortedColumns(fields map[string]any) []string {
	out := make([]string, 0, len(fields))
	for column := range fields {
		out = append(out, column)
	}
	sort.Strings(out)
	return out
}

func placeholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = "?"
	}
	return strings.Join(out, ", ")
}
