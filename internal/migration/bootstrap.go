package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/oddnoc/silverstripe-fluent/internal/schema"
	"github.com/oddnoc/silverstripe-fluent/internal/write"
)

// BootstrapLocalisedSchema creates the canonical localized tables for every
// registered record type if they do not exist yet: the draft table, the
// _Live mirror, and the _Versions history for versioned types.
//
// Localized columns are created as TEXT; real column typing belongs to the
// host schema manager.
func BootstrapLocalisedSchema(ctx context.Context, db write.DBTX, types *schema.Registry) error {
	if db == nil {
		return fmt.Errorf("storage is not configured")
	}
	for _, rt := range types.All() {
		for _, table := range rt.LocalizedTables() {
			locTable := schema.LocalisedTable(table)
			columns := rt.LocalizedFields[table]

			if err := createLocalisedTable(ctx, db, locTable, columns, false); err != nil {
				return err
			}
			if err := createLocalisedTable(ctx, db, schema.StageTable(locTable, schema.StageLive), columns, false); err != nil {
				return err
			}
			if rt.Versioned {
				if err := createLocalisedTable(ctx, db, schema.VersionsTable(locTable), columns, true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func createLocalisedTable(ctx context.Context, db write.DBTX, name string, columns []string, versioned bool) error {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(schema.QuoteIdentifier(name))
	sb.WriteString(" (")
	sb.WriteString(schema.QuoteIdentifier(schema.ColRecordID))
	sb.WriteString(" INTEGER NOT NULL, ")
	sb.WriteString(schema.QuoteIdentifier(schema.ColLocale))
	sb.WriteString(" TEXT NOT NULL, ")
	if versioned {
		sb.WriteString(schema.QuoteIdentifier(schema.ColVersion))
		sb.WriteString(" INTEGER NOT NULL, ")
	}
	for _, column := range columns {
		sb.WriteString(schema.QuoteIdentifier(column))
		sb.WriteString(" TEXT, ")
	}
	sb.WriteString("PRIMARY KEY (")
	sb.WriteString(schema.QuoteIdentifier(schema.ColRecordID))
	sb.WriteString(", ")
	sb.WriteString(schema.QuoteIdentifier(schema.ColLocale))
	if versioned {
		sb.WriteString(", ")
		sb.WriteString(schema.QuoteIdentifier(schema.ColVersion))
	}
	sb.WriteString("))")

	if _, err := db.ExecContext(ctx, sb.String()); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	return nil
}
