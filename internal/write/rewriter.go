package write

import (
	"context"
	"fmt"

	"github.com/oddnoc/silverstripe-fluent/internal/locale"
	"github.com/oddnoc/silverstripe-fluent/internal/localectx"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
)

// Rewriter splits record writes across locale- and stage-suffixed physical
// tables.
type Rewriter struct {
	locales *locale.Registry
}

// NewRewriter builds a write rewriter over the configured locales.
func NewRewriter(locales *locale.Registry) (*Rewriter, error) {
	if locales == nil {
		return nil, locale.ErrNoLocales
	}
	return &Rewriter{locales: locales}, nil
}

// Rewrite returns a manipulation extended with locale-suffixed targets for
// the locale carried by ctx. Without a locale the input is returned
// unchanged (global, non-localized write). The input is never mutated.
//
// Localized columns fan out to the draft table always, the _Live table when
// stage is live, and the _Versions table for versioned types. Draft and live
// targets upsert on (RecordID, Locale); version targets append on
// (RecordID, Locale, Version). Deletes against a localized table redirect to
// its _Live name when the active stage is live.
func (r *Rewriter) Rewrite(ctx context.Context, m Manipulation, rt schema.RecordType, stage schema.Stage) (Manipulation, error) {
	if r == nil || r.locales == nil {
		return nil, locale.ErrNoLocales
	}
	code, ok := localectx.From(ctx)
	if !ok {
		return m, nil
	}
	code = locale.Normalize(code)
	if !r.locales.Has(code) {
		return nil, fmt.Errorf("locale %q is not configured", code)
	}

	out := m.Clone()
	for _, table := range rt.LocalizedTables() {
		src, present := m[table]
		if !present {
			continue
		}
		locTable := schema.LocalisedTable(table)

		if src.Command == CommandDelete {
			out[schema.StageTable(locTable, stage)] = TableWrite{
				Command:  CommandDelete,
				RecordID: src.RecordID,
				Locale:   code,
			}
			continue
		}

		localized := localizedSubset(src.Fields, rt.LocalizedFields[table])
		if len(localized) == 0 {
			continue
		}

		out[locTable] = TableWrite{
			Command:  CommandUpsert,
			RecordID: src.RecordID,
			Locale:   code,
			Fields:   localized,
		}
		if stage == schema.StageLive {
			out[schema.StageTable(locTable, schema.StageLive)] = TableWrite{
				Command:  CommandUpsert,
				RecordID: src.RecordID,
				Locale:   code,
				Fields:   copyFields(localized),
			}
		}
		if version := versionFor(m, table, src); rt.Versioned && version > 0 {
			out[schema.VersionsTable(locTable)] = TableWrite{
				Command:  CommandInsert,
				RecordID: src.RecordID,
				Locale:   code,
				Version:  version,
				Fields:   copyFields(localized),
			}
		}
	}
	return out, nil
}

// versionFor resolves the version number for a versions-tier append: the
// host's own versions entry wins, then the source write's version.
func versionFor(m Manipulation, table string, src TableWrite) int64 {
	if vw, ok := m[schema.VersionsTable(table)]; ok && vw.Version > 0 {
		return vw.Version
	}
	return src.Version
}

func localizedSubset(fields map[string]any, columns []string) map[string]any {
	out := map[string]any{}
	for _, column := range columns {
		if value, ok := fields[column]; ok {
			out[column] = value
		}
	}
	return out
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for column, value := range fields {
		out[column] = value
	}
	return out
}
