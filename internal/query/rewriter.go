package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/oddnoc/silverstripe-fluent/internal/locale"
	"github.com/oddnoc/silverstripe-fluent/internal/localectx"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
)

// Mode selects how a read resolves record versions.
type Mode string

const (
	// ModeStage reads the current draft or live tier.
	ModeStage Mode = "stage"
	// ModeStageUnique reads the stage tier with stage-unique semantics.
	ModeStageUnique Mode = "stage_unique"
	// ModeArchive reads the dataset as of an archived date.
	ModeArchive Mode = "archive"
	// ModeAllVersions reads every version row.
	ModeAllVersions Mode = "all_versions"
	// ModeLatestVersions reads the newest version row per record.
	ModeLatestVersions Mode = "latest_versions"
	// ModeVersion reads one specific version.
	ModeVersion Mode = "version"
)

// ErrUnsupportedVersioningMode indicates an unrecognized versioning mode
// reached the rewriter. This is caller misuse, not a data error.
var ErrUnsupportedVersioningMode = errors.New("unsupported versioning mode")

// Params carries the versioning context of one read.
type Params struct {
	Mode    Mode
	Stage   schema.Stage
	Version int64 // ModeVersion only
}

// Rewriter rewrites SELECT statements so localized fields resolve against
// the correct locale- and stage-suffixed physical tables.
type Rewriter struct {
	locales *locale.Registry
}

// NewRewriter builds a query rewriter over the configured locales.
func NewRewriter(locales *locale.Registry) (*Rewriter, error) {
	if locales == nil {
		return nil, locale.ErrNoLocales
	}
	return &Rewriter{locales: locales}, nil
}

// Rewrite mutates stmt in place for the locale carried by ctx. Without a
// locale on ctx the statement is returned untouched (non-localized read).
// No I/O is performed.
func (r *Rewriter) Rewrite(ctx context.Context, stmt *Statement, rt schema.RecordType, params Params) error {
	if r == nil || r.locales == nil {
		return locale.ErrNoLocales
	}
	if stmt == nil {
		return errors.New("statement is required")
	}
	code, ok := localectx.From(ctx)
	if !ok {
		return nil
	}
	code = locale.Normalize(code)
	if !r.locales.Has(code) {
		return fmt.Errorf("locale %q is not configured", code)
	}

	// Base rewriting: join each localized table on the current locale only.
	type localisedJoin struct {
		baseAlias string
		locTable  string
		columns   []string
	}
	var joins []localisedJoin
	for _, table := range rt.LocalizedTables() {
		baseAlias, present := stmt.tableRef(table)
		if !present {
			continue
		}
		locTable := schema.LocalisedTable(table)
		stmt.Joins = append(stmt.Joins, Join{
			Type:  JoinLeft,
			Table: Table{Name: locTable, Alias: locTable},
			On: []Condition{
				Eq(Col(locTable, schema.ColRecordID), Col(baseAlias, schema.ColID)),
				Eq(Col(locTable, schema.ColLocale), Bind{Value: code}),
			},
		})
		columns := rt.LocalizedFields[table]
		coalesceColumns(stmt, baseAlias, columns, []string{locTable})
		joins = append(joins, localisedJoin{baseAlias: baseAlias, locTable: locTable, columns: columns})
	}

	switch params.Mode {
	case ModeStage, ModeStageUnique:
		if params.Stage != schema.StageLive {
			return nil
		}
		for _, lj := range joins {
			if join := stmt.join(lj.locTable); join != nil {
				// Alias unchanged: reads redirect to live storage without
				// altering join semantics.
				join.Table.Name = schema.StageTable(lj.locTable, schema.StageLive)
			}
		}
		return nil

	case ModeArchive, ModeAllVersions, ModeLatestVersions, ModeVersion:
		if !rt.Versioned {
			return fmt.Errorf("record type %q is not versioned", rt.BaseTable)
		}
		chain := r.locales.Chain(code)
		for _, lj := range joins {
			stmt.removeJoin(lj.locTable)
			versTable := schema.VersionsTable(lj.locTable)
			aliases := make([]string, 0, len(chain))
			for _, chainLocale := range chain {
				alias := lj.locTable + "_" + chainLocale.Code
				stmt.Joins = append(stmt.Joins, Join{
					Type:  JoinLeft,
					Table: Table{Name: versTable, Alias: alias},
					On: []Condition{
						Eq(Col(alias, schema.ColRecordID), Col(lj.baseAlias, schema.ColRecordID)),
						// The version tier's own Version column stays the
						// join key so version-row correspondence is exact.
						Eq(Col(alias, schema.ColVersion), Col(lj.baseAlias, schema.ColVersion)),
						Eq(Col(alias, schema.ColLocale), Bind{Value: chainLocale.Code}),
					},
				})
				aliases = append(aliases, alias)
			}
			coalesceColumns(stmt, lj.baseAlias, lj.columns, aliases)
		}
		if params.Mode == ModeVersion {
			if params.Version <= 0 {
				return fmt.Errorf("mode %q requires a positive version, got %d", params.Mode, params.Version)
			}
			stmt.Where = append(stmt.Where, Eq(Col(stmt.From.Ref(), schema.ColVersion), Bind{Value: params.Version}))
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersioningMode, params.Mode)
	}
}

// coalesceColumns rewrites projected localized columns of baseAlias to
// coalesce across the given aliases in order, falling back to the base
// column last.
func coalesceColumns(stmt *Statement, baseAlias string, columns []string, aliases []string) {
	localized := make(map[string]bool, len(columns))
	for _, column := range columns {
		localized[column] = true
	}
	for i := range stmt.Columns {
		expr := stmt.Columns[i].Expr
		if expr.Table != baseAlias || !localized[expr.Column] {
			continue
		}
		refs := make([]ColumnRef, 0, len(aliases)+1)
		for _, alias := range aliases {
			refs = append(refs, Col(alias, expr.Column))
		}
		refs = append(refs, expr)
		stmt.Columns[i].Coalesce = refs
		if stmt.Columns[i].Alias == "" {
			stmt.Columns[i].Alias = expr.Column
		}
	}
}
