// Package migration consolidates the legacy "one row per locale" data model
// into the canonical "one base record + N localized rows" model, preserving
// version history and published state.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/oddnoc/silverstripe-fluent/internal/locale"
	"github.com/oddnoc/silverstripe-fluent/internal/localectx"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
	"github.com/oddnoc/silverstripe-fluent/internal/write"
)

// Legacy schema consumed by the migration.
const (
	legacyColGroupID    = "TranslationGroupID"
	legacyColOriginalID = "OriginalID"
	legacyColClassName  = "ClassName"
	legacyColCreated    = "Created"

	obsoleteClassPrefix = "_obsolete"
)

// pruneBatchSize keeps per-statement bind counts well under sqlite's
// variable limit.
const pruneBatchSize = 500

func batchIDs(ids []int64, size int) [][]int64 {
	var batches [][]int64
	for len(ids) > size {
		batches = append(batches, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}
	return batches
}

// Report summarizes one migration run.
type Report struct {
	TypesMigrated int
	TypesSkipped  int
	Groups        int
	GroupsSkipped int
	RowsReplayed  int
	RowsPublished int
	RowsSkipped   int
	RowsPruned    int64
}

// Engine runs the legacy-to-canonical migration. One call, one transaction,
// no resumption; it assumes exclusive access to the dataset.
type Engine struct {
	db        *sql.DB
	locales   *locale.Registry
	types     *schema.Registry
	publisher Publisher
	writer    *write.Rewriter
	executor  write.Executor
	tx        TxRunner
	elevator  Elevator
	logger    *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTxRunner overrides the transaction wrapper.
func WithTxRunner(tx TxRunner) Option {
	return func(e *Engine) { e.tx = tx }
}

// WithElevator overrides the privilege-elevation wrapper.
func WithElevator(elevator Elevator) Option {
	return func(e *Engine) { e.elevator = elevator }
}

// WithLogger overrides the skip-diagnostic logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds a migration engine.
func NewEngine(db *sql.DB, locales *locale.Registry, types *schema.Registry, publisher Publisher, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("storage is not configured")
	}
	if locales == nil {
		return nil, locale.ErrNoLocales
	}
	if types == nil {
		return nil, errors.New("record type registry is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	writer, err := write.NewRewriter(locales)
	if err != nil {
		return nil, err
	}
	engine := &Engine{
		db:        db,
		locales:   locales,
		types:     types,
		publisher: publisher,
		writer:    writer,
		tx:        SQLTxRunner{DB: db},
		elevator:  PassthroughElevator{},
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Run executes the full migration: Discover, Group, Select canonical and
// replay, Repoint dependents, Prune. Configuration errors abort before any
// mutation; a publish failure aborts and rolls back the whole run;
// skippable data issues are logged and narrow the migrated scope.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	var report Report

	defaultLocale, err := e.locales.Default()
	if err != nil {
		return report, err
	}
	if len(e.locales.All()) == 0 {
		return report, locale.ErrNoLocales
	}

	err = e.elevator.RunElevated(ctx, func(ctx context.Context) error {
		return e.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			for _, rt := range e.types.All() {
				if !rt.Localized() {
					continue
				}
				groupTable := schema.LegacyGroupTable(rt.BaseTable)
				exists, err := tableExists(ctx, tx, groupTable)
				if err != nil {
					return err
				}
				if !exists {
					e.logger.Printf("migration: skipping %s: no legacy group table %s", rt.BaseTable, groupTable)
					report.TypesSkipped++
					continue
				}
				if err := e.migrateType(ctx, tx, rt, defaultLocale, &report); err != nil {
					return err
				}
				report.TypesMigrated++
			}
			return nil
		})
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

// member is one legacy row of a translation group.
type member struct {
	id         int64
	localeCode string
}

func (e *Engine) migrateType(ctx context.Context, tx *sql.Tx, rt schema.RecordType, defaultLocale locale.Locale, report *Report) error {
	groupTable := schema.LegacyGroupTable(rt.BaseTable)
	groupIDs, err := e.loadGroupIDs(ctx, tx, groupTable)
	if err != nil {
		return err
	}

	var deadIDs []int64
	for _, groupID := range groupIDs {
		report.Groups++
		members, err := e.loadGroupMembers(ctx, tx, rt, groupTable, groupID, report)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			// Every member was skipped: no-op group, leave its rows alone.
			e.logger.Printf("migration: skipping empty group %d for %s", groupID, rt.BaseTable)
			report.GroupsSkipped++
			continue
		}

		canonical := members[0]
		for _, m := range members {
			if m.localeCode == defaultLocale.Code {
				canonical = m
				break
			}
		}

		for _, m := range members {
			if err := e.replayMember(ctx, tx, rt, m, canonical.id, report); err != nil {
				return err
			}
		}

		for _, m := range members {
			if m.id == canonical.id {
				continue
			}
			if err := e.repointDependents(ctx, tx, rt, m.id, canonical.id); err != nil {
				return err
			}
			deadIDs = append(deadIDs, m.id)
		}
	}

	return e.prune(ctx, tx, rt, deadIDs, report)
}

func (e *Engine) loadGroupIDs(ctx context.Context, tx *sql.Tx, groupTable string) ([]int64, error) {
	stmt := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s ORDER BY %s",
		schema.QuoteIdentifier(legacyColGroupID),
		schema.QuoteIdentifier(groupTable),
		schema.QuoteIdentifier(legacyColGroupID),
	)
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list translation groups %s: %w", groupTable, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list translation groups %s: %w", groupTable, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list translation groups %s: %w", groupTable, err)
	}
	return out, nil
}

// loadGroupMembers loads a group's rows in creation order, reading each
// member's legacy locale straight off the unfiltered base table so the
// host's locale defaulting cannot mask the stored value.
func (e *Engine) loadGroupMembers(ctx context.Context, tx *sql.Tx, rt schema.RecordType, groupTable string, groupID int64, report *Report) ([]member, error) {
	stmt := fmt.Sprintf(
		"SELECT b.%s, b.%s, b.%s FROM %s b INNER JOIN %s g ON g.%s = b.%s WHERE g.%s = ? ORDER BY b.%s, b.%s",
		schema.QuoteIdentifier(schema.ColID),
		schema.QuoteIdentifier(legacyColClassName),
		schema.QuoteIdentifier(schema.ColLocale),
		schema.QuoteIdentifier(rt.BaseTable),
		schema.QuoteIdentifier(groupTable),
		schema.QuoteIdentifier(legacyColOriginalID),
		schema.QuoteIdentifier(schema.ColID),
		schema.QuoteIdentifier(legacyColGroupID),
		schema.QuoteIdentifier(legacyColCreated),
		schema.QuoteIdentifier(schema.ColID),
	)
	rows, err := tx.QueryContext(ctx, stmt, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group %d members: %w", groupID, err)
	}
	defer rows.Close()

	var out []member
	for rows.Next() {
		var id int64
		var className sql.NullString
		var legacyLocale sql.NullString
		if err := rows.Scan(&id, &className, &legacyLocale); err != nil {
			return nil, fmt.Errorf("load group %d members: %w", groupID, err)
		}
		if strings.HasPrefix(className.String, obsoleteClassPrefix) {
			e.logger.Printf("migration: skipping %s record %d: obsolete class %q", rt.BaseTable, id, className.String)
			report.RowsSkipped++
			continue
		}
		code := locale.Normalize(legacyLocale.String)
		if code == "" {
			e.logger.Printf("migration: skipping %s record %d: no legacy locale", rt.BaseTable, id)
			report.RowsSkipped++
			continue
		}
		if !e.locales.Has(code) {
			e.logger.Printf("migration: skipping %s record %d: unknown legacy locale %q", rt.BaseTable, id, code)
			report.RowsSkipped++
			continue
		}
		out = append(out, member{id: id, localeCode: code})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load group %d members: %w", groupID, err)
	}
	return out, nil
}

// replayMember writes one legacy member's localized values under the
// canonical record ID, in the member's locale, following the normal write
// path: draft always, publish when the member was published.
func (e *Engine) replayMember(ctx context.Context, tx *sql.Tx, rt schema.RecordType, m member, canonicalID int64, report *Report) error {
	fields, err := e.loadLocalizedValues(ctx, tx, rt, m.id)
	if err != nil {
		return err
	}
	published, err := e.publisher.IsPublished(ctx, tx, rt, m.id)
	if err != nil {
		return fmt.Errorf("published check %s record %d: %w", rt.BaseTable, m.id, err)
	}
	version, err := e.nextVersion(ctx, tx, rt, canonicalID)
	if err != nil {
		return err
	}

	err = localectx.Run(ctx, m.localeCode, func(ctx context.Context) error {
		manipulation := write.Manipulation{
			rt.BaseTable: write.TableWrite{
				Command:  write.CommandUpdate,
				RecordID: canonicalID,
				Version:  version,
				Fields:   fields,
			},
		}
		rewritten, err := e.writer.Rewrite(ctx, manipulation, rt, schema.StageDraft)
		if err != nil {
			return err
		}
		// Base-row data stays where it is: the canonical member's values are
		// already on the surviving base row, so only localized targets apply.
		for table := range rt.LocalizedFields {
			delete(rewritten, table)
		}
		delete(rewritten, rt.BaseTable)
		if err := e.executor.Apply(ctx, tx, rewritten); err != nil {
			return err
		}

		if published {
			if err := e.publisher.Publish(ctx, tx, rt, canonicalID); err != nil {
				return &PublishError{
					BaseTable: rt.BaseTable,
					RecordID:  m.id,
					Locale:    m.localeCode,
					Err:       err,
				}
			}
			report.RowsPublished++
		}
		return nil
	})
	if err != nil {
		return err
	}
	report.RowsReplayed++
	return nil
}

func (e *Engine) loadLocalizedValues(ctx context.Context, tx *sql.Tx, rt schema.RecordType, recordID int64) (map[string]any, error) {
	columns := append([]string{}, rt.LocalizedFields[rt.BaseTable]...)
	if len(columns) == 0 {
		return map[string]any{}, nil
	}
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = schema.QuoteIdentifier(column)
	}
	stmt := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ?",
		strings.Join(quoted, ", "),
		schema.QuoteIdentifier(rt.BaseTable),
		schema.QuoteIdentifier(schema.ColID),
	)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := tx.QueryRowContext(ctx, stmt, recordID).Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("load %s record %d: %w", rt.BaseTable, recordID, err)
	}
	fields := make(map[string]any, len(columns))
	for i, column := range columns {
		fields[column] = values[i]
	}
	return fields, nil
}

func (e *Engine) nextVersion(ctx context.Context, tx *sql.Tx, rt schema.RecordType, recordID int64) (int64, error) {
	if !rt.Versioned {
		return 0, nil
	}
	versionsTable := schema.VersionsTable(schema.LocalisedTable(rt.BaseTable))
	exists, err := tableExists(ctx, tx, versionsTable)
	if err != nil || !exists {
		return 0, err
	}
	stmt := fmt.Sprintf(
		"SELECT COALESCE(MAX(%s), 0) + 1 FROM %s WHERE %s = ?",
		schema.QuoteIdentifier(schema.ColVersion),
		schema.QuoteIdentifier(versionsTable),
		schema.QuoteIdentifier(schema.ColRecordID),
	)
	var version int64
	if err := tx.QueryRowContext(ctx, stmt, recordID).Scan(&version); err != nil {
		return 0, fmt.Errorf("next version %s record %d: %w", versionsTable, recordID, err)
	}
	return version, nil
}

// repointDependents rewrites localized side-table rows still keyed by a
// non-canonical member onto the canonical ID. Rows whose (RecordID, Locale)
// slot is already taken by a replayed row are dropped instead.
func (e *Engine) repointDependents(ctx context.Context, tx *sql.Tx, rt schema.RecordType, fromID, toID int64) error {
	for _, table := range rt.LocalizedTables() {
		locTable := schema.LocalisedTable(table)
		targets := []string{locTable, schema.StageTable(locTable, schema.StageLive)}
		if rt.Versioned {
			targets = append(targets, schema.VersionsTable(locTable))
		}
		for _, target := range targets {
			exists, err := tableExists(ctx, tx, target)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			update := fmt.Sprintf(
				"UPDATE OR IGNORE %s SET %s = ? WHERE %s = ?",
				schema.QuoteIdentifier(target),
				schema.QuoteIdentifier(schema.ColRecordID),
				schema.QuoteIdentifier(schema.ColRecordID),
			)
			if _, err := tx.ExecContext(ctx, update, toID, fromID); err != nil {
				return fmt.Errorf("repoint %s: %w", target, err)
			}
			remove := fmt.Sprintf(
				"DELETE FROM %s WHERE %s = ?",
				schema.QuoteIdentifier(target),
				schema.QuoteIdentifier(schema.ColRecordID),
			)
			if _, err := tx.ExecContext(ctx, remove, fromID); err != nil {
				return fmt.Errorf("repoint %s: %w", target, err)
			}
		}
	}
	return nil
}

// prune removes the replayed non-canonical rows from base, live and versions
// storage, then drops the legacy Locale column and the group mapping table.
// Rows of all-skipped groups are left in place.
func (e *Engine) prune(ctx context.Context, tx *sql.Tx, rt schema.RecordType, deadIDs []int64, report *Report) error {
	if len(deadIDs) > 0 {
		targets := []struct {
			table string
			key   string
		}{
			{rt.BaseTable, schema.ColID},
			{schema.StageTable(rt.BaseTable, schema.StageLive), schema.ColID},
			{schema.VersionsTable(rt.BaseTable), schema.ColRecordID},
		}
		for _, target := range targets {
			exists, err := tableExists(ctx, tx, target.table)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			// sqlite caps bind variables per statement, so large legacy
			// datasets are deleted in batches.
			for _, batch := range batchIDs(deadIDs, pruneBatchSize) {
				args := make([]any, len(batch))
				for i, id := range batch {
					args[i] = id
				}
				marks := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
				stmt := fmt.Sprintf(
					"DELETE FROM %s WHERE %s IN (%s)",
					schema.QuoteIdentifier(target.table),
					schema.QuoteIdentifier(target.key),
					marks,
				)
				result, err := tx.ExecContext(ctx, stmt, args...)
				if err != nil {
					return fmt.Errorf("prune %s: %w", target.table, err)
				}
				if affected, err := result.RowsAffected(); err == nil {
					report.RowsPruned += affected
				}
			}
		}
	}

	drop := fmt.Sprintf(
		"ALTER TABLE %s DROP COLUMN %s",
		schema.QuoteIdentifier(rt.BaseTable),
		schema.QuoteIdentifier(schema.ColLocale),
	)
	if _, err := tx.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("drop legacy locale column on %s: %w", rt.BaseTable, err)
	}

	dropGroup := fmt.Sprintf("DROP TABLE %s", schema.QuoteIdentifier(schema.LegacyGroupTable(rt.BaseTable)))
	if _, err := tx.ExecContext(ctx, dropGroup); err != nil {
		return fmt.Errorf("drop legacy group table for %s: %w", rt.BaseTable, err)
	}
	return nil
}
