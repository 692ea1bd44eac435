// Package existence answers "is this record localized in locale X at stage
// Y" without issuing one query per call.
package existence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oddnoc/silverstripe-fluent/internal/locale"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
	"github.com/oddnoc/silverstripe-fluent/internal/write"
)

type rowKey struct {
	table  string
	locale string
	id     int64
}

type pairKey struct {
	table  string
	locale string
}

// Cache memoizes localized-row existence per (table, locale, record).
//
// Prepopulated (table, locale) pairs hold every present RecordID, so a miss
// within one is a confirmed false rather than a reason to query. The cache
// is process-local and not safe for concurrent mutation; freshness beyond
// Flush after a write is explicitly not guaranteed.
type Cache struct {
	db      write.DBTX
	locales *locale.Registry

	memo         map[rowKey]bool
	prepopulated map[pairKey]bool
}

// NewCache builds an existence cache over the given storage handle.
func NewCache(db write.DBTX, locales *locale.Registry) (*Cache, error) {
	if db == nil {
		return nil, errors.New("storage is not configured")
	}
	if locales == nil {
		return nil, locale.ErrNoLocales
	}
	return &Cache{
		db:           db,
		locales:      locales,
		memo:         map[rowKey]bool{},
		prepopulated: map[pairKey]bool{},
	}, nil
}

// IsInStage reports whether the record has a localized row at the stage.
func (c *Cache) IsInStage(ctx context.Context, rt schema.RecordType, recordID int64, localeCode string, stage schema.Stage) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c == nil || c.db == nil {
		return false, errors.New("cache is not configured")
	}
	code := locale.Normalize(localeCode)
	if !c.locales.Has(code) {
		return false, fmt.Errorf("locale %q is not configured", localeCode)
	}

	table := schema.LocalisedStageTable(rt.BaseTable, stage)
	key := rowKey{table: table, locale: code, id: recordID}
	if cached, ok := c.memo[key]; ok {
		return cached, nil
	}
	if c.prepopulated[pairKey{table: table, locale: code}] {
		// The full ID set is loaded: a miss is a confirmed absence.
		c.memo[key] = false
		return false, nil
	}

	stmt := fmt.Sprintf(
		"SELECT 1 FROM %s WHERE %s = ? AND %s = ?",
		schema.QuoteIdentifier(table),
		schema.QuoteIdentifier(schema.ColRecordID),
		schema.QuoteIdentifier(schema.ColLocale),
	)
	var one int
	err := c.db.QueryRowContext(ctx, stmt, recordID, code).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.memo[key] = false
		return false, nil
	case err != nil:
		return false, fmt.Errorf("existence lookup %s: %w", table, err)
	}
	c.memo[key] = true
	return true, nil
}

// Prepopulate loads every RecordID present in (table, locale, stage) in one
// query. Intended for high-traffic types where listing views would otherwise
// issue an existence query per record.
func (c *Cache) Prepopulate(ctx context.Context, rt schema.RecordType, localeCode string, stage schema.Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.db == nil {
		return errors.New("cache is not configured")
	}
	code := locale.Normalize(localeCode)
	if !c.locales.Has(code) {
		return fmt.Errorf("locale %q is not configured", localeCode)
	}

	table := schema.LocalisedStageTable(rt.BaseTable, stage)
	stmt := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ?",
		schema.QuoteIdentifier(schema.ColRecordID),
		schema.QuoteIdentifier(table),
		schema.QuoteIdentifier(schema.ColLocale),
	)
	rows, err := c.db.QueryContext(ctx, stmt, code)
	if err != nil {
		return fmt.Errorf("prepopulate %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("prepopulate %s: %w", table, err)
		}
		c.memo[rowKey{table: table, locale: code, id: id}] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("prepopulate %s: %w", table, err)
	}
	c.prepopulated[pairKey{table: table, locale: code}] = true
	return nil
}

// Flush clears all memoized state. The record lifecycle signals this after
// writes; subsequent lookups re-query.
func (c *Cache) Flush() {
	if c == nil {
		return
	}
	c.memo = map[rowKey]bool{}
	c.prepopulated = map[pairKey]bool{}
}

// IsDraftedInLocale reports whether the record has a draft localized row.
func (c *Cache) IsDraftedInLocale(ctx context.Context, rt schema.RecordType, recordID int64, localeCode string) (bool, error) {
	return c.IsInStage(ctx, rt, recordID, localeCode, schema.StageDraft)
}

// IsPublishedInLocale reports whether the record has a live localized row.
func (c *Cache) IsPublishedInLocale(ctx context.Context, rt schema.RecordType, recordID int64, localeCode string) (bool, error) {
	return c.IsInStage(ctx, rt, recordID, localeCode, schema.StageLive)
}

// ExistsInLocale reports whether the record is drafted or published in the
// locale.
func (c *Cache) ExistsInLocale(ctx context.Context, rt schema.RecordType, recordID int64, localeCode string) (bool, error) {
	drafted, err := c.IsDraftedInLocale(ctx, rt, recordID, localeCode)
	if err != nil {
		return false, err
	}
	if drafted {
		return true, nil
	}
	return c.IsPublishedInLocale(ctx, rt, recordID, localeCode)
}
