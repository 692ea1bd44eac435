package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oddnoc/silverstripe-fluent/internal/localectx"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
	"github.com/oddnoc/silverstripe-fluent/internal/write"
)

// Publisher exposes the host draft/publish workflow at its interface
// boundary. Implementations run inside the migration's transaction, so they
// receive the active storage handle.
type Publisher interface {
	IsPublished(ctx context.Context, db write.DBTX, rt schema.RecordType, recordID int64) (bool, error)
	Publish(ctx context.Context, db write.DBTX, rt schema.RecordType, recordID int64) error
}

// TxRunner scopes a function to one transaction.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// Elevator runs a function under elevated privileges. The host supplies a
// real implementation when the publish workflow is privilege-gated.
type Elevator interface {
	RunElevated(ctx context.Context, fn func(ctx context.Context) error) error
}

// PublishError is a failed publish during migration replay. It is fatal to
// the whole run: a partially-published group would leave inconsistent live
// state.
type PublishError struct {
	BaseTable string
	RecordID  int64
	Locale    string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s record %d in locale %s: %v", e.BaseTable, e.RecordID, e.Locale, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// SQLTxRunner runs the migration inside one database/sql transaction. With
// DryRun set the transaction is always rolled back, reporting what would
// happen without committing.
type SQLTxRunner struct {
	DB     *sql.DB
	DryRun bool
}

// RunInTransaction implements TxRunner.
func (r SQLTxRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if r.DB == nil {
		return errors.New("storage is not configured")
	}
	if fn == nil {
		return errors.New("transaction func is required")
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if r.DryRun {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}
	return nil
}

// PassthroughElevator runs the function as-is, for hosts without privilege
// gating.
type PassthroughElevator struct{}

// RunElevated implements Elevator.
func (PassthroughElevator) RunElevated(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("elevated func is required")
	}
	return fn(ctx)
}

// StagePublisher is the default publish workflow over stage-suffixed tables:
// a record is published when its base row is mirrored in the _Live table,
// and publishing copies the base row plus the current locale's localized
// rows into live storage.
type StagePublisher struct{}

// IsPublished implements Publisher.
func (StagePublisher) IsPublished(ctx context.Context, db write.DBTX, rt schema.RecordType, recordID int64) (bool, error) {
	liveTable := schema.StageTable(rt.BaseTable, schema.StageLive)
	exists, err := tableExists(ctx, db, liveTable)
	if err != nil || !exists {
		return false, err
	}
	var one int
	err = db.QueryRowContext(
		ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", schema.QuoteIdentifier(liveTable), schema.QuoteIdentifier(schema.ColID)),
		recordID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("published lookup %s: %w", liveTable, err)
	}
	return true, nil
}

// Publish implements Publisher. The locale to publish is taken from ctx.
func (StagePublisher) Publish(ctx context.Context, db write.DBTX, rt schema.RecordType, recordID int64) error {
	code, ok := localectx.From(ctx)
	if !ok {
		return errors.New("publish requires a locale context")
	}

	liveTable := schema.StageTable(rt.BaseTable, schema.StageLive)
	exists, err := tableExists(ctx, db, liveTable)
	if err != nil {
		return err
	}
	if exists {
		stmt := fmt.Sprintf(
			"INSERT OR REPLACE INTO %s SELECT * FROM %s WHERE %s = ?",
			schema.QuoteIdentifier(liveTable),
			schema.QuoteIdentifier(rt.BaseTable),
			schema.QuoteIdentifier(schema.ColID),
		)
		if _, err := db.ExecContext(ctx, stmt, recordID); err != nil {
			return fmt.Errorf("publish base row %s: %w", rt.BaseTable, err)
		}
	}

	for _, table := range rt.LocalizedTables() {
		draft := schema.LocalisedTable(table)
		live := schema.StageTable(draft, schema.StageLive)
		stmt := fmt.Sprintf(
			"INSERT OR REPLACE INTO %s SELECT * FROM %s WHERE %s = ? AND %s = ?",
			schema.QuoteIdentifier(live),
			schema.QuoteIdentifier(draft),
			schema.QuoteIdentifier(schema.ColRecordID),
			schema.QuoteIdentifier(schema.ColLocale),
		)
		if _, err := db.ExecContext(ctx, stmt, recordID, code); err != nil {
			return fmt.Errorf("publish localized row %s: %w", draft, err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, db write.DBTX, name string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("table lookup %s: %w", name, err)
	}
	return true, nil
}
