// Package migrate implements the one-shot legacy translation migration tool.
//
// It consolidates rows written under the old one-row-per-locale layout into
// the localised table layout, driven entirely by environment variables and
// CLI flags.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/oddnoc/silverstripe-fluent/internal/config"
	"github.com/oddnoc/silverstripe-fluent/internal/locale"
	"github.com/oddnoc/silverstripe-fluent/internal/migration"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
	"github.com/oddnoc/silverstripe-fluent/internal/sqlitemigrate"

	_ "modernc.org/sqlite"
)

// ParseConfig loads configuration from the environment and applies CLI
// flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (config.Migrate, error) {
	var cfg config.Migrate
	if err := config.ParseEnv(&cfg); err != nil {
		return config.Migrate{}, err
	}

	locales := strings.Join(cfg.Locales, ",")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the sqlite database")
	fs.StringVar(&cfg.DefaultLocale, "default-locale", cfg.DefaultLocale, "default content locale")
	fs.StringVar(&locales, "locales", locales, "comma-separated locale codes")
	fs.StringVar(&cfg.Fallbacks, "fallbacks", cfg.Fallbacks, "fallback chains, e.g. fr_FR:en_US;de_DE:en_US")
	fs.StringVar(&cfg.Types, "types", cfg.Types, "record types, e.g. *SiteTree:Title,Content;File:Name")
	fs.StringVar(&cfg.SchemaDir, "schema-dir", cfg.SchemaDir, "directory of SQL migrations to apply first")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "run the migration and roll back instead of committing")
	if err := fs.Parse(args); err != nil {
		return config.Migrate{}, err
	}
	cfg.Locales = strings.Split(locales, ",")

	if strings.TrimSpace(cfg.DBPath) == "" {
		return config.Migrate{}, errors.New("db-path is required")
	}
	return cfg, nil
}

// Run executes the migration using the provided configuration.
func Run(ctx context.Context, cfg config.Migrate, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if out == nil {
		out = io.Discard
	}

	defs, err := cfg.LocaleDefinitions()
	if err != nil {
		return err
	}
	locales, err := locale.NewRegistry(defs)
	if err != nil {
		return err
	}

	typeDefs, err := cfg.RecordTypes()
	if err != nil {
		return err
	}
	types := schema.NewRegistry()
	for _, rt := range typeDefs {
		if err := types.Register(rt); err != nil {
			return err
		}
	}

	db, err := openDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if dir := strings.TrimSpace(cfg.SchemaDir); dir != "" {
		if err := sqlitemigrate.Apply(ctx, db, os.DirFS(dir)); err != nil {
			return fmt.Errorf("apply schema migrations: %w", err)
		}
	}
	if err := migration.BootstrapLocalisedSchema(ctx, db, types); err != nil {
		return err
	}

	engine, err := migration.NewEngine(db, locales, types, migration.StagePublisher{},
		migration.WithTxRunner(migration.SQLTxRunner{DB: db, DryRun: cfg.DryRun}),
	)
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer("fluent-migrate").Start(ctx, "migration.run")
	defer span.End()

	report, err := engine.Run(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if cfg.DryRun {
		fmt.Fprintf(out, "dry run: no changes committed\n")
	}
	fmt.Fprintf(out, "types migrated: %d (skipped %d)\n", report.TypesMigrated, report.TypesSkipped)
	fmt.Fprintf(out, "groups consolidated: %d (skipped %d)\n", report.Groups, report.GroupsSkipped)
	fmt.Fprintf(out, "rows replayed: %d, published: %d, skipped: %d, pruned: %d\n",
		report.RowsReplayed, report.RowsPublished, report.RowsSkipped, report.RowsPruned)
	return nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
