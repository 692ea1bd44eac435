package write

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/oddnoc/silverstripe-fluent/internal/localectx"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
	_ "modernc.org/sqlite"
)

func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluent.db")
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Ping(); err != nil {
		t.Fatalf("ping sqlite db: %v", err)
	}
	return db
}

func createLocalisedTables(t *testing.T, db *sql.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE "SiteTree_Localised" (
		   "RecordID" INTEGER NOT NULL,
		   "Locale" TEXT NOT NULL,
		   "Title" TEXT,
		   "Content" TEXT,
		   PRIMARY KEY ("RecordID", "Locale")
		 )`,
		`CREATE TABLE "SiteTree_Localised_Live" (
		   "RecordID" INTEGER NOT NULL,
		   "Locale" TEXT NOT NULL,
		   "Title" TEXT,
		   "Content" TEXT,
		   PRIMARY KEY ("RecordID", "Locale")
		 )`,
		`CREATE TABLE "SiteTree_Localised_Versions" (
		   "RecordID" INTEGER NOT NULL,
		   "Locale" TEXT NOT NULL,
		   "Version" INTEGER NOT NULL,
		   "Title" TEXT,
		   "Content" TEXT,
		   PRIMARY KEY ("RecordID", "Locale", "Version")
		 )`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
}

func TestApplyUpsertInsertsThenUpdates(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	createLocalisedTables(t, db)
	var exec Executor

	m := Manipulation{
		"SiteTree_Localised": TableWrite{
			Command:  CommandUpsert,
			RecordID: 1,
			Locale:   "fr_FR",
			Fields:   map[string]any{"Title": "Accueil"},
		},
	}
	if err := exec.Apply(context.Background(), db, m); err != nil {
		t.Fatalf("apply insert: %v", err)
	}

	m["SiteTree_Localised"] = TableWrite{
		Command:  CommandUpsert,
		RecordID: 1,
		Locale:   "fr_FR",
		Fields:   map[string]any{"Title": "Accueil v2"},
	}
	if err := exec.Apply(context.Background(), db, m); err != nil {
		t.Fatalf("apply upsert: %v", err)
	}

	var title string
	var count int
	row := db.QueryRow(`SELECT COUNT(*), MAX("Title") FROM "SiteTree_Localised" WHERE "RecordID" = 1 AND "Locale" = 'fr_FR'`)
	if err := row.Scan(&count, &title); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
	if title != "Accueil v2" {
		t.Fatalf("title = %q, want Accueil v2", title)
	}
}

func TestApplyVersionAppendKeepsHistory(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	createLocalisedTables(t, db)
	var exec Executor

	for version := int64(1); version <= 3; version++ {
		m := Manipulation{
			"SiteTree_Localised_Versions": TableWrite{
				Command:  CommandInsert,
				RecordID: 1,
				Locale:   "en_US",
				Version:  version,
				Fields:   map[string]any{"Title": "Home"},
			},
		}
		if err := exec.Apply(context.Background(), db, m); err != nil {
			t.Fatalf("apply version %d: %v", version, err)
		}
	}

	var count int
	row := db.QueryRow(`SELECT COUNT(*) FROM "SiteTree_Localised_Versions" WHERE "RecordID" = 1 AND "Locale" = 'en_US'`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 3 {
		t.Fatalf("version rows = %d, want 3", count)
	}
}

func TestApplyDeleteRemovesOnlyKeyedRow(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	createLocalisedTables(t, db)
	var exec Executor

	seed := []struct {
		id     int64
		locale string
	}{{1, "en_US"}, {1, "fr_FR"}, {2, "fr_FR"}}
	for _, row := range seed {
		if _, err := db.Exec(`INSERT INTO "SiteTree_Localised" ("RecordID", "Locale", "Title") VALUES (?, ?, 'x')`, row.id, row.locale); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	m := Manipulation{
		"SiteTree_Localised": TableWrite{Command: CommandDelete, RecordID: 1, Locale: "fr_FR"},
	}
	if err := exec.Apply(context.Background(), db, m); err != nil {
		t.Fatalf("apply delete: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "SiteTree_Localised"`).Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 2 {
		t.Fatalf("rows = %d, want 2", count)
	}
}

// A write under one locale must never touch rows under another locale.
func TestWriteLocaleIsolation(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	createLocalisedTables(t, db)
	rewriter := newTestRewriter(t)
	var exec Executor

	seedCtx := localectx.With(context.Background(), "en_US")
	seeded, err := rewriter.Rewrite(seedCtx, Manipulation{
		"SiteTree": TableWrite{Command: CommandUpdate, RecordID: 1, Fields: map[string]any{"Title": "Home"}},
	}, siteTreeType(), schema.StageDraft)
	if err != nil {
		t.Fatalf("rewrite en: %v", err)
	}
	delete(seeded, "SiteTree")
	if err := exec.Apply(context.Background(), db, seeded); err != nil {
		t.Fatalf("apply en: %v", err)
	}

	frCtx := localectx.With(context.Background(), "fr_FR")
	rewritten, err := rewriter.Rewrite(frCtx, Manipulation{
		"SiteTree": TableWrite{Command: CommandUpdate, RecordID: 1, Fields: map[string]any{"Title": "Accueil"}},
	}, siteTreeType(), schema.StageDraft)
	if err != nil {
		t.Fatalf("rewrite fr: %v", err)
	}
	delete(rewritten, "SiteTree")
	if err := exec.Apply(context.Background(), db, rewritten); err != nil {
		t.Fatalf("apply fr: %v", err)
	}

	var title string
	if err := db.QueryRow(`SELECT "Title" FROM "SiteTree_Localised" WHERE "RecordID" = 1 AND "Locale" = 'en_US'`).Scan(&title); err != nil {
		t.Fatalf("scan en row: %v", err)
	}
	if title != "Home" {
		t.Fatalf("en title = %q, want Home", title)
	}
}
