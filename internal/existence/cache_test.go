package existence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/oddnoc/silverstripe-fluent/internal/locale"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
	_ "modernc.org/sqlite"
)

func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluent.db")
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	for _, table := range []string{"SiteTree_Localised", "SiteTree_Localised_Live"} {
		if _, err := db.Exec(`CREATE TABLE "` + table + `" (
			"RecordID" INTEGER NOT NULL,
			"Locale" TEXT NOT NULL,
			"Title" TEXT,
			PRIMARY KEY ("RecordID", "Locale")
		)`); err != nil {
			t.Fatalf("create %s: %v", table, err)
		}
	}
	return db
}

func seedRow(t *testing.T, db *sql.DB, table string, id int64, localeCode string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO "`+table+`" ("RecordID", "Locale", "Title") VALUES (?, ?, 'x')`, id, localeCode); err != nil {
		t.Fatalf("seed %s: %v", table, err)
	}
}

func testLocales(t *testing.T) *locale.Registry {
	t.Helper()
	reg, err := locale.NewRegistry([]locale.Definition{
		{Code: "en_US", IsDefault: true},
		{Code: "fr_FR", Fallbacks: []string{"en_US"}},
	})
	if err != nil {
		t.Fatalf("new locale registry: %v", err)
	}
	return reg
}

func siteTreeType() schema.RecordType {
	return schema.RecordType{
		BaseTable:       "SiteTree",
		LocalizedFields: map[string][]string{"SiteTree": {"Title"}},
	}
}

func newTestCache(t *testing.T, db *sql.DB) *Cache {
	t.Helper()
	cache, err := NewCache(db, testLocales(t))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache
}

func TestIsInStagePerTier(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	seedRow(t, db, "SiteTree_Localised", 1, "fr_FR")
	seedRow(t, db, "SiteTree_Localised_Live", 2, "fr_FR")
	cache := newTestCache(t, db)
	ctx := context.Background()

	drafted, err := cache.IsDraftedInLocale(ctx, siteTreeType(), 1, "fr_FR")
	if err != nil {
		t.Fatalf("is drafted: %v", err)
	}
	if !drafted {
		t.Fatal("expected record 1 drafted in fr_FR")
	}

	published, err := cache.IsPublishedInLocale(ctx, siteTreeType(), 1, "fr_FR")
	if err != nil {
		t.Fatalf("is published: %v", err)
	}
	if published {
		t.Fatal("record 1 should not be published")
	}

	exists, err := cache.ExistsInLocale(ctx, siteTreeType(), 2, "fr_FR")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected record 2 to exist via live tier")
	}

	exists, err = cache.ExistsInLocale(ctx, siteTreeType(), 3, "fr_FR")
	if err != nil {
		t.Fatalf("exists missing: %v", err)
	}
	if exists {
		t.Fatal("record 3 should not exist")
	}
}

func TestMemoAvoidsRequery(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	seedRow(t, db, "SiteTree_Localised", 1, "en_US")
	cache := newTestCache(t, db)
	ctx := context.Background()

	if _, err := cache.IsDraftedInLocale(ctx, siteTreeType(), 1, "en_US"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}

	// Row removed under the cache: the memoized answer must survive.
	if _, err := db.Exec(`DELETE FROM "SiteTree_Localised"`); err != nil {
		t.Fatalf("delete: %v", err)
	}
	drafted, err := cache.IsDraftedInLocale(ctx, siteTreeType(), 1, "en_US")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if !drafted {
		t.Fatal("expected memoized true")
	}
}

func TestFlushCausesRequery(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	seedRow(t, db, "SiteTree_Localised_Live", 1, "en_US")
	cache := newTestCache(t, db)
	ctx := context.Background()

	published, err := cache.IsPublishedInLocale(ctx, siteTreeType(), 1, "en_US")
	if err != nil || !published {
		t.Fatalf("initial lookup = (%v, %v), want (true, nil)", published, err)
	}

	if _, err := db.Exec(`DELETE FROM "SiteTree_Localised_Live"`); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cache.Flush()

	published, err = cache.IsPublishedInLocale(ctx, siteTreeType(), 1, "en_US")
	if err != nil {
		t.Fatalf("post-flush lookup: %v", err)
	}
	if published {
		t.Fatal("expected requery to observe deletion after flush")
	}
}

func TestPrepopulateTreatsMissAsFalse(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	seedRow(t, db, "SiteTree_Localised", 1, "en_US")
	seedRow(t, db, "SiteTree_Localised", 2, "en_US")
	cache := newTestCache(t, db)
	ctx := context.Background()

	if err := cache.Prepopulate(ctx, siteTreeType(), "en_US", schema.StageDraft); err != nil {
		t.Fatalf("prepopulate: %v", err)
	}

	// A row inserted after prepopulation is invisible until Flush: within a
	// prepopulated set, a miss is a confirmed false, not a query.
	seedRow(t, db, "SiteTree_Localised", 3, "en_US")

	drafted, err := cache.IsDraftedInLocale(ctx, siteTreeType(), 2, "en_US")
	if err != nil || !drafted {
		t.Fatalf("prepopulated hit = (%v, %v), want (true, nil)", drafted, err)
	}
	drafted, err = cache.IsDraftedInLocale(ctx, siteTreeType(), 3, "en_US")
	if err != nil {
		t.Fatalf("prepopulated miss: %v", err)
	}
	if drafted {
		t.Fatal("expected confirmed false inside prepopulated set")
	}

	cache.Flush()
	drafted, err = cache.IsDraftedInLocale(ctx, siteTreeType(), 3, "en_US")
	if err != nil || !drafted {
		t.Fatalf("post-flush lookup = (%v, %v), want (true, nil)", drafted, err)
	}
}

func TestUnconfiguredLocaleFails(t *testing.T) {
	t.Parallel()

	db := openTempDB(t)
	cache := newTestCache(t, db)
	if _, err := cache.IsDraftedInLocale(context.Background(), siteTreeType(), 1, "es_ES"); err == nil {
		t.Fatal("expected unconfigured locale error")
	}
}
