package schema

import "testing"

func TestNamingScheme(t *testing.T) {
	t.Parallel()

	if got := LocalisedTable("SiteTree"); got != "SiteTree_Localised" {
		t.Fatalf("LocalisedTable = %q, want SiteTree_Localised", got)
	}
	if got := StageTable("SiteTree_Localised", StageLive); got != "SiteTree_Localised_Live" {
		t.Fatalf("StageTable live = %q, want SiteTree_Localised_Live", got)
	}
	if got := StageTable("SiteTree_Localised", StageDraft); got != "SiteTree_Localised" {
		t.Fatalf("StageTable draft = %q, want SiteTree_Localised", got)
	}
	if got := VersionsTable("SiteTree_Localised"); got != "SiteTree_Localised_Versions" {
		t.Fatalf("VersionsTable = %q, want SiteTree_Localised_Versions", got)
	}
	if got := LocalisedStageTable("SiteTree", StageLive); got != "SiteTree_Localised_Live" {
		t.Fatalf("LocalisedStageTable = %q, want SiteTree_Localised_Live", got)
	}
	if got := LegacyGroupTable("SiteTree"); got != "SiteTree_translationgroups" {
		t.Fatalf("LegacyGroupTable = %q, want SiteTree_translationgroups", got)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	t.Parallel()

	if got := QuoteIdentifier("SiteTree"); got != `"SiteTree"` {
		t.Fatalf("QuoteIdentifier = %q", got)
	}
	if got := QuoteIdentifier(`bad"name`); got != `"bad""name"` {
		t.Fatalf("QuoteIdentifier escaped = %q", got)
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	rt := RecordType{
		BaseTable: "SiteTree",
		Versioned: true,
		LocalizedFields: map[string][]string{
			"SiteTree": {"Title", "Content"},
		},
	}
	if err := reg.Register(rt); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := reg.Lookup("SiteTree")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if !got.Localized() {
		t.Fatal("expected type to be localized")
	}
	if err := reg.Register(rt); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistryRequiresBaseTable(t *testing.T) {
	t.Parallel()

	if err := NewRegistry().Register(RecordType{}); err == nil {
		t.Fatal("expected base table error")
	}
}

func TestRegistryAllPreservesOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	for _, base := range []string{"SiteTree", "BlogPost", "Product"} {
		if err := reg.Register(RecordType{BaseTable: base}); err != nil {
			t.Fatalf("register %s: %v", base, err)
		}
	}
	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("all len = %d, want 3", len(all))
	}
	if all[0].BaseTable != "SiteTree" || all[2].BaseTable != "Product" {
		t.Fatalf("registration order not preserved: %v", all)
	}
}

func TestLocalizedTablesSorted(t *testing.T) {
	t.Parallel()

	rt := RecordType{
		BaseTable: "Page",
		LocalizedFields: map[string][]string{
			"Page":     {"Summary"},
			"SiteTree": {"Title"},
		},
	}
	tables := rt.LocalizedTables()
	if len(tables) != 2 || tables[0] != "Page" || tables[1] != "SiteTree" {
		t.Fatalf("localized tables = %v, want [Page SiteTree]", tables)
	}
}
