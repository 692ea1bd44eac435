// Package schema declares localizable record types and the physical table
// naming scheme that splits each logical record across locale- and
// stage-suffixed storage.
package schema

import "strings"

// Stage identifies the lifecycle storage tier of a record.
type Stage string

const (
	// StageDraft is the unsuffixed draft tier.
	StageDraft Stage = "Stage"
	// StageLive is the published tier, stored under a _Live suffix.
	StageLive Stage = "Live"
)

const (
	localisedSuffix   = "_Localised"
	liveSuffix        = "_Live"
	versionsSuffix    = "_Versions"
	legacyGroupSuffix = "_translationgroups"
)

// Well-known column names shared by all localized physical tables.
const (
	ColID       = "ID"
	ColRecordID = "RecordID"
	ColLocale   = "Locale"
	ColVersion  = "Version"
)

// LocalisedTable returns the localized-fields table name for a base table.
func LocalisedTable(base string) string {
	return base + localisedSuffix
}

// StageTable maps a table name onto its storage for the given stage. Draft
// storage is unsuffixed.
func StageTable(name string, stage Stage) string {
	if stage == StageLive {
		return name + liveSuffix
	}
	return name
}

// VersionsTable returns the immutable version-history table for a table.
func VersionsTable(name string) string {
	return name + versionsSuffix
}

// LocalisedStageTable returns the localized table for a base table at a stage.
func LocalisedStageTable(base string, stage Stage) string {
	return StageTable(LocalisedTable(base), stage)
}

// LegacyGroupTable returns the pre-migration translation-group mapping table
// for a base table.
func LegacyGroupTable(base string) string {
	return base + legacyGroupSuffix
}

// QuoteIdentifier escapes a table or column name for SQL. It is the single
// quoting boundary: every serialized identifier must pass through here.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
