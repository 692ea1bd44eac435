// Package write rewrites generic record write manipulations so localized
// columns land in the correct locale- and stage-suffixed physical tables,
// and applies manipulations to SQL storage.
package write

// Command is the write variant targeted at one table.
type Command string

const (
	// CommandInsert appends a row; used for immutable version rows.
	CommandInsert Command = "insert"
	// CommandUpdate updates the row addressed by the key columns.
	CommandUpdate Command = "update"
	// CommandUpsert inserts or replaces the row addressed by the key columns.
	CommandUpsert Command = "upsert"
	// CommandDelete removes the row addressed by the key columns.
	CommandDelete Command = "delete"
)

// TableWrite is one table's slice of a record write. For localized targets
// Locale is set and the row key is (RecordID, Locale), plus Version for
// version-tier appends. For base targets Locale is empty and RecordID
// addresses the ID column.
type TableWrite struct {
	Command  Command
	RecordID int64
	Locale   string
	Version  int64
	Fields   map[string]any
}

// Manipulation maps physical table names onto their writes for one record.
type Manipulation map[string]TableWrite

// Clone returns a deep copy of the manipulation.
func (m Manipulation) Clone() Manipulation {
	out := make(Manipulation, len(m))
	for table, tw := range m {
		fields := make(map[string]any, len(tw.Fields))
		for column, value := range tw.Fields {
			fields[column] = value
		}
		tw.Fields = fields
		out[table] = tw
	}
	return out
}
