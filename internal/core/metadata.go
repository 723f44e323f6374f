package core

// Metadata is the connection's live triple of (generation, partition map,
// schema), kept behind the Connection's mutex (spec.md §4.1). The schema
// field is a shared, immutable reference: taking it is a pointer copy, not
// a deep copy, which is what makes current_schema cheap.
type Metadata struct {
	Generation   uint64
	PartitionMap PartitionMap
	Schema       *Schema
}

// SchemaSnapshot is a cheap, indefinitely-valid handle to the schema as it
// stood at the moment it was taken. Later commits never mutate the Schema
// this snapshot points to (spec.md §4.1, §8 item 4); they install a new
// Schema value, leaving old snapshots untouched.
type SchemaSnapshot struct {
	schema *Schema
}

// NewSchemaSnapshot wraps schema as a SchemaSnapshot for a caller (e.g.
// internal/conn.Connection) that holds the Schema pointer under its own
// mutex discipline.
func NewSchemaSnapshot(schema *Schema) SchemaSnapshot {
	return SchemaSnapshot{schema: schema}
}

// Schema returns the underlying schema. Safe to call repeatedly; the
// returned pointer is stable for the snapshot's lifetime.
func (s SchemaSnapshot) Schema() *Schema {
	return s.schema
}
