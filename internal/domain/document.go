package domain

import "time"

// FieldIndexedAt is the system field recording when a document was submitted
// to the backend. It is attached immediately before submission.
const FieldIndexedAt = "indexed_at"

// Field is one uniquely keyed value on an index document.
type Field struct {
	Key         string
	Value       any
	Retrievable bool
	Filterable  bool
}

// IndexDocument is an index-ready document: an id plus an ordered set of
// uniquely keyed fields. Documents are ephemeral; they are built just in time
// per processing round and discarded after submission.
type IndexDocument struct {
	ID     string
	Fields []Field
}

// NewIndexDocument returns a document carrying only the given id.
func NewIndexDocument(id string) *IndexDocument {
	return &IndexDocument{ID: id}
}

// SetField upserts a field by key. An existing field keeps its position.
func (d *IndexDocument) SetField(f Field) {
	for i := range d.Fields {
		if d.Fields[i].Key == f.Key {
			d.Fields[i] = f
			return
		}
	}
	d.Fields = append(d.Fields, f)
}

// Field returns the field with the given key, if present.
func (d *IndexDocument) Field(key string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Merge folds other's fields into d: field union by key, other wins on
// conflict.
func (d *IndexDocument) Merge(other *IndexDocument) {
	if other == nil {
		return
	}
	for _, f := range other.Fields {
		d.SetField(f)
	}
}

// StampIndexedAt attaches the indexation timestamp system field.
func (d *IndexDocument) StampIndexedAt(t time.Time) {
	d.SetField(Field{
		Key:         FieldIndexedAt,
		Value:       t.UTC().Format(time.RFC3339Nano),
		Retrievable: true,
		Filterable:  true,
	})
}
