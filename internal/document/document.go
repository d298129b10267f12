// Package document defines the generic field-name-to-text record the engine
// indexes, stores and returns.
package document

import (
	"fmt"
	"strings"
)

// DocID identifies a document across every segment of an index. IDs are
// assigned by the index on add and never reused.
type DocID uint64

// Field is one named value of a Document. Stored values can be retrieved
// verbatim; indexed values are analyzed into searchable terms.
type Field struct {
	Name    string `json:"name" msgpack:"n"`
	Value   string `json:"value" msgpack:"v"`
	Stored  bool   `json:"stored" msgpack:"s"`
	Indexed bool   `json:"indexed" msgpack:"i"`
}

// Document is an ordered list of uniquely named fields.
type Document struct {
	Fields []Field `json:"fields" msgpack:"f"`
}

// New returns a document holding the given fields in order.
func New(fields ...Field) Document {
	return Document{Fields: fields}
}

// Text returns a field that is both stored and indexed.
func Text(name, value string) Field {
	return Field{Name: name, Value: value, Stored: true, Indexed: true}
}

// Get returns the value of the named field.
func (d Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Field returns the named field.
func (d Document) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Set replaces the value of the named field, appending a stored and indexed
// field when it does not exist yet.
func (d *Document) Set(name, value string) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			d.Fields[i].Value = value
			return
		}
	}
	d.Fields = append(d.Fields, Text(name, value))
}

// Names returns the field names in document order.
func (d Document) Names() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	fields := make([]Field, len(d.Fields))
	copy(fields, d.Fields)
	return Document{Fields: fields}
}

// Stored returns a copy restricted to stored fields, the form kept in
// segments.
func (d Document) Stored() Document {
	fields := make([]Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Stored {
			fields = append(fields, f)
		}
	}
	return Document{Fields: fields}
}

// Validate checks that the document has at least one field and that field
// names are non-empty and unique.
func (d Document) Validate() error {
	if len(d.Fields) == 0 {
		return fmt.Errorf("document has no fields")
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("document has a field with an empty name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Size approximates the in-memory footprint of the document in bytes.
func (d Document) Size() int64 {
	var n int64
	for _, f := range d.Fields {
		n += int64(len(f.Name) + len(f.Value) + 16)
	}
	return n
}
