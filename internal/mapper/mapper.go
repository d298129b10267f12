// Package mapper converts typed records to and from generic documents.
// A Schema lists, once per record type, how each field is read from and
// written back to the record, so no reflection happens per call.
package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

// Kind describes how a field's text is interpreted when sorting.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
)

func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

// FieldSpec binds one document field to accessors on T.
type FieldSpec[T any] struct {
	Name string
	Kind Kind
	// Get renders the record value as text.
	Get func(*T) string
	// Set parses text back into the record.
	Set func(*T, string) error
	// Unstored fields are searchable but not returned; Unindexed fields are
	// returned but not searchable.
	Unstored  bool
	Unindexed bool
}

// Text is a FieldSpec for a string-valued field.
func Text[T any](name string, get func(*T) string, set func(*T, string)) FieldSpec[T] {
	return FieldSpec[T]{
		Name: name,
		Kind: KindText,
		Get:  get,
		Set: func(r *T, v string) error {
			set(r, v)
			return nil
		},
	}
}

// Int is a FieldSpec for an integer field. An empty value maps to zero.
func Int[T any](name string, get func(*T) int64, set func(*T, int64)) FieldSpec[T] {
	return FieldSpec[T]{
		Name: name,
		Kind: KindNumeric,
		Get:  func(r *T) string { return strconv.FormatInt(get(r), 10) },
		Set: func(r *T, v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				set(r, 0)
				return nil
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			set(r, n)
			return nil
		},
	}
}

// Float is a FieldSpec for a floating point field. An empty value maps to
// zero.
func Float[T any](name string, get func(*T) float64, set func(*T, float64)) FieldSpec[T] {
	return FieldSpec[T]{
		Name: name,
		Kind: KindNumeric,
		Get:  func(r *T) string { return strconv.FormatFloat(get(r), 'g', -1, 64) },
		Set: func(r *T, v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				set(r, 0)
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			set(r, f)
			return nil
		},
	}
}

// Schema is the complete field list of a record type.
type Schema[T any] struct {
	fields []FieldSpec[T]
	byName map[string]int
}

// NewSchema validates the field list: names must be unique and non-empty,
// and every field needs both accessors.
func NewSchema[T any](fields ...FieldSpec[T]) (*Schema[T], error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: schema has no fields", apperrors.ErrInvalidInput)
	}
	s := &Schema[T]{fields: fields, byName: make(map[string]int, len(fields))}
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("%w: field %d has no name", apperrors.ErrInvalidInput, i)
		}
		if f.Get == nil || f.Set == nil {
			return nil, fmt.Errorf("%w: field %q lacks an accessor", apperrors.ErrInvalidInput, f.Name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", apperrors.ErrInvalidInput, f.Name)
		}
		s.byName[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema for package-level declarations.
func MustSchema[T any](fields ...FieldSpec[T]) *Schema[T] {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the field names in declaration order.
func (s *Schema[T]) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Kind reports the kind of the named field.
func (s *Schema[T]) Kind(name string) (Kind, bool) {
	i, ok := s.byName[name]
	if !ok {
		return KindText, false
	}
	return s.fields[i].Kind, true
}

// ToDocument renders every declared field. Values are trimmed.
func (s *Schema[T]) ToDocument(record *T) document.Document {
	fields := make([]document.Field, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, document.Field{
			Name:    f.Name,
			Value:   strings.TrimSpace(f.Get(record)),
			Stored:  !f.Unstored,
			Indexed: !f.Unindexed,
		})
	}
	return document.New(fields...)
}

// FromDocument rebuilds a record. Every stored field of the schema must be
// present in doc; extra document fields are ignored.
func (s *Schema[T]) FromDocument(doc document.Document) (T, error) {
	var record T
	for _, f := range s.fields {
		if f.Unstored {
			continue
		}
		v, ok := doc.Get(f.Name)
		if !ok {
			return record, &apperrors.MappingError{Field: f.Name}
		}
		if err := f.Set(&record, v); err != nil {
			return record, &apperrors.MappingError{Field: f.Name, Value: v, Err: err}
		}
	}
	return record, nil
}

// FromMap rebuilds a record from plain field values, as carried by ingest
// events.
func (s *Schema[T]) FromMap(values map[string]string) (T, error) {
	doc := document.Document{}
	for _, f := range s.fields {
		if v, ok := values[f.Name]; ok {
			doc.Set(f.Name, v)
		}
	}
	return s.FromDocument(doc)
}
