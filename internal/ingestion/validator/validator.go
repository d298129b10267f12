// Package validator checks ingestion requests against the record schema
// and reports every offending field at once.
package validator

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion"
)

const (
	maxValueLength = 1 << 20
	maxRecordSize  = 4 << 20
	maxKeyLength   = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks that the request carries at least one
// non-empty field, only names fields of the schema and stays within size
// limits.
func ValidateIngestRequest(req *ingestion.IngestRequest, schemaFields []string) error {
	errs := make(map[string]string)

	if len(req.Fields) == 0 {
		errs["fields"] = "at least one field is required"
	}
	total, nonEmpty := 0, 0
	for name, value := range req.Fields {
		switch {
		case !slices.Contains(schemaFields, name):
			errs[name] = "unknown field"
		case !utf8.ValidString(value):
			errs[name] = "value must be valid UTF-8"
		case len(value) > maxValueLength:
			errs[name] = fmt.Sprintf("value must be at most %d bytes", maxValueLength)
		}
		if strings.TrimSpace(value) != "" {
			nonEmpty++
		}
		total += len(value)
	}
	if len(req.Fields) > 0 && nonEmpty == 0 {
		errs["fields"] = "all fields are empty"
	}
	if total > maxRecordSize {
		errs["fields"] = fmt.Sprintf("record must be at most %d bytes", maxRecordSize)
	}
	if len(req.IdempotencyKey) > maxKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxKeyLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
