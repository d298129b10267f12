// Package errors defines the sentinel errors shared by the engine and the
// typed errors that carry extra context for each failure kind. Callers match
// with errors.Is against the sentinels; HTTP layers map them to status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMapping            = errors.New("record mapping failed")
	ErrIndexWrite         = errors.New("index write failed")
	ErrQueryParse         = errors.New("query parse error")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrWriterHalted       = errors.New("index writer halted")
	ErrClosed             = errors.New("index closed")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")

	ErrIdempotencyConflict = errors.New("idempotency conflict")

	// ErrMergeFailed marks a flush that committed but whose follow-up merge
	// did not. The flushed documents are durable.
	ErrMergeFailed = errors.New("merge after flush failed")
)

// MappingError reports a record/document conversion mismatch on one field.
type MappingError struct {
	Field string
	Value string
	Err   error
}

func (e *MappingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mapping field %q (value %q): %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("mapping field %q: missing from document", e.Field)
}

func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// IndexWriteError reports a rejected add, flush or merge.
type IndexWriteError struct {
	Op  string
	Err error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexWriteError) Is(target error) bool {
	return target == ErrIndexWrite
}

func (e *IndexWriteError) Unwrap() error {
	return e.Err
}

// QueryParseError reports malformed keyword syntax. Pos is the byte offset in
// the keyword string where parsing failed.
type QueryParseError struct {
	Query   string
	Pos     int
	Message string
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("parsing query %q at offset %d: %s", e.Query, e.Pos, e.Message)
}

func (e *QueryParseError) Is(target error) bool {
	return target == ErrQueryParse
}

// StorageError wraps a failure of the storage collaborator.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrQueryParse), errors.Is(err, ErrMapping):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrTimeout),
		errors.Is(err, ErrWriterHalted), errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrIndexWrite):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
