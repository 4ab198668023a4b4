package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Error Kinds
	// ===========================================

	// ErrBadRequest indicates malformed or missing required input.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound indicates a referenced identifier does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates metadata field constraints were violated.
	ErrValidation = errors.New("validation failed")

	// ErrServiceUnavailable indicates the backing store is not initialized yet.
	ErrServiceUnavailable = errors.New("storage not initialized")

	// ErrStorageFailure indicates an I/O error while writing or reading chunks.
	ErrStorageFailure = errors.New("storage failure")

	// ===========================================
	// Request Errors
	// ===========================================

	// ErrNoFile indicates the upload request carried no file part.
	ErrNoFile = fmt.Errorf("%w: no file uploaded", ErrBadRequest)

	// ErrPayloadTooLarge indicates the upload exceeds the configured maximum size.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum upload size")

	// ErrMalformedID indicates an identifier is not a well-formed UUID.
	ErrMalformedID = errors.New("malformed identifier")

	// ===========================================
	// Document Errors
	// ===========================================

	// ErrDocumentNotFound indicates the requested document record does not exist.
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)

	// ErrTitleRequired indicates the title field is missing or blank.
	ErrTitleRequired = fmt.Errorf("%w: title is required", ErrValidation)

	// ErrCategoryRequired indicates the category field is missing or blank.
	ErrCategoryRequired = fmt.Errorf("%w: category is required", ErrValidation)

	// ErrNegativePrice indicates a price below zero.
	ErrNegativePrice = fmt.Errorf("%w: price must not be negative", ErrValidation)

	// ErrPriceOutOfRange indicates a price that does not fit a finite float64.
	ErrPriceOutOfRange = fmt.Errorf("%w: price is out of range", ErrValidation)

	// ErrMissingBlobReference indicates a document without a file reference.
	ErrMissingBlobReference = fmt.Errorf("%w: file reference is required", ErrValidation)

	// ===========================================
	// Blob/Storage Errors
	// ===========================================

	// ErrBlobNotFound indicates the requested blob does not exist.
	ErrBlobNotFound = fmt.Errorf("blob %w", ErrNotFound)

	// ErrChunkNotFound indicates a chunk is absent from the backend.
	ErrChunkNotFound = fmt.Errorf("chunk %w", ErrNotFound)

	// ErrChunkMissing indicates a chunk disappeared or was short while streaming a blob.
	ErrChunkMissing = fmt.Errorf("%w: chunk missing", ErrStorageFailure)

	// ErrBlobCorrupted indicates the streamed content does not match its checksum.
	ErrBlobCorrupted = fmt.Errorf("%w: blob content is corrupted", ErrStorageFailure)
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., document or blob id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// StorageError wraps an infrastructure error as a storage failure while
// keeping the cause reachable through errors.Is/errors.As.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
