package core

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the store holds no matching record.
// It is an empty state, not a failure: callers render "nothing uploaded yet".
var ErrNotFound = errors.New("report not found")

// ParseError is returned when the source text cannot be tokenized as CSV.
type ParseError struct {
	FileName string
	Err      error
}

func (e *ParseError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("invalid csv: %v", e.Err)
	}
	return fmt.Sprintf("invalid csv %q: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StoreErrorKind classifies a StoreError.
type StoreErrorKind int

const (
	// StoreNetwork means the request never got a response.
	StoreNetwork StoreErrorKind = iota + 1
	// StoreRejected means the store answered with a non-success status.
	StoreRejected
	// StoreCorrupt means a payload could not be decoded into a report.
	StoreCorrupt
)

func (k StoreErrorKind) String() string {
	switch k {
	case StoreNetwork:
		return "network"
	case StoreRejected:
		return "rejected"
	case StoreCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// StoreError describes a failed exchange with the report store.
type StoreError struct {
	Kind   StoreErrorKind
	Op     string // persist, fetch latest, delete, deserialize
	Status int    // HTTP status for StoreRejected
	Body   string // response text for StoreRejected, if any
	Field  string // missing field for StoreCorrupt, if known
	Err    error
}

func (e *StoreError) Error() string {
	switch e.Kind {
	case StoreRejected:
		if e.Body != "" {
			return fmt.Sprintf("store %s rejected: status %d: %s", e.Op, e.Status, e.Body)
		}
		return fmt.Sprintf("store %s rejected: status %d", e.Op, e.Status)
	case StoreCorrupt:
		if e.Field != "" {
			return fmt.Sprintf("store %s corrupt payload: missing %q array", e.Op, e.Field)
		}
		return fmt.Sprintf("store %s corrupt payload: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("store %s network failure: %v", e.Op, e.Err)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreKind reports whether err is a StoreError of the given kind.
func IsStoreKind(err error, kind StoreErrorKind) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == kind
}
