package engine

import (
	"errors"
	"fmt"
	"strings"
)

// FiringErrorCode categorizes firing failures.
type FiringErrorCode string

const (
	// ErrCodeRead indicates source or destination data could not be read.
	ErrCodeRead FiringErrorCode = "READ_FAILED"

	// ErrCodeCondition indicates the trigger condition could not be evaluated.
	ErrCodeCondition FiringErrorCode = "CONDITION_FAILED"

	// ErrCodeUnknownEvent indicates the destination event could not be resolved.
	ErrCodeUnknownEvent FiringErrorCode = "UNKNOWN_EVENT"

	// ErrCodeLookup indicates the destination record could not be resolved.
	ErrCodeLookup FiringErrorCode = "LOOKUP_FAILED"

	// ErrCodeWrite indicates the destination write failed.
	ErrCodeWrite FiringErrorCode = "WRITE_FAILED"

	// ErrCodeFileTransfer indicates a file copy or delete failed.
	ErrCodeFileTransfer FiringErrorCode = "FILE_TRANSFER_FAILED"

	// ErrCodeWriteBack indicates the reserved record id could not be
	// written back to the source record.
	ErrCodeWriteBack FiringErrorCode = "WRITE_BACK_FAILED"
)

// FiringError is a failed firing of one instruction.
type FiringError struct {
	Code     FiringErrorCode
	Message  string
	Sequence int
	Record   string
	Err      error
}

// Error implements the error interface.
func (e *FiringError) Error() string {
	msg := fmt.Sprintf("%s: %s (instruction=%d, record=%s)", e.Code, e.Message, e.Sequence, e.Record)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FiringError) Unwrap() error { return e.Err }

// LookupErrorCode categorizes destination record resolution failures.
type LookupErrorCode string

const (
	// EmptyLookup indicates a match-or-create lookup value is empty.
	EmptyLookup LookupErrorCode = "EMPTY_LOOKUP"

	// AmbiguousLookup indicates a secondary-key lookup matched more than
	// one destination record.
	AmbiguousLookup LookupErrorCode = "AMBIGUOUS_LOOKUP"
)

// LookupError is a destination record that could not be resolved.
type LookupError struct {
	Code    LookupErrorCode
	Field   string
	Value   string
	Matches []string
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	switch e.Code {
	case EmptyLookup:
		return fmt.Sprintf("%s: lookup field %s is empty", e.Code, e.Field)
	case AmbiguousLookup:
		return fmt.Sprintf("%s: %s=%q matches records %s", e.Code, e.Field, e.Value, strings.Join(e.Matches, ","))
	default:
		return fmt.Sprintf("%s: %s=%q", e.Code, e.Field, e.Value)
	}
}

// IsLookupError reports whether err is a destination record resolution
// failure. Uses errors.As to handle wrapped errors.
func IsLookupError(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}

// IsAmbiguousLookup reports whether err is a secondary-key lookup with
// more than one match.
func IsAmbiguousLookup(err error) bool {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Code == AmbiguousLookup
	}
	return false
}

// IsFiringError reports whether err is a firing failure with code.
func IsFiringError(err error, code FiringErrorCode) bool {
	var fe *FiringError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

func newFiringError(code FiringErrorCode, seq int, record, msg string, err error) *FiringError {
	return &FiringError{Code: code, Message: msg, Sequence: seq, Record: record, Err: err}
}
