package storage

import (
	"errors"
	"fmt"

	"github.com/roach88/nbstore/internal/space"
)

// ErrorCode categorizes storage errors.
type ErrorCode string

const (
	// ErrCodeContextUnavailable indicates the native backend cannot be
	// reached from the calling context.
	ErrCodeContextUnavailable ErrorCode = "CONTEXT_UNAVAILABLE"

	// ErrCodeConfiguration indicates a storage kind was requested that is
	// not registered for the space.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeMergeFailure indicates the merge function rejected an update.
	// The previously stored state is unchanged.
	ErrCodeMergeFailure ErrorCode = "MERGE_FAILURE"
)

// Error is a storage failure with a stable code that survives the IPC boundary.
type Error struct {
	Code    ErrorCode
	Message string
	Space   space.Key
	Storage space.StorageType
	DocID   string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Space.ID != "" {
		msg += fmt.Sprintf(" (space=%s", e.Space)
		if e.Storage != "" {
			msg += fmt.Sprintf(", storage=%s", e.Storage)
		}
		if e.DocID != "" {
			msg += fmt.Sprintf(", doc=%s", e.DocID)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewContextUnavailable reports that the backend is absent.
func NewContextUnavailable(key space.Key, kind space.StorageType) *Error {
	return &Error{
		Code:    ErrCodeContextUnavailable,
		Message: "native backend is not available in this context",
		Space:   key,
		Storage: kind,
	}
}

// NewConfigurationError reports an unregistered storage kind.
func NewConfigurationError(key space.Key, kind space.StorageType) *Error {
	return &Error{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf("storage %q is not registered", kind),
		Space:   key,
		Storage: kind,
	}
}

// NewMergeFailure reports a rejected update.
func NewMergeFailure(key space.Key, docID string, err error) *Error {
	return &Error{
		Code:    ErrCodeMergeFailure,
		Message: "update could not be merged",
		Space:   key,
		Storage: space.StorageDoc,
		DocID:   docID,
		Err:     err,
	}
}

// CodeOf returns the code of a storage error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsContextUnavailable reports whether err is a CONTEXT_UNAVAILABLE error.
func IsContextUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeContextUnavailable
}

// IsConfigurationError reports whether err is a CONFIGURATION error.
func IsConfigurationError(err error) bool {
	return CodeOf(err) == ErrCodeConfiguration
}

// IsMergeFailure reports whether err is a MERGE_FAILURE error.
func IsMergeFailure(err error) bool {
	return CodeOf(err) == ErrCodeMergeFailure
}
