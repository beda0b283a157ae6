package logging

import (
	"errors"
	"fmt"
)

// OperationError annotates an error with the pipeline stage and request it belongs to.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation and request that produced it.
// A nil err yields nil so callers can wrap unconditionally.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// Cause strips every OperationError layer and returns the error underneath.
func Cause(err error) error {
	for err != nil {
		var opErr *OperationError
		if !errors.As(err, &opErr) || opErr.Err == nil {
			return err
		}
		err = opErr.Err
	}
	return err
}
