package classifier

import (
	"context"
	"errors"
)

// Classifier labels the image stored at path.
type Classifier interface {
	Classify(ctx context.Context, path string) (string, error)
}

// Func adapts an ordinary function to the Classifier interface.
type Func func(ctx context.Context, path string) (string, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// InferenceError reports a failure signalled by the classifier itself, as
// opposed to a failure to reach or start it.
type InferenceError struct {
	Message string
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return e.Message
}

// IsInferenceError reports whether err carries an InferenceError.
func IsInferenceError(err error) bool {
	var infErr *InferenceError
	return errors.As(err, &infErr)
}
