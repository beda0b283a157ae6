package classifier

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Bounded caps the number of in-flight Classify calls on an inner classifier.
type Bounded struct {
	inner Classifier
	slots *semaphore.Weighted
}

// NewBounded wraps inner so that at most limit calls run at once. A limit
// of zero or less returns inner unchanged.
func NewBounded(inner Classifier, limit int64) Classifier {
	if limit <= 0 {
		return inner
	}
	return &Bounded{inner: inner, slots: semaphore.NewWeighted(limit)}
}

// Classify waits for a free slot, or for ctx to end, then delegates.
func (b *Bounded) Classify(ctx context.Context, path string) (string, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.slots.Release(1)
	return b.inner.Classify(ctx, path)
}
