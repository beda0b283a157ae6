package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBoundedLimitsConcurrentCalls(t *testing.T) {
	var inFlight, peak int32
	inner := Func(func(ctx context.Context, path string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "sea", nil
	})

	bounded := NewBounded(inner, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bounded.Classify(context.Background(), "img.jpg"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestBoundedGivesUpWhenContextEnds(t *testing.T) {
	release := make(chan struct{})
	inner := Func(func(ctx context.Context, path string) (string, error) {
		<-release
		return "street", nil
	})
	bounded := NewBounded(inner, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = bounded.Classify(context.Background(), "first.jpg")
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := bounded.Classify(ctx, "second.jpg"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(release)
	<-done
}

func TestNewBoundedWithoutLimitReturnsInner(t *testing.T) {
	inner := Func(func(ctx context.Context, path string) (string, error) { return "glacier", nil })
	if _, ok := NewBounded(inner, 0).(Func); !ok {
		t.Fatal("expected unbounded classifier to be returned as-is")
	}
}
