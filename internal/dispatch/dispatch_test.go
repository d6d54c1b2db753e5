package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openspot/exchange/internal/exchange"
)

type fakeMatcher struct {
	mu      sync.Mutex
	matched []int
}

func (f *fakeMatcher) TryMatch(ctx context.Context, orderID int) (exchange.MatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matched = append(f.matched, orderID)
	return exchange.MatchOutcome{Result: exchange.NoCounterOrder}, nil
}

func (f *fakeMatcher) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.matched...)
}

func TestLocalDispatcherDelivers(t *testing.T) {
	matcher := &fakeMatcher{}
	local := NewLocal(matcher, 2, nil)
	defer local.Close()

	for _, id := range []int{1, 2, 3} {
		if err := local.EnqueueMatch(context.Background(), id); err != nil {
			t.Fatalf("EnqueueMatch failed: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		if len(matcher.seen()) == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 3 match attempts, saw %v", matcher.seen())
		case <-time.After(10 * time.Millisecond):
		}
	}

	got := map[int]bool{}
	for _, id := range matcher.seen() {
		got[id] = true
	}
	for _, id := range []int{1, 2, 3} {
		if !got[id] {
			t.Errorf("order %d never dispatched", id)
		}
	}
}

func TestLocalDispatcherEnqueueAfterCancel(t *testing.T) {
	matcher := &fakeMatcher{}
	local := NewLocal(matcher, 1, nil)
	defer local.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled caller context surfaces instead of blocking on a full
	// queue.
	for i := 0; i < 2000; i++ {
		if err := local.EnqueueMatch(ctx, i); err != nil {
			return
		}
	}
	t.Error("expected enqueue to fail once the context is cancelled")
}

// failingMatcher errors for the first `failures` calls, then succeeds.
type failingMatcher struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *failingMatcher) TryMatch(ctx context.Context, orderID int) (exchange.MatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return exchange.MatchOutcome{}, errors.New("database unavailable")
	}
	return exchange.MatchOutcome{Result: exchange.NoCounterOrder}, nil
}

func (f *failingMatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRequeuer struct {
	mu  sync.Mutex
	err error
	ids []int
}

func (f *fakeRequeuer) EnqueueMatch(ctx context.Context, orderID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, orderID)
	return nil
}

func (f *fakeRequeuer) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.ids...)
}

func TestConsumerTaskRetriesInPlace(t *testing.T) {
	matcher := &failingMatcher{failures: 2}
	requeuer := &fakeRequeuer{}
	consumer := NewKafkaConsumer(nil, "match-orders", "g", 1, matcher, requeuer, nil)

	if ok := consumer.processTask(context.Background(), 7); !ok {
		t.Fatal("expected task to finish after transient failures")
	}
	if got := matcher.callCount(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if got := requeuer.seen(); len(got) != 0 {
		t.Errorf("task re-queued despite eventual success: %v", got)
	}
}

// A task whose retries run out goes back onto the topic so the offset
// can advance without the task being lost.
func TestConsumerTaskRequeuedAfterRetryExhaustion(t *testing.T) {
	matcher := &failingMatcher{failures: 1000}
	requeuer := &fakeRequeuer{}
	consumer := NewKafkaConsumer(nil, "match-orders", "g", 1, matcher, requeuer, nil)

	if ok := consumer.processTask(context.Background(), 42); !ok {
		t.Fatal("expected offset to advance once the task is re-queued")
	}
	if got := requeuer.seen(); len(got) != 1 || got[0] != 42 {
		t.Errorf("expected order 42 re-queued, got %v", got)
	}
}

// Without a place to put the failed task, the offset must not advance.
func TestConsumerTaskHoldsOffsetWhenRequeueImpossible(t *testing.T) {
	tests := []struct {
		name     string
		requeuer exchange.MatchDispatcher
	}{
		{name: "NoRequeuer", requeuer: nil},
		{name: "RequeueFails", requeuer: &fakeRequeuer{err: errors.New("broker unreachable")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := &failingMatcher{failures: 1000}
			consumer := NewKafkaConsumer(nil, "match-orders", "g", 1, matcher, tt.requeuer, nil)
			if ok := consumer.processTask(context.Background(), 42); ok {
				t.Error("expected processTask to refuse advancing past the failed task")
			}
		})
	}
}
