// Package dispatch delivers asynchronous matching attempts. Delivery is
// at-least-once in every implementation: the matching engine's open-state
// re-check makes replays harmless.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openspot/exchange/internal/exchange"
)

// Matcher is the unit of work a dispatched attempt invokes.
type Matcher interface {
	TryMatch(ctx context.Context, orderID int) (exchange.MatchOutcome, error)
}

// Local is an in-process dispatcher backed by a buffered channel and a
// worker pool. It serves dev mode and tests; production uses Kafka.
type Local struct {
	matcher Matcher
	logger  *slog.Logger
	queue   chan int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewLocal creates a local dispatcher with the given worker count.
func NewLocal(matcher Matcher, workers int, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		matcher: matcher,
		logger:  logger,
		queue:   make(chan int, 1024),
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.run(ctx)
	}
	return l
}

// EnqueueMatch queues a matching attempt for the order.
func (l *Local) EnqueueMatch(ctx context.Context, orderID int) error {
	select {
	case l.queue <- orderID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case orderID := <-l.queue:
			outcome, err := l.matcher.TryMatch(ctx, orderID)
			if err != nil {
				l.logger.Error("match attempt failed", "order_id", orderID, "error", err)
				continue
			}
			l.logger.Info("match attempt finished",
				"order_id", orderID, "result", outcome.Result.String())
		}
	}
}

// Close stops the workers. Queued attempts not yet picked up are dropped,
// so Close is for shutdown only.
func (l *Local) Close() error {
	l.cancel()
	l.wg.Wait()
	return nil
}
