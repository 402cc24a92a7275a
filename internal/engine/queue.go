package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/util"
)

// AccountExpirer persists an account's expired status.
type AccountExpirer interface {
	MarkAccountExpired(ctx context.Context, accountID string) error
}

// ExpiryQueue marks accounts expired off the request path. A single worker
// serializes the writes; failed writes are retried with backoff and pending
// work is drained on Stop.
type ExpiryQueue struct {
	ch       chan string
	store    AccountExpirer
	backoff  []time.Duration
	timeout  time.Duration
	onExpire func(ctx context.Context, accountID string)

	mu      sync.Mutex
	pending map[string]bool

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// DefaultExpiryBackoff is the wait before each retry.
var DefaultExpiryBackoff = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// NewExpiryQueue creates a queue writing through store.
func NewExpiryQueue(store AccountExpirer, backoff []time.Duration) *ExpiryQueue {
	if backoff == nil {
		backoff = DefaultExpiryBackoff
	}
	return &ExpiryQueue{
		ch:      make(chan string, 100),
		store:   store,
		backoff: backoff,
		timeout: 10 * time.Second,
		pending: make(map[string]bool),
		stopCh:  make(chan struct{}),
	}
}

// OnExpire registers a callback run after an account is marked expired.
// It must be set before Start.
func (q *ExpiryQueue) OnExpire(fn func(ctx context.Context, accountID string)) {
	q.onExpire = fn
}

// Start begins processing the queue.
func (q *ExpiryQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.worker(ctx)
	util.Info("Expiry queue started")
}

// Stop drains queued accounts and stops the worker.
func (q *ExpiryQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
		util.Info("Expiry queue stopped")
	})
}

// Enqueue schedules accountID to be marked expired. It never blocks: an
// account already pending is not queued twice, and a full queue drops the
// request, which the next failing fetch repeats.
func (q *ExpiryQueue) Enqueue(accountID string) {
	q.mu.Lock()
	if q.pending[accountID] {
		q.mu.Unlock()
		return
	}
	q.pending[accountID] = true
	q.mu.Unlock()

	select {
	case q.ch <- accountID:
		util.Debug("Account expiry enqueued", "account_id", accountID)
	default:
		q.done(accountID)
		util.Warn("Expiry queue is full, dropping request", "account_id", accountID)
	}
}

func (q *ExpiryQueue) done(accountID string) {
	q.mu.Lock()
	delete(q.pending, accountID)
	q.mu.Unlock()
}

func (q *ExpiryQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case accountID := <-q.ch:
			q.process(ctx, accountID)
		case <-q.stopCh:
			q.drain(ctx)
			return
		case <-ctx.Done():
			q.drain(context.Background())
			return
		}
	}
}

func (q *ExpiryQueue) drain(ctx context.Context) {
	for {
		select {
		case accountID := <-q.ch:
			q.process(ctx, accountID)
		default:
			return
		}
	}
}

// process writes the expiry, retrying with backoff. Once stopping, retries
// happen without waiting.
func (q *ExpiryQueue) process(ctx context.Context, accountID string) {
	defer q.done(accountID)

	for attempt := 0; ; attempt++ {
		execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		err := q.store.MarkAccountExpired(execCtx, accountID)
		cancel()
		if err == nil {
			util.Info("Account marked expired", "account_id", accountID)
			if q.onExpire != nil {
				q.onExpire(context.WithoutCancel(ctx), accountID)
			}
			return
		}
		if errors.Is(err, calendars.ErrNotFound) {
			util.Debug("Expired account no longer exists", "account_id", accountID)
			return
		}
		if attempt >= len(q.backoff) {
			util.Error("Failed to mark account expired", "account_id", accountID, "error", err, "attempts", attempt+1)
			return
		}

		util.Warn("Marking account expired failed, will retry",
			"account_id", accountID, "error", err, "retry_count", attempt)
		select {
		case <-time.After(q.backoff[attempt]):
		case <-q.stopCh:
		}
	}
}

// Pending returns the number of accounts waiting in the queue.
func (q *ExpiryQueue) Pending() int {
	return len(q.ch)
}
