package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dtorcivia/calmerge/internal/calendars"
)

type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    map[string]int
	err      error
}

func (s *flakyStore) MarkAccountExpired(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[id]++
	if s.err != nil {
		return s.err
	}
	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	return nil
}

func TestExpiryQueueRetries(t *testing.T) {
	store := &flakyStore{failures: 2}
	q := NewExpiryQueue(store, []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond})

	var expired []string
	q.OnExpire(func(_ context.Context, id string) { expired = append(expired, id) })

	q.Enqueue("acc-1")
	q.Start(context.Background())
	q.Stop()

	assert.Equal(t, 3, store.calls["acc-1"])
	assert.Equal(t, []string{"acc-1"}, expired)
}

func TestExpiryQueueGivesUp(t *testing.T) {
	store := &flakyStore{err: errors.New("disk full")}
	q := NewExpiryQueue(store, []time.Duration{time.Millisecond})

	called := false
	q.OnExpire(func(context.Context, string) { called = true })

	q.Enqueue("acc-1")
	q.Start(context.Background())
	q.Stop()

	assert.Equal(t, 2, store.calls["acc-1"])
	assert.False(t, called)
}

func TestExpiryQueueStopsOnMissingAccount(t *testing.T) {
	store := &flakyStore{err: calendars.ErrNotFound}
	q := NewExpiryQueue(store, nil)

	q.Enqueue("gone")
	q.Start(context.Background())
	q.Stop()

	assert.Equal(t, 1, store.calls["gone"])
}

func TestExpiryQueueDedupesPending(t *testing.T) {
	store := &flakyStore{}
	q := NewExpiryQueue(store, nil)

	q.Enqueue("acc-1")
	q.Enqueue("acc-1")
	q.Enqueue("acc-2")
	assert.Equal(t, 2, q.Pending())

	q.Start(context.Background())
	q.Stop()

	assert.Equal(t, 1, store.calls["acc-1"])
	assert.Equal(t, 1, store.calls["acc-2"])
	assert.Equal(t, 0, q.Pending())
}
