package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/util"
)

type fakeProvider struct {
	mu       sync.Mutex
	calls    []string
	events   map[string][]events.Event
	errs     map[string]error
	expanded bool
}

func (p *fakeProvider) FetchEvents(_ context.Context, cal calendars.VisibleCalendar, _ Window) (Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, cal.Calendar.ID)
	p.mu.Unlock()
	if err := p.errs[cal.Calendar.ID]; err != nil {
		return Result{}, err
	}
	return Result{Events: p.events[cal.Calendar.ID], PreExpanded: p.expanded}, nil
}

type recordingExpirer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingExpirer) Enqueue(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func visible(accountID, calendarID string) calendars.VisibleCalendar {
	return calendars.VisibleCalendar{
		Account: database.Account{
			ID:         accountID,
			Backend:    database.BackendUnified,
			ExternalID: "ext-" + accountID,
			Status:     database.AccountStatusActive,
		},
		Calendar: database.Calendar{
			ID:         calendarID,
			AccountID:  accountID,
			ExternalID: "ext-" + calendarID,
			Color:      "#00ff00",
		},
	}
}

func quietLogger() *util.Logger {
	l := util.NewLogger("debug", "json")
	l.SetOutput(io.Discard)
	return l
}

func window() Window {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func TestFetch_TagsEventsPerCalendar(t *testing.T) {
	provider := &fakeProvider{
		expanded: true,
		events: map[string][]events.Event{
			"c1": {{ID: "e1"}, {ID: "e2"}},
			"c2": {{ID: "e3"}},
		},
	}
	mux := NewMux()
	mux.Register(database.BackendUnified, provider)
	gw := New(mux, nil, quietLogger())

	batches := gw.Fetch(context.Background(), []calendars.VisibleCalendar{visible("a1", "c1"), visible("a1", "c2")}, window())

	require.Len(t, batches, 2)
	assert.Equal(t, "c1", batches[0].Calendar.Calendar.ID)
	assert.True(t, batches[0].PreExpanded)
	require.Len(t, batches[0].Events, 2)
	e := batches[0].Events[0]
	assert.Equal(t, "c1", e.CalendarID)
	assert.Equal(t, "#00ff00", e.CalendarColor)
	assert.Equal(t, "ext-c1", e.CalendarUnifiedID)
	assert.Equal(t, "ext-a1", e.CalendarUnifiedAccountID)
	assert.Equal(t, "c2", batches[1].Events[0].CalendarID)

	// The provider's slice is not modified.
	assert.Empty(t, provider.events["c1"][0].CalendarID)
}

func TestFetch_AuthFailureQueuesExpiry(t *testing.T) {
	provider := &fakeProvider{
		events: map[string][]events.Event{"c2": {{ID: "e1"}}},
		errs:   map[string]error{"c1": fmt.Errorf("upstream: %w", ErrAuthExpired)},
	}
	mux := NewMux()
	mux.Register(database.BackendUnified, provider)
	expirer := &recordingExpirer{}
	gw := New(mux, expirer, quietLogger())

	batches := gw.Fetch(context.Background(), []calendars.VisibleCalendar{visible("a1", "c1"), visible("a2", "c2")}, window())

	require.Len(t, batches, 2)
	assert.True(t, batches[0].Failed)
	assert.Empty(t, batches[0].Events)
	assert.False(t, batches[1].Failed)
	assert.Len(t, batches[1].Events, 1)
	assert.Equal(t, []string{"a1"}, expirer.ids)
}

func TestFetch_OtherFailuresAreIsolated(t *testing.T) {
	provider := &fakeProvider{
		events: map[string][]events.Event{"c2": {{ID: "e1"}}},
		errs:   map[string]error{"c1": errors.New("boom")},
	}
	mux := NewMux()
	mux.Register(database.BackendUnified, provider)
	expirer := &recordingExpirer{}
	gw := New(mux, expirer, quietLogger())

	cals := []calendars.VisibleCalendar{visible("a1", "c1"), visible("a1", "c2")}
	ics := visible("a3", "c3")
	ics.Account.Backend = database.BackendICS
	cals = append(cals, ics)

	batches := gw.Fetch(context.Background(), cals, window())
	require.Len(t, batches, 3)
	assert.True(t, batches[0].Failed)
	assert.Len(t, batches[1].Events, 1)
	assert.True(t, batches[2].Failed, "unregistered backend yields an empty batch")
	assert.Empty(t, expirer.ids)
}

// barrierProvider holds every call until n calls are in flight.
type barrierProvider struct {
	n        int
	mu       sync.Mutex
	arrived  int
	all      chan struct{}
	finished atomic.Int32
}

func (p *barrierProvider) FetchEvents(_ context.Context, cal calendars.VisibleCalendar, _ Window) (Result, error) {
	p.mu.Lock()
	p.arrived++
	if p.arrived == p.n {
		close(p.all)
	}
	p.mu.Unlock()

	select {
	case <-p.all:
	case <-time.After(2 * time.Second):
		return Result{}, errors.New("calls did not overlap")
	}
	time.Sleep(20 * time.Millisecond)
	p.finished.Add(1)
	return Result{Events: []events.Event{{ID: "e-" + cal.Calendar.ID}}}, nil
}

func TestFetch_RunsConcurrentlyAndWaitsForAll(t *testing.T) {
	provider := &barrierProvider{n: 3, all: make(chan struct{})}
	mux := NewMux()
	mux.Register(database.BackendUnified, provider)
	gw := New(mux, nil, quietLogger())

	cals := []calendars.VisibleCalendar{visible("a1", "c1"), visible("a1", "c2"), visible("a2", "c3")}
	batches := gw.Fetch(context.Background(), cals, window())

	assert.Equal(t, int32(3), provider.finished.Load())
	require.Len(t, batches, 3)
	for i, b := range batches {
		assert.False(t, b.Failed, "batch %d", i)
		require.Len(t, b.Events, 1)
		assert.Equal(t, "e-"+cals[i].Calendar.ID, b.Events[0].ID)
	}
}

func TestFetch_EmptyInput(t *testing.T) {
	gw := New(NewMux(), nil, quietLogger())
	assert.Empty(t, gw.Fetch(context.Background(), nil, window()))
}

type writableProvider struct{ fakeProvider }

func (*writableProvider) GetEvent(context.Context, calendars.VisibleCalendar, string) (*events.Event, error) {
	return &events.Event{}, nil
}
func (*writableProvider) CreateEvent(_ context.Context, _ calendars.VisibleCalendar, e events.Event) (*events.Event, error) {
	return &e, nil
}
func (*writableProvider) UpdateEvent(_ context.Context, _ calendars.VisibleCalendar, _ string, e events.Event) (*events.Event, error) {
	return &e, nil
}
func (*writableProvider) DeleteEvent(context.Context, calendars.VisibleCalendar, string) error {
	return nil
}

func TestMux_Capabilities(t *testing.T) {
	mux := NewMux()
	mux.Register(database.BackendICS, &fakeProvider{})
	mux.Register(database.BackendUnified, &writableProvider{})

	_, err := mux.Writer(database.BackendICS)
	assert.ErrorIs(t, err, ErrReadOnly)

	w, err := mux.Writer(database.BackendUnified)
	require.NoError(t, err)
	assert.NotNil(t, w)

	_, err = mux.Get(database.BackendGoogle)
	assert.Error(t, err)

	_, err = mux.Discoverer(database.BackendICS)
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{database.BackendICS, database.BackendUnified}, mux.Backends())
}
