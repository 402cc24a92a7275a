// Package gateway fans event fetches out to the calendar providers behind
// each account backend.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/events"
)

var (
	// ErrAuthExpired means the provider rejected the account's credentials.
	ErrAuthExpired = errors.New("account authorization expired")
	// ErrReadOnly is returned for writes against a calendar that cannot be written.
	ErrReadOnly = errors.New("calendar is read-only")
	// ErrEventNotFound is returned when the provider has no such event.
	ErrEventNotFound = errors.New("event not found")
)

// Window is the time range of a fetch.
type Window struct {
	Start time.Time
	End   time.Time
	// TimeZone is passed to providers that render times in a zone.
	TimeZone string
}

// Result is what a provider returns for one calendar.
type Result struct {
	Events []events.Event
	// PreExpanded reports that the provider already expanded recurring series.
	PreExpanded bool
}

// Provider fetches raw events for one calendar.
type Provider interface {
	FetchEvents(ctx context.Context, cal calendars.VisibleCalendar, w Window) (Result, error)
}

// Writer is implemented by providers that support event mutations.
type Writer interface {
	GetEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string) (*events.Event, error)
	CreateEvent(ctx context.Context, cal calendars.VisibleCalendar, e events.Event) (*events.Event, error)
	UpdateEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string, e events.Event) (*events.Event, error)
	DeleteEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string) error
}

// Discoverer is implemented by providers that can list an account's calendars.
type Discoverer interface {
	ListCalendars(ctx context.Context, acc database.Account) ([]calendars.CalendarInfo, error)
}

// Mux routes to providers by account backend.
type Mux struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{providers: make(map[string]Provider)}
}

// Register sets the provider for backend.
func (m *Mux) Register(backend string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[backend] = p
}

// Get returns the provider for backend.
func (m *Mux) Get(backend string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[backend]
	if !ok {
		return nil, fmt.Errorf("calendar backend %q is not configured", backend)
	}
	return p, nil
}

// Writer returns the provider for backend if it supports writes.
func (m *Mux) Writer(backend string) (Writer, error) {
	p, err := m.Get(backend)
	if err != nil {
		return nil, err
	}
	w, ok := p.(Writer)
	if !ok {
		return nil, ErrReadOnly
	}
	return w, nil
}

// Discoverer returns the provider for backend if it can list calendars.
func (m *Mux) Discoverer(backend string) (Discoverer, error) {
	p, err := m.Get(backend)
	if err != nil {
		return nil, err
	}
	d, ok := p.(Discoverer)
	if !ok {
		return nil, fmt.Errorf("calendar backend %q cannot list calendars", backend)
	}
	return d, nil
}

// Backends lists registered backends in name order.
func (m *Mux) Backends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.providers))
	for b := range m.providers {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
