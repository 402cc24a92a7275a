package icsfeed

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/recurrence"
)

func newTestProvider() *Provider {
	return NewProvider(NewFetcher(config.ICSConfig{Timeout: 5 * time.Second, UserAgent: "calmerge-test"}), time.UTC)
}

func TestProvider_FetchAndSubscribe(t *testing.T) {
	var hits, notModified int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "calmerge-test", r.Header.Get("User-Agent"))
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&notModified, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/calendar")
		w.Write(sampleFeed)
	}))
	defer srv.Close()

	p := newTestProvider()
	acc, cal, err := p.Subscribe(context.Background(), srv.URL+"/team.ics")
	require.NoError(t, err)
	assert.Equal(t, database.BackendICS, acc.Backend)
	assert.Equal(t, srv.URL+"/team.ics", acc.ExternalID)
	assert.Equal(t, "Team", cal.Name)
	assert.True(t, cal.ReadOnly)

	res, err := p.FetchEvents(context.Background(), calendars.VisibleCalendar{
		Calendar: database.Calendar{ExternalID: acc.ExternalID},
	}, gateway.Window{})
	require.NoError(t, err)
	assert.False(t, res.PreExpanded)
	assert.Len(t, res.Events, 6)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notModified))
}

func TestProvider_AuthFailureMapsToExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestProvider().FetchEvents(context.Background(), calendars.VisibleCalendar{
		Calendar: database.Calendar{ExternalID: srv.URL},
	}, gateway.Window{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrAuthExpired))
}

func TestProvider_IsReadOnly(t *testing.T) {
	mux := gateway.NewMux()
	mux.Register(database.BackendICS, newTestProvider())
	_, err := mux.Writer(database.BackendICS)
	assert.ErrorIs(t, err, gateway.ErrReadOnly)
}

func TestSubscribe_RejectsBadURL(t *testing.T) {
	_, _, err := newTestProvider().Subscribe(context.Background(), "ftp://example.com/x.ics")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	feed, err := Parse(sampleFeed, time.UTC)
	require.NoError(t, err)
	occs := recurrence.Expand(feed.Events,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))
	require.NotEmpty(t, occs)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, "Merged", occs, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))
	assert.Contains(t, out, "X-WR-CALNAME:Merged")
	assert.Contains(t, out, "series-1_20240101T080000Z")
	assert.Contains(t, out, "SUMMARY:Holiday")
	assert.Equal(t, len(occs), strings.Count(out, "BEGIN:VEVENT"))

	reparsed, err := Parse(buf.Bytes(), time.UTC)
	require.NoError(t, err)
	assert.Len(t, reparsed.Events, len(occs))
}
