package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/dtorcivia/calmerge/internal/icsfeed"
	"github.com/dtorcivia/calmerge/internal/recurrence"
	"github.com/dtorcivia/calmerge/internal/response"
	"github.com/dtorcivia/calmerge/internal/util"
)

// parseWindow reads start and end. Each accepts RFC3339 or a plain date in the
// display timezone; a plain end date covers the whole day.
func (h *Handler) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	loc := h.engine.Location()
	q := r.URL.Query()

	start, err := parseBound(q.Get("start"), loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := parseBound(q.Get("end"), loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
	}
	return start, end, nil
}

func parseBound(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, util.ErrEmptyField
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, dateOnly, err := util.ParseEventTime(raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	if dateOnly && endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return t, nil
}

func (h *Handler) occurrences(w http.ResponseWriter, r *http.Request) ([]recurrence.Occurrence, bool) {
	start, end, err := h.parseWindow(r)
	if err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return nil, false
	}
	occs, err := h.engine.GetOccurrences(r.Context(), start, end)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to compute occurrences")
		return nil, false
	}
	return occs, true
}

// GetOccurrences returns the merged occurrences of every visible calendar.
func (h *Handler) GetOccurrences(w http.ResponseWriter, r *http.Request) {
	occs, ok := h.occurrences(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"occurrences": occs,
		"count":       len(occs),
	})
}

// ExportOccurrences returns the same window as an iCalendar file.
func (h *Handler) ExportOccurrences(w http.ResponseWriter, r *http.Request) {
	occs, ok := h.occurrences(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := icsfeed.Export(&buf, "calmerge", occs, time.Now().UTC()); err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to export occurrences")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calmerge.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
