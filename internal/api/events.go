package api

import (
	"net/http"

	"github.com/dtorcivia/calmerge/internal/engine"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/response"
)

// target reads the scope and master id of an edit or delete. The master id
// may come from the query or, for edits, the body.
func target(r *http.Request, body *events.Event) (engine.Target, error) {
	scope, err := engine.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		return engine.Target{}, err
	}
	t := engine.Target{
		EventID:          r.PathValue("eventId"),
		RecurringEventID: r.URL.Query().Get("recurringEventId"),
		Scope:            scope,
	}
	if t.RecurringEventID == "" && body != nil {
		t.RecurringEventID = body.RecurringEventID
	}
	return t, nil
}

// GetEvent returns one event as stored upstream.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.engine.GetEvent(r.Context(), r.PathValue("id"), r.PathValue("eventId"))
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to get event")
		return
	}
	response.JSON(w, http.StatusOK, ev)
}

// CreateEvent creates an event on a calendar.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.Event
	if err := parseJSON(r, &ev); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	if err := engine.ValidateEvent(ev); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}

	created, err := h.engine.CreateEvent(r.Context(), r.PathValue("id"), ev)
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to create event")
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

// UpdateEvent edits an event, an instance or its whole series.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.Event
	if err := parseJSON(r, &ev); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	t, err := target(r, &ev)
	if err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	if err := engine.ValidateEvent(ev); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}

	updated, err := h.engine.UpdateEvent(r.Context(), r.PathValue("id"), t, ev)
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to update event")
		return
	}
	response.JSON(w, http.StatusOK, updated)
}

// DeleteEvent deletes an event, an instance or its whole series.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	t, err := target(r, nil)
	if err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	if err := h.engine.DeleteEvent(r.Context(), r.PathValue("id"), t); err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
