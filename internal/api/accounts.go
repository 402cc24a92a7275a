package api

import (
	"net/http"
	"strings"

	"github.com/dtorcivia/calmerge/internal/response"
	"github.com/dtorcivia/calmerge/internal/util"
)

type connectUnifiedRequest struct {
	AccountID string `json:"accountId"`
}

type subscribeRequest struct {
	URL string `json:"url"`
}

type updateCalendarRequest struct {
	IsHidden *bool `json:"isHidden"`
}

// ListAccounts returns all connected accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.engine.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// ConnectUnified connects a unified API account and imports its calendars.
func (h *Handler) ConnectUnified(w http.ResponseWriter, r *http.Request) {
	var req connectUnifiedRequest
	if err := parseJSON(r, &req); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		response.WriteValidationError(w, "accountId is required", nil)
		return
	}

	acc, cals, err := h.engine.ConnectUnified(r.Context(), req.AccountID)
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to connect account")
		return
	}
	response.JSON(w, http.StatusCreated, map[string]interface{}{
		"account":   acc,
		"calendars": cals,
	})
}

// SubscribeFeed adds a read-only ICS subscription.
func (h *Handler) SubscribeFeed(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := parseJSON(r, &req); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	if _, err := util.NormalizeFeedURL(req.URL); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}

	acc, cals, err := h.engine.SubscribeFeed(r.Context(), req.URL)
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to subscribe to feed")
		return
	}
	response.JSON(w, http.StatusCreated, map[string]interface{}{
		"account":   acc,
		"calendars": cals,
	})
}

// SyncAccount re-reads an account's calendar list.
func (h *Handler) SyncAccount(w http.ResponseWriter, r *http.Request) {
	cals, err := h.engine.SyncAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to sync account")
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"calendars": cals,
	})
}

// DeleteAccount removes an account with its calendars.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCalendars returns every calendar with its account.
func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	cals, err := h.engine.ListCalendars(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to list calendars")
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"calendars": cals,
	})
}

// UpdateCalendar changes a calendar's visibility.
func (h *Handler) UpdateCalendar(w http.ResponseWriter, r *http.Request) {
	var req updateCalendarRequest
	if err := parseJSON(r, &req); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	if req.IsHidden == nil {
		response.WriteValidationError(w, "isHidden is required", nil)
		return
	}

	cal, err := h.engine.SetCalendarHidden(r.Context(), r.PathValue("id"), *req.IsHidden)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to update calendar")
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"calendar": cal.Calendar,
	})
}
