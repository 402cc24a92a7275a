// Package api provides REST API handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/engine"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/recurrence"
	"github.com/dtorcivia/calmerge/internal/response"
	"github.com/dtorcivia/calmerge/internal/util"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// GoogleAuth runs the OAuth flow for directly connected Google accounts.
type GoogleAuth interface {
	IsConfigured() bool
	NewState(ctx context.Context) (string, error)
	ConsumeState(ctx context.Context, state string) error
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, accountID string, token *oauth2.Token) error
}

// GoogleIdentifier resolves the account a fresh token belongs to.
type GoogleIdentifier interface {
	Identify(ctx context.Context, token *oauth2.Token) (calendars.AccountInfo, error)
}

// Handler provides REST API handlers.
type Handler struct {
	config *config.Config
	engine *engine.Engine

	googleAuth  GoogleAuth
	googleIdent GoogleIdentifier
}

// NewHandler creates a new API handler.
func NewHandler(cfg *config.Config, eng *engine.Engine) *Handler {
	return &Handler{config: cfg, engine: eng}
}

// SetGoogle enables the Google OAuth endpoints.
func (h *Handler) SetGoogle(auth GoogleAuth, ident GoogleIdentifier) {
	h.googleAuth = auth
	h.googleIdent = ident
}

// RegisterRoutes registers API routes. Every route here sits behind API auth.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/occurrences", h.GetOccurrences)
	mux.HandleFunc("GET /api/occurrences.ics", h.ExportOccurrences)

	mux.HandleFunc("GET /api/accounts", h.ListAccounts)
	mux.HandleFunc("POST /api/accounts/unified", h.ConnectUnified)
	mux.HandleFunc("POST /api/accounts/ics", h.SubscribeFeed)
	mux.HandleFunc("POST /api/accounts/{id}/sync", h.SyncAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", h.DeleteAccount)

	mux.HandleFunc("GET /api/calendars", h.ListCalendars)
	mux.HandleFunc("PATCH /api/calendars/{id}", h.UpdateCalendar)

	mux.HandleFunc("POST /api/calendars/{id}/events", h.CreateEvent)
	mux.HandleFunc("GET /api/calendars/{id}/events/{eventId}", h.GetEvent)
	mux.HandleFunc("PUT /api/calendars/{id}/events/{eventId}", h.UpdateEvent)
	mux.HandleFunc("DELETE /api/calendars/{id}/events/{eventId}", h.DeleteEvent)

	mux.HandleFunc("POST /api/recurrence/build", h.BuildRule)
	mux.HandleFunc("GET /api/recurrence/describe", h.DescribeRule)

	mux.HandleFunc("GET /api/audit", h.GetAuditLog)
}

// RegisterPublicRoutes registers routes that are reached by the browser
// without an API token.
func (h *Handler) RegisterPublicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /oauth/google/start", h.GoogleStart)
	mux.HandleFunc("GET /oauth/google/callback", h.GoogleCallback)
}

// GetAuditLog returns recent audit entries, optionally for one account.
func (h *Handler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > 500 {
		response.WriteValidationError(w, "limit must be between 1 and 500", nil)
		return
	}

	var (
		entries interface{}
		err     error
	)
	if accountID := r.URL.Query().Get("accountId"); accountID != "" {
		entries, err = h.engine.Audit().ForAccount(r.Context(), accountID, limit)
	} else {
		entries, err = h.engine.Audit().Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// parseJSON decodes a JSON request body.
func parseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

// isValidation reports whether err was caused by bad input.
func isValidation(err error) bool {
	for _, target := range []error{
		util.ErrEmptyField,
		util.ErrInvalidTime,
		util.ErrInvalidEmail,
		util.ErrEndBeforeStart,
		util.ErrWindowTooLong,
		util.ErrInvalidColor,
		util.ErrInvalidTransp,
		util.ErrInvalidFeedURL,
		util.ErrTooManyAttendees,
		recurrence.ErrInvalidRule,
		recurrence.ErrInvalidFrequency,
		recurrence.ErrInvalidInterval,
		recurrence.ErrInvalidWeekday,
		recurrence.ErrUntilBeforeStart,
		engine.ErrInvalidScope,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeError maps domain errors onto the error envelope; anything unrecognised
// is written with fallback status.
func writeError(w http.ResponseWriter, err error, fallback int, message string) {
	switch {
	case isValidation(err):
		response.WriteValidationError(w, err.Error(), nil)
	case errors.Is(err, calendars.ErrNotFound):
		response.WriteNotFound(w, "resource")
	case errors.Is(err, gateway.ErrEventNotFound):
		response.WriteError(w, http.StatusNotFound, response.ErrCodeEventNotFound, "Event not found")
	case errors.Is(err, gateway.ErrReadOnly):
		response.WriteError(w, http.StatusConflict, response.ErrCodeReadOnly, "Calendar is read-only")
	case errors.Is(err, gateway.ErrAuthExpired):
		response.WriteError(w, http.StatusConflict, response.ErrCodeAccountExpired,
			"Account authorization expired, reconnect it")
	case errors.Is(err, engine.ErrBackendDisabled):
		response.WriteError(w, http.StatusServiceUnavailable, response.ErrCodeBackendDisabled, err.Error())
	default:
		util.Error(message, "error", err, "status", fallback)
		if fallback == http.StatusBadGateway {
			response.WriteUpstreamError(w, message)
			return
		}
		response.WriteInternalError(w, message)
	}
}
