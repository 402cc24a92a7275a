package api

import (
	"net/http"

	"github.com/dtorcivia/calmerge/internal/response"
	"github.com/dtorcivia/calmerge/internal/util"
)

func (h *Handler) googleEnabled(w http.ResponseWriter) bool {
	if h.googleAuth == nil || h.googleIdent == nil || !h.googleAuth.IsConfigured() {
		response.WriteError(w, http.StatusServiceUnavailable, response.ErrCodeBackendDisabled,
			"Google accounts are not configured")
		return false
	}
	return true
}

// GoogleStart redirects the browser to Google's consent screen.
func (h *Handler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if !h.googleEnabled(w) {
		return
	}
	state, err := h.googleAuth.NewState(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to start OAuth flow")
		return
	}
	http.Redirect(w, r, h.googleAuth.AuthURL(state), http.StatusFound)
}

// GoogleCallback finishes the OAuth flow: it stores the account and its
// token, then imports the account's calendars.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.googleEnabled(w) {
		return
	}
	q := r.URL.Query()
	ctx := r.Context()

	if errParam := q.Get("error"); errParam != "" {
		response.WriteValidationError(w, "authorization was not granted", map[string]interface{}{"error": errParam})
		return
	}
	if err := h.googleAuth.ConsumeState(ctx, q.Get("state")); err != nil {
		util.Warn("Rejected OAuth callback", "error", err)
		response.WriteError(w, http.StatusBadRequest, response.ErrCodeInvalidState, "Invalid or expired OAuth state")
		return
	}
	code := q.Get("code")
	if code == "" {
		response.WriteValidationError(w, "code is required", nil)
		return
	}

	token, err := h.googleAuth.Exchange(ctx, code)
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to exchange authorization code")
		return
	}
	info, err := h.googleIdent.Identify(ctx, token)
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to identify Google account")
		return
	}

	acc, err := h.engine.RegisterAccount(ctx, info)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to store account")
		return
	}
	if err := h.googleAuth.SaveToken(ctx, acc.ID, token); err != nil {
		writeError(w, err, http.StatusInternalServerError, "failed to store token")
		return
	}

	cals, err := h.engine.SyncAccount(ctx, acc.ID)
	if err != nil {
		writeError(w, err, http.StatusBadGateway, "failed to import calendars")
		return
	}
	response.JSON(w, http.StatusCreated, map[string]interface{}{
		"account":   acc,
		"calendars": cals,
	})
}
