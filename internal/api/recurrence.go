package api

import (
	"net/http"
	"time"

	"github.com/dtorcivia/calmerge/internal/recurrence"
	"github.com/dtorcivia/calmerge/internal/response"
)

type buildRuleResponse struct {
	Rule           string    `json:"rule"`
	Description    string    `json:"description"`
	SuggestedUntil time.Time `json:"suggestedUntil"`
}

// BuildRule renders an editor selection as an RRULE line.
func (h *Handler) BuildRule(w http.ResponseWriter, r *http.Request) {
	var sel recurrence.Selection
	if err := parseJSON(r, &sel); err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	if sel.Interval == 0 {
		sel.Interval = 1
	}

	rule, err := recurrence.BuildRule(sel)
	if err != nil {
		response.WriteValidationError(w, err.Error(), nil)
		return
	}
	response.JSON(w, http.StatusOK, buildRuleResponse{
		Rule:           rule,
		Description:    recurrence.DescribeRule(rule),
		SuggestedUntil: recurrence.SuggestedUntil(sel.Anchor, sel.Frequency, sel.Interval),
	})
}

// DescribeRule returns the English text and editor state for a rule.
// Unparseable rules get the fallback text and a null parsed value.
func (h *Handler) DescribeRule(w http.ResponseWriter, r *http.Request) {
	rule := r.URL.Query().Get("rule")
	if rule == "" {
		response.WriteValidationError(w, "rule is required", nil)
		return
	}

	resp := map[string]interface{}{
		"description": recurrence.DescribeRule(rule),
		"parsed":      nil,
	}
	if p, ok := recurrence.ParseRule(rule).Get(); ok {
		resp["parsed"] = p
		resp["monthlyMode"] = p.MonthlyMode()
	}
	response.JSON(w, http.StatusOK, resp)
}
