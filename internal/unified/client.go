// Package unified is a client for the unified calendar REST API that fronts
// Google and Microsoft accounts.
package unified

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/util"
)

// maxPages stops runaway pagination.
const maxPages = 100

// Client talks to the unified calendar API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a new unified API client.
func NewClient(cfg config.UnifiedConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultUnifiedTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetEndUserAccount returns one connected account.
func (c *Client) GetEndUserAccount(ctx context.Context, id string) (*EndUserAccount, error) {
	var acc EndUserAccount
	if err := c.do(ctx, http.MethodGet, "endUserAccounts/"+url.PathEscape(id), nil, nil, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// ListCalendars returns every calendar of an account, following pagination.
func (c *Client) ListCalendars(ctx context.Context, accountID string) ([]Calendar, error) {
	var out []Calendar
	pageToken := ""
	for i := 0; i < maxPages; i++ {
		q := url.Values{}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page Page[Calendar]
		if err := c.do(ctx, http.MethodGet, "calendars/"+url.PathEscape(accountID), q, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
	return out, fmt.Errorf("calendar listing exceeded %d pages", maxPages)
}

// ListEvents returns the events of one calendar, following pagination.
func (c *Client) ListEvents(ctx context.Context, accountID, calendarID string, query EventsQuery) ([]events.Event, error) {
	if query.PageSize == 0 {
		query.PageSize = c.pageSize
	}

	var out []events.Event
	for i := 0; i < maxPages; i++ {
		var page Page[events.Event]
		if err := c.do(ctx, http.MethodGet, eventsPath(accountID, calendarID), query.values(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if page.NextPageToken == "" {
			return out, nil
		}
		query.PageToken = page.NextPageToken
	}
	return out, fmt.Errorf("event listing exceeded %d pages", maxPages)
}

// GetEvent returns one event.
func (c *Client) GetEvent(ctx context.Context, accountID, calendarID, eventID string) (*events.Event, error) {
	var e events.Event
	if err := c.do(ctx, http.MethodGet, eventsPath(accountID, calendarID, eventID), nil, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent creates an event and returns the stored copy.
func (c *Client) CreateEvent(ctx context.Context, accountID, calendarID string, in EventInput) (*events.Event, error) {
	var e events.Event
	if err := c.do(ctx, http.MethodPost, eventsPath(accountID, calendarID), nil, in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEvent replaces an event's writable fields.
func (c *Client) UpdateEvent(ctx context.Context, accountID, calendarID, eventID string, in EventInput) (*events.Event, error) {
	var e events.Event
	if err := c.do(ctx, http.MethodPut, eventsPath(accountID, calendarID, eventID), nil, in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEvent deletes an event.
func (c *Client) DeleteEvent(ctx context.Context, accountID, calendarID, eventID string) error {
	return c.do(ctx, http.MethodDelete, eventsPath(accountID, calendarID, eventID), nil, nil, nil)
}

func eventsPath(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, "events")
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

func (q EventsQuery) values() url.Values {
	v := url.Values{}
	if q.PageToken != "" {
		v.Set("pageToken", q.PageToken)
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.SyncToken != "" {
		v.Set("syncToken", q.SyncToken)
	}
	if q.StartDateTime != "" {
		v.Set("startDateTime", q.StartDateTime)
	}
	if q.EndDateTime != "" {
		v.Set("endDateTime", q.EndDateTime)
	}
	if q.TimeZone != "" {
		v.Set("timeZone", q.TimeZone)
	}
	v.Set("expandRecurrences", strconv.FormatBool(q.ExpandRecurrences))
	return v
}

// do performs one request. body is JSON-encoded when non-nil; out is decoded
// from a 2xx response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	util.Debug("Unified API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			if apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(string(data))
			}
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsInvalidRefreshToken reports whether err means the account must reconnect.
func IsInvalidRefreshToken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeInvalidRefreshToken
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
