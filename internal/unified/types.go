package unified

import (
	"fmt"

	"github.com/dtorcivia/calmerge/internal/events"
)

// Error codes reported in the "error" field of failed responses.
const (
	CodeInvalidRefreshToken = "InvalidRefreshToken"
	CodeNotFound            = "NotFound"
)

// EndUserAccount is an account connected through the unified API.
type EndUserAccount struct {
	ID                string   `json:"id"`
	Email             string   `json:"email"`
	ExternalID        string   `json:"externalId,omitempty"`
	ProviderAccountID string   `json:"providerAccountId,omitempty"`
	ProviderType      string   `json:"providerType"`
	Status            string   `json:"status"`
	AuthorizedScopes  []string `json:"authorizedScopes,omitempty"`
	CreatedAt         string   `json:"createdAt,omitempty"`
	UpdatedAt         string   `json:"updatedAt,omitempty"`
}

// Calendar is a calendar as listed by the unified API.
type Calendar struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HexColor  string `json:"hexColor,omitempty"`
	TimeZone  string `json:"timeZone,omitempty"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Data          []T    `json:"data"`
	NextPageToken string `json:"nextPageToken,omitempty"`
	NextSyncToken string `json:"nextSyncToken,omitempty"`
}

// EventInput is the body of create and edit requests. A nil Recurrence is
// omitted so that editing one instance leaves the series rule alone.
type EventInput struct {
	Title        string            `json:"title"`
	Start        events.EventTime  `json:"start"`
	End          events.EventTime  `json:"end"`
	Attendees    []events.Attendee `json:"attendees,omitempty"`
	Organizer    *events.Attendee  `json:"organizer,omitempty"`
	Description  string            `json:"description,omitempty"`
	Location     string            `json:"location,omitempty"`
	IsAllDay     bool              `json:"isAllDay"`
	IsRecurring  bool              `json:"isRecurring"`
	Recurrence   []string          `json:"recurrence,omitempty"`
	Transparency string            `json:"transparency,omitempty"`
}

// NewEventInput copies the writable fields of e.
func NewEventInput(e events.Event) EventInput {
	return EventInput{
		Title:        e.Title,
		Start:        e.Start,
		End:          e.End,
		Attendees:    e.Attendees,
		Organizer:    e.Organizer,
		Description:  e.Description,
		Location:     e.Location,
		IsAllDay:     e.IsAllDay,
		IsRecurring:  e.IsRecurring,
		Recurrence:   e.Recurrence,
		Transparency: e.Transparency,
	}
}

// EventsQuery are the optional parameters of an event listing.
type EventsQuery struct {
	PageToken         string
	PageSize          int
	SyncToken         string
	StartDateTime     string
	EndDateTime       string
	TimeZone          string
	ExpandRecurrences bool
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unified api returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("unified api returned status %d (%s)", e.Status, e.Code)
}
