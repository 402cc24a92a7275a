package util

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyField       = fmt.Errorf("field cannot be empty")
	ErrInvalidEmail     = fmt.Errorf("invalid email address")
	ErrEndBeforeStart   = fmt.Errorf("end time must be after start time")
	ErrWindowTooLong    = fmt.Errorf("query window exceeds maximum allowed")
	ErrInvalidColor     = fmt.Errorf("invalid color (expected #RRGGBB)")
	ErrInvalidTransp    = fmt.Errorf("invalid transparency (must be transparent or opaque)")
	ErrInvalidFeedURL   = fmt.Errorf("invalid feed URL (expected http, https or webcal)")
	ErrTooManyAttendees = fmt.Errorf("too many attendees")
)

var hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateEmail checks if a string is a valid email address.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmptyField
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateWindow checks a query window. maxSpan <= 0 disables the length check.
// An equal start and end is a valid zero-length window.
func ValidateWindow(start, end time.Time, maxSpan time.Duration) error {
	if end.Before(start) {
		return ErrEndBeforeStart
	}
	if maxSpan > 0 && end.Sub(start) > maxSpan {
		return fmt.Errorf("%w: %v exceeds %v", ErrWindowTooLong, end.Sub(start), maxSpan)
	}
	return nil
}

// ValidateEventRange checks that an event ends strictly after it starts.
func ValidateEventRange(start, end time.Time) error {
	if !end.After(start) {
		return ErrEndBeforeStart
	}
	return nil
}

// ValidateHexColor accepts empty or #RRGGBB.
func ValidateHexColor(color string) error {
	if color == "" {
		return nil
	}
	if !hexColorRegex.MatchString(color) {
		return ErrInvalidColor
	}
	return nil
}

// ValidateTransparency accepts empty, "transparent" or "opaque".
func ValidateTransparency(v string) error {
	switch v {
	case "", "transparent", "opaque":
		return nil
	default:
		return ErrInvalidTransp
	}
}

// ValidateAttendeeCount checks if attendee count is within limits.
func ValidateAttendeeCount(count, max int) error {
	if max <= 0 {
		return nil
	}
	if count > max {
		return fmt.Errorf("%w: %d exceeds maximum of %d", ErrTooManyAttendees, count, max)
	}
	return nil
}

// NormalizeFeedURL validates an ICS subscription URL and rewrites webcal:// to https://.
func NormalizeFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyField
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidFeedURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "webcal":
		u.Scheme = "https"
	default:
		return "", ErrInvalidFeedURL
	}
	return u.String(), nil
}

// RedactURL strips credentials and query strings, which often carry feed secrets.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

// SanitizeString removes leading/trailing whitespace and normalizes internal whitespace.
func SanitizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
