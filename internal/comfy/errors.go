package comfy

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// bodySnippetLimit caps the response text kept on a StatusError.
const bodySnippetLimit = 100

// Remediation is attached to NetworkError when a backend never answered.
const Remediation = "the backend did not respond: make sure it allows cross-origin requests " +
	"(start it with --enable-cors-header '*'), and check the URL and any firewall in between"

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	// Body holds at most the first 100 characters of the response.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("comfy %s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

// NetworkError reports a request that received no response at all.
type NetworkError struct {
	Op          string
	URL         string
	Remediation string
	Err         error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("comfy %s: %s unreachable: %v (%s)", e.Op, e.URL, e.Err, e.Remediation)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func newStatusError(op string, status int, body []byte) *StatusError {
	return &StatusError{Op: op, StatusCode: status, Body: truncateRunes(strings.TrimSpace(string(body)), bodySnippetLimit)}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
