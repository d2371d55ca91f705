package jira

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/joescharf/jpa/internal/store"
)

// APIError is a non-2xx response from Jira.
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s on %s: %s", e.StatusCode, e.Status, e.Endpoint, e.Message)
}

// NotFound reports whether Jira answered 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

type errorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
	Message       string            `json:"message"`
}

// newAPIError builds an APIError from a response body. Jira reports errors
// as errorMessages, a field -> message map, or a single message.
func newAPIError(statusCode int, endpoint string, body []byte) *APIError {
	e := &APIError{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Endpoint:   endpoint,
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		var parts []string
		parts = append(parts, eb.ErrorMessages...)
		keys := make([]string, 0, len(eb.Errors))
		for k := range eb.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+": "+eb.Errors[k])
		}
		if eb.Message != "" {
			parts = append(parts, eb.Message)
		}
		e.Message = strings.Join(parts, "; ")
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = "no details"
	}
	return e
}

// Unwrap maps a 404 to store.ErrNotFound so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	if e.NotFound() {
		return store.ErrNotFound
	}
	return nil
}
