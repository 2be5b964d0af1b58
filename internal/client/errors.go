package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies backend failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// APIError is returned for every failed backend call.
type APIError struct {
	Op     string
	Status int // 0 when no response arrived
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because the client timeout expired.
func (e *APIError) Timeout() bool {
	var ne net.Error
	return e.Err != nil && errors.As(e.Err, &ne) && ne.Timeout()
}

func newAPIError(op string, resp *http.Response) *APIError {
	e := &APIError{Op: op, Status: resp.StatusCode, Kind: kindForStatus(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &er) == nil && er.Detail != nil {
		e.Detail = detailString(er.Detail)
	} else if len(data) > 0 && !strings.HasPrefix(strings.TrimSpace(string(data)), "<") {
		e.Detail = strings.TrimSpace(string(data))
	}
	return e
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return KindValidation
	case status >= 500:
		return KindServer
	}
	return KindUnknown
}

// detailString flattens a "detail" field: plain strings pass through,
// validation lists are joined by their "msg" entries.
func detailString(d any) string {
	switch v := d.(type) {
	case string:
		return v
	case []any:
		var msgs []string
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if msg, ok := m["msg"].(string); ok {
					msgs = append(msgs, msg)
					continue
				}
			}
			msgs = append(msgs, fmt.Sprint(item))
		}
		return strings.Join(msgs, "; ")
	}
	data, _ := json.Marshal(d)
	return string(data)
}

// KindOf returns the kind of an API error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status of an API error, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Message converts err into a user-visible message. fallback is used for
// errors that have no better description.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSuperseded) {
		return ""
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return fallback
	}
	switch apiErr.Kind {
	case KindNetwork:
		if apiErr.Timeout() {
			return "The server did not answer in time"
		}
		return "Cannot reach the server"
	case KindUnauthorized:
		return "Session expired, please log in again"
	case KindForbidden:
		return "Insufficient rights"
	case KindNotFound:
		return "Does not exist or was already removed"
	case KindValidation:
		if apiErr.Detail != "" {
			return fallback + ": " + apiErr.Detail
		}
		return fallback
	case KindServer:
		return "Server error, please try again later"
	}
	return fallback
}
