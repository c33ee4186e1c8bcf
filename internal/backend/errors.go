package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("device already registered")
	ErrValidation   = errors.New("invalid device data")
	ErrRegistration = errors.New("registration failed")
	ErrRequest      = errors.New("backend request failed")
)

// APIError is a non-2xx answer. It matches each sentinel in kinds.
type APIError struct {
	Op     string
	Status int
	Detail string
	kinds  []error
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Detail)
}

func (e *APIError) Is(target error) bool {
	for _, k := range e.kinds {
		if target == k {
			return true
		}
	}
	return false
}

// parseDetail reads the FastAPI style "detail" member, either a string or a
// list of {msg}.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &list); err == nil && len(list) > 0 {
		return list[0].Msg
	}
	return ""
}

func newAPIError(op string, status int, body []byte, kinds ...error) *APIError {
	if status == http.StatusUnauthorized {
		kinds = append(kinds, ErrUnauthorized)
	}
	return &APIError{
		Op:     op,
		Status: status,
		Detail: parseDetail(body),
		kinds:  append(kinds, ErrRequest),
	}
}
