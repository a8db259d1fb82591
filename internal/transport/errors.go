package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrBackpressure = errors.New("push send buffer full")

// Error is a network or HTTP level failure. Callers log it and retry on
// their next scheduled tick.
type Error struct {
	Endpoint Endpoint
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("transport: ")
	b.WriteString(e.Endpoint.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// MalformedError means the response arrived but could not be used. The
// cycle that received it is a no-op.
type MalformedError struct {
	Endpoint Endpoint
	Reason   string
	Err      error
}

func (e *MalformedError) Error() string {
	msg := "transport: malformed response from " + e.Endpoint.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Malformed builds a MalformedError for a decoded body missing a field.
func Malformed(ep Endpoint, reason string) error {
	return &MalformedError{Endpoint: ep, Reason: reason}
}

func IsMalformed(err error) bool {
	var m *MalformedError
	return errors.As(err, &m)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return ""
}
