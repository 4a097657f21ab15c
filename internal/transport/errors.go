package transport

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned synchronously when a request has nothing to send.
var ErrEmptyInput = errors.New("transport: empty input")

var errClosedEarly = errors.New("connection closed before result")

const (
	opWebSocket = "websocket connection error"
	opHTTP      = "http request failed"
)

// TransportError reports a network-level failure on either channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a frame or body the client could not decode.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("failed to parse server message: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// BackendError carries an error frame's message verbatim.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// HTTPError is a non-2xx answer on the single-shot channel.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}
