// Package wire defines the framed request/response and push protocol spoken
// between the console and the backend runtime, independent of transport.
package wire

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request methods.
const (
	MethodSessionStart     = "session.start"
	MethodSessionStop      = "session.stop"
	MethodModelsList       = "models.list"
	MethodMCPList          = "mcp.list"
	MethodApprovalRespond  = "approval.respond"
	MethodUserInputRespond = "user_input.respond"
	MethodTerminalCreate   = "terminal.create"
	MethodTerminalWrite    = "terminal.write"
	MethodTerminalResize   = "terminal.resize"
	MethodTerminalKill     = "terminal.kill"
)

// Frame is one protocol message. Requests carry ID+Method, responses carry ID and
// Result or Error, pushes carry Topic+Payload.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorBody is a backend-reported failure.
type ErrorBody struct {
	Message string `json:"message"`
}

// IsRequest reports whether the frame is a request.
func (f Frame) IsRequest() bool {
	return f.ID != "" && f.Method != ""
}

// IsResponse reports whether the frame answers a request.
func (f Frame) IsResponse() bool {
	return f.ID != "" && f.Method == "" && f.Topic == ""
}

// IsPush reports whether the frame is a push on a topic.
func (f Frame) IsPush() bool {
	return f.Topic != ""
}

// Conn is a bidirectional frame transport. WriteFrame must be safe for
// concurrent use; ReadFrame is called from a single goroutine.
type Conn interface {
	ReadFrame(ctx context.Context) (Frame, error)
	WriteFrame(ctx context.Context, frame Frame) error
	Close() error
}

// RemoteError carries an error message reported by the backend.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// DecodeError reports a frame that could not be decoded. Transports return it
// for a single bad message; the connection itself stays usable.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	if e == nil || e.Err == nil {
		return "frame decode error"
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DecodeFrame decodes one frame from data.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, &DecodeError{Data: append([]byte(nil), data...), Err: err}
	}
	return frame, nil
}

// PushFrame builds a push frame for topic.
func PushFrame(topic string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Topic: topic, Payload: data}, nil
}

func previewText(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max]
}
