// Package nativemsg implements the browser native messaging protocol and
// a Bridge that exposes the connected extension as host capabilities.
//
// Every message is a JSON Frame preceded by its length as a 32-bit
// unsigned integer in native byte order. The browser pushes events and
// answers requests; finguard issues requests and never answers any.
package nativemsg

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
)

// Frame is the envelope of every message on the channel.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type"`

	// Method names the browser API for request frames and the event kind
	// for event frames.
	Method string `json:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes an error reported by the browser side.
type ErrorDetail struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Methods the extension shim implements.
const (
	MethodListExtensions = "management.getAll"
	MethodSetEnabled     = "management.setEnabled"
	MethodGetTab         = "tabs.get"
	MethodCreateWindow   = "windows.create"
	MethodStorageGet     = "storage.get"
	MethodStorageSet     = "storage.set"
)

type setEnabledParams struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type getTabParams struct {
	TabID int `json:"tabId"`
}

type createWindowParams struct {
	URL     string `json:"url"`
	Type    string `json:"type"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Top     int    `json:"top,omitempty"`
	Focused bool   `json:"focused"`
}

type storageGetParams struct {
	Key string `json:"key"`
}

type storageGetResult struct {
	Values []string `json:"values"`
	Found  bool     `json:"found"`
}

type storageSetParams struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// NewFrameID returns a fresh frame id.
func NewFrameID() string {
	return uuid.NewString()
}

var (
	// ErrClosed is returned for requests on a bridge whose channel has
	// closed.
	ErrClosed = errors.New("native messaging channel closed")
	// ErrFrameTooLarge is returned for frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("native message too large")
)

// RemoteError is an error frame returned by the browser for a request.
type RemoteError struct {
	Method  string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s failed (code %d): %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Method, e.Message)
}
