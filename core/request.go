package core

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Request is one inbound unit of work, created by deserializing a queue
// message body. It is immutable once parsed; MessageID is supplied by the
// queue delivery, never by the sender.
//
// Exactly one account scope applies per request: when both Profile and
// RoleARN are present, RoleARN takes precedence downstream (the profile is
// forwarded as base credentials for the assume-role call).
type Request struct {
	Prompt      string            `json:"prompt"`
	Profile     string            `json:"profile,omitempty"`
	RoleARN     string            `json:"role_arn,omitempty"`
	Region      string            `json:"region,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	MessageID   string            `json:"-"`
}

// requestWire mirrors the queue message body. Senders may use either
// "prompt" or its alias "request" for the free-text field.
type requestWire struct {
	Prompt      string            `json:"prompt"`
	Request     string            `json:"request"`
	Profile     string            `json:"profile"`
	RoleARN     string            `json:"role_arn"`
	Region      string            `json:"region"`
	CallbackURL string            `json:"callback_url"`
	Metadata    map[string]string `json:"metadata"`
}

// ParseRequest decodes a queue message body into a Request. Messages missing
// both "prompt" and "request" are malformed and must not be dispatched;
// the returned error wraps ErrMalformedInput so callers can ack-and-drop.
func ParseRequest(body []byte, messageID string) (Request, error) {
	var wire requestWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return Request{}, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedInput, err)
	}

	prompt := wire.Request
	if prompt == "" {
		prompt = wire.Prompt
	}
	if prompt == "" {
		return Request{}, fmt.Errorf("%w: missing required field: request or prompt", ErrMalformedInput)
	}

	return Request{
		Prompt:      prompt,
		Profile:     wire.Profile,
		RoleARN:     wire.RoleARN,
		Region:      wire.Region,
		CallbackURL: wire.CallbackURL,
		Metadata:    wire.Metadata,
		MessageID:   messageID,
	}, nil
}

// NewID generates a unique identifier for correlation (run ids, call ids).
func NewID() string { return uuid.NewString() }
