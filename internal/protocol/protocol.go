// Package protocol defines the wire format shared by the deckterm backend and
// its clients: JSON envelopes carried in WebSocket text frames, the RPC method
// names of the terminal surface, and the output event topics.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RPC methods exposed by the terminal backend.
const (
	MethodCreateTerminal      = "create_terminal"
	MethodSendTerminalInput   = "send_terminal_input"
	MethodSubscribeTerminal   = "subscribe_terminal"
	MethodSendTerminalBuffer  = "send_terminal_buffer"
	MethodChangeWindowSize    = "change_terminal_window_size"
	MethodUnsubscribeTerminal = "unsubscribe_terminal"
	MethodGetLog              = "get_log"
)

// OutputTopicPrefix prefixes the session id in output event topics.
const OutputTopicPrefix = "terminal_output#"

// OutputTopic returns the event topic carrying output for session id.
func OutputTopic(id string) string {
	return OutputTopicPrefix + id
}

// SessionFromTopic extracts the session id from an output topic.
func SessionFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, OutputTopicPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// MessageType identifies the kind of envelope.
type MessageType string

const (
	MsgCall   MessageType = "call"
	MsgResult MessageType = "result"
	MsgEvent  MessageType = "event"
)

// Message is the envelope for every frame on the wire. Which fields are set
// depends on Type:
//
//   - call:   ID, Method, Args
//   - result: ID, Result or Error
//   - event:  Topic, Payload
//
// Payload is raw terminal bytes; encoding/json carries it as base64 so output
// that is not valid UTF-8 survives the trip.
type Message struct {
	Type    MessageType       `json:"type"`
	ID      uint64            `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Args    []json.RawMessage `json:"args,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	Topic   string            `json:"topic,omitempty"`
	Payload []byte            `json:"payload,omitempty"`
}

// NewCall builds a call envelope, encoding each argument as JSON.
func NewCall(id uint64, method string, args ...any) (Message, error) {
	encoded := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s arg %d: %w", method, i, err)
		}
		encoded = append(encoded, data)
	}
	return Message{Type: MsgCall, ID: id, Method: method, Args: encoded}, nil
}

// NewResult builds a successful result envelope. A nil result is sent as JSON null.
func NewResult(id uint64, result any) (Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("encode result: %w", err)
	}
	return Message{Type: MsgResult, ID: id, Result: data}, nil
}

// NewErrorResult builds a failed result envelope.
func NewErrorResult(id uint64, err error) Message {
	return Message{Type: MsgResult, ID: id, Error: err.Error()}
}

// NewEvent builds an event envelope for topic.
func NewEvent(topic string, payload []byte) Message {
	return Message{Type: MsgEvent, Topic: topic, Payload: payload}
}

// DecodeArgs unmarshals call arguments positionally into dst. The number of
// arguments must match exactly.
func DecodeArgs(args []json.RawMessage, dst ...any) error {
	if len(args) != len(dst) {
		return fmt.Errorf("expected %d arguments, got %d", len(dst), len(args))
	}
	for i, raw := range args {
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}

// SessionInfo is one entry of GET /api/sessions.
type SessionInfo struct {
	ID           string    `json:"id"`
	PID          int       `json:"pid"`
	Rows         int       `json:"rows"`
	Cols         int       `json:"cols"`
	Subscribers  int       `json:"subscribers"`
	BacklogBytes int       `json:"backlogBytes"`
	Mock         bool      `json:"mock"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Exited       bool      `json:"exited"`
	RSSBytes     uint64    `json:"rssBytes,omitempty"`
	CPUPercent   float64   `json:"cpuPercent,omitempty"`
}
