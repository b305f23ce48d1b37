// Package mcp provides MCP message types and JSON-RPC codec utilities for
// the conduit gateway.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// InitializeMethod is the JSON-RPC method that opens an MCP session.
const InitializeMethod = "initialize"

// Message wraps a decoded JSON-RPC message with gateway metadata. It keeps
// both the raw bytes (for efficient passthrough) and the decoded message
// (for routing decisions).
type Message struct {
	// Raw contains the original bytes of the message.
	Raw []byte

	// Decoded contains the parsed JSON-RPC message. The concrete type is
	// either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received by the gateway.
	Timestamp time.Time
}

// Wrap decodes raw JSON-RPC bytes into a Message.
func Wrap(raw []byte) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return &Message{
		Raw:       raw,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}, nil
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsInitialize returns true for the session-opening initialize request.
func (m *Message) IsInitialize() bool {
	return m.Method() == InitializeMethod
}

// IsNotification returns true for requests that carry no id and therefore
// expect no response (JSON-RPC 2.0 notifications).
func (m *Message) IsNotification() bool {
	return m.IsRequest() && m.RawID() == nil
}

// RawID extracts the request ID from the raw bytes as json.RawMessage,
// preserving the original format (number, string, or null). The SDK's
// jsonrpc.ID type doesn't round-trip through interface{}, so the ID is read
// from the raw JSON directly. Returns nil when absent.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}
