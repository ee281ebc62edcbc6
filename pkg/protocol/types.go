package protocol

import "encoding/json"

type ProtocolVersion string

const ProtocolV1 ProtocolVersion = "v1"

type FrameType string

const (
	FrameHandshake FrameType = "handshake"
	FrameRequest   FrameType = "request"
	FrameResponse  FrameType = "response"
	FrameEvent     FrameType = "event"
)

type Capabilities struct {
	Commands []string `json:"commands,omitempty"`
	Events   []string `json:"events,omitempty"`
}

type Handshake struct {
	Type            FrameType       `json:"type"`
	ProtocolVersion ProtocolVersion `json:"protocol_version"`
	BackendName     string          `json:"backend_name"`
	BackendVersion  string          `json:"backend_version,omitempty"`
	Capabilities    Capabilities    `json:"capabilities"`
}

type RequestContext struct {
	DeadlineMs int64  `json:"deadline_ms,omitempty"`
	Origin     string `json:"origin,omitempty"`
}

type Request struct {
	Type      FrameType       `json:"type"`
	RequestID string          `json:"request_id"`
	Command   string          `json:"command"`
	Ctx       RequestContext  `json:"ctx"`
	Args      json.RawMessage `json:"args,omitempty"`
}

type Response struct {
	Type      FrameType       `json:"type"`
	RequestID string          `json:"request_id"`
	Ok        bool            `json:"ok"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// Event is pushed by the backend independently of any in-flight request.
type Event struct {
	Type    FrameType       `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
