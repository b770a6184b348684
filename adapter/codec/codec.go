// Package codec frames the chat protocol spoken over the assistant's
// websocket: every frame is a JSON envelope carrying a request, a response
// or an error, correlated by ID.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

const ProtocolVersion = "1.0"

// Envelope types
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeError    = "error"
)

// Error codes shared by the websocket and REST surfaces.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeNotFound        = "NOT_FOUND"
	CodeExecution       = "EXECUTION_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// Envelope is one protocol frame.
type Envelope struct {
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// MessageData is the wire form of an agent reply. Only the metadata that
// describes routing is carried; the rest stays server side.
type MessageData struct {
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	SessionID string   `json:"session_id,omitempty"`
	AgentPath []string `json:"agent_path,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// ChatRequest is the payload of a request frame.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// EncodeMessage converts a reply to its wire form.
func EncodeMessage(msg *agenkit.Message) MessageData {
	path := msg.AgentPath()
	return MessageData{
		Role:      msg.Role,
		Content:   msg.Content,
		SessionID: msg.MetadataString(agenkit.MetadataSessionID),
		AgentPath: path,
		Timestamp: msg.Timestamp.Format(time.RFC3339Nano),
	}
}

// DecodeMessage converts wire data back to a Message. An unparseable
// timestamp becomes the current time.
func DecodeMessage(data MessageData) *agenkit.Message {
	timestamp, err := time.Parse(time.RFC3339Nano, data.Timestamp)
	if err != nil {
		timestamp = time.Now().UTC()
	}
	msg := agenkit.NewMessage(data.Role, data.Content)
	msg.Timestamp = timestamp
	if data.SessionID != "" {
		msg.WithMetadata(agenkit.MetadataSessionID, data.SessionID)
	}
	if len(data.AgentPath) > 0 {
		msg.WithMetadata(agenkit.MetadataAgentPath, data.AgentPath)
	}
	return msg
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewRequest creates a request frame with a fresh ID.
func NewRequest(sessionID, content string) *Envelope {
	return &Envelope{
		Version:   ProtocolVersion,
		Type:      TypeRequest,
		ID:        uuid.NewString(),
		Timestamp: now(),
		Payload:   map[string]interface{}{"session_id": sessionID, "content": content},
	}
}

// NewResponse answers request requestID with msg.
func NewResponse(requestID string, msg *agenkit.Message) *Envelope {
	return &Envelope{
		Version:   ProtocolVersion,
		Type:      TypeResponse,
		ID:        requestID,
		Timestamp: now(),
		Payload:   map[string]interface{}{"message": EncodeMessage(msg)},
	}
}

// NewError answers request requestID with an error.
func NewError(requestID, code, message string) *Envelope {
	return &Envelope{
		Version:   ProtocolVersion,
		Type:      TypeError,
		ID:        requestID,
		Timestamp: now(),
		Payload:   map[string]interface{}{"error_code": code, "error_message": message},
	}
}

// Validate checks the envelope header.
func (e *Envelope) Validate() error {
	if e.Version == "" {
		return fmt.Errorf("missing 'version' field in envelope")
	}
	if e.Version != ProtocolVersion {
		return fmt.Errorf("unsupported protocol version: %s", e.Version)
	}
	switch e.Type {
	case TypeRequest, TypeResponse, TypeError:
	case "":
		return fmt.Errorf("missing 'type' field in envelope")
	default:
		return fmt.Errorf("invalid message type: %s", e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("missing 'id' field in envelope")
	}
	if e.Payload == nil {
		return fmt.Errorf("missing 'payload' field in envelope")
	}
	return nil
}

// ChatRequest extracts the request payload.
func (e *Envelope) ChatRequest() (ChatRequest, error) {
	if e.Type != TypeRequest {
		return ChatRequest{}, fmt.Errorf("expected a request frame, got %s", e.Type)
	}
	var req ChatRequest
	if err := remarshal(e.Payload, &req); err != nil {
		return ChatRequest{}, err
	}
	if req.SessionID == "" || req.Content == "" {
		return ChatRequest{}, fmt.Errorf("request needs session_id and content")
	}
	return req, nil
}

// Message extracts the reply of a response frame.
func (e *Envelope) Message() (*agenkit.Message, error) {
	if e.Type == TypeError {
		code, _ := e.Payload["error_code"].(string)
		msg, _ := e.Payload["error_message"].(string)
		return nil, fmt.Errorf("%s: %s", code, msg)
	}
	var wrapper struct {
		Message MessageData `json:"message"`
	}
	if err := remarshal(e.Payload, &wrapper); err != nil {
		return nil, err
	}
	return DecodeMessage(wrapper.Message), nil
}

func remarshal(in interface{}, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// EncodeBytes encodes an envelope for transmission.
func EncodeBytes(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeBytes decodes and validates an envelope.
func DecodeBytes(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
