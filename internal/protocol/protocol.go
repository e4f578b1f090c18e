// Package protocol defines the JSON wire messages exchanged with the agent
// backend over the WebSocket channel. Every frame is a JSON object with a
// mandatory "type" discriminator and an optional "correlation_id" that lets
// the editor shell match async replies to the message that triggered them.
//
// Inbound frames are parsed once at the protocol boundary into a Message
// envelope; payload fields are decoded lazily through the typed accessors.
// Unknown types are preserved verbatim so the UI layer can grow new message
// kinds without changes here.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Message type discriminators recognized on the wire.
const (
	TypePing          = "ping"
	TypePong          = "pong"
	TypeResumeSession = "resume_session"
	TypeSessionState  = "session_state"
	TypeChat          = "chat"
	TypeStop          = "stop"
	TypeOpenFile      = "open_file"
	TypeFileContent   = "file_content"
	TypeStep          = "step"
	TypeComplete      = "complete"
	TypeError         = "error"
	TypeStopped       = "stopped"
)

// Kind is the coarse classification the connection core routes on.
type Kind int

const (
	// KindPong resolves an outstanding heartbeat probe.
	KindPong Kind = iota
	// KindSessionState carries the server's reply to a resume handshake.
	KindSessionState
	// KindOther is every application-level message; it is forwarded to the
	// UI layer unmodified after correlation-id bookkeeping.
	KindOther
)

// Message is the parsed envelope of one wire frame. Raw holds the original
// bytes so forwarding never re-serializes (and never loses fields this
// package does not model).
type Message struct {
	Type          string
	CorrelationID string
	Raw           json.RawMessage
}

// envelope is the minimal shape probed during Parse.
type envelope struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ErrMissingType is returned for frames without a "type" discriminator.
var ErrMissingType = errors.New("message missing type field")

// Parse decodes a wire frame into a Message envelope. The input bytes are
// copied, so the caller may reuse its buffer.
func Parse(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}
	if env.Type == "" {
		return Message{}, ErrMissingType
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return Message{
		Type:          env.Type,
		CorrelationID: env.CorrelationID,
		Raw:           raw,
	}, nil
}

// Kind classifies the message for routing.
func (m Message) Kind() Kind {
	switch m.Type {
	case TypePong:
		return KindPong
	case TypeSessionState:
		return KindSessionState
	default:
		return KindOther
	}
}

// ping and pong carry nothing beyond the discriminator.
type pingMessage struct {
	Type string `json:"type"`
}

// ResumeSession is the client half of the resume handshake, sent on every
// successful open. SessionID is empty when no valid local session exists.
type ResumeSession struct {
	Type              string `json:"type"`
	SessionID         string `json:"session_id"`
	LastCorrelationID string `json:"last_correlation_id,omitempty"`
}

// SessionState is the server half of the resume handshake.
type SessionState struct {
	SessionID         string `json:"session_id"`
	IsNew             bool   `json:"is_new"`
	AgentRunning      bool   `json:"agent_running"`
	PendingMessages   int    `json:"pending_messages"`
	LastCorrelationID string `json:"last_correlation_id,omitempty"`
}

// Chat is a user chat message to the agent.
type Chat struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Content       string `json:"content"`
}

// Stop asks the agent to halt the current run.
type Stop struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// OpenFile asks the backend to read a workspace file.
type OpenFile struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Path          string `json:"path"`
}

// FileContent is the backend's reply to an OpenFile request.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int    `json:"size"`
	Lines   int    `json:"lines"`
}

// Step is one agent-loop progress update. Phase is "think", "act" or
// "respond"; tool fields are set only for "act" steps.
type Step struct {
	StepNumber  int    `json:"step_number"`
	Phase       string `json:"phase"`
	Content     string `json:"content"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolSuccess *bool  `json:"tool_success,omitempty"`
}

// SessionState decodes the payload of a session_state message.
func (m Message) SessionState() (*SessionState, error) {
	if m.Type != TypeSessionState {
		return nil, fmt.Errorf("not a session_state message: %s", m.Type)
	}
	var st SessionState
	if err := json.Unmarshal(m.Raw, &st); err != nil {
		return nil, fmt.Errorf("decode session_state: %w", err)
	}
	return &st, nil
}

// Step decodes the payload of a step-family message (step, complete, error,
// stopped — they share the same field set).
func (m Message) Step() (*Step, error) {
	switch m.Type {
	case TypeStep, TypeComplete, TypeError, TypeStopped:
	default:
		return nil, fmt.Errorf("not a step-family message: %s", m.Type)
	}
	var st Step
	if err := json.Unmarshal(m.Raw, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return &st, nil
}

// FileContent decodes the payload of a file_content message.
func (m Message) FileContent() (*FileContent, error) {
	if m.Type != TypeFileContent {
		return nil, fmt.Errorf("not a file_content message: %s", m.Type)
	}
	var fc FileContent
	if err := json.Unmarshal(m.Raw, &fc); err != nil {
		return nil, fmt.Errorf("decode file_content: %w", err)
	}
	return &fc, nil
}

// build marshals v and wraps it in a Message envelope. v must marshal
// cleanly; the message types in this package always do.
func build(msgType, correlationID string, v any) Message {
	raw, err := json.Marshal(v)
	if err != nil {
		// All builder inputs are plain structs of strings and ints.
		panic(fmt.Sprintf("protocol: marshal %s: %v", msgType, err))
	}
	return Message{Type: msgType, CorrelationID: correlationID, Raw: raw}
}

// NewPing builds a heartbeat probe. Pings carry no correlation id.
func NewPing() Message {
	return build(TypePing, "", pingMessage{Type: TypePing})
}

// NewResumeSession builds the resume handshake message.
func NewResumeSession(sessionID, lastCorrelationID string) Message {
	return build(TypeResumeSession, "", ResumeSession{
		Type:              TypeResumeSession,
		SessionID:         sessionID,
		LastCorrelationID: lastCorrelationID,
	})
}

// NewChat builds a chat message with a fresh correlation id.
func NewChat(content string) Message {
	cid := uuid.NewString()
	return build(TypeChat, cid, Chat{Type: TypeChat, CorrelationID: cid, Content: content})
}

// NewStop builds a stop request with a fresh correlation id.
func NewStop() Message {
	cid := uuid.NewString()
	return build(TypeStop, cid, Stop{Type: TypeStop, CorrelationID: cid})
}

// NewOpenFile builds a file-read request with a fresh correlation id.
func NewOpenFile(path string) Message {
	cid := uuid.NewString()
	return build(TypeOpenFile, cid, OpenFile{Type: TypeOpenFile, CorrelationID: cid, Path: path})
}
