// Package syncmsg defines the websocket messages pushed by the server to
// connected clients.
package syncmsg

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type MessageType string

const (
	MsgSystem      MessageType = "system"
	MsgFileChanged MessageType = "file.changed"
	MsgFileDeleted MessageType = "file.deleted"
)

type Message struct {
	Id   string      `json:"id"`
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// System is sent once when a connection is accepted.
type System struct {
	SystemVersion string `json:"version"`
	Message       string `json:"msg"`
}

// FileEvent names the remote entry that was written or removed.
type FileEvent struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

func NewSystemMessage(version, msg string) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgSystem,
		Data: System{SystemVersion: version, Message: msg},
	}
}

func NewFileChanged(id, version string) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgFileChanged,
		Data: FileEvent{ID: id, Version: version},
	}
}

func NewFileDeleted(id string) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgFileDeleted,
		Data: FileEvent{ID: id},
	}
}

// UnmarshalJSON decodes Data into the concrete type for the message type.
func (m *Message) UnmarshalJSON(data []byte) error {
	type rawMessage struct {
		Id   string          `json:"id"`
		Type MessageType     `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Id = raw.Id
	m.Type = raw.Type

	switch m.Type {
	case MsgSystem:
		var sys System
		if err := json.Unmarshal(raw.Data, &sys); err != nil {
			return err
		}
		m.Data = sys
	case MsgFileChanged, MsgFileDeleted:
		var ev FileEvent
		if err := json.Unmarshal(raw.Data, &ev); err != nil {
			return err
		}
		m.Data = ev
	default:
		return fmt.Errorf("unknown message type: %q", m.Type)
	}
	return nil
}

// FileID returns the entry id carried by a file event, or "".
func (m *Message) FileID() string {
	if ev, ok := m.Data.(FileEvent); ok {
		return ev.ID
	}
	return ""
}

func generateID() string {
	return uuid.NewString()[:8]
}
