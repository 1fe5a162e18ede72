package types

import (
	"time"
)

// Message types carried in the "type" field of every envelope.
const (
	MessageTypeContent = "content"
	MessageTypeCursor  = "cursor"
	MessageTypeJoin    = "join"
	MessageTypeLeave   = "leave"
	MessageTypeUsers   = "users"
)

type User struct {
	Id       string `json:"userId"`
	Username string `json:"username"`
}

// UserInfo is one roster entry as sent to clients. Color and Icon are derived
// from the user's position in the roster at the time the entry was built.
type UserInfo struct {
	UserId         string    `json:"userId"`
	Username       string    `json:"username"`
	Color          string    `json:"color,omitempty"`
	Icon           string    `json:"icon,omitempty"`
	CursorPosition *int      `json:"cursorPosition"`
	SelectionStart *int      `json:"selectionStart"`
	SelectionEnd   *int      `json:"selectionEnd"`
	LastSeen       time.Time `json:"lastSeen"`
}

type Cursor struct {
	Position       *int `json:"position"`
	SelectionStart *int `json:"selectionStart"`
	SelectionEnd   *int `json:"selectionEnd"`
}

type DocumentState struct {
	Content string `json:"content"`
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
}

// Inbound is a client to server envelope. Pointer fields distinguish a
// missing field from its zero value.
type Inbound struct {
	Type           string  `json:"type"`
	Content        *string `json:"content,omitempty"`
	Version        *int64  `json:"version,omitempty"`
	Hash           *string `json:"hash,omitempty"`
	UserId         string  `json:"userId,omitempty"`
	Position       *int    `json:"position,omitempty"`
	SelectionStart *int    `json:"selectionStart,omitempty"`
	SelectionEnd   *int    `json:"selectionEnd,omitempty"`
}

func (m *Inbound) Cursor() Cursor {
	return Cursor{
		Position:       m.Position,
		SelectionStart: m.SelectionStart,
		SelectionEnd:   m.SelectionEnd,
	}
}

// Outbound is a server to client envelope.
type Outbound struct {
	Type           string     `json:"type"`
	Content        *string    `json:"content,omitempty"`
	Version        *int64     `json:"version,omitempty"`
	Hash           *string    `json:"hash,omitempty"`
	Conflict       bool       `json:"conflict,omitempty"`
	UserId         string     `json:"userId,omitempty"`
	Username       string     `json:"username,omitempty"`
	Color          string     `json:"color,omitempty"`
	Icon           string     `json:"icon,omitempty"`
	Position       *int       `json:"position,omitempty"`
	SelectionStart *int       `json:"selectionStart,omitempty"`
	SelectionEnd   *int       `json:"selectionEnd,omitempty"`
	Users          []UserInfo `json:"users,omitempty"`
}

func (m *Outbound) Cursor() Cursor {
	return Cursor{
		Position:       m.Position,
		SelectionStart: m.SelectionStart,
		SelectionEnd:   m.SelectionEnd,
	}
}

// State returns the document state carried by a content or users message.
func (m *Outbound) State() DocumentState {
	var s DocumentState
	if m.Content != nil {
		s.Content = *m.Content
	}
	if m.Version != nil {
		s.Version = *m.Version
	}
	if m.Hash != nil {
		s.Hash = *m.Hash
	}
	return s
}
