package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-docsync/internal/presence"
	"github.com/npezzotti/go-docsync/internal/types"
)

var (
	ErrMissingField       = errors.New("missing required field")
	ErrUnknownMessageType = errors.New("unknown message type")
)

type ClientMessage struct {
	types.Inbound
	Timestamp time.Time `json:"-"`
	client    *Client
}

// validate reports whether the message can be dispatched to a room.
func (m *ClientMessage) validate() error {
	switch m.Type {
	case types.MessageTypeContent:
		if m.Content == nil {
			return fmt.Errorf("%w: content", ErrMissingField)
		}
		if m.Version == nil {
			return fmt.Errorf("%w: version", ErrMissingField)
		}
		if m.Hash == nil {
			return fmt.Errorf("%w: hash", ErrMissingField)
		}
	case types.MessageTypeCursor, types.MessageTypeUsers:
	case "":
		return fmt.Errorf("%w: type", ErrMissingField)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}

	return nil
}

type ServerMessage struct {
	types.Outbound
	SkipClient *Client `json:"-"`
}

// NewContentMessage carries the authoritative document state. origin is the
// id of the user whose submission produced it, empty for snapshots.
func NewContentMessage(state types.DocumentState, conflict bool, origin string) *ServerMessage {
	return &ServerMessage{
		Outbound: types.Outbound{
			Type:     types.MessageTypeContent,
			Content:  &state.Content,
			Version:  &state.Version,
			Hash:     &state.Hash,
			Conflict: conflict,
			UserId:   origin,
		},
	}
}

func NewCursorMessage(e *presence.Entry, color, icon string) *ServerMessage {
	return &ServerMessage{
		Outbound: types.Outbound{
			Type:           types.MessageTypeCursor,
			UserId:         e.UserId,
			Username:       e.Username,
			Color:          color,
			Icon:           icon,
			Position:       e.Position,
			SelectionStart: e.SelectionStart,
			SelectionEnd:   e.SelectionEnd,
		},
	}
}

func NewJoinMessage(user types.User) *ServerMessage {
	return &ServerMessage{
		Outbound: types.Outbound{
			Type:     types.MessageTypeJoin,
			UserId:   user.Id,
			Username: user.Username,
		},
	}
}

func NewLeaveMessage(user types.User) *ServerMessage {
	return &ServerMessage{
		Outbound: types.Outbound{
			Type:     types.MessageTypeLeave,
			UserId:   user.Id,
			Username: user.Username,
		},
	}
}

// NewUsersMessage is a full roster resync. self is the recipient's user id.
func NewUsersMessage(users []types.UserInfo, state types.DocumentState, self string) *ServerMessage {
	return &ServerMessage{
		Outbound: types.Outbound{
			Type:    types.MessageTypeUsers,
			Users:   users,
			Version: &state.Version,
			Hash:    &state.Hash,
			UserId:  self,
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
