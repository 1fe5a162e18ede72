package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-docsync/internal/types"
)

const (
	writeWait       = 10 * time.Second
	eventBufferSize = 64
)

var ErrClosed = errors.New("connection closed")

// Conn is one client connection to a room. It keeps a Replica current with
// every server message and publishes the messages on Events. A lost
// connection is not redialed.
type Conn struct {
	ws  *websocket.Conn
	log *log.Logger

	mu      sync.Mutex
	replica *Replica

	writeMu   sync.Mutex
	events    chan types.Outbound
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to roomId on the server at serverURL, e.g. ws://localhost:8000.
// header may carry a token cookie.
func Dial(ctx context.Context, serverURL, roomId string, user types.User, header http.Header, l *log.Logger) (*Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	u.Path = "/ws/" + url.PathEscape(roomId)
	q := url.Values{}
	if user.Id != "" {
		q.Set("userId", user.Id)
	}
	if user.Username != "" {
		q.Set("username", user.Username)
	}
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Conn{
		ws:      ws,
		log:     l,
		replica: NewReplica(user),
		events:  make(chan types.Outbound, eventBufferSize),
		done:    make(chan struct{}),
	}
	c.replica.Open()

	go c.read()
	return c, nil
}

func (c *Conn) read() {
	defer func() {
		c.mu.Lock()
		c.replica.Clear()
		c.mu.Unlock()

		close(c.events)
		c.Close()
	}()

	for {
		var msg types.Outbound
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("read: %v", err)
			}
			return
		}

		c.mu.Lock()
		c.replica.Apply(msg)
		c.mu.Unlock()

		if msg.Type == types.MessageTypeContent && msg.Conflict {
			c.log.Printf("conflicting edit by %q, now at version %d", msg.UserId, *msg.Version)
		}

		select {
		case c.events <- msg:
		default:
			c.log.Printf("event buffer full, dropping %s event", msg.Type)
		}
	}
}

// Events delivers every message received from the server. It is closed when
// the connection ends.
func (c *Conn) Events() <-chan types.Outbound {
	return c.events
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) write(msg types.Inbound) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// SubmitContent replaces the document with content, based on the last
// authoritative version this client saw.
func (c *Conn) SubmitContent(content string) error {
	c.mu.Lock()
	c.replica.SetContent(content)
	doc := c.replica.Document()
	c.mu.Unlock()

	return c.write(types.Inbound{
		Type:    types.MessageTypeContent,
		Content: &doc.Content,
		Version: &doc.Version,
		Hash:    &doc.Hash,
	})
}

// SendCursor publishes the caret position. A nil selection bound defaults to
// the position.
func (c *Conn) SendCursor(position int, selectionStart, selectionEnd *int) error {
	if selectionStart == nil {
		selectionStart = &position
	}
	if selectionEnd == nil {
		selectionEnd = &position
	}

	return c.write(types.Inbound{
		Type:           types.MessageTypeCursor,
		UserId:         c.Self().Id,
		Position:       &position,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
	})
}

// RequestResync asks the server for the full roster and document state.
func (c *Conn) RequestResync() error {
	return c.write(types.Inbound{Type: types.MessageTypeUsers})
}

func (c *Conn) Self() types.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replica.Self()
}

func (c *Conn) Document() types.DocumentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replica.Document()
}

func (c *Conn) Users() []Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replica.Users()
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}
