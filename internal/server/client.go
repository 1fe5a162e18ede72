package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-docsync/internal/types"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateJoined
	StateActive
	StateReconnecting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is the session of one connection in one room. It holds no
// authoritative state; its room owns the presence entry and the document.
type Client struct {
	conn       *websocket.Conn
	syncServer *SyncServer
	log        *log.Logger
	roomId     string
	send       chan *ServerMessage
	limiter    *rate.Limiter

	pingInterval time.Duration
	pongWait     time.Duration

	mu    sync.RWMutex
	user  types.User
	room  *Room
	state SessionState

	// joined is closed once the room has applied the join
	joined   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewClient creates a session for roomId. user.Id is the id the client asked
// for and may be replaced by the room on join.
func NewClient(user types.User, roomId string, conn *websocket.Conn, s *SyncServer, l *log.Logger) *Client {
	sv := Supervisor{IdleTimeout: s.cfg.IdleTimeout}
	return &Client{
		conn:         conn,
		syncServer:   s,
		log:          l,
		roomId:       roomId,
		user:         user,
		send:         make(chan *ServerMessage, sendBufferSize),
		limiter:      rate.NewLimiter(rate.Limit(s.cfg.MessageRate), s.cfg.MessageBurst),
		pingInterval: sv.PingInterval(),
		pongWait:     sv.PongWait(),
		state:        StateConnecting,
		joined:       make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		c.heartbeat()
		return nil
	})

	if !c.syncServer.joinRoom(c) {
		c.log.Printf("join queue full, dropping connection for room %q", c.roomId)
		return
	}

	select {
	case <-c.joined:
	case <-c.stop:
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.log.Printf("rate limit exceeded for %q, dropping message", c.getUser().Id)
			continue
		}

		msg, err := parseMessage(raw)
		if err != nil {
			c.log.Printf("dropping message from %q: %v", c.getUser().Id, err)
			continue
		}

		msg.client = c
		msg.Timestamp = Now()
		c.dispatch(msg)
	}
}

func parseMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	if err := msg.validate(); err != nil {
		return nil, err
	}

	return &msg, nil
}

func (c *Client) dispatch(msg *ClientMessage) {
	r := c.getRoom()
	if r == nil {
		c.log.Printf("no room for %q, dropping %s message", c.getUser().Id, msg.Type)
		return
	}

	select {
	case r.clientMsgChan <- msg:
	default:
		c.log.Printf("clientMsgChan full for room %q", r.id)
	}
}

func (c *Client) heartbeat() {
	r := c.getRoom()
	if r == nil {
		return
	}

	select {
	case r.heartbeatChan <- c:
	default:
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// close marks the session closed and stops both pumps.
func (c *Client) close() {
	c.setState(StateClosed)
	c.stopClient()
}

func (c *Client) cleanup() {
	c.mu.Lock()
	c.state = StateClosed
	r := c.room
	c.mu.Unlock()

	c.syncServer.DeRegisterClient(c)
	if r != nil {
		c.leaveRoom(r)
	}
	c.stopClient()
}

func (c *Client) leaveRoom(r *Room) {
	select {
	case r.leaveChan <- c:
	default:
		c.log.Printf("leaveChan full for room %q", r.id)
	}
}

// joinRoom is called by the room to apply the join. It fails if the session
// closed before the room got to it.
func (c *Client) joinRoom(r *Room, userId string) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false
	}
	c.room = r
	c.user.Id = userId
	c.state = StateJoined
	c.mu.Unlock()

	close(c.joined)
	return true
}

func (c *Client) getRoom() *Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) getUser() types.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Client) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// markActive records inbound traffic. A suspect session recovers to active;
// a closed session stays closed.
func (c *Client) markActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateJoined || c.state == StateReconnecting {
		c.state = StateActive
	}
}

func (c *Client) markSuspect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateJoined || c.state == StateActive {
		c.state = StateReconnecting
	}
}
