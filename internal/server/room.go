package server

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/npezzotti/go-docsync/internal/database"
	"github.com/npezzotti/go-docsync/internal/document"
	"github.com/npezzotti/go-docsync/internal/presence"
	"github.com/npezzotti/go-docsync/internal/stats"
	"github.com/npezzotti/go-docsync/internal/types"
	"github.com/teris-io/shortid"
)

const (
	roomChanSize = 256
	saveTimeout  = 5 * time.Second
)

type exitReq struct {
	// shutdown forces the room to exit even if it still has clients
	shutdown bool
	done     chan bool
}

// RoomState is a read-only view of a room for the HTTP API.
type RoomState struct {
	Id       string              `json:"id"`
	Document types.DocumentState `json:"document"`
	Users    []types.UserInfo    `json:"users"`
	Active   bool                `json:"active"`
}

type stateReq struct {
	roomId string
	reply  chan stateResp
}

type stateResp struct {
	state RoomState
	err   error
}

// Room is the single writer of one document and its presence registry.
// Every field below is owned by the room goroutine.
type Room struct {
	id       string
	s        *SyncServer
	log      *log.Logger
	doc      *document.Store
	presence *presence.Registry
	// clients maps each member session to its user id
	clients  map[*Client]string
	sessions map[string]*Client

	joinChan      chan *Client
	leaveChan     chan *Client
	clientMsgChan chan *ClientMessage
	heartbeatChan chan *Client
	stateChan     chan *stateReq
	exit          chan exitReq

	supervisor   Supervisor
	savedVersion int64
	// killTimer unloads the room once it has been empty for RoomIdleTimeout
	killTimer *time.Timer
}

func newRoom(id string, s *SyncServer, snapshot database.Document) *Room {
	return &Room{
		id:            id,
		s:             s,
		log:           s.log,
		doc:           document.NewStore(snapshot.Content, snapshot.Version),
		presence:      presence.NewRegistry(),
		clients:       make(map[*Client]string),
		sessions:      make(map[string]*Client),
		joinChan:      make(chan *Client, roomChanSize),
		leaveChan:     make(chan *Client, roomChanSize),
		clientMsgChan: make(chan *ClientMessage, roomChanSize),
		heartbeatChan: make(chan *Client, roomChanSize),
		stateChan:     make(chan *stateReq, 16),
		exit:          make(chan exitReq),
		supervisor: Supervisor{
			IdleTimeout: s.cfg.IdleTimeout,
			Interval:    s.cfg.SweepInterval,
		},
		savedVersion: snapshot.Version,
		killTimer:    newStoppedTimer(),
	}
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func (r *Room) start() {
	r.log.Printf("starting room %q at version %d", r.id, r.doc.Version())

	sweep := time.NewTicker(r.supervisor.Interval)
	defer sweep.Stop()
	autoSave := time.NewTicker(r.s.cfg.AutoSaveInterval)
	defer autoSave.Stop()

	for {
		select {
		case c := <-r.joinChan:
			r.handleJoin(c)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.clientMsgChan:
			r.handleClientMessage(msg)
		case c := <-r.heartbeatChan:
			r.handleHeartbeat(c)
		case req := <-r.stateChan:
			r.handleStateRequest(req)
		case <-sweep.C:
			r.sweep(time.Now())
		case <-autoSave.C:
			r.saveSnapshot()
		case <-r.killTimer.C:
			if r.handleRoomTimeout() {
				return
			}
		case e := <-r.exit:
			if r.handleExit(e) {
				return
			}
		}
	}
}

var generateId = shortid.Generate

func (r *Room) newUserId() string {
	for {
		id, err := generateId()
		if err != nil {
			r.log.Printf("generate user id in room %q: %v", r.id, err)
			id = strconv.FormatInt(time.Now().UnixNano(), 36)
		}
		if !r.presence.Has(id) {
			return id
		}
	}
}

func (r *Room) handleJoin(c *Client) {
	user := c.getUser()
	if user.Id == "" || r.presence.Has(user.Id) {
		user.Id = r.newUserId()
	}

	if !c.joinRoom(r, user.Id) {
		r.log.Printf("dropping join for closed session in room %q", r.id)
		if len(r.clients) == 0 {
			r.killTimer.Reset(r.s.cfg.RoomIdleTimeout)
		}
		return
	}

	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	if _, err := r.presence.Add(user.Id, user.Username, time.Now()); err != nil {
		// ids are checked above, so this only happens on a programming error
		r.log.Printf("add presence %q to room %q: %v", user.Id, r.id, err)
		return
	}
	r.clients[c] = user.Id
	r.sessions[user.Id] = c

	r.log.Printf("%q (%s) joined room %q, %d participants", user.Id, user.Username, r.id, r.presence.Len())

	state := r.doc.State()
	if !c.queueMessage(NewUsersMessage(r.presence.Snapshot(), state, user.Id)) ||
		!c.queueMessage(NewContentMessage(state, false, "")) {
		r.evict(c, "send queue full")
		return
	}

	// notify everyone else that the user has joined
	msg := NewJoinMessage(user)
	msg.SkipClient = c
	r.broadcast(msg)
}

func (r *Room) handleLeave(c *Client) {
	userId, ok := r.clients[c]
	if !ok {
		r.log.Printf("client not found in room %q", r.id)
		return
	}

	r.log.Printf("%q left room %q", userId, r.id)
	entry := r.removeClient(c)
	if entry == nil {
		return
	}

	r.broadcast(NewLeaveMessage(types.User{Id: entry.UserId, Username: entry.Username}))
}

// removeClient drops c and its presence entry, starting the kill timer when
// the room becomes empty.
func (r *Room) removeClient(c *Client) *presence.Entry {
	userId, ok := r.clients[c]
	if !ok {
		return nil
	}

	delete(r.clients, c)
	delete(r.sessions, userId)
	entry, _ := r.presence.Remove(userId)

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.id)
		r.killTimer.Reset(r.s.cfg.RoomIdleTimeout)
	}

	return entry
}

func (r *Room) handleClientMessage(msg *ClientMessage) {
	userId, ok := r.clients[msg.client]
	if !ok {
		r.log.Printf("dropping %s message from non-member of room %q", msg.Type, r.id)
		return
	}

	msg.client.markActive()

	switch msg.Type {
	case types.MessageTypeContent:
		r.handleContent(msg, userId)
	case types.MessageTypeCursor:
		r.handleCursor(msg, userId)
	case types.MessageTypeUsers:
		r.handleResync(msg, userId)
	}
}

func (r *Room) handleContent(msg *ClientMessage, userId string) {
	r.presence.Touch(userId, msg.Timestamp)

	res := r.doc.Submit(document.Submission{
		Content: *msg.Content,
		Version: *msg.Version,
		Hash:    *msg.Hash,
	})

	r.s.stats.Incr(stats.NumContentSubmissions)
	if res.Conflict {
		r.s.stats.Incr(stats.NumConflicts)
		r.log.Printf("conflicting submission from %q in room %q: based on version %d, now %d",
			userId, r.id, *msg.Version, res.Version)
	}

	// everyone, including the submitter, overwrites with the result
	r.broadcast(NewContentMessage(res.DocumentState, res.Conflict, userId))
}

func (r *Room) handleCursor(msg *ClientMessage, userId string) {
	entry, ok := r.presence.UpdateCursor(userId, msg.Cursor(), msg.Timestamp)
	if !ok {
		return
	}

	out := NewCursorMessage(entry, r.presence.Color(userId), r.presence.Icon(userId))
	out.SkipClient = msg.client
	r.broadcast(out)
}

func (r *Room) handleResync(msg *ClientMessage, userId string) {
	r.presence.Touch(userId, msg.Timestamp)
	if !msg.client.queueMessage(NewUsersMessage(r.presence.Snapshot(), r.doc.State(), userId)) {
		r.evict(msg.client, "send queue full")
	}
}

func (r *Room) handleHeartbeat(c *Client) {
	userId, ok := r.clients[c]
	if !ok {
		return
	}

	r.presence.Touch(userId, Now())
	c.markActive()
}

// sweep evicts sessions the supervisor presumes dead and marks quiet ones
// as reconnecting.
func (r *Room) sweep(now time.Time) {
	for _, userId := range r.presence.Keys() {
		entry, _ := r.presence.Get(userId)
		c := r.sessions[userId]

		switch r.supervisor.Classify(entry.LastSeen, now) {
		case Dead:
			r.evict(c, "idle")
		case Suspect:
			if c != nil {
				c.markSuspect()
			}
		}
	}
}

// evict removes c from the room and closes it. The client has to rejoin to
// get the document back.
func (r *Room) evict(c *Client, reason string) {
	entry := r.removeClient(c)
	if entry == nil {
		return
	}

	r.log.Printf("evicting session %q from room %q: %s", entry.UserId, r.id, reason)
	r.s.stats.Incr(stats.NumEvictions)
	c.close()

	r.broadcast(NewLeaveMessage(types.User{Id: entry.UserId, Username: entry.Username}))
}

func (r *Room) handleStateRequest(req *stateReq) {
	req.reply <- stateResp{state: r.currentState()}
}

func (r *Room) currentState() RoomState {
	return RoomState{
		Id:       r.id,
		Document: r.doc.State(),
		Users:    r.presence.Snapshot(),
		Active:   true,
	}
}

// saveSnapshot persists the document if it changed since the last save.
// Failures are retried on the next auto-save tick.
func (r *Room) saveSnapshot() {
	state := r.doc.State()
	if state.Version == r.savedVersion {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := r.s.db.SaveSnapshot(ctx, database.Document{
		Id:        r.id,
		Content:   state.Content,
		Version:   state.Version,
		UpdatedAt: r.doc.UpdatedAt().UTC(),
	})
	if err != nil {
		r.log.Printf("save snapshot of room %q at version %d: %v", r.id, state.Version, err)
		return
	}

	r.savedVersion = state.Version
}

// handleRoomTimeout asks the server to unload the room. It reports whether
// the room exited while waiting.
func (r *Room) handleRoomTimeout() bool {
	r.log.Printf("room %q timed out", r.id)
	select {
	case r.s.unloadRoomChan <- r:
		return false
	case e := <-r.exit:
		return r.handleExit(e)
	}
}

// handleExit reports whether the room exited. Unless shutting down, a room
// that regained clients refuses to exit.
func (r *Room) handleExit(e exitReq) bool {
	if !e.shutdown && (len(r.clients) > 0 || len(r.joinChan) > 0) {
		r.log.Printf("room %q is active again, not exiting", r.id)
		if e.done != nil {
			e.done <- false
		}
		return false
	}

	r.log.Printf("room %q is exiting", r.id)
	r.saveSnapshot()

	for c := range r.clients {
		c.close()
	}

	if e.done != nil {
		e.done <- true
	}
	return true
}

// mustDeliver reports whether a member that misses msg would be left with a
// stale document.
func mustDeliver(msg *ServerMessage) bool {
	return msg.Type == types.MessageTypeContent || msg.Type == types.MessageTypeUsers
}

// broadcast queues msg to every member except msg.SkipClient. Members whose
// queue is full are evicted if msg carries document state.
func (r *Room) broadcast(msg *ServerMessage) {
	var slow []*Client
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		if !client.queueMessage(msg) && mustDeliver(msg) {
			slow = append(slow, client)
		}
	}

	for _, c := range slow {
		r.evict(c, "send queue full")
	}
}
