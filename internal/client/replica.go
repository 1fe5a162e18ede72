package client

import (
	"slices"
	"time"

	"github.com/npezzotti/go-docsync/internal/presence"
	"github.com/npezzotti/go-docsync/internal/types"
)

// Peer is a roster entry as seen by one client.
type Peer struct {
	UserId   string
	Username string
	Color    string
	Icon     string
	types.Cursor
	LastSeen time.Time
}

// Replica is a client's local copy of a room: the last authoritative document
// state it received and the roster in join order. It is not safe for
// concurrent use.
type Replica struct {
	self  types.User
	doc   types.DocumentState
	order []string
	peers map[string]*Peer
	now   func() time.Time
}

func NewReplica(self types.User) *Replica {
	return &Replica{
		self:  self,
		peers: make(map[string]*Peer),
		now:   time.Now,
	}
}

func (r *Replica) Self() types.User {
	return r.self
}

func (r *Replica) Document() types.DocumentState {
	return r.doc
}

// SetContent records a local edit. The version and hash stay at the last
// authoritative values so the next submission is based on them.
func (r *Replica) SetContent(content string) {
	r.doc.Content = content
}

// Open adds the local user to the roster once the connection is up.
func (r *Replica) Open() {
	// without a requested id, the first users message tells us who we are
	if r.self.Id == "" {
		return
	}
	r.add(r.self.Id, r.self.Username, types.Cursor{})
}

// Clear empties the roster. The document is kept.
func (r *Replica) Clear() {
	r.order = nil
	r.peers = make(map[string]*Peer)
}

func (r *Replica) add(userId, username string, cursor types.Cursor) {
	if p, ok := r.peers[userId]; ok {
		p.Username = username
		return
	}

	r.order = append(r.order, userId)
	r.peers[userId] = &Peer{
		UserId:   userId,
		Username: username,
		Cursor:   cursor,
		LastSeen: r.now(),
	}
}

func (r *Replica) remove(userId string) {
	if _, ok := r.peers[userId]; !ok {
		return
	}

	delete(r.peers, userId)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == userId })
}

// Apply folds one server message into the replica.
func (r *Replica) Apply(msg types.Outbound) {
	switch msg.Type {
	case types.MessageTypeContent:
		// the server's content always wins
		r.doc = msg.State()
	case types.MessageTypeJoin:
		r.add(msg.UserId, msg.Username, types.Cursor{})
	case types.MessageTypeLeave:
		r.remove(msg.UserId)
	case types.MessageTypeCursor:
		if msg.UserId == r.self.Id {
			return
		}
		if p, ok := r.peers[msg.UserId]; ok {
			p.Cursor = msg.Cursor()
			p.LastSeen = r.now()
		}
	case types.MessageTypeUsers:
		r.applyUsers(msg)
	}
}

func (r *Replica) applyUsers(msg types.Outbound) {
	if msg.UserId != "" && msg.UserId != r.self.Id {
		// the server assigned us a different id
		r.self.Id = msg.UserId
	}

	r.Clear()
	for _, u := range msg.Users {
		r.add(u.UserId, u.Username, types.Cursor{
			Position:       u.CursorPosition,
			SelectionStart: u.SelectionStart,
			SelectionEnd:   u.SelectionEnd,
		})
	}

	if msg.Version != nil {
		r.doc.Version = *msg.Version
	}
	if msg.Hash != nil {
		r.doc.Hash = *msg.Hash
	}
}

// Users returns the roster in join order with colors derived from it.
func (r *Replica) Users() []Peer {
	users := make([]Peer, 0, len(r.order))
	for _, id := range r.order {
		p := *r.peers[id]
		p.Color = presence.Color(r.order, id)
		p.Icon = presence.Icon(r.order, id)
		users = append(users, p)
	}
	return users
}

// Others returns the roster without the local user.
func (r *Replica) Others() []Peer {
	return slices.DeleteFunc(r.Users(), func(p Peer) bool { return p.UserId == r.self.Id })
}
