package server

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/npezzotti/go-docsync/internal/config"
	"github.com/npezzotti/go-docsync/internal/database"
	"github.com/npezzotti/go-docsync/internal/document"
	"github.com/npezzotti/go-docsync/internal/stats"
	"github.com/npezzotti/go-docsync/internal/types"
)

var ErrServiceUnavailable = errors.New("service unavailable")

type stopReq struct {
	done chan struct{}
}

// SyncServer owns the directory of loaded rooms. Rooms are created lazily on
// the first join and unloaded after they have been empty for a while.
type SyncServer struct {
	log   *log.Logger
	db    database.DocumentRepository
	stats stats.StatsProvider
	cfg   config.SyncConfig

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	joinChan       chan *Client
	unloadRoomChan chan *Room
	stateChan      chan *stateReq
	// rooms is owned by the Run goroutine
	rooms map[string]*Room
	stop  chan stopReq
}

func NewSyncServer(logger *log.Logger, db database.DocumentRepository, su stats.StatsProvider, cfg config.SyncConfig) (*SyncServer, error) {
	if db == nil {
		return nil, errors.New("document repository is required")
	}

	for _, m := range stats.Metrics {
		su.RegisterMetric(m)
	}

	return &SyncServer{
		log:            logger,
		db:             db,
		stats:          su,
		cfg:            cfg,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *Client, roomChanSize),
		unloadRoomChan: make(chan *Room),
		stateChan:      make(chan *stateReq),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopReq),
	}, nil
}

func (s *SyncServer) Run() {
	for {
		select {
		case c := <-s.joinChan:
			s.handleJoin(c)
		case r := <-s.unloadRoomChan:
			s.unloadRoom(r)
		case req := <-s.stateChan:
			s.handleStateRequest(req)
		case req := <-s.stop:
			s.log.Println("shutting down rooms")
			s.unloadAllRooms()
			close(req.done)
			return
		}
	}
}

func (s *SyncServer) handleJoin(c *Client) {
	r, ok := s.rooms[c.roomId]
	if !ok {
		r = newRoom(c.roomId, s, s.loadDocument(c.roomId))
		s.rooms[r.id] = r
		s.stats.Incr(stats.NumActiveRooms)
		go r.start()
	}

	select {
	case r.joinChan <- c:
	default:
		s.log.Printf("join channel full on room %q", r.id)
		c.close()
	}
}

// loadDocument returns the stored snapshot for id, or an empty document at
// version 0 if there is none or the store cannot be reached.
func (s *SyncServer) loadDocument(id string) database.Document {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		if !errors.Is(err, database.ErrDocumentNotFound) {
			s.log.Printf("load document %q: %v", id, err)
		}
		return database.Document{Id: id}
	}

	return doc
}

func (s *SyncServer) unloadRoom(r *Room) {
	if cur, ok := s.rooms[r.id]; !ok || cur != r {
		return
	}

	done := make(chan bool, 1)
	r.exit <- exitReq{done: done}
	if !<-done {
		return
	}

	s.log.Printf("removing room %q", r.id)
	delete(s.rooms, r.id)
	s.stats.Decr(stats.NumActiveRooms)
}

func (s *SyncServer) unloadAllRooms() {
	for id, r := range s.rooms {
		s.log.Println("shutting down room", id)
		done := make(chan bool, 1)
		r.exit <- exitReq{shutdown: true, done: done}
		<-done

		delete(s.rooms, id)
		s.stats.Decr(stats.NumActiveRooms)
	}
}

func (s *SyncServer) handleStateRequest(req *stateReq) {
	if r, ok := s.rooms[req.roomId]; ok {
		select {
		case r.stateChan <- req:
		default:
			req.reply <- stateResp{err: ErrServiceUnavailable}
		}
		return
	}

	doc := s.loadDocument(req.roomId)
	req.reply <- stateResp{state: RoomState{
		Id:       req.roomId,
		Document: newSnapshotState(doc),
	}}
}

func newSnapshotState(doc database.Document) types.DocumentState {
	return types.DocumentState{
		Content: doc.Content,
		Version: doc.Version,
		Hash:    document.Digest(doc.Content),
	}
}

// RoomState returns the authoritative state of a room, loading it from the
// store when the room is not active.
func (s *SyncServer) RoomState(ctx context.Context, roomId string) (RoomState, error) {
	req := &stateReq{roomId: roomId, reply: make(chan stateResp, 1)}

	select {
	case s.stateChan <- req:
	case <-ctx.Done():
		return RoomState{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.state, resp.err
	case <-ctx.Done():
		return RoomState{}, ctx.Err()
	}
}

func (s *SyncServer) joinRoom(c *Client) bool {
	select {
	case s.joinChan <- c:
		return true
	default:
		return false
	}
}

func (s *SyncServer) RegisterClient(c *Client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()

	if _, ok := s.clients[c]; ok {
		return
	}
	s.clients[c] = struct{}{}
	s.stats.Incr(stats.NumActiveClients)
}

func (s *SyncServer) DeRegisterClient(c *Client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()

	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	s.stats.Decr(stats.NumActiveClients)
}

func (s *SyncServer) stopAllClients() {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()

	for c := range s.clients {
		c.close()
	}
}

func (s *SyncServer) Shutdown(ctx context.Context) error {
	s.log.Println("received shutdown signal")
	s.stopAllClients()

	req := stopReq{done: make(chan struct{})}
	select {
	case s.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
