package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-docsync/internal/database"
	"github.com/npezzotti/go-docsync/internal/stats"
	"github.com/npezzotti/go-docsync/internal/testutil"
	"github.com/npezzotti/go-docsync/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{stop: make(chan struct{})}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopping twice to be safe")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func TestClient_stateTransitions(t *testing.T) {
	s := newTestSyncServer(t, &database.MockDocumentRepository{}, &stats.MockStatsUpdater{})
	c := newTestClient(t, s, "u1", "alice")
	assert.Equal(t, StateConnecting, c.State())

	// traffic before the join does not activate the session
	c.markActive()
	assert.Equal(t, StateConnecting, c.State())

	r := newRoom("test-room", s, database.Document{})
	c.joinRoom(r, "u1")
	assert.Equal(t, StateJoined, c.State())

	c.markActive()
	assert.Equal(t, StateActive, c.State())

	c.markSuspect()
	assert.Equal(t, StateReconnecting, c.State())

	c.markActive()
	assert.Equal(t, StateActive, c.State())

	c.close()
	assert.Equal(t, StateClosed, c.State())

	c.markActive()
	c.markSuspect()
	assert.Equal(t, StateClosed, c.State(), "expected closed to be terminal")
	assert.Equal(t, "closed", c.State().String())
}

func TestClient_joinRoom(t *testing.T) {
	s := newTestSyncServer(t, &database.MockDocumentRepository{}, &stats.MockStatsUpdater{})
	c := newTestClient(t, s, "", "alice")
	r := newRoom("test-room", s, database.Document{})

	c.joinRoom(r, "generated")

	assert.Equal(t, r, c.getRoom())
	assert.Equal(t, types.User{Id: "generated", Username: "alice"}, c.getUser())
	select {
	case <-c.joined:
	default:
		t.Error("expected joined channel to be closed")
	}
}

func TestClient_joinRoom_closed(t *testing.T) {
	s := newTestSyncServer(t, &database.MockDocumentRepository{}, &stats.MockStatsUpdater{})
	c := newTestClient(t, s, "u1", "alice")
	c.close()

	assert.False(t, c.joinRoom(newRoom("test-room", s, database.Document{}), "u1"))
	assert.Nil(t, c.getRoom(), "expected a closed session to stay roomless")
	assert.Equal(t, StateClosed, c.State())
}

func TestClient_dispatch(t *testing.T) {
	s := newTestSyncServer(t, &database.MockDocumentRepository{}, &stats.MockStatsUpdater{})

	t.Run("before join", func(t *testing.T) {
		c := newTestClient(t, s, "u1", "alice")
		assert.NotPanics(t, func() {
			c.dispatch(&ClientMessage{Inbound: types.Inbound{Type: types.MessageTypeUsers}})
		})
	})

	t.Run("forwards to room", func(t *testing.T) {
		c := newTestClient(t, s, "u1", "alice")
		r := newRoom("test-room", s, database.Document{})
		c.joinRoom(r, "u1")

		msg := &ClientMessage{Inbound: types.Inbound{Type: types.MessageTypeUsers}, client: c}
		c.dispatch(msg)

		select {
		case got := <-r.clientMsgChan:
			assert.Equal(t, msg, got)
		case <-time.After(100 * time.Millisecond):
			t.Error("timeout: message was not forwarded to the room")
		}
	})

	t.Run("heartbeat forwards to room", func(t *testing.T) {
		c := newTestClient(t, s, "u1", "alice")
		r := newRoom("test-room", s, database.Document{})
		c.joinRoom(r, "u1")

		c.heartbeat()

		select {
		case got := <-r.heartbeatChan:
			assert.Equal(t, c, got)
		default:
			t.Error("expected heartbeat to be forwarded to the room")
		}
	})
}

func TestClient_cleanup(t *testing.T) {
	s := newTestSyncServer(t, &database.MockDocumentRepository{}, &stats.MockStatsUpdater{})
	c := newTestClient(t, s, "u1", "alice")
	r := newRoom("test-room", s, database.Document{})
	c.joinRoom(r, "u1")
	s.RegisterClient(c)

	c.cleanup()

	assert.Equal(t, StateClosed, c.State())
	assert.NotContains(t, s.clients, c)

	select {
	case got := <-r.leaveChan:
		assert.Equal(t, c, got)
	default:
		t.Error("expected leave request to be sent to the room")
	}

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}
