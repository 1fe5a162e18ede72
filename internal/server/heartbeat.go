package server

import "time"

const (
	maxPingInterval = 54 * time.Second
	maxPongWait     = 60 * time.Second
)

type Liveness int

const (
	Alive Liveness = iota
	// Suspect sessions have been quiet for longer than half the idle window.
	Suspect
	Dead
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case Suspect:
		return "suspect"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Supervisor decides which sessions of a room are presumed dead. Each room
// applies it on every tick of its sweep ticker.
type Supervisor struct {
	IdleTimeout time.Duration
	Interval    time.Duration
}

func (s Supervisor) SuspectAfter() time.Duration {
	return s.IdleTimeout / 2
}

// PingInterval is how often sessions are pinged. Pongs count as heartbeats,
// so a responsive idle session is pinged well inside the suspect threshold.
func (s Supervisor) PingInterval() time.Duration {
	return min(s.IdleTimeout/3, maxPingInterval)
}

// PongWait is how long a session may go without a pong before its read
// deadline fails.
func (s Supervisor) PongWait() time.Duration {
	return min(2*s.PingInterval(), maxPongWait)
}

func (s Supervisor) Classify(lastSeen, now time.Time) Liveness {
	idle := now.Sub(lastSeen)
	switch {
	case idle > s.IdleTimeout:
		return Dead
	case idle > s.SuspectAfter():
		return Suspect
	default:
		return Alive
	}
}
