package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

// Counter names reported by the sync server.
const (
	NumActiveRooms        = "NumActiveRooms"
	NumActiveClients      = "NumActiveClients"
	NumContentSubmissions = "NumContentSubmissions"
	NumConflicts          = "NumConflicts"
	NumEvictions          = "NumEvictions"
)

var Metrics = []string{
	NumActiveRooms,
	NumActiveClients,
	NumContentSubmissions,
	NumConflicts,
	NumEvictions,
}

const uptimeKey = "Uptime"

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater applies counter deltas on a single goroutine and serves the
// current values as JSON. Its map is not published to the process-wide
// expvar registry, so each updater owns its own counters.
type StatsUpdater struct {
	counters *expvar.Map
	started  time.Time

	deltas   chan delta
	quit     chan struct{}
	quitOnce sync.Once
}

type delta struct {
	name string
	by   int64
}

// NewStatsUpdater creates an updater and mounts its handler on mux.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		counters: new(expvar.Map).Init(),
		started:  time.Now(),
		deltas:   make(chan delta, 512),
		quit:     make(chan struct{}),
	}
	mux.HandleFunc("GET /debug/vars", su.serveVars)
	return su
}

// Snapshot returns the value of every counter plus the uptime in
// milliseconds.
func (su *StatsUpdater) Snapshot() map[string]int64 {
	out := map[string]int64{uptimeKey: time.Since(su.started).Milliseconds()}
	su.counters.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			out[kv.Key] = v.Value()
		}
	})
	return out
}

func (su *StatsUpdater) serveVars(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(su.Snapshot())
}

// RegisterMetric reports name as zero until it is first changed.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.counters.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Incr(name string) { su.push(delta{name: name, by: 1}) }

func (su *StatsUpdater) Decr(name string) { su.push(delta{name: name, by: -1}) }

// push drops the delta once the updater is stopped.
func (su *StatsUpdater) push(d delta) {
	select {
	case su.deltas <- d:
	case <-su.quit:
	}
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

func (su *StatsUpdater) apply() {
	for {
		select {
		case d := <-su.deltas:
			// counters that were never registered are created on first use
			su.counters.Add(d.name, d.by)
		case <-su.quit:
			return
		}
	}
}

func (su *StatsUpdater) Stop() {
	su.quitOnce.Do(func() { close(su.quit) })
}
