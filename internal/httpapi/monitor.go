package httpapi

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orthofit/internal/driver"
	"github.com/sawpanic/orthofit/internal/sweep"
)

// Run states reported by /status.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Status is the JSON body of /status and of every progress message.
type Status struct {
	RunID     string             `json:"run_id"`
	State     string             `json:"state"`
	StartedAt time.Time          `json:"started_at,omitempty"`
	RowsDone  int                `json:"rows_done"`
	RowsTotal int                `json:"rows_total"`
	Batches   int                `json:"batches"`
	Stats     sweep.Stats        `json:"stats"`
	ETA       string             `json:"eta,omitempty"`
	Error     string             `json:"error,omitempty"`
	Last      *driver.BatchEvent `json:"last_batch,omitempty"`
}

// Monitor tracks the progress of the current run and pushes every update to
// the connected websocket clients. It implements driver.Observer.
type Monitor struct {
	mu      sync.Mutex
	status  Status
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewMonitor returns an idle monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		status:  Status{State: StateIdle},
		clients: make(map[*client]struct{}),
	}
}

// Begin marks a run as started.
func (m *Monitor) Begin(runID string, rowsTotal int) {
	m.mu.Lock()
	m.status = Status{RunID: runID, State: StateRunning, StartedAt: time.Now().UTC(), RowsTotal: rowsTotal}
	m.mu.Unlock()
	m.broadcast()
}

// BatchDone implements driver.Observer.
func (m *Monitor) BatchDone(ev driver.BatchEvent) {
	m.mu.Lock()
	m.status.RunID = ev.RunID
	m.status.State = StateRunning
	m.status.RowsDone = ev.RowsDone
	m.status.RowsTotal = ev.RowsTotal
	m.status.Batches = ev.Batch + 1
	m.status.Stats.Add(ev.Stats)
	m.status.ETA = ev.ETA.String()
	m.status.Last = &ev
	m.mu.Unlock()
	m.broadcast()
}

// End marks the run as finished, failed when err is not nil.
func (m *Monitor) End(err error) {
	m.mu.Lock()
	m.status.State = StateDone
	m.status.ETA = ""
	if err != nil {
		m.status.State = StateFailed
		m.status.Error = err.Error()
	}
	m.mu.Unlock()
	m.broadcast()
}

// Status returns a copy of the current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) register(c *client) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c] = struct{}{}
	msg, _ := json.Marshal(m.status)
	return msg
}

func (m *Monitor) unregister(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
	}
}

// broadcast queues the current status on every client. Slow clients drop
// messages rather than stall the driver.
func (m *Monitor) broadcast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := json.Marshal(m.status)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode status")
		return
	}
	for c := range m.clients {
		select {
		case c.send <- msg:
		default:
			log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("Progress message dropped")
		}
	}
}

// Clients returns the number of connected websocket clients.
func (m *Monitor) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
