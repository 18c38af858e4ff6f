package sync

import "sync"

// Status is the coordinator's connectivity state as observed by the rest of
// the application. It is purely observational and never gates operations.
type Status int

const (
	// StatusDisconnected is the initial state, held until the first
	// reconciliation pass completes.
	StatusDisconnected Status = iota
	// StatusConnected is the rest state after at least one completed pass.
	StatusConnected
	// StatusSyncing is held while a reconciliation pass is running.
	StatusSyncing
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusSyncing:
		return "syncing"
	default:
		return "disconnected"
	}
}

// Event is published to the EventSink as sync work progresses.
type Event struct {
	Type           string `json:"type"`
	Status         string `json:"status,omitempty"`
	InstallationID uint   `json:"installation_id,omitempty"`
	LocalID        uint   `json:"local_id,omitempty"`
	CloudID        uint   `json:"cloud_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// EventSink receives coordinator events. Implementations must not block.
type EventSink interface {
	Publish(event Event)
}

// statusTracker holds the connectivity state machine. Passes may nest (a
// manual upload can run while the timer pass is active), so Syncing is
// refcounted.
type statusTracker struct {
	mu           sync.Mutex
	active       int // number of passes currently running
	everFinished bool
	subscribers  []chan Status
	onChange     func(Status) // optional hook, invoked outside the lock
}

func newStatusTracker(onChange func(Status)) *statusTracker {
	return &statusTracker{onChange: onChange}
}

func (st *statusTracker) current() Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.currentLocked()
}

func (st *statusTracker) currentLocked() Status {
	if st.active > 0 {
		return StatusSyncing
	}
	if st.everFinished {
		return StatusConnected
	}
	return StatusDisconnected
}

// beginPass moves the tracker to Syncing.
func (st *statusTracker) beginPass() {
	st.mu.Lock()
	st.active++
	current := st.notifyLocked()
	st.mu.Unlock()
	st.fireChange(current)
}

// endPass records a completed pass (success or handled failure) and returns
// to the rest state.
func (st *statusTracker) endPass() {
	st.mu.Lock()
	if st.active > 0 {
		st.active--
	}
	st.everFinished = true
	current := st.notifyLocked()
	st.mu.Unlock()
	st.fireChange(current)
}

// clearSyncing forces the tracker out of Syncing. Called on coordinator
// shutdown so observers are never left watching a pass that will not finish.
func (st *statusTracker) clearSyncing() {
	st.mu.Lock()
	st.active = 0
	current := st.notifyLocked()
	st.mu.Unlock()
	st.fireChange(current)
}

func (st *statusTracker) fireChange(current Status) {
	if st.onChange != nil {
		st.onChange(current)
	}
}

// subscribe returns a channel receiving status changes. Sends are
// non-blocking; a slow consumer misses intermediate states, never blocks the
// coordinator.
func (st *statusTracker) subscribe() <-chan Status {
	ch := make(chan Status, 8)
	st.mu.Lock()
	st.subscribers = append(st.subscribers, ch)
	st.mu.Unlock()
	return ch
}

func (st *statusTracker) notifyLocked() Status {
	current := st.currentLocked()
	for _, ch := range st.subscribers {
		select {
		case ch <- current:
		default:
		}
	}
	return current
}
