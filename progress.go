package tagscan

import "sync"

// ScanState is the scheduler's position in a run.
type ScanState uint8

const (
	StateIdle ScanState = iota
	StateEnumerating
	StateScanning
	StateMerging
	StateDone
	StateCancelled
)

var scanStateNames = [...]string{"idle", "enumerating", "scanning", "merging", "done", "cancelled"}

func (s ScanState) String() string {
	if int(s) < len(scanStateNames) {
		return scanStateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON output.
func (s ScanState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Progress is a point-in-time view of a scan run.
type Progress struct {
	State          ScanState
	ArchivesTotal  int // archives that need decoding this run
	ArchivesDone   int
	CurrentArchive string
}

// progressHub holds the latest Progress and fans it out to subscribers.
// Sends never block: a slow subscriber only sees the newest value.
type progressHub struct {
	mu      sync.Mutex
	current Progress
	nextID  int
	subs    map[int]chan Progress
}

func (h *progressHub) get() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *progressHub) update(fn func(*Progress)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.current)
	for _, ch := range h.subs {
		offer(ch, h.current)
	}
}

func offer(ch chan Progress, p Progress) {
	select {
	case ch <- p:
		return
	default:
	}
	// Full: replace the stale value.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}

func (h *progressHub) subscribe() (<-chan Progress, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]chan Progress)
	}
	id := h.nextID
	h.nextID++
	ch := make(chan Progress, 1)
	ch <- h.current
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Progress returns the current progress of the running or last scan.
func (e *Engine) Progress() Progress {
	return e.progress.get()
}

// Subscribe returns a channel that receives progress updates, starting
// with the current value, and a function that ends the subscription and
// closes the channel. Updates are dropped in favor of newer ones when the
// receiver falls behind.
func (e *Engine) Subscribe() (<-chan Progress, func()) {
	return e.progress.subscribe()
}
