package dispatch

import (
	"encoding/json"
	"sync"
)

// Table is a one-shot correlation table. Each registered request id maps to a
// completion channel that receives exactly one envelope and is then forgotten.
type Table struct {
	// pending maps request ID to a completion channel
	pending map[string]chan Envelope
	// mu protects the map from concurrent access
	mu sync.Mutex
}

// NewTable creates an empty correlation table.
func NewTable() *Table {
	return &Table{
		pending: make(map[string]chan Envelope),
	}
}

// Register stores a one-shot completion for the given request id and returns
// the channel the matching envelope will arrive on. The caller guarantees ids
// are unique among outstanding requests.
func (t *Table) Register(id string) <-chan Envelope {
	ch := make(chan Envelope, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

// Deliver routes a raw inbound frame to the completion registered for its
// request id and removes the registration. Frames that do not parse, or whose
// id has no registration (for example a response arriving after the caller
// gave up), are dropped.
func (t *Table) Deliver(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Debugf("Dropping unparseable frame (%d bytes): %v", len(frame), err)
		return
	}

	t.mu.Lock()
	ch, exists := t.pending[env.RequestID]
	if !exists {
		t.mu.Unlock()
		log.Debugf("Dropping orphaned response for request %s", env.RequestID)
		return
	}
	delete(t.pending, env.RequestID)
	t.mu.Unlock()

	// Send is non-blocking since the channel is buffered
	ch <- env
	close(ch)
}

// Discard abandons the completion for the given request id, if any. A later
// envelope for that id becomes an orphan and is dropped by Deliver.
func (t *Table) Discard(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// FailAll resolves every outstanding completion with an error envelope and
// empties the table. Used at shutdown so no caller is left waiting forever.
func (t *Table) FailAll(reason string) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]chan Envelope)
	t.mu.Unlock()

	for id, ch := range pending {
		ch <- Envelope{RequestID: id, Error: reason}
		close(ch)
	}
}

// Outstanding reports how many requests are awaiting a response.
func (t *Table) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
