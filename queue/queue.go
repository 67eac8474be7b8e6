package queue

import (
	"sync"
	"time"
)

// Sender writes one payload to the transport.
type Sender func(payload []byte) error

// Queue buffers outbound payloads while no transport is connected and flushes
// them, in submission order, once one is. A flush timer is started lazily on
// the first enqueue and torn down after a successful full flush.
type Queue struct {
	pending      [][]byte
	mutex        sync.Mutex
	send         Sender
	connected    func() bool
	interval     time.Duration
	timerRunning bool
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	lastLogged   int
}

// DefaultFlushInterval is how often the flush timer checks for connectivity.
const DefaultFlushInterval = 100 * time.Millisecond

// NewQueue initializes a Queue. connected reports whether the transport is
// available; send writes a single payload to it.
func NewQueue(interval time.Duration, connected func() bool, send Sender) *Queue {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Queue{
		pending:    make([][]byte, 0),
		send:       send,
		connected:  connected,
		interval:   interval,
		shutdownCh: make(chan struct{}),
	}
}

// Enqueue appends a payload to the buffer and starts the flush timer if it is
// not already running.
func (q *Queue) Enqueue(payload []byte) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.pending = append(q.pending, payload)
	if !q.timerRunning {
		q.timerRunning = true
		go q.watch()
	}
}

// Flush sends every buffered payload in original submission order and clears
// the buffer. It returns true when everything was sent; on a send failure the
// unsent remainder is put back at the head of the buffer so nothing is lost
// and nothing is sent twice. Payloads enqueued while a flush is in progress
// are picked up by the next flush.
func (q *Queue) Flush() bool {
	q.mutex.Lock()
	batch := q.pending
	q.pending = make([][]byte, 0)
	q.mutex.Unlock()

	for i, payload := range batch {
		if err := q.send(payload); err != nil {
			log.Debugf("Flush interrupted after %d of %d payloads: %v", i, len(batch), err)
			q.mutex.Lock()
			q.pending = append(batch[i:], q.pending...)
			if !q.timerRunning {
				q.timerRunning = true
				go q.watch()
			}
			q.mutex.Unlock()
			return false
		}
	}
	return true
}

// Len reports the number of buffered payloads.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending)
}

// Shutdown stops the flush timer. Buffered payloads are retained but will not
// be flushed afterwards.
func (q *Queue) Shutdown() {
	q.shutdownOnce.Do(func() {
		close(q.shutdownCh)
	})
}

// watch periodically checks whether the transport has become available and
// flushes when it has. The timer tears itself down once the buffer has been
// fully drained.
func (q *Queue) watch() {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.logSize()
			if !q.connected() {
				continue
			}
			if q.Flush() && q.drained() {
				return
			}
		case <-q.shutdownCh:
			q.mutex.Lock()
			q.timerRunning = false
			q.mutex.Unlock()
			return
		}
	}
}

// drained stops the timer if the buffer is empty. It returns true when the
// timer should exit.
func (q *Queue) drained() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.pending) == 0 {
		q.timerRunning = false
		return true
	}
	return false
}

func (q *Queue) logSize() {
	q.mutex.Lock()
	currentSize := len(q.pending)
	if currentSize != q.lastLogged {
		log.Debugf("Queue size: %d", currentSize)
		q.lastLogged = currentSize
	}
	q.mutex.Unlock()
}
