package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"tlsclient/queue"
)

// RetryInterval is the fixed wait between connection attempts. Retries
// continue for the lifetime of the process; the worker is local and assumed
// eventually reachable.
const RetryInterval = 100 * time.Millisecond

// ErrClosed is returned by Send after Shutdown.
var ErrClosed = errors.New("transport: supervisor closed")

var errNotConnected = errors.New("transport: not connected")

// State is the channel lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

// Supervisor owns the control channel. It establishes the transport according
// to its role, retries indefinitely on failure, routes every inbound frame to
// the installed handler, and buffers outbound payloads while disconnected.
type Supervisor struct {
	addr    string
	role    Role
	deliver func(frame []byte)

	queue *queue.Queue

	mutex sync.Mutex
	conn  Transport
	state State

	ready     chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// host role only
	incoming chan Transport
	server   *http.Server
}

// NewSupervisor builds a supervisor for the control channel at host:port.
// deliver is invoked with every inbound frame, from a single goroutine.
func NewSupervisor(addr string, role Role, deliver func(frame []byte)) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		addr:     addr,
		role:     role,
		deliver:  deliver,
		ready:    make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan Transport, 1),
	}
	s.queue = queue.NewQueue(queue.DefaultFlushInterval, s.isConnected, s.write)
	return s
}

// Start launches the supervision loop. In the host role it also starts the
// accept server the worker will dial into.
func (s *Supervisor) Start() {
	if s.role == RoleHost {
		s.wg.Add(1)
		go s.listen()
	}
	s.wg.Add(1)
	go s.run()
}

// Ready returns a channel closed once the first connection is established.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// State reports the current channel state.
func (s *Supervisor) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Send writes the payload if connected, otherwise buffers it until the
// channel comes up. Transport-level failures are absorbed: the payload is
// queued, never failed.
func (s *Supervisor) Send(payload []byte) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	if err := s.write(payload); err != nil {
		s.queue.Enqueue(payload)
	}
	return nil
}

// QueueLen reports how many payloads are waiting for connectivity.
func (s *Supervisor) QueueLen() int {
	return s.queue.Len()
}

// Shutdown closes the transport and stops all supervision. No inbound frame
// is delivered after it returns; ctx bounds how long to wait for that.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.cancel()
	s.queue.Shutdown()

	s.mutex.Lock()
	conn := s.conn
	server := s.server
	s.mutex.Unlock()
	if conn != nil {
		conn.Close()
	}
	if server != nil {
		server.Close()
	}
	select {
	case spare := <-s.incoming:
		spare.Close()
	default:
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the supervision loop: establish, install, read until failure,
// tear down, repeat.
func (s *Supervisor) run() {
	defer s.wg.Done()
	for {
		conn := s.establish()
		if conn == nil {
			return
		}
		if !s.install(conn) {
			return
		}
		s.readLoop(conn)
		s.teardown(conn)
		if s.ctx.Err() != nil {
			return
		}
		log.Debugf("Control channel lost, reconnecting to %s", s.addr)
	}
}

// establish blocks until a transport is available or shutdown begins, in
// which case it returns nil.
func (s *Supervisor) establish() Transport {
	s.setState(Connecting)

	if s.role == RoleHost {
		select {
		case conn := <-s.incoming:
			return conn
		case <-s.ctx.Done():
			return nil
		}
	}

	b := &backoff.Backoff{
		Min:    RetryInterval,
		Max:    RetryInterval,
		Factor: 1,
	}
	for {
		conn, err := Dial(s.ctx, s.addr)
		if err == nil {
			return conn
		}
		log.Debugf("Connect to %s failed: %v", s.addr, err)
		select {
		case <-time.After(b.Duration()):
		case <-s.ctx.Done():
			return nil
		}
	}
}

// install publishes the new transport. The shutdown check happens under the
// same mutex Shutdown uses to snapshot the conn, so a connect racing Shutdown
// either gets closed here or becomes visible to Shutdown's snapshot — never
// neither. Returns false when shutdown won the race.
func (s *Supervisor) install(conn Transport) bool {
	s.mutex.Lock()
	if s.ctx.Err() != nil {
		s.mutex.Unlock()
		conn.Close()
		return false
	}
	s.conn = conn
	s.state = Connected
	s.mutex.Unlock()

	log.Debugf("Control channel to %s established (%s role)", s.addr, s.role)
	s.readyOnce.Do(func() {
		close(s.ready)
	})
	s.queue.Flush()
	return true
}

func (s *Supervisor) readLoop(conn Transport) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.deliver(frame)
	}
}

func (s *Supervisor) teardown(conn Transport) {
	s.mutex.Lock()
	if s.conn == conn {
		s.conn = nil
		s.state = Disconnected
	}
	s.mutex.Unlock()
	conn.Close()
}

func (s *Supervisor) setState(state State) {
	s.mutex.Lock()
	s.state = state
	s.mutex.Unlock()
}

func (s *Supervisor) isConnected() bool {
	return s.State() == Connected
}

// write sends directly on the current transport. Used by Send and by the
// queue's flush.
func (s *Supervisor) write(payload []byte) error {
	s.mutex.Lock()
	conn := s.conn
	state := s.state
	s.mutex.Unlock()
	if state != Connected || conn == nil {
		return errNotConnected
	}
	return conn.WriteMessage(payload)
}

// listen runs the host-role accept server. Each upgraded connection is handed
// to the supervision loop; at most one spare connection is held for use after
// a loss, extras are refused.
func (s *Supervisor) listen() {
	defer s.wg.Done()

	upgrader := websocket.Upgrader{
		// The worker connects from localhost without an Origin header.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debugf("Worker upgrade failed: %v", err)
			return
		}
		conn := newWSTransport(wsConn)
		select {
		case s.incoming <- conn:
		default:
			log.Debugf("Refusing extra worker connection from %s", r.RemoteAddr)
			conn.Close()
		}
	})

	for {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			// Lost the bind race after the probe; wait and try again.
			log.Debugf("Listen on %s failed: %v", s.addr, err)
			select {
			case <-time.After(RetryInterval):
				continue
			case <-s.ctx.Done():
				return
			}
		}

		server := &http.Server{Handler: handler}
		s.mutex.Lock()
		s.server = server
		s.mutex.Unlock()
		if s.ctx.Err() != nil {
			// Shutdown raced the listen; it may have missed this server.
			server.Close()
			return
		}

		server.Serve(ln)
		if s.ctx.Err() != nil {
			return
		}
	}
}
