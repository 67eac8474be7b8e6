package transport

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// reserveAddr grabs a free localhost address and releases it so a test can
// decide when something starts listening there.
func reserveAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// fakeWorker is a websocket endpoint standing in for the worker process. It
// records every inbound frame and exposes accepted connections so tests can
// write envelopes back.
type fakeWorker struct {
	server *http.Server
	frames chan []byte
	conns  chan *websocket.Conn
}

func startFakeWorker(t *testing.T, addr string) *fakeWorker {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("worker listen: %v", err)
	}
	w := &fakeWorker{
		frames: make(chan []byte, 16),
		conns:  make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	w.server = &http.Server{Handler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		w.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			w.frames <- data
		}
	})}
	go w.server.Serve(ln)
	t.Cleanup(func() { w.server.Close() })
	return w
}

func shutdown(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestSupervisor_RetriesUntilWorkerAppearsAndFlushesQueue(t *testing.T) {
	addr := reserveAddr(t)
	s := NewSupervisor(addr, RoleClient, func([]byte) {})
	s.Start()
	defer shutdown(t, s)

	payload := `{"requestId":"q-1"}`
	if err := s.Send([]byte(payload)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("QueueLen = %d, want 1", s.QueueLen())
	}

	// Let several connection attempts fail before the worker shows up.
	time.Sleep(350 * time.Millisecond)
	worker := startFakeWorker(t, addr)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor never reached Connected")
	}

	select {
	case frame := <-worker.frames:
		if string(frame) != payload {
			t.Errorf("Worker received %q, want %q", frame, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Queued payload never flushed to worker")
	}

	// Exactly once.
	select {
	case frame := <-worker.frames:
		t.Fatalf("Payload duplicated: %q", frame)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSupervisor_QueuedPayloadsFlushInSubmissionOrder(t *testing.T) {
	addr := reserveAddr(t)
	s := NewSupervisor(addr, RoleClient, func([]byte) {})
	s.Start()
	defer shutdown(t, s)

	for _, payload := range []string{"first", "second", "third"} {
		if err := s.Send([]byte(payload)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	worker := startFakeWorker(t, addr)
	for _, want := range []string{"first", "second", "third"} {
		select {
		case frame := <-worker.frames:
			if string(frame) != want {
				t.Errorf("Worker received %q, want %q", frame, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timeout waiting for %q", want)
		}
	}
}

func TestSupervisor_DeliversInboundFrames(t *testing.T) {
	addr := reserveAddr(t)
	worker := startFakeWorker(t, addr)

	got := make(chan []byte, 1)
	s := NewSupervisor(addr, RoleClient, func(frame []byte) {
		got <- append([]byte(nil), frame...)
	})
	s.Start()
	defer shutdown(t, s)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor never connected")
	}

	var conn *websocket.Conn
	select {
	case conn = <-worker.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("Worker never accepted a connection")
	}

	inbound := `{"RequestID":"x","Status":200,"Body":"ok"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(inbound)); err != nil {
		t.Fatalf("worker write: %v", err)
	}

	select {
	case frame := <-got:
		if string(frame) != inbound {
			t.Errorf("Handler received %q, want %q", frame, inbound)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Inbound frame never handed to handler")
	}
}

func TestSupervisor_HostRoleAcceptsDialingWorker(t *testing.T) {
	addr := reserveAddr(t)
	got := make(chan []byte, 1)
	s := NewSupervisor(addr, RoleHost, func(frame []byte) {
		got <- append([]byte(nil), frame...)
	})
	s.Start()
	defer shutdown(t, s)

	// Dial in as the worker, retrying until the accept server is up.
	var conn *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr, nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker dial: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer conn.Close()

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Supervisor never reached Connected in host role")
	}

	payload := `{"requestId":"h-1"}`
	if err := s.Send([]byte(payload)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("worker read: %v", err)
	}
	if string(frame) != payload {
		t.Errorf("Worker received %q, want %q", frame, payload)
	}

	inbound := `{"RequestID":"h-1","Status":204}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(inbound)); err != nil {
		t.Fatalf("worker write: %v", err)
	}
	select {
	case frame := <-got:
		if string(frame) != inbound {
			t.Errorf("Handler received %q, want %q", frame, inbound)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Inbound frame never handed to handler")
	}
}

func TestSupervisor_ShutdownDuringConnectCompletesPromptly(t *testing.T) {
	// A worker is available immediately, so Shutdown can land anywhere in the
	// dial/install window; it must still return without waiting out its ctx.
	addr := reserveAddr(t)
	startFakeWorker(t, addr)

	for i := 0; i < 20; i++ {
		s := NewSupervisor(addr, RoleClient, func([]byte) {})
		s.Start()

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		err := s.Shutdown(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Shutdown during connect (attempt %d): %v", i, err)
		}
	}
}

func TestSupervisor_ShutdownInterruptsRetryLoop(t *testing.T) {
	addr := reserveAddr(t)
	s := NewSupervisor(addr, RoleClient, func([]byte) {})
	s.Start()

	// Let the retry loop spin.
	time.Sleep(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown while retrying: %v", err)
	}
	if err := s.Send([]byte("late")); err != ErrClosed {
		t.Errorf("Send after Shutdown = %v, want ErrClosed", err)
	}
}
