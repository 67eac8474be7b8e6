package transport

import (
	"net"
	"strconv"
	"testing"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestNegotiate_FreePortTakesHostRole(t *testing.T) {
	port := freePort(t)
	if role := Negotiate("127.0.0.1", port); role != RoleHost {
		t.Errorf("Negotiate on free port = %s, want host", role)
	}
	// The probe must not keep the port bound.
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("Port still bound after probe: %v", err)
	}
	ln.Close()
}

func TestNegotiate_OccupiedPortTakesClientRole(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	if role := Negotiate("127.0.0.1", port); role != RoleClient {
		t.Errorf("Negotiate on occupied port = %s, want client", role)
	}
}
