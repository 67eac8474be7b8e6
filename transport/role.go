package transport

import (
	"net"
	"strconv"
)

// Role is which side of the control channel this process plays.
type Role int

const (
	// RoleHost listens for the worker to connect.
	RoleHost Role = iota
	// RoleClient connects out to an already-running worker.
	RoleClient
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "client"
}

// Negotiate probes whether host:port is free. If binding succeeds the port is
// unclaimed and this process takes the host role; if binding fails something
// (presumably the worker) already owns the port and this process connects as
// a client. The probe is a liveness heuristic, not a lock: the port can change
// hands between the probe and the actual listen/connect. That race is an
// accepted tradeoff.
func Negotiate(host string, port int) Role {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return RoleClient
	}
	ln.Close()
	return RoleHost
}
