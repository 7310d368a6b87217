// Package netstat supplies the raw network-posture facts the report
// builder consumes.
//
// The engine only ever asks for the current list of established TCP
// connections; where that list comes from (the live system, a fixture) is
// behind the Source interface.
package netstat

import (
	"context"
	"strconv"
)

// Connection is one established TCP connection, reduced to the facts the
// report format carries.
type Connection struct {
	RemoteIP   string
	RemotePort uint32
}

// RemoteAddr formats the peer address as "<ip>:<port>".
func (c Connection) RemoteAddr() string {
	return c.RemoteIP + ":" + strconv.FormatUint(uint64(c.RemotePort), 10)
}

// Source supplies the current set of established TCP connections.
type Source interface {
	EstablishedConnections(ctx context.Context) ([]Connection, error)
}

// StaticSource is a Source backed by a fixed connection list. It backs
// engine tests and the agent's demo mode.
type StaticSource struct {
	Connections []Connection
	Err         error
}

func (s *StaticSource) EstablishedConnections(_ context.Context) ([]Connection, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Connection, len(s.Connections))
	copy(out, s.Connections)
	return out, nil
}
