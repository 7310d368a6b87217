package netstat

import (
	"context"
	"fmt"

	gopsnet "github.com/shirou/gopsutil/v3/net"
)

// tcpEstablished is the connection status string reported by gopsutil for
// fully established TCP connections.
const tcpEstablished = "ESTABLISHED"

// SystemSource reads established TCP connections of the local device via
// gopsutil.
type SystemSource struct{}

// NewSystemSource returns a Source backed by the live system tables.
func NewSystemSource() *SystemSource {
	return &SystemSource{}
}

func (s *SystemSource) EstablishedConnections(ctx context.Context) ([]Connection, error) {
	stats, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to list tcp connections: %w", err)
	}

	connections := make([]Connection, 0, len(stats))
	for _, stat := range stats {
		if stat.Status != tcpEstablished {
			continue
		}
		connections = append(connections, Connection{
			RemoteIP:   stat.Raddr.IP,
			RemotePort: stat.Raddr.Port,
		})
	}

	return connections, nil
}
