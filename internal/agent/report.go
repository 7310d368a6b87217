package agent

import (
	"context"
	"fmt"

	"github.com/devicewatch-io/defender-agent/internal/model"
	"github.com/devicewatch-io/defender-agent/internal/netstat"
)

// buildReport assembles the report document for one cycle from a flags
// snapshot. Groups with FlagNone are omitted entirely; within a group only
// sub-fields whose bit is set appear.
func buildReport(ctx context.Context, reportID int64, thingName string, snapshot []MetricsFlags, source netstat.Source) (*model.Report, error) {
	report := &model.Report{
		Header: model.Header{
			ReportID:  reportID,
			Version:   model.ReportVersion,
			ThingName: thingName,
		},
	}

	tcpFlags := snapshot[GroupTCPConnections]
	if tcpFlags&FlagAll == 0 {
		return report, nil
	}

	connections, err := source.EstablishedConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect tcp connections: %w", err)
	}

	established := &model.EstablishedConnections{}

	if tcpFlags&FlagEstablishedTotal != 0 {
		total := len(connections)
		established.Total = &total
	}

	if tcpFlags&FlagEstablishedRemoteAddr != 0 {
		entries := make([]model.ConnectionEntry, 0, len(connections))
		for _, conn := range connections {
			entries = append(entries, model.ConnectionEntry{RemoteAddr: conn.RemoteAddr()})
		}
		established.Connections = &entries
	}

	report.Metrics.TCPConnections = &model.TCPConnections{Established: established}
	return report, nil
}
