// Package model defines the wire shape of a metrics report.
//
// A report is built once per reporting cycle and encoded with the codec the
// agent was configured with. Optional branches of the document use pointer
// fields with omitempty so that a sub-document is either fully present or
// entirely absent: the detection service treats an empty map and a missing
// map differently.
package model

// ReportVersion is the format version carried in every report header.
const ReportVersion = "1.0"

// Report is the top-level metrics report document.
type Report struct {
	Header  Header  `json:"header"`
	Metrics Metrics `json:"metrics"`
}

// Header carries report metadata outside the metrics map.
type Header struct {
	// ReportID is unique per device and strictly increasing between cycles.
	ReportID int64 `json:"report_id"`

	// Version of the report format.
	Version string `json:"version"`

	// ThingName identifies the reporting device.
	ThingName string `json:"thing_name"`
}

// Metrics holds one sub-document per metrics group. A group is present iff
// its configured flags are non-zero.
type Metrics struct {
	TCPConnections *TCPConnections `json:"tcp_connections,omitempty"`
}

// TCPConnections describes the TCP connection state of the device.
type TCPConnections struct {
	Established *EstablishedConnections `json:"established_connections,omitempty"`
}

// EstablishedConnections lists currently established TCP connections.
//
// Total and Connections are independently optional: each is present iff the
// corresponding metrics flag was set when the report was built.
// Connections is a pointer to a slice so that a requested-but-empty list
// encodes as [] instead of disappearing from the document.
type EstablishedConnections struct {
	Total       *int               `json:"total,omitempty"`
	Connections *[]ConnectionEntry `json:"connections,omitempty"`
}

// ConnectionEntry is one established connection.
type ConnectionEntry struct {
	// RemoteAddr is the peer address formatted as "<ip>:<port>".
	RemoteAddr string `json:"remote_addr"`
}
