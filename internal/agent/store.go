package agent

import (
	"errors"
	"sync/atomic"
)

// MinPeriod is the smallest accepted reporting period in seconds. The
// detection service throttles devices reporting more often than this.
const MinPeriod uint32 = 300

var (
	// ErrInvalidGroup is returned by SetMetrics for an unknown metrics
	// group.
	ErrInvalidGroup = errors.New("agent: invalid metrics group")

	// ErrPeriodTooShort is returned by SetPeriod for periods below
	// MinPeriod.
	ErrPeriodTooShort = errors.New("agent: period below minimum")
)

// MetricsGroup identifies a category of device telemetry. The set of groups
// is closed; values outside it are rejected, never clamped.
type MetricsGroup int

const (
	// GroupTCPConnections covers TCP connection state metrics.
	GroupTCPConnections MetricsGroup = iota

	groupCount
)

func (g MetricsGroup) String() string {
	switch g {
	case GroupTCPConnections:
		return "tcp_connections"
	default:
		return "unknown"
	}
}

// MetricsFlags selects which sub-fields of a group are collected. Flags of
// different groups are independent.
type MetricsFlags uint32

const (
	// FlagNone disables the group entirely.
	FlagNone MetricsFlags = 0

	// FlagEstablishedTotal reports the count of established connections.
	FlagEstablishedTotal MetricsFlags = 1 << 0

	// FlagEstablishedRemoteAddr reports the remote address of every
	// established connection.
	FlagEstablishedRemoteAddr MetricsFlags = 1 << 1

	// FlagAll enables every metric of the group.
	FlagAll = FlagEstablishedTotal | FlagEstablishedRemoteAddr
)

// Store holds the mutable reporting configuration: one flag set per metrics
// group and the reporting period.
//
// All fields are word-sized atomics, so a report cycle racing a
// configuration update observes either the old or the new value of each
// field, never a torn mix. Updates are visible to the next cycle, and to an
// in-flight cycle that has not yet snapshotted.
type Store struct {
	flags  [groupCount]atomic.Uint32
	period atomic.Uint32
}

// NewStore returns a store with all groups disabled and the period at
// MinPeriod.
func NewStore() *Store {
	s := &Store{}
	s.period.Store(MinPeriod)
	return s
}

// SetMetrics replaces the flags of group. Unknown groups fail with
// ErrInvalidGroup and leave the store untouched. Valid whether the agent is
// stopped or running.
func (s *Store) SetMetrics(group MetricsGroup, flags MetricsFlags) error {
	if group < 0 || group >= groupCount {
		return ErrInvalidGroup
	}
	s.flags[group].Store(uint32(flags))
	return nil
}

// Flags returns the current flags of group, or FlagNone for unknown groups.
func (s *Store) Flags(group MetricsGroup) MetricsFlags {
	if group < 0 || group >= groupCount {
		return FlagNone
	}
	return MetricsFlags(s.flags[group].Load())
}

// Snapshot returns the flags of every group, indexed by MetricsGroup. Each
// cycle snapshots once so the whole cycle works from one consistent view.
func (s *Store) Snapshot() []MetricsFlags {
	snapshot := make([]MetricsFlags, groupCount)
	for g := range s.flags {
		snapshot[g] = MetricsFlags(s.flags[g].Load())
	}
	return snapshot
}

// SetPeriod replaces the reporting period. Values below MinPeriod fail with
// ErrPeriodTooShort and leave the stored period unchanged. A new period
// applies from the next scheduled wait, not the one in progress.
func (s *Store) SetPeriod(seconds uint32) error {
	if seconds < MinPeriod {
		return ErrPeriodTooShort
	}
	s.period.Store(seconds)
	return nil
}

// Period returns the current reporting period in seconds.
func (s *Store) Period() uint32 {
	return s.period.Load()
}
