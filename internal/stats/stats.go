// Package stats exposes read-only operational counters per subsystem: a
// firewall operator wants to see query/report/leave volume and capacity
// drops without instrumenting the control plane itself.
package stats

import "sync/atomic"

// Counters is a set of atomic counters safe to increment from a
// control-plane thread and read from any goroutine (e.g. an operator
// status endpoint).
type Counters struct {
	queries   atomic.Uint64
	reports   atomic.Uint64
	leaves    atomic.Uint64
	drops     atomic.Uint64
	malformed atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters, safe to log or encode.
type Snapshot struct {
	Queries   uint64
	Reports   uint64
	Leaves    uint64
	Drops     uint64
	Malformed uint64
}

func (c *Counters) IncQuery()     { c.queries.Add(1) }
func (c *Counters) IncReport()    { c.reports.Add(1) }
func (c *Counters) IncLeave()     { c.leaves.Add(1) }
func (c *Counters) IncDrop()      { c.drops.Add(1) }
func (c *Counters) IncMalformed() { c.malformed.Add(1) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Queries:   c.queries.Load(),
		Reports:   c.reports.Load(),
		Leaves:    c.leaves.Load(),
		Drops:     c.drops.Load(),
		Malformed: c.malformed.Load(),
	}
}
