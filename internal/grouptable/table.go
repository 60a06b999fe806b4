// Package grouptable implements the per-interface group table: a monotone
// fixed prefix of registered groups followed by a bounded dynamic suffix of
// learned groups, with slot reuse on insertion and trailing-slot eviction
// on expiry.
package grouptable

import (
	"net"

	"github.com/mcbridged/mcbridged/internal/logging"
	"github.com/mcbridged/mcbridged/internal/stats"
)

// OutboundHandle is an opaque data-plane subscriber toggled when a group's
// active state changes. The control↔data-plane coupling layer supplies
// concrete implementations; the group table only ever calls these two
// methods, and does so from the owning control-plane thread.
type OutboundHandle interface {
	Activate()
	Deactivate()
}

// Group is a single group-table entry.
type Group struct {
	Interface *Interface
	Addr      net.IP

	Active bool

	// V1HostPresent is IGMP-only: set by any received v1 report, cleared
	// by its own timer. MLD subsystems simply never set it.
	V1HostPresent bool

	// QueriesRemaining is the outstanding last-member query burst
	// countdown, in [0, robustness].
	QueriesRemaining int

	Subscribers []OutboundHandle

	fixed bool
}

// Subscribe appends a data-plane handle to the group's subscriber list.
// Called by the control↔data-plane coupling layer at registration time.
func (g *Group) Subscribe(h OutboundHandle) {
	g.Subscribers = append(g.Subscribers, h)
}

func (g *Group) activateOutbound() {
	for _, h := range g.Subscribers {
		h.Activate()
	}
}

func (g *Group) deactivateOutbound() {
	for _, h := range g.Subscribers {
		h.Deactivate()
	}
}

// Interface is the per-physical-interface group table plus identity fields
// carried alongside it. Capture handles, querier state, and the prebuilt
// packet templates live in the packages that own them (building and
// patching templates is internal/proto's Family-parameterized concern);
// this type is the table's anchor and backpointer target.
type Interface struct {
	Name      string
	Index     int
	MAC       [6]byte
	LocalAddr net.IP

	fixed   []*Group
	dynamic []*Group
	maxDyn  int

	log   logging.Logger
	stats *stats.Counters
}

// SetStats attaches an operational counters sink, incremented on capacity
// drops. Optional; a nil sink (the default) is a no-op.
func (ifc *Interface) SetStats(c *stats.Counters) {
	ifc.stats = c
}

// New builds an empty table for one physical interface. maxDyn is the
// dynamic suffix capacity (the non-configured-groups limit).
func New(name string, index int, mac [6]byte, localAddr net.IP, maxDyn int, log logging.Logger) *Interface {
	return &Interface{
		Name:      name,
		Index:     index,
		MAC:       mac,
		LocalAddr: localAddr,
		maxDyn:    maxDyn,
		log:       log,
	}
}

// RegisterFixed returns the fixed-prefix group record for addr, creating it
// if absent. Fixed entries are only ever created this way, at
// initialization, and are never evicted.
func (ifc *Interface) RegisterFixed(addr net.IP) *Group {
	for _, g := range ifc.fixed {
		if g.Addr.Equal(addr) {
			return g
		}
	}
	g := &Group{Interface: ifc, Addr: addr, fixed: true}
	ifc.fixed = append(ifc.fixed, g)
	return g
}

// FindOrInsert resolves addr to a group record: reject link-scope
// addresses, search
// the fixed prefix then the dynamic suffix, reuse the first inactive slot
// on a miss, else extend the suffix if capacity remains. linkScope reports
// whether addr is in the protocol's link-scope range (224.0.0.0/24 for
// IGMP, ff02::/16 for MLD) and is never tracked.
func (ifc *Interface) FindOrInsert(addr net.IP, linkScope func(net.IP) bool) (*Group, bool) {
	if linkScope(addr) {
		return nil, false
	}
	for _, g := range ifc.fixed {
		if g.Addr.Equal(addr) {
			return g, true
		}
	}

	var firstInactive *Group
	for _, g := range ifc.dynamic {
		if g.Addr.Equal(addr) && g.Active {
			return g, true
		}
		if firstInactive == nil && !g.Active {
			firstInactive = g
		}
	}

	if firstInactive != nil {
		firstInactive.Addr = addr
		firstInactive.V1HostPresent = false
		firstInactive.QueriesRemaining = 0
		firstInactive.Subscribers = nil
		return firstInactive, true
	}

	if len(ifc.dynamic) >= ifc.maxDyn {
		ifc.log.Errorf("%s: group list full, dropping %s", ifc.Name, addr)
		if ifc.stats != nil {
			ifc.stats.IncDrop()
		}
		return nil, false
	}

	g := &Group{Interface: ifc, Addr: addr}
	ifc.dynamic = append(ifc.dynamic, g)
	return g, true
}

// Lookup searches the fixed prefix then the dynamic suffix for addr
// without creating or reusing a slot, for callers that must act only on an
// already-known group.
func (ifc *Interface) Lookup(addr net.IP) (*Group, bool) {
	for _, g := range ifc.fixed {
		if g.Addr.Equal(addr) {
			return g, true
		}
	}
	for _, g := range ifc.dynamic {
		if g.Addr.Equal(addr) {
			return g, true
		}
	}
	return nil, false
}

// Tighten pops trailing inactive dynamic suffix slots, called after any
// group expiry.
func (ifc *Interface) Tighten() {
	n := len(ifc.dynamic)
	for n > 0 && !ifc.dynamic[n-1].Active {
		n--
	}
	ifc.dynamic = ifc.dynamic[:n]
}

// MarkActive marks g active, invoking Activate on every subscriber exactly
// once per transition from inactive to active.
func (g *Group) MarkActive() {
	if g.Active {
		return
	}
	g.Active = true
	g.activateOutbound()
}

// MarkInactive clears g's active flag and, if g is a fixed/registered
// entry, invokes Deactivate on every subscriber, then tightens the owning
// interface's dynamic suffix.
func (g *Group) MarkInactive() {
	g.Active = false
	if g.fixed {
		g.deactivateOutbound()
	}
	if g.Interface != nil {
		g.Interface.Tighten()
	}
}

// Fixed reports whether g is a fixed-prefix (registered) entry, as opposed
// to a dynamic (learned) one.
func (g *Group) Fixed() bool { return g.fixed }

// Dynamic returns a snapshot of the current dynamic suffix, for tests and
// diagnostics.
func (ifc *Interface) Dynamic() []*Group { return ifc.dynamic }

// FixedGroups returns a snapshot of the fixed prefix.
func (ifc *Interface) FixedGroups() []*Group { return ifc.fixed }
