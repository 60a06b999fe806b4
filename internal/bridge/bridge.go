// Package bridge implements the control↔data-plane coupling: the API by
// which a data-plane bridge interface declares a dynamic outbound interest
// in a specific multicast group, and the opaque handle through which group
// activity toggles that interface's forwarding.
package bridge

import (
	"net"
	"sync/atomic"

	"github.com/mcbridged/mcbridged/internal/grouptable"
)

// Handle is the opaque outbound subscriber the group table toggles when a
// group transitions between active and idle. inbound_active and
// outbound_active are read by the data-plane thread on every packet. The
// control-plane thread is the sole writer of outbound_active;
// inbound_active is written only through SetInboundActive, by the
// data-plane/config layer. A torn read is acceptable (the
// data plane re-checks per packet), so a single-writer,
// eventually-visible-reader discipline via atomic loads and stores is
// sufficient; no mutex is needed.
type Handle struct {
	name string

	inboundActive  atomic.Bool
	outboundActive atomic.Bool
}

// NewHandle constructs a Handle for a named data-plane outbound interface.
// Both flags start false: forwarding is inactive until the group it is
// registered against is observed active.
func NewHandle(name string) *Handle {
	return &Handle{name: name}
}

// Activate is invoked by the control plane when the group this handle
// subscribes to transitions to active. It is idempotent.
func (h *Handle) Activate() {
	h.outboundActive.Store(true)
}

// Deactivate is invoked when the subscribed group expires or is never
// observed. It is idempotent.
func (h *Handle) Deactivate() {
	h.outboundActive.Store(false)
}

// OutboundActive reports whether the data plane should currently forward
// onto this handle's interface. Called from the data-plane thread.
func (h *Handle) OutboundActive() bool {
	return h.outboundActive.Load()
}

// SetInboundActive records whether this handle's interface is currently
// configured as an inbound source for its bridge instance. This flag is
// owned by the data-plane/configuration layer, not by group membership,
// but shares the same relaxed-visibility contract.
func (h *Handle) SetInboundActive(active bool) {
	h.inboundActive.Store(active)
}

// InboundActive reports the most recently set inbound-active state.
func (h *Handle) InboundActive() bool {
	return h.inboundActive.Load()
}

// Name identifies the handle's data-plane outbound interface, for logging.
func (h *Handle) Name() string { return h.name }

// Registry is the per-subsystem (IGMP or MLD) owner of the register_group
// API. It ensures an interface record and a fixed-prefix group record
// exist for a group, appending the caller's Handle to that group's
// subscriber list.
type Registry struct {
	ifaces   map[string]*grouptable.Interface
	newIface func(name string) *grouptable.Interface
}

// NewRegistry builds a Registry. newIface lazily constructs a group table
// for an interface name the registry has not seen yet; the subsystem
// supplies this so the registry doesn't need to know about capture handles
// or link addresses.
func NewRegistry(newIface func(name string) *grouptable.Interface) *Registry {
	return &Registry{
		ifaces:   make(map[string]*grouptable.Interface),
		newIface: newIface,
	}
}

// RegisterGroup declares handle's interest in group: it ensures an
// interface record exists for ifaceName, ensures a fixed-prefix group
// record for group, and appends handle to that group's subscriber list.
func (r *Registry) RegisterGroup(ifaceName string, group net.IP, handle grouptable.OutboundHandle) *grouptable.Group {
	ifc, ok := r.ifaces[ifaceName]
	if !ok {
		ifc = r.newIface(ifaceName)
		r.ifaces[ifaceName] = ifc
	}
	g := ifc.RegisterFixed(group)
	g.Subscribe(handle)
	return g
}

// Interface returns the group table for ifaceName, or nil if register_group
// was never called for it.
func (r *Registry) Interface(ifaceName string) *grouptable.Interface {
	return r.ifaces[ifaceName]
}

// Interfaces returns every interface the registry has created, for
// subsystems that need to iterate all group tables (e.g. to build capture
// handles at startup).
func (r *Registry) Interfaces() map[string]*grouptable.Interface {
	return r.ifaces
}
