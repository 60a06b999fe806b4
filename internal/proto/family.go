// Package proto implements the generic control-plane engine shared by the
// IGMP and MLD subsystems: one event loop per interface set, wired to the
// packet codecs, the group table, the querier and membership state
// machines, and the MRD scheduler. The two protocols are structurally
// identical; rather than duplicating the engine per address family, a
// single Subsystem is parameterized by a Family strategy that supplies
// every protocol-specific concern: wire codecs, addresses, defaults, and
// the two timer formulas that differ between the protocols.
package proto

import (
	"net"

	"github.com/mcbridged/mcbridged/internal/codec"
	"github.com/mcbridged/mcbridged/internal/grouptable"
)

// Family is the strategy interface that turns the generic Subsystem into
// IGMP or MLD. Two concrete implementations exist: igmp.family and
// mld.family.
type Family interface {
	// Name identifies the family for logging ("igmp" or "mld").
	Name() string

	// AddrLen is 4 for IGMP/IPv4, 16 for MLD/IPv6.
	AddrLen() int

	// LinkScope reports whether addr is in the protocol's link-scope
	// range, which is never tracked or bridged:
	// 224.0.0.0/24 for IGMP, ff02::/16 for MLD.
	LinkScope(addr net.IP) bool

	// ProtocolNumber is the IP protocol / next-header number that carries
	// the family's messages: 2 (IGMP) for IGMP, 58 (ICMPv6) for MLD.
	ProtocolNumber() int

	// DefaultQRV, DefaultQueryIntervalSec, DefaultMaxRespMs,
	// DefaultLastMemberMs are the protocol defaults adopted when a query
	// carries no explicit parameters.
	DefaultQRV() int
	DefaultQueryIntervalSec() int
	DefaultMaxRespMs() int
	DefaultLastMemberMs() int

	// HasV1HostCompat reports whether this family runs the v1-host
	// compatibility timer (IGMP only).
	HasV1HostCompat() bool

	// JoinInterval computes the family-specific group-membership join
	// timer: membership.IGMPJoinInterval or membership.MLDJoinInterval.
	JoinInterval(qrv, queryIntervalSec, maxRespMs int) int

	// BuildGeneralQuery builds a full outbound frame (link layer through
	// protocol payload) for a general (group-less) membership query.
	BuildGeneralQuery(ifc *grouptable.Interface, sFlag bool, qrv, qqiSec, maxRespMs int) []byte

	// BuildGroupQuery builds a full outbound frame for a group-specific
	// query.
	BuildGroupQuery(ifc *grouptable.Interface, group net.IP, sFlag bool, qrv, qqiSec, maxRespMs int) []byte

	// PatchGroupQuery rewrites a previously built group-specific-query
	// frame in place for a repeat emission within the same last-member
	// burst: the destination MAC and network-layer address (derived from
	// group) and the S flag, recomputing only the checksum(s) the patch
	// invalidates: the IPv4 header and IGMP checksums for IGMP, the ICMPv6 checksum
	// (which covers the pseudo-header's addresses) for MLD. Callers only
	// reach for this when frame already holds a query for the same
	// interface; BuildGroupQuery is used instead whenever the group
	// changes.
	PatchGroupQuery(ifc *grouptable.Interface, frame []byte, group net.IP, sFlag bool)

	// BuildMRDAdvert builds a full outbound MRD advertisement frame.
	BuildMRDAdvert(ifc *grouptable.Interface, advertSec, qqiSec, qrv int) []byte

	// BuildMRDSolicit builds a full outbound MRD solicitation frame, used
	// only by a host-mode collaborator; present for completeness.
	BuildMRDSolicit(ifc *grouptable.Interface) []byte

	// ParseInbound parses an inbound captured frame, from the Ethernet
	// header through the protocol payload, verifying every layer's
	// checksum and the Router Alert option, and returns the sender's
	// network-layer source address alongside the decoded message.
	ParseInbound(frame []byte) (msg codec.Message, src net.IP, err error)
}
