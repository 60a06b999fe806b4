// Package mld instantiates the generic control-plane engine in
// internal/proto for IPv6: MLD v1/v2 membership tracking plus the
// ICMPv6-carried MRD advertisement/solicitation.
package mld

import (
	"net"

	"github.com/mcbridged/mcbridged/internal/codec"
	"github.com/mcbridged/mcbridged/internal/errs"
	"github.com/mcbridged/mcbridged/internal/eventloop"
	"github.com/mcbridged/mcbridged/internal/grouptable"
	"github.com/mcbridged/mcbridged/internal/logging"
	"github.com/mcbridged/mcbridged/internal/membership"
	"github.com/mcbridged/mcbridged/internal/proto"
)

type family struct{}

func (family) Name() string        { return "mld" }
func (family) AddrLen() int        { return 16 }
func (family) ProtocolNumber() int { return codec.NextHeaderICMPv6 }

func (family) LinkScope(addr net.IP) bool {
	ip16 := addr.To16()
	if ip16 == nil {
		return false
	}
	return ip16[0] == 0xff && ip16[1] == 0x02
}

func (family) DefaultQRV() int              { return 2 }
func (family) DefaultQueryIntervalSec() int { return 125 }
func (family) DefaultMaxRespMs() int        { return 10000 }
func (family) DefaultLastMemberMs() int     { return 1000 }
func (family) HasV1HostCompat() bool        { return false }

func (family) JoinInterval(qrv, queryIntervalSec, maxRespMs int) int {
	return membership.MLDJoinInterval(qrv, queryIntervalSec, maxRespMs)
}

func (family) BuildGeneralQuery(ifc *grouptable.Interface, sFlag bool, qrv, qqiSec, maxRespMs int) []byte {
	src, dst := codec.To16Array(ifc.LocalAddr), codec.To16Array(net.ParseIP(codec.AddrAllNodesLinkLocal))
	return assembleFrame(ifc, dst, codec.BuildMLDQuery(src, dst, nil, maxRespMs, sFlag, qrv, qqiSec))
}

func (family) BuildGroupQuery(ifc *grouptable.Interface, group net.IP, sFlag bool, qrv, qqiSec, maxRespMs int) []byte {
	src, dst := codec.To16Array(ifc.LocalAddr), codec.To16Array(group)
	return assembleFrame(ifc, dst, codec.BuildMLDQuery(src, dst, group, maxRespMs, sFlag, qrv, qqiSec))
}

// PatchGroupQuery rewrites frame's destination MAC/IP and S flag in
// place, recomputing the ICMPv6 checksum against the patched destination
// (the pseudo-header covers it) rather than rebuilding the whole frame.
func (family) PatchGroupQuery(ifc *grouptable.Interface, frame []byte, group net.IP, sFlag bool) {
	mac := codec.MulticastMACv6(group)
	copy(frame[0:6], mac[:])
	ipHdrEnd := codec.EthernetHeaderLen + codec.IPv6HeaderLen + codec.HopByHopRouterAlertLen
	ipHdr := frame[codec.EthernetHeaderLen:ipHdrEnd]
	dst := codec.To16Array(group)
	codec.PatchIPv6Dest(ipHdr, dst)
	src := codec.To16Array(ifc.LocalAddr)
	payload := frame[ipHdrEnd:]
	codec.PatchMLDQueryGroupAndS(payload, src, dst, group, sFlag)
}

func (family) BuildMRDAdvert(ifc *grouptable.Interface, advertSec, qqiSec, qrv int) []byte {
	src, dst := codec.To16Array(ifc.LocalAddr), codec.To16Array(net.ParseIP(codec.AddrAllRoutersMRD))
	return assembleFrame(ifc, dst, codec.BuildMRDAdvertIPv6(src, dst, advertSec, qqiSec, qrv))
}

func (family) BuildMRDSolicit(ifc *grouptable.Interface) []byte {
	src, dst := codec.To16Array(ifc.LocalAddr), codec.To16Array(net.ParseIP(codec.AddrMRDSolicitV6))
	return assembleFrame(ifc, dst, codec.BuildMRDSolicitIPv6(src, dst))
}

func assembleFrame(ifc *grouptable.Interface, dst [16]byte, payload []byte) []byte {
	ipHdr := codec.BuildIPv6Header(len(payload), codec.To16Array(ifc.LocalAddr), dst)
	eth := codec.BuildEthernetHeader(codec.MulticastMACv6(net.IP(dst[:])), ifc.MAC, codec.EtherTypeIPv6)

	frame := make([]byte, 0, len(eth)+len(ipHdr)+len(payload))
	frame = append(frame, eth...)
	frame = append(frame, ipHdr...)
	frame = append(frame, payload...)
	return frame
}

func (family) ParseInbound(frame []byte) (codec.Message, net.IP, error) {
	_, payload, err := codec.ParseEthernetHeader(frame)
	if err != nil {
		return codec.Message{}, nil, err
	}
	ipHdr, mldBuf, err := codec.ParseIPv6Header(payload)
	if err != nil {
		return codec.Message{}, nil, err
	}
	if !ipHdr.RouterAlert {
		return codec.Message{}, nil, &errs.WireFormatError{Layer: "mld", Reason: "missing router alert"}
	}
	if ipHdr.NextHeader != codec.NextHeaderICMPv6 {
		return codec.Message{}, nil, &errs.WireFormatError{Layer: "mld", Reason: "unexpected next header"}
	}
	msg, err := codec.ParseMLD(ipHdr.Src, ipHdr.Dst, mldBuf)
	return msg, net.IP(ipHdr.Src[:]), err
}

// New builds the MLD control-plane engine, driven by loop.
func New(loop *eventloop.Loop, log logging.Logger, opts ...proto.Option) *proto.Subsystem {
	return proto.New(family{}, loop, log, opts...)
}
