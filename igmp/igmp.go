// Package igmp instantiates the generic control-plane engine in
// internal/proto for IPv4: IGMP v1/v2/v3 membership tracking plus the
// IGMP-carried MRD advertisement/solicitation.
package igmp

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

func (family) Name() string        { return "igmp" }
func (family) AddrLen() int        { return 4 }
func (family) ProtocolNumber() int { return codec.IGMPProtocolNumber }

func (family) LinkScope(addr net.IP) bool {
	ip4 := addr.To4()
	if ip4 == nil {
		return false
	}
	return ip4[0] == 224 && ip4[1] == 0 && ip4[2] == 0
}

func (family) DefaultQRV() int              { return 2 }
func (family) DefaultQueryIntervalSec() int { return 125 }
func (family) DefaultMaxRespMs() int        { return 10000 }
func (family) DefaultLastMemberMs() int     { return 1000 }
func (family) HasV1HostCompat() bool        { return true }

func (family) JoinInterval(qrv, queryIntervalSec, maxRespMs int) int {
	return membership.IGMPJoinInterval(qrv, queryIntervalSec, maxRespMs)
}

func (family) BuildGeneralQuery(ifc *grouptable.Interface, sFlag bool, qrv, qqiSec, maxRespMs int) []byte {
	dst := net.ParseIP(codec.AddrAllSystems)
	return assembleFrame(ifc, dst, codec.BuildIGMPQuery(nil, maxRespMs, sFlag, qrv, qqiSec))
}

func (family) BuildGroupQuery(ifc *grouptable.Interface, group net.IP, sFlag bool, qrv, qqiSec, maxRespMs int) []byte {
	return assembleFrame(ifc, group, codec.BuildIGMPQuery(group, maxRespMs, sFlag, qrv, qqiSec))
}

// PatchGroupQuery rewrites frame's destination MAC/IP and S flag in
// place: the caller holds a previously built group-query frame for the
// same interface and wants to re-emit it for a new group or with the S
// flag flipped, without rebuilding the Ethernet/IP headers and
// recomputing their checksums from scratch.
func (family) PatchGroupQuery(ifc *grouptable.Interface, frame []byte, group net.IP, sFlag bool) {
	mac := codec.MulticastMACv4(group)
	copy(frame[0:6], mac[:])
	ipHdr := frame[codec.EthernetHeaderLen : codec.EthernetHeaderLen+codec.IPv4HeaderLen]
	codec.PatchIPv4Dest(ipHdr, group)
	payload := frame[codec.EthernetHeaderLen+codec.IPv4HeaderLen:]
	codec.PatchIGMPQueryGroupAndS(payload, group, sFlag)
}

func (family) BuildMRDAdvert(ifc *grouptable.Interface, advertSec, qqiSec, qrv int) []byte {
	dst := net.ParseIP(codec.AddrAllSnoopers)
	return assembleFrame(ifc, dst, codec.BuildMRDAdvertIPv4(advertSec, qqiSec, qrv))
}

func (family) BuildMRDSolicit(ifc *grouptable.Interface) []byte {
	dst := net.ParseIP(codec.AddrMRDSolicit)
	return assembleFrame(ifc, dst, codec.BuildMRDSolicitIPv4())
}

func assembleFrame(ifc *grouptable.Interface, dst net.IP, payload []byte) []byte {
	ipHdr := codec.BuildIPv4Header(len(payload), codec.IGMPProtocolNumber, ifc.LocalAddr, dst)
	eth := codec.BuildEthernetHeader(codec.MulticastMACv4(dst), ifc.MAC, codec.EtherTypeIPv4)

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
	ipHdr, igmpBuf, err := codec.ParseIPv4Header(payload)
	if err != nil {
		return codec.Message{}, nil, err
	}
	if !ipHdr.RouterAlert {
		return codec.Message{}, nil, &errs.WireFormatError{Layer: "igmp", Reason: "missing router alert"}
	}
	if ipHdr.Proto != codec.IGMPProtocolNumber {
		return codec.Message{}, nil, &errs.WireFormatError{Layer: "igmp", Reason: "unexpected protocol"}
	}
	msg, err := codec.ParseIGMP(igmpBuf)
	return msg, ipHdr.Src, err
}

// New builds the IGMP control-plane engine, driven by loop.
func New(loop *eventloop.Loop, log logging.Logger, opts ...proto.Option) *proto.Subsystem {
	return proto.New(family{}, loop, log, opts...)
}
