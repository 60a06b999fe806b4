package codec

import (
	"encoding/binary"
	"net"

	"github.com/mcbridged/mcbridged/internal/errs"
)

// MLD/ICMPv6 message types (RFC 2710 §3, RFC 3810 §5, RFC 4286 §2).
const (
	mldQuery    byte = 130
	mldReportV1 byte = 131
	mldDoneV1   byte = 132
	mldReportV2 byte = 143

	mldMRDAdvertisement byte = 151
	mldMRDSolicitation  byte = 152
)

const (
	AddrAllNodesLinkLocal = "ff02::1"
	AddrAllRoutersMRD     = "ff02::6a"
	AddrMRDSolicitV6      = "ff02::2"
)

// BuildMLDQuery builds an MLDv2 Listener Query (RFC 3810 §5.1). group is
// nil (all-zero) for a general query. maxRespMs and qqiSeconds are
// already in the MLD wire's native units (milliseconds, seconds).
func BuildMLDQuery(src, dst [16]byte, group net.IP, maxRespMs int, sFlag bool, qrv, qqiSeconds int) []byte {
	buf := make([]byte, 28) // 24-byte MLDv1 fields + S/QRV(1) + QQIC(1) + NumSrc(2)
	buf[0] = mldQuery
	binary.BigEndian.PutUint16(buf[4:6], Encode16(maxRespMs))
	if group != nil {
		copy(buf[8:24], group.To16())
	}
	if sFlag {
		buf[24] = 0x08
	}
	buf[24] |= byte(qrv & 0x07)
	buf[25] = Encode8(qqiSeconds)
	binary.BigEndian.PutUint16(buf[26:28], 0) // no sources

	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[2:4], ICMPv6PseudoChecksum(src, dst, buf))
	return buf
}

// PatchMLDQueryGroupAndS rewrites the multicast address and S flag on a
// query template and recomputes the ICMPv6 checksum against the given
// (possibly also just-patched) IPv6 source/destination.
func PatchMLDQueryGroupAndS(buf []byte, src, dst [16]byte, group net.IP, sFlag bool) {
	copy(buf[8:24], group.To16())
	if sFlag {
		buf[24] |= 0x08
	} else {
		buf[24] &^= 0x08
	}
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[2:4], ICMPv6PseudoChecksum(src, dst, buf))
}

// BuildMLDv1Report builds a legacy MLDv1 Listener Report.
func BuildMLDv1Report(src, dst [16]byte, group net.IP) []byte {
	return buildSimpleMLD(mldReportV1, src, dst, group)
}

// BuildMLDv1Done builds an MLDv1 Listener Done (leave) message.
func BuildMLDv1Done(src, dst [16]byte, group net.IP) []byte {
	return buildSimpleMLD(mldDoneV1, src, dst, group)
}

func buildSimpleMLD(typ byte, src, dst [16]byte, group net.IP) []byte {
	buf := make([]byte, 24)
	buf[0] = typ
	copy(buf[8:24], group.To16())
	binary.BigEndian.PutUint16(buf[2:4], ICMPv6PseudoChecksum(src, dst, buf))
	return buf
}

// BuildMRDAdvertIPv6 builds an ICMPv6-type MRD Advertisement (RFC 4286
// §2.1, type 151).
func BuildMRDAdvertIPv6(src, dst [16]byte, advertIntervalSeconds, qqiSeconds, qrv int) []byte {
	buf := make([]byte, 8)
	buf[0] = mldMRDAdvertisement
	buf[1] = byte(advertIntervalSeconds)
	binary.BigEndian.PutUint16(buf[4:6], uint16(qqiSeconds))
	binary.BigEndian.PutUint16(buf[6:8], uint16(qrv))
	binary.BigEndian.PutUint16(buf[2:4], ICMPv6PseudoChecksum(src, dst, buf))
	return buf
}

// BuildMRDSolicitIPv6 builds an ICMPv6-type MRD Solicitation (type 152).
func BuildMRDSolicitIPv6(src, dst [16]byte) []byte {
	buf := make([]byte, 4)
	buf[0] = mldMRDSolicitation
	binary.BigEndian.PutUint16(buf[2:4], ICMPv6PseudoChecksum(src, dst, buf))
	return buf
}

// ParseMLD parses an MLD/ICMPv6 message body (after the IPv6 + optional
// Hop-by-Hop header), verifying the ICMPv6 pseudo-header checksum.
func ParseMLD(src, dst [16]byte, buf []byte) (Message, error) {
	if len(buf) < 4 {
		return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "short header"}
	}
	if ICMPv6PseudoChecksum(src, dst, buf) != 0 {
		return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "bad checksum"}
	}

	typ := buf[0]
	switch typ {
	case mldQuery:
		if len(buf) < 24 {
			return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "short query"}
		}
		group := net.IP(append([]byte(nil), buf[8:24]...))
		m := Message{}
		if !group.Equal(net.IPv6unspecified) {
			m.Group = group
		}
		if len(buf) == 24 {
			m.Kind = KindQueryV1
			m.MaxResp = int(binary.BigEndian.Uint16(buf[4:6]))
			return m, nil
		}
		if len(buf) < 28 {
			return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "short v2 query"}
		}
		m.Kind = KindQueryV3
		m.MaxResp = Decode16(binary.BigEndian.Uint16(buf[4:6]))
		m.SFlag = buf[24]&0x08 != 0
		m.QRV = int(buf[24] & 0x07)
		m.QQI = Decode8(buf[25])
		numSrc := int(binary.BigEndian.Uint16(buf[26:28]))
		if len(buf) < 28+numSrc*16 {
			return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "source list overrun"}
		}
		return m, nil

	case mldReportV1:
		if len(buf) < 24 {
			return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "short report"}
		}
		return Message{Kind: KindReportV1, Group: net.IP(append([]byte(nil), buf[8:24]...))}, nil

	case mldDoneV1:
		if len(buf) < 24 {
			return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "short done"}
		}
		return Message{Kind: KindLeave, Group: net.IP(append([]byte(nil), buf[8:24]...))}, nil

	case mldReportV2:
		if len(buf) < 8 {
			return Message{}, &errs.WireFormatError{Layer: "mld", Reason: "short v2 report"}
		}
		numGroups := int(binary.BigEndian.Uint16(buf[6:8]))
		records, err := parseV3GroupRecords(buf[8:], numGroups, 16)
		return Message{Kind: KindReportV3, Records: records}, err

	case mldMRDAdvertisement:
		if len(buf) < 8 {
			return Message{}, &errs.WireFormatError{Layer: "mld-mrd", Reason: "short advertisement"}
		}
		return Message{
			Kind:              KindMRDAdvert,
			MRDAdvertInterval: int(buf[1]),
			MRDQQI:            int(binary.BigEndian.Uint16(buf[4:6])),
			MRDQRV:            int(binary.BigEndian.Uint16(buf[6:8])),
		}, nil

	case mldMRDSolicitation:
		return Message{Kind: KindMRDSolicit}, nil

	default:
		return Message{Kind: KindUnknown}, &errs.WireFormatError{Layer: "mld", Reason: "unknown type"}
	}
}
