package codec

import (
	"encoding/binary"
	"net"

	"github.com/mcbridged/mcbridged/internal/errs"
)

// IGMP message types (RFC 2236 §2, RFC 3376 §4), named after
// gopacket/layers' IGMPType constants for the same values.
const (
	igmpMembershipQuery    byte = 0x11
	igmpMembershipReportV1 byte = 0x12
	igmpMembershipReportV2 byte = 0x16
	igmpLeaveGroup         byte = 0x17
	igmpMembershipReportV3 byte = 0x22

	igmpMRDAdvertisement byte = 0x30
	igmpMRDSolicitation  byte = 0x31
)

const (
	IGMPProtocolNumber = 2

	AddrAllSystems  = "224.0.0.1"
	AddrAllSnoopers = "224.0.0.106"
	AddrMRDSolicit  = "224.0.0.2"
)

// BuildIGMPQuery builds an IGMPv3 Membership Query (RFC 3376 §4.1). group
// is nil for a general query; sFlag and qrv/qqi patch the S/QRV byte and
// QQIC field. maxRespMs is in milliseconds (tenths of a second on the
// wire).
func BuildIGMPQuery(group net.IP, maxRespMs int, sFlag bool, qrv, qqiSeconds int) []byte {
	buf := make([]byte, 12)
	buf[0] = igmpMembershipQuery
	buf[1] = Encode8(maxRespMs / 100)
	if group != nil {
		copy(buf[4:8], group.To4())
	}
	srBit := byte(0)
	if sFlag {
		srBit = 0x08
	}
	buf[8] = srBit | byte(qrv&0x07)
	buf[9] = Encode8(qqiSeconds)
	binary.BigEndian.PutUint16(buf[10:12], 0) // no sources

	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[2:4], Checksum(buf))
	return buf
}

// PatchIGMPQueryGroupAndS rewrites the group address and S flag on a
// previously built general/group-specific query template and recomputes
// the checksum.
func PatchIGMPQueryGroupAndS(buf []byte, group net.IP, sFlag bool) {
	copy(buf[4:8], group.To4())
	if sFlag {
		buf[8] |= 0x08
	} else {
		buf[8] &^= 0x08
	}
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[2:4], Checksum(buf))
}

// BuildIGMPv2Report builds a legacy IGMPv2 Membership Report.
func BuildIGMPv2Report(group net.IP) []byte {
	return buildSimpleIGMP(igmpMembershipReportV2, group)
}

// BuildIGMPv2Leave builds an IGMPv2 Leave Group message.
func BuildIGMPv2Leave(group net.IP) []byte {
	return buildSimpleIGMP(igmpLeaveGroup, group)
}

func buildSimpleIGMP(typ byte, group net.IP) []byte {
	buf := make([]byte, 8)
	buf[0] = typ
	copy(buf[4:8], group.To4())
	binary.BigEndian.PutUint16(buf[2:4], Checksum(buf))
	return buf
}

// BuildMRDAdvertIPv4 builds an IGMP-type MRD Advertisement (RFC 4286
// §2.1): type 0x30, the advertisement interval in the byte next to the
// type, then the 16-bit query interval and robustness fields.
func BuildMRDAdvertIPv4(advertIntervalSeconds, qqiSeconds, qrv int) []byte {
	buf := make([]byte, 8)
	buf[0] = igmpMRDAdvertisement
	buf[1] = byte(advertIntervalSeconds)
	binary.BigEndian.PutUint16(buf[4:6], uint16(qqiSeconds))
	binary.BigEndian.PutUint16(buf[6:8], uint16(qrv))
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[2:4], Checksum(buf))
	return buf
}

// BuildMRDSolicitIPv4 builds an IGMP-type MRD Solicitation (RFC 4286
// §2.2): type 0x31.
func BuildMRDSolicitIPv4() []byte {
	buf := make([]byte, 4)
	buf[0] = igmpMRDSolicitation
	binary.BigEndian.PutUint16(buf[2:4], Checksum(buf))
	return buf
}

// ParseIGMP parses an IGMP message body (after the IPv4 header),
// rejecting on length underrun or checksum mismatch. An unknown v3 group
// record type aborts processing of the current report, retaining the
// effects already applied from earlier records; callers detect this by
// the returned Records slice being shorter than the header's declared
// count.
func ParseIGMP(buf []byte) (Message, error) {
	if len(buf) < 4 {
		return Message{}, &errs.WireFormatError{Layer: "igmp", Reason: "short header"}
	}
	if Checksum(buf) != 0 {
		return Message{}, &errs.WireFormatError{Layer: "igmp", Reason: "bad checksum"}
	}

	typ := buf[0]
	if typ == igmpMRDSolicitation {
		// The only 4-byte IGMP message: type, reserved, checksum.
		return Message{Kind: KindMRDSolicit}, nil
	}
	if len(buf) < 8 {
		return Message{}, &errs.WireFormatError{Layer: "igmp", Reason: "short header"}
	}
	group := net.IP(append([]byte(nil), buf[4:8]...))

	switch typ {
	case igmpMembershipQuery:
		m := Message{}
		if !group.Equal(net.IPv4zero) {
			m.Group = group
		}
		if len(buf) == 8 {
			maxResp := int(buf[1])
			m.MaxResp = maxResp * 100
			if maxResp == 0 {
				m.Kind = KindQueryV1
			} else {
				m.Kind = KindQueryV2
			}
			return m, nil
		}
		if len(buf) < 12 {
			return Message{}, &errs.WireFormatError{Layer: "igmp", Reason: "short v3 query"}
		}
		m.Kind = KindQueryV3
		m.MaxResp = Decode8(buf[1]) * 100
		m.SFlag = buf[8]&0x08 != 0
		m.QRV = int(buf[8] & 0x07)
		m.QQI = Decode8(buf[9])
		numSrc := int(binary.BigEndian.Uint16(buf[10:12]))
		if len(buf) < 12+numSrc*4 {
			return Message{}, &errs.WireFormatError{Layer: "igmp", Reason: "source list overrun"}
		}
		return m, nil

	case igmpMembershipReportV1:
		return Message{Kind: KindReportV1, Group: group}, nil
	case igmpMembershipReportV2:
		return Message{Kind: KindReportV2, Group: group}, nil
	case igmpLeaveGroup:
		return Message{Kind: KindLeave, Group: group}, nil

	case igmpMembershipReportV3:
		if len(buf) < 8 {
			return Message{}, &errs.WireFormatError{Layer: "igmp", Reason: "short v3 report"}
		}
		numGroups := int(binary.BigEndian.Uint16(buf[6:8]))
		records, err := parseV3GroupRecords(buf[8:], numGroups, 4)
		return Message{Kind: KindReportV3, Records: records}, err

	case igmpMRDAdvertisement:
		if len(buf) < 8 {
			return Message{}, &errs.WireFormatError{Layer: "igmp-mrd", Reason: "short advertisement"}
		}
		return Message{
			Kind:              KindMRDAdvert,
			MRDAdvertInterval: int(buf[1]),
			MRDQQI:            int(binary.BigEndian.Uint16(buf[4:6])),
			MRDQRV:            int(binary.BigEndian.Uint16(buf[6:8])),
		}, nil

	default:
		return Message{Kind: KindUnknown}, &errs.WireFormatError{Layer: "igmp", Reason: "unknown type"}
	}
}

// parseV3GroupRecords parses up to numGroups IGMPv3/MLDv2 group records
// from buf. addrLen is 4 for IGMP, 16 for MLD. On an unknown record type
// or a length underrun mid-record, it stops and returns the records
// successfully parsed so far plus a WireFormatError; the caller applies
// only the returned records.
func parseV3GroupRecords(buf []byte, numGroups int, addrLen int) ([]GroupRecord, error) {
	var records []GroupRecord
	off := 0
	for i := 0; i < numGroups; i++ {
		if off+4+addrLen > len(buf) {
			return records, &errs.WireFormatError{Layer: "group-record", Reason: "data overrun"}
		}
		rtype := RecordType(buf[off])
		auxLen := int(buf[off+1])
		numSrc := int(binary.BigEndian.Uint16(buf[off+2 : off+4]))
		addrOff := off + 4
		group := net.IP(append([]byte(nil), buf[addrOff:addrOff+addrLen]...))
		recordLen := 4 + addrLen + numSrc*addrLen + auxLen*4
		if off+recordLen > len(buf) {
			return records, &errs.WireFormatError{Layer: "group-record", Reason: "data overrun"}
		}
		switch rtype {
		case ModeIsInclude, ModeIsExclude, ChangeToInclude, ChangeToExclude, AllowNewSources, BlockOldSources:
			records = append(records, GroupRecord{Type: rtype, Group: group, NumSources: numSrc})
		default:
			return records, &errs.WireFormatError{Layer: "group-record", Reason: "unknown record type"}
		}
		off += recordLen
	}
	return records, nil
}
