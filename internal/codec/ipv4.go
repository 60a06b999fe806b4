package codec

import (
	"encoding/binary"
	"net"

	"github.com/mcbridged/mcbridged/internal/errs"
)

// IPv4HeaderLen is IHL=5 words (20 bytes) plus the 4-byte Router Alert
// option, which mcbridged inserts unconditionally on emitted packets.
const IPv4HeaderLen = 24

// RouterAlertOptionIPv4 is the Router Alert option (type 0x94, length 4,
// value 0) appended after the fixed IPv4 header.
var RouterAlertOptionIPv4 = [4]byte{0x94, 0x04, 0x00, 0x00}

// BuildIPv4Header builds a 24-byte IPv4 header (IHL=6, TTL=1, TOS=0xC0, DF
// set) for a payload of payloadLen bytes of the given protocol, with the
// Router Alert option and header checksum already computed.
func BuildIPv4Header(payloadLen int, proto byte, src, dst net.IP) []byte {
	hdr := make([]byte, IPv4HeaderLen)
	hdr[0] = 0x46 // version 4, IHL 6 (24 bytes)
	hdr[1] = 0xC0 // TOS
	binary.BigEndian.PutUint16(hdr[2:4], uint16(IPv4HeaderLen+payloadLen))
	// Identification left zero; mcbridged never fragments.
	hdr[6] = 0x40 // Flags: DF set
	hdr[8] = 1    // TTL
	hdr[9] = proto
	src4 := src.To4()
	dst4 := dst.To4()
	copy(hdr[12:16], src4)
	copy(hdr[16:20], dst4)
	copy(hdr[20:24], RouterAlertOptionIPv4[:])

	binary.BigEndian.PutUint16(hdr[10:12], 0)
	binary.BigEndian.PutUint16(hdr[10:12], Checksum(hdr))
	return hdr
}

// PatchIPv4Dest rewrites the destination address in-place on a previously
// built header and recomputes the header checksum, the only field and
// checksum that change between emissions of the same template.
func PatchIPv4Dest(hdr []byte, dst net.IP) {
	copy(hdr[16:20], dst.To4())
	binary.BigEndian.PutUint16(hdr[10:12], 0)
	binary.BigEndian.PutUint16(hdr[10:12], Checksum(hdr))
}

// IPv4Header is the parsed, fixed-width-plus-options view of an inbound
// header.
type IPv4Header struct {
	Proto       byte
	Src, Dst    net.IP
	HeaderLen   int
	RouterAlert bool
}

// ParseIPv4Header parses buf's IPv4 header, verifying the header checksum
// and recording in RouterAlert whether the Router Alert option is present.
// It rejects short buffers and bad checksums; a header without Router
// Alert is not rejected here.
func ParseIPv4Header(buf []byte) (IPv4Header, []byte, error) {
	if len(buf) < 20 {
		return IPv4Header{}, nil, &errs.WireFormatError{Layer: "ipv4", Reason: "short header"}
	}
	version := buf[0] >> 4
	ihl := int(buf[0]&0x0f) * 4
	if version != 4 || ihl < 20 || len(buf) < ihl {
		return IPv4Header{}, nil, &errs.WireFormatError{Layer: "ipv4", Reason: "bad version/IHL"}
	}
	if Checksum(buf[:ihl]) != 0 {
		return IPv4Header{}, nil, &errs.WireFormatError{Layer: "ipv4", Reason: "bad checksum"}
	}

	h := IPv4Header{
		Proto:     buf[9],
		Src:       net.IP(append([]byte(nil), buf[12:16]...)),
		Dst:       net.IP(append([]byte(nil), buf[16:20]...)),
		HeaderLen: ihl,
	}
	for off := 20; off+1 < ihl; {
		opt := buf[off]
		if opt == 0x00 { // End of Options
			break
		}
		if opt == 0x01 { // NOP
			off++
			continue
		}
		optLen := int(buf[off+1])
		if optLen < 2 || off+optLen > ihl {
			break
		}
		if opt == 0x94 {
			h.RouterAlert = true
		}
		off += optLen
	}
	return h, buf[ihl:], nil
}
