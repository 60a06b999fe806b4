package codec

import (
	"encoding/binary"
	"net"

	"github.com/mcbridged/mcbridged/internal/errs"
)

const (
	IPv6HeaderLen          = 40
	HopByHopRouterAlertLen = 8 // header-extension-length 0: 8 bytes total

	NextHeaderHopByHop = 0
	NextHeaderICMPv6   = 58
)

// BuildIPv6Header builds the 40-byte fixed IPv6 header (hop limit 1,
// traffic class 0) followed by an 8-byte Hop-by-Hop Options header
// carrying the Router Alert option (option 5, len 2, value 0) and a PadN
// option filling out to the 8-byte boundary. upperLen is the length of
// the ICMPv6/IGMP payload that follows the Hop-by-Hop header.
func BuildIPv6Header(upperLen int, src, dst [16]byte) []byte {
	buf := make([]byte, IPv6HeaderLen+HopByHopRouterAlertLen)
	buf[0] = 0x60 // version 6, traffic class 0, flow label 0
	binary.BigEndian.PutUint16(buf[4:6], uint16(HopByHopRouterAlertLen+upperLen))
	buf[6] = NextHeaderHopByHop
	buf[7] = 1 // hop limit
	copy(buf[8:24], src[:])
	copy(buf[24:40], dst[:])

	hbh := buf[40:48]
	hbh[0] = NextHeaderICMPv6
	hbh[1] = 0 // header extension length 0
	hbh[2] = 5 // Router Alert option type
	hbh[3] = 2 // option data length
	hbh[4] = 0
	hbh[5] = 0 // value 0 (MLD)
	hbh[6] = 1 // PadN option type
	hbh[7] = 0 // PadN length 0

	return buf
}

// PatchIPv6Dest rewrites the destination address in place. IPv6 headers
// carry no checksum of their own; ICMPv6PseudoChecksum must be
// recomputed by the caller after patching.
func PatchIPv6Dest(hdr []byte, dst [16]byte) {
	copy(hdr[24:40], dst[:])
}

// IPv6Header is the parsed view of an inbound frame through the
// Hop-by-Hop Options header.
type IPv6Header struct {
	Src, Dst    [16]byte
	RouterAlert bool
	NextHeader  byte
}

// ParseIPv6Header parses the fixed header and, if present, a single
// Hop-by-Hop Options extension header, noting the Router Alert option.
func ParseIPv6Header(buf []byte) (IPv6Header, []byte, error) {
	if len(buf) < IPv6HeaderLen {
		return IPv6Header{}, nil, &errs.WireFormatError{Layer: "ipv6", Reason: "short header"}
	}
	if buf[0]>>4 != 6 {
		return IPv6Header{}, nil, &errs.WireFormatError{Layer: "ipv6", Reason: "bad version"}
	}
	var h IPv6Header
	copy(h.Src[:], buf[8:24])
	copy(h.Dst[:], buf[24:40])
	nextHeader := buf[6]
	rest := buf[IPv6HeaderLen:]

	if nextHeader == NextHeaderHopByHop {
		if len(rest) < 8 {
			return IPv6Header{}, nil, &errs.WireFormatError{Layer: "ipv6", Reason: "short hop-by-hop header"}
		}
		hdrExtLen := int(rest[1])
		hbhLen := (hdrExtLen + 1) * 8
		if len(rest) < hbhLen {
			return IPv6Header{}, nil, &errs.WireFormatError{Layer: "ipv6", Reason: "short hop-by-hop options"}
		}
		h.NextHeader = rest[0]
		for off := 2; off < hbhLen; {
			optType := rest[off]
			if optType == 0 { // Pad1
				off++
				continue
			}
			if off+1 >= hbhLen {
				break
			}
			optLen := int(rest[off+1])
			if optType == 5 {
				h.RouterAlert = true
			}
			off += 2 + optLen
		}
		rest = rest[hbhLen:]
	} else {
		h.NextHeader = nextHeader
	}

	return h, rest, nil
}

// To16Array converts a net.IP to its fixed 16-byte array form.
func To16Array(ip net.IP) [16]byte {
	var out [16]byte
	copy(out[:], ip.To16())
	return out
}
