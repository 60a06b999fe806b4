// Package codec builds and parses the byte-exact frames mcbridged sends
// and receives: Ethernet, IPv4 (with Router Alert), IPv6 (with Hop-by-Hop
// Router Alert), IGMP v1/v2/v3, MLD v1/v2, and the shared MRD
// advertisement/solicitation. Build functions emit immutable full-frame
// templates with checksums computed once; callers patch mutable fields
// and recompute only the checksum that covers them.
package codec

import (
	"encoding/binary"
	"net"

	"github.com/mcbridged/mcbridged/internal/errs"
)

const (
	EthernetHeaderLen = 14

	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeIPv6 uint16 = 0x86DD
)

// MulticastMACv4 derives the IPv4 multicast MAC address for group: the
// fixed prefix 01:00:5e concatenated with the low 23 bits of the group
// address.
func MulticastMACv4(group net.IP) [6]byte {
	ip4 := group.To4()
	var mac [6]byte
	mac[0], mac[1], mac[2] = 0x01, 0x00, 0x5e
	mac[3] = ip4[1] & 0x7f
	mac[4] = ip4[2]
	mac[5] = ip4[3]
	return mac
}

// MulticastMACv6 derives the IPv6 multicast MAC address for group: 33:33
// concatenated with the low 32 bits of the group address.
func MulticastMACv6(group net.IP) [6]byte {
	ip16 := group.To16()
	var mac [6]byte
	mac[0], mac[1] = 0x33, 0x33
	copy(mac[2:], ip16[12:16])
	return mac
}

// BuildEthernetHeader returns a 14-byte Ethernet II header.
func BuildEthernetHeader(dst, src [6]byte, ethertype uint16) []byte {
	hdr := make([]byte, EthernetHeaderLen)
	copy(hdr[0:6], dst[:])
	copy(hdr[6:12], src[:])
	binary.BigEndian.PutUint16(hdr[12:14], ethertype)
	return hdr
}

// ParseEthernetHeader returns the ethertype and the payload following the
// 14-byte header.
func ParseEthernetHeader(frame []byte) (ethertype uint16, payload []byte, err error) {
	if len(frame) < EthernetHeaderLen {
		return 0, nil, &errs.WireFormatError{Layer: "ethernet", Reason: "short header"}
	}
	return binary.BigEndian.Uint16(frame[12:14]), frame[EthernetHeaderLen:], nil
}
