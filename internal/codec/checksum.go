package codec

import "encoding/binary"

// sum16 computes the one's-complement sum of data as a sequence of
// big-endian 16-bit words, padding an odd trailing byte with zero. It is
// the common accumulator behind the IPv4 header checksum, the IGMP
// checksum, and the ICMPv6/MLD checksum (with its pseudo-header prefixed).
func sum16(data []byte) uint32 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	return sum
}

func fold(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Checksum computes the standard Internet one's-complement checksum (RFC
// 1071) over data, as used for the IPv4 header and the IGMP message body.
func Checksum(data []byte) uint16 {
	return fold(sum16(data))
}

// ICMPv6PseudoChecksum computes the ICMPv6/MLD checksum over payload using
// the RFC 2460 §8.1 pseudo-header: source address, destination address,
// upper-layer packet length, zero-padding, and next header (58 for
// ICMPv6).
func ICMPv6PseudoChecksum(src, dst [16]byte, payload []byte) uint16 {
	var pseudo [40]byte
	copy(pseudo[0:16], src[:])
	copy(pseudo[16:32], dst[:])
	binary.BigEndian.PutUint32(pseudo[32:36], uint32(len(payload)))
	pseudo[39] = 58 // Next Header: ICMPv6

	sum := sum16(pseudo[:])
	sum += sum16(payload)
	return fold(sum)
}
