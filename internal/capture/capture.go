// Package capture implements the per-interface packet ingress/egress
// layer: one raw L2 handle per interface, opened promiscuous with
// immediate delivery and a classic-BPF filter narrowing
// to IGMP (v4) or the MLD subset of ICMPv6 (v6), plus link-layer
// injection of outbound frames. The filter programs themselves are pure
// and portable; they are assembled with golang.org/x/net/bpf, while the
// socket that attaches them is platform-specific (capture_linux.go;
// AF_PACKET/SOCK_RAW is a Linux concept with no portable equivalent).
package capture

import "golang.org/x/net/bpf"

// SnapLen is the maximum capture length: the largest UDP datagram that
// can appear on the wire.
const SnapLen = 65535

// etherTypeIPv4 and etherTypeIPv6 mirror the constants in internal/codec,
// duplicated here so this package has no dependency on codec: the BPF
// program operates purely on frame-relative byte offsets.
const (
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
)

// mldTypes are the ICMPv6 message types the MLD filter admits: Query,
// Report v1, Done v1, Report v2, and MRD solicitation.
var mldTypes = [5]byte{130, 131, 132, 143, 152}

// IGMPFilter returns the classic-BPF equivalent of the "igmp" pcap
// filter: ethertype IPv4 and IP protocol number 2.
//
//	ld   [12]              ; ethertype
//	jeq  #0x0800, 0, reject
//	ldb  [23]               ; IP protocol (14-byte ethernet + 9-byte offset)
//	jeq  #2, 0, reject
//	ret  #65535
//	reject: ret #0
func IGMPFilter() []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 3},
		bpf.LoadAbsolute{Off: 23, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 2, SkipFalse: 1},
		bpf.RetConstant{Val: SnapLen},
		bpf.RetConstant{Val: 0},
	}
}

// MLDFilter returns the classic-BPF program for the MLD subset of
// ICMPv6:
//
//	ip6 && ip6[40] == 58 && (ip6[48] in {130,131,132,143,152})
//
// ip6[40] is the Hop-by-Hop Options header's own Next Header field (every
// frame this daemon builds or expects carries one), and
// ip6[48] is the ICMPv6 type byte immediately following it, frame-
// relative offsets 54 and 62 once the 14-byte Ethernet header is added.
func MLDFilter() []bpf.Instruction {
	const (
		nextHeaderOff = 14 + 40
		icmpTypeOff   = 14 + 48
	)
	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},             // 0: ethertype
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv6, SkipFalse: 8}, // 1
		bpf.LoadAbsolute{Off: nextHeaderOff, Size: 1},  // 2
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 58, SkipFalse: 6}, // 3
		bpf.LoadAbsolute{Off: icmpTypeOff, Size: 1},    // 4
	}
	// 5..9: one equality test per admitted type, jumping to the Accept
	// instruction (index 11) on a match and falling through otherwise;
	// the last falls through to Reject (index 10) on no match.
	for i, t := range mldTypes {
		skipTrue := uint8(len(mldTypes) - i)
		prog = append(prog, bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(t), SkipTrue: skipTrue})
	}
	prog = append(prog,
		bpf.RetConstant{Val: 0},       // 10: Reject
		bpf.RetConstant{Val: SnapLen}, // 11: Accept
	)
	return prog
}

// Assemble compiles prog into the raw instruction form a kernel BPF
// filter socket option expects.
func Assemble(prog []bpf.Instruction) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(prog)
}
