//go:build linux

package capture

import (
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/mcbridged/mcbridged/internal/errs"
)

// Handle is one interface's raw L2 capture/injection socket: AF_PACKET,
// SOCK_RAW, bound to a single ethertype and ifindex, promiscuous, with a
// classic-BPF program attached via SO_ATTACH_FILTER. It exposes a plain
// file descriptor so internal/eventloop.Loop.AddSocket can poll it
// directly, rather than a libpcap handle's own blocking read
// loop, which would require a second goroutine per interface and defeat
// the single-thread-per-subsystem design.
type Handle struct {
	iface   string
	ifindex int
	fd      int
	readBuf []byte
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// openRaw creates and binds an AF_PACKET/SOCK_RAW socket for ifindex,
// filtered to ethertype at the kernel dispatch level, then narrows
// further with prog via SO_ATTACH_FILTER.
func openRaw(ifaceName string, ifindex int, ethertype uint16, prog []bpf.Instruction) (*Handle, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(ethertype)))
	if err != nil {
		return nil, &errs.CaptureError{Interface: ifaceName, Operation: "socket", Err: err}
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(ethertype),
		Ifindex:  ifindex,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, &errs.CaptureError{Interface: ifaceName, Operation: "bind", Err: err}
	}

	mreq := unix.PacketMreq{
		Ifindex: int32(ifindex),
		Type:    unix.PACKET_MR_PROMISC,
	}
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		unix.Close(fd)
		return nil, &errs.CaptureError{Interface: ifaceName, Operation: "promisc", Err: err}
	}

	raw, err := bpf.Assemble(prog)
	if err != nil {
		unix.Close(fd)
		return nil, &errs.CaptureError{Interface: ifaceName, Operation: "bpf-assemble", Err: err}
	}
	sockFilter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		sockFilter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := unix.SockFprog{
		Len:    uint16(len(sockFilter)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&sockFilter[0])),
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
		unix.Close(fd)
		return nil, &errs.CaptureError{Interface: ifaceName, Operation: "attach-filter", Err: err}
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, &errs.CaptureError{Interface: ifaceName, Operation: "nonblock", Err: err}
	}

	return &Handle{iface: ifaceName, ifindex: ifindex, fd: fd, readBuf: make([]byte, SnapLen)}, nil
}

// OpenIGMP opens a capture handle bound to IPv4 and filtered to IGMP
// traffic.
func OpenIGMP(ifaceName string, ifindex int) (*Handle, error) {
	return openRaw(ifaceName, ifindex, etherTypeIPv4, IGMPFilter())
}

// OpenMLD opens a capture handle bound to IPv6 and filtered to the MLD
// subset of ICMPv6.
func OpenMLD(ifaceName string, ifindex int) (*Handle, error) {
	return openRaw(ifaceName, ifindex, etherTypeIPv6, MLDFilter())
}

// Fd returns the underlying file descriptor, for Loop.AddSocket.
func (h *Handle) Fd() int { return h.fd }

// Read reads one frame, non-blocking, into the handle's preallocated
// buffer; the returned slice is only valid until the next Read. Callers
// only invoke this from the event loop's socket callback, after poll
// reports readiness, and fully consume the frame before returning.
func (h *Handle) Read() ([]byte, error) {
	n, _, err := unix.Recvfrom(h.fd, h.readBuf, 0)
	if err != nil {
		return nil, &errs.CaptureError{Interface: h.iface, Operation: "recvfrom", Err: err}
	}
	return h.readBuf[:n], nil
}

// Inject transmits a fully built frame out this handle's interface.
// Failures are the caller's to log; this layer does not retry.
func (h *Handle) Inject(frame []byte) error {
	sa := &unix.SockaddrLinklayer{Ifindex: h.ifindex}
	if err := unix.Sendto(h.fd, frame, 0, sa); err != nil {
		return &errs.CaptureError{Interface: h.iface, Operation: "sendto", Err: err}
	}
	return nil
}

// Close releases the socket.
func (h *Handle) Close() error {
	return unix.Close(h.fd)
}
