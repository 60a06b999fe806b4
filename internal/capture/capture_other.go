//go:build !linux

package capture

import "github.com/mcbridged/mcbridged/internal/errs"

// Handle is a non-functional placeholder on non-Linux platforms:
// AF_PACKET/SOCK_RAW has no portable equivalent, and mcbridged's target
// deployment (a multi-interface firewall host) is Linux.
type Handle struct{}

func unsupported(iface string) error {
	return &errs.CaptureError{Interface: iface, Operation: "open", Err: errUnsupported}
}

var errUnsupported = errUnsupportedPlatform{}

type errUnsupportedPlatform struct{}

func (errUnsupportedPlatform) Error() string {
	return "raw L2 capture requires linux (AF_PACKET)"
}

// OpenIGMP always fails on non-Linux platforms.
func OpenIGMP(ifaceName string, _ int) (*Handle, error) { return nil, unsupported(ifaceName) }

// OpenMLD always fails on non-Linux platforms.
func OpenMLD(ifaceName string, _ int) (*Handle, error) { return nil, unsupported(ifaceName) }

func (h *Handle) Fd() int               { return -1 }
func (h *Handle) Read() ([]byte, error) { return nil, errUnsupported }
func (h *Handle) Inject([]byte) error   { return errUnsupported }
func (h *Handle) Close() error          { return nil }
