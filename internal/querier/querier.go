// Package querier implements the four-mode querier election state
// machine shared by the IGMP and MLD subsystems (Never, Quick, Delay,
// Defer), with lowest-address election, other-querier-present timeout,
// and protocol-parameter adoption from observed queries. The state machine
// is pure: it never touches a socket or a clock directly, instead
// returning what its caller (internal/proto) should do, so it is testable
// without any I/O.
package querier

import "net"

// Mode selects how an interface behaves when no querier has yet been
// observed.
type Mode int

const (
	// ModeNever never becomes the querier; it only ever listens.
	ModeNever Mode = iota
	// ModeQuick starts as the querier immediately, unconditionally.
	ModeQuick
	// ModeDelay waits 125.5s for a query before self-electing.
	ModeDelay
	// ModeDefer behaves like Delay but, while it is the querier, yields to
	// any other observed querier, even a numerically higher address.
	// While passive it follows the lowest-address rule like Delay.
	ModeDefer
)

func (m Mode) String() string {
	switch m {
	case ModeNever:
		return "never"
	case ModeQuick:
		return "quick"
	case ModeDelay:
		return "delay"
	case ModeDefer:
		return "defer"
	default:
		return "unknown"
	}
}

// DelayTimeoutMillis is the fixed self-election timeout for Delay/Defer
// mode: 125.5 seconds.
const DelayTimeoutMillis = 125500

// GraceMillis is the fixed grace budget added to several of the engine's
// derived timer durations.
const GraceMillis = 10

// QState is whether the local interface currently believes itself to be
// the elected querier.
type QState int

const (
	Passive QState = iota
	Active
)

// State is one interface's querier election state. CurrentQuerier is the
// sentinel AllOnes address when no querier has yet been observed or
// self-elected.
type State struct {
	Mode  Mode
	State QState

	LocalAddr      net.IP
	CurrentQuerier net.IP
	AllOnes        net.IP

	QRV              int
	QueryIntervalSec int
	MaxRespMs        int

	defaultQRV              int
	defaultQueryIntervalSec int
	defaultMaxRespMs        int
}

// New builds a State for one interface. addrLen is 4 (IPv4/IGMP) or 16
// (IPv6/MLD); it determines the width of the AllOnes sentinel.
func New(mode Mode, localAddr net.IP, addrLen, defaultQRV, defaultQueryIntervalSec, defaultMaxRespMs int) *State {
	allOnes := make(net.IP, addrLen)
	for i := range allOnes {
		allOnes[i] = 0xff
	}
	return &State{
		Mode:                    mode,
		State:                   Passive,
		LocalAddr:               localAddr,
		CurrentQuerier:          allOnes,
		AllOnes:                 allOnes,
		QRV:                     defaultQRV,
		QueryIntervalSec:        defaultQueryIntervalSec,
		MaxRespMs:               defaultMaxRespMs,
		defaultQRV:              defaultQRV,
		defaultQueryIntervalSec: defaultQueryIntervalSec,
		defaultMaxRespMs:        defaultMaxRespMs,
	}
}

// IsQuerier reports whether the local interface currently believes itself
// elected.
func (s *State) IsQuerier() bool { return s.State == Active }

// InitialAction describes what the caller should do immediately after
// constructing a State, per mode.
type InitialAction struct {
	StartQuickBurst      bool
	ArmOtherQuerierTimer bool
	OtherQuerierTimeout  int // milliseconds, valid when ArmOtherQuerierTimer
}

// Initial returns the mode-dependent startup action.
func (s *State) Initial() InitialAction {
	switch s.Mode {
	case ModeQuick:
		s.becomeActive()
		return InitialAction{StartQuickBurst: true}
	case ModeDelay, ModeDefer:
		return InitialAction{ArmOtherQuerierTimer: true, OtherQuerierTimeout: DelayTimeoutMillis}
	default: // ModeNever
		return InitialAction{}
	}
}

func (s *State) becomeActive() {
	s.State = Active
	s.CurrentQuerier = s.LocalAddr
}

func (s *State) becomePassive(querier net.IP) {
	s.State = Passive
	s.CurrentQuerier = querier
}

// QueryObservedAction tells the caller how to react to an observed query:
// whether to (re)arm or cancel the other-querier-present timer, and
// whether the local interface just yielded its querier status (caller
// should cancel any running general-query schedule) or just adopted
// election (no extra action beyond the timer). Ignored means the local
// interface kept the crown against a higher-address querier; the caller
// does nothing at all: no parameter adoption, no timer rearm.
type QueryObservedAction struct {
	Yielded              bool
	Ignored              bool
	OtherQuerierInterval int // milliseconds; set unless Ignored, caller (re)arms
}

// addrLess reports a < b as unsigned big-endian byte sequences, the
// relative-address tie-break the election uses. IPv4 addresses are
// compared in their 4-byte form, whichever form each was passed in.
func addrLess(a, b net.IP) bool {
	if a4, b4 := a.To4(), b.To4(); a4 != nil && b4 != nil {
		a, b = a4, b4
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// OnQueryObserved reacts to a query observed from a remote source.
// hasParams is false for a v1/v2 IGMP query or a v1 MLD query, in which
// case protocol defaults are used instead of the observed
// qrv/queryIntervalSec/maxRespMs.
func (s *State) OnQueryObserved(remote net.IP, qrv, queryIntervalSec, maxRespMs int, hasParams bool) QueryObservedAction {
	yielded := false
	if !remote.Equal(s.CurrentQuerier) {
		switch {
		case s.State == Active && (addrLess(remote, s.LocalAddr) || s.Mode == ModeDefer):
			s.becomePassive(append(net.IP(nil), remote...))
			yielded = true
		case s.State == Active:
			// Keep the crown: a higher-address querier is ignored outright,
			// with no parameter adoption and no timer rearm.
			return QueryObservedAction{Ignored: true}
		case addrLess(remote, s.CurrentQuerier):
			s.CurrentQuerier = append(net.IP(nil), remote...)
		}
	}

	if hasParams {
		s.QRV = qrv
		s.QueryIntervalSec = queryIntervalSec
		s.MaxRespMs = maxRespMs
	} else {
		s.QRV = s.defaultQRV
		s.QueryIntervalSec = s.defaultQueryIntervalSec
		s.MaxRespMs = s.defaultMaxRespMs
	}

	interval := s.QRV*s.QueryIntervalSec*1000 + s.MaxRespMs/2
	return QueryObservedAction{
		Yielded:              yielded,
		OtherQuerierInterval: interval,
	}
}

// OtherQuerierTimeoutAction tells the caller what to do when the
// other-querier-present timer fires.
type OtherQuerierTimeoutAction struct {
	StartQuickBurst bool // mode is non-Never: transition to Active via Quick path
}

// OnOtherQuerierTimeout handles the other-querier-present timer firing:
// a non-Never interface self-elects via the Quick path; a Never one
// resets the querier address to the sentinel and stays passive.
func (s *State) OnOtherQuerierTimeout() OtherQuerierTimeoutAction {
	if s.Mode != ModeNever {
		s.becomeActive()
		return OtherQuerierTimeoutAction{StartQuickBurst: true}
	}
	s.becomePassive(append(net.IP(nil), s.AllOnes...))
	return OtherQuerierTimeoutAction{}
}

// GroupSpecificQueryInterval computes the per-group membership timer
// rearm duration for an observed group-specific query with the S flag
// clear: qrv * response_interval + GRACE_MS.
func GroupSpecificQueryInterval(qrv, maxRespMs int) int {
	return qrv*maxRespMs + GraceMillis
}
