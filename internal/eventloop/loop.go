//go:build unix

// Package eventloop implements the single-threaded cooperative dispatcher
// each control-plane subsystem (IGMP, MLD, a data-plane bridge) runs on its
// own OS thread. One Loop owns a bounded set of readable file descriptors
// and a deadline-ordered list of one-shot timers; it never runs a timer and
// a socket callback concurrently, so subsystem state needs no internal
// locking.
package eventloop

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/mcbridged/mcbridged/internal/logging"
)

// SocketCallback is invoked when fd becomes readable.
type SocketCallback func(fd int)

// TimerCallback is invoked once when a timer fires. ctx is whatever the
// caller passed to AddTimer and is the second half of the timer's identity.
type TimerCallback func(ctx any)

type socketReg struct {
	fd int
	cb SocketCallback
}

type timerReg struct {
	deadline time.Time
	cb       TimerCallback
	ctx      any
	cbID     uintptr
}

// Loop is a single-threaded cooperative event loop. It is not safe for
// concurrent use: every public method must be called from the goroutine
// that calls Run, except where noted.
type Loop struct {
	log     logging.Logger
	name    string
	sockets []socketReg
	timers  []timerReg

	maxSockets int
	maxTimers  int

	now func() time.Time
}

// New creates a Loop with storage preallocated for maxSockets file
// descriptors and maxTimers outstanding timers.
func New(name string, maxSockets, maxTimers int, log logging.Logger) *Loop {
	return &Loop{
		log:        log,
		name:       name,
		sockets:    make([]socketReg, 0, maxSockets),
		timers:     make([]timerReg, 0, maxTimers),
		maxSockets: maxSockets,
		maxTimers:  maxTimers,
		now:        time.Now,
	}
}

// SetClock overrides the loop's time source. Intended for tests only.
func (l *Loop) SetClock(now func() time.Time) {
	l.now = now
}

// AddSocket registers a read-ready callback for fd. There is no removal.
func (l *Loop) AddSocket(fd int, cb SocketCallback) {
	if len(l.sockets) >= l.maxSockets {
		l.log.Errorf("%s: socket table full, dropping fd %d", l.name, fd)
		return
	}
	l.sockets = append(l.sockets, socketReg{fd: fd, cb: cb})
}

// AddTimer schedules cb(ctx) to run once at now+millis. The (cb, ctx) pair
// is the timer's sole identity; callers must not schedule two identical
// pairs simultaneously.
func (l *Loop) AddTimer(millis int64, cb TimerCallback, ctx any) {
	if len(l.timers) >= l.maxTimers {
		l.log.Errorf("%s: timer table full, dropping timer", l.name)
		return
	}
	id := callbackID(cb)
	deadline := l.now().Add(time.Duration(millis) * time.Millisecond)
	l.timers = append(l.timers, timerReg{deadline: deadline, cb: cb, ctx: ctx, cbID: id})
	l.sortTimers()
}

// DelTimer removes any timer whose (cb, ctx) pair matches. It is a no-op if
// no such timer is scheduled.
func (l *Loop) DelTimer(cb TimerCallback, ctx any) {
	id := callbackID(cb)
	for i := range l.timers {
		if l.timers[i].cbID == id && l.timers[i].ctx == ctx {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			return
		}
	}
}

// HasTimer reports whether a timer matching (cb, ctx) is currently armed.
func (l *Loop) HasTimer(cb TimerCallback, ctx any) bool {
	id := callbackID(cb)
	for i := range l.timers {
		if l.timers[i].cbID == id && l.timers[i].ctx == ctx {
			return true
		}
	}
	return false
}

func (l *Loop) sortTimers() {
	// Insertion sort: the table is small and bounded, so this
	// stays cheap and avoids pulling in container/heap for a handful of
	// entries.
	for i := 1; i < len(l.timers); i++ {
		for j := i; j > 0 && l.timers[j].deadline.Before(l.timers[j-1].deadline); j-- {
			l.timers[j], l.timers[j-1] = l.timers[j-1], l.timers[j]
		}
	}
}

// Run blocks forever, dispatching socket and timer callbacks. Each
// iteration: compute the sleep budget from the head timer (floor 1ms,
// unbounded if no timer is armed), wait on poll, dispatch each ready fd's
// callback once, then drain every expired timer head.
func (l *Loop) Run() {
	for {
		l.Step()
	}
}

// Step runs a single iteration of the loop: wait for readiness or the next
// timer deadline, dispatch ready sockets, then drain expired timers. Run is
// simply an infinite loop calling Step; tests call Step directly to drive
// the loop deterministically.
func (l *Loop) Step() {
	timeout := l.sleepBudgetMs()

	pfds := make([]unix.PollFd, len(l.sockets))
	for i, s := range l.sockets {
		pfds[i] = unix.PollFd{Fd: int32(s.fd), Events: unix.POLLIN}
	}

	n, err := unix.Poll(pfds, timeout)
	if err != nil {
		if err == unix.EINTR {
			return
		}
		l.log.Errorf("%s: poll: %v", l.name, err)
		return
	}

	if n > 0 {
		for i, pfd := range pfds {
			if pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
				l.sockets[i].cb(l.sockets[i].fd)
			}
		}
	}

	l.drainExpiredTimers()
}

func (l *Loop) sleepBudgetMs() int {
	if len(l.timers) == 0 {
		return -1
	}
	d := l.timers[0].deadline.Sub(l.now())
	ms := int(d.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (l *Loop) drainExpiredTimers() {
	now := l.now()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		t := l.timers[0]
		l.timers = l.timers[1:]
		t.cb(t.ctx)
	}
}
