// Package logging provides the leveled log sink every subsystem is
// constructed with. There is no package-level logger: each subsystem takes
// one explicitly so the control-plane threads never share mutable state
// through a global.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is the sink a subsystem logs through. Debugf level 2 covers
// protocol anomalies (malformed packets, capacity exhaustion); level 3
// covers every send/receive.
type Logger interface {
	Debugf(level int, format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Std wraps a standard library *log.Logger and a debug verbosity
// threshold; it is the Logger implementation cmd/mcbridged passes to the
// event loops and subsystems.
type Std struct {
	l       *log.Logger
	verbose int
	prefix  string
}

// NewStd builds a Std logger writing to stderr with the given prefix and
// debug verbosity threshold (messages at or below this level are printed).
func NewStd(prefix string, verbose int) *Std {
	return &Std{
		l:       log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		verbose: verbose,
		prefix:  prefix,
	}
}

func (s *Std) Debugf(level int, format string, args ...any) {
	if level > s.verbose {
		return
	}
	s.l.Printf("%s debug%d: %s", s.prefix, level, fmt.Sprintf(format, args...))
}

func (s *Std) Infof(format string, args ...any) {
	s.l.Printf("%s info: %s", s.prefix, fmt.Sprintf(format, args...))
}

func (s *Std) Errorf(format string, args ...any) {
	s.l.Printf("%s error: %s", s.prefix, fmt.Sprintf(format, args...))
}

// Discard drops every message. Useful as the default in tests.
type Discard struct{}

func (Discard) Debugf(int, string, ...any) {}
func (Discard) Infof(string, ...any)       {}
func (Discard) Errorf(string, ...any)      {}
