// Package mrd implements the Multicast Router Discovery (RFC 4286)
// advertisement schedule shared by the IGMP and MLD subsystems: an
// initial unjittered burst followed by a steady jittered periodic
// schedule, with immediate response to an observed solicitation.
package mrd

// InitialCount is the number of advertisements sent at startup, the first
// immediately and the rest spaced randomly.
const InitialCount = 3

// InitialIntervalMs bounds the random spacing between startup-burst
// advertisements after the first: uniform in [0, InitialIntervalMs).
const InitialIntervalMs = 2000

// SteadyIntervalMs is the nominal spacing of the steady-state jittered
// schedule.
const SteadyIntervalMs = 20000

// SteadyJitterMs is the half-width of the steady-state jitter: the actual
// interval is uniform in [SteadyIntervalMs-SteadyJitterMs,
// SteadyIntervalMs+SteadyJitterMs).
const SteadyJitterMs = 500

// Scheduler tracks how many startup-burst advertisements remain.
type Scheduler struct {
	remainingStartup int
}

// New builds a Scheduler with the full startup burst still pending. The
// caller emits the first advertisement immediately (no jitter) and then
// calls Next to learn when to schedule the next one.
func New() *Scheduler {
	return &Scheduler{remainingStartup: InitialCount - 1}
}

// Next returns the millisecond delay until the next scheduled
// advertisement and whether it still belongs to the startup burst. rand
// is a caller-supplied uniform-in-[0,1) source (the subsystem owns its own
// math/rand instance so the scheduler stays deterministic to test).
func (s *Scheduler) Next(rand func() float64) (delayMs int, startup bool) {
	if s.remainingStartup > 0 {
		s.remainingStartup--
		return int(rand() * InitialIntervalMs), true
	}
	jitter := int(rand()*(2*SteadyJitterMs)) - SteadyJitterMs
	return SteadyIntervalMs + jitter, false
}
