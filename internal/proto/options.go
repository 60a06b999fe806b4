package proto

// Option configures a Subsystem at construction.
type Option func(*Subsystem)

// WithRand overrides the uniform-in-[0,1) source the MRD scheduler uses
// for jitter. Tests use this to make the steady-state advertisement
// schedule deterministic instead of sampling math/rand.
func WithRand(rand func() float64) Option {
	return func(s *Subsystem) {
		s.rand = rand
	}
}
