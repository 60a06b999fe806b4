package querier

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ipv4(s string) net.IP { return net.ParseIP(s).To4() }

func TestInitial_NeverModeStartsPassiveWithSentinelQuerier(t *testing.T) {
	s := New(ModeNever, ipv4("192.0.2.1"), 4, 2, 125, 10000)
	act := s.Initial()
	assert.False(t, act.StartQuickBurst)
	assert.False(t, act.ArmOtherQuerierTimer)
	assert.False(t, s.IsQuerier())
	assert.True(t, s.CurrentQuerier.Equal(s.AllOnes))
}

func TestInitial_QuickModeBecomesActiveImmediately(t *testing.T) {
	s := New(ModeQuick, ipv4("192.0.2.1"), 4, 2, 125, 10000)
	act := s.Initial()
	assert.True(t, act.StartQuickBurst)
	assert.True(t, s.IsQuerier())
	assert.True(t, s.CurrentQuerier.Equal(ipv4("192.0.2.1")))
}

func TestInitial_DelayModeArmsFixedTimeout(t *testing.T) {
	s := New(ModeDelay, ipv4("192.0.2.1"), 4, 2, 125, 10000)
	act := s.Initial()
	assert.True(t, act.ArmOtherQuerierTimer)
	assert.Equal(t, DelayTimeoutMillis, act.OtherQuerierTimeout)
	assert.False(t, s.IsQuerier())
}

func TestOnQueryObserved_LowestAddressElectionWhilePassive(t *testing.T) {
	s := New(ModeDelay, ipv4("192.0.2.9"), 4, 2, 125, 10000)
	s.Initial()

	s.OnQueryObserved(ipv4("192.0.2.1"), 2, 125, 10000, true)
	assert.True(t, s.CurrentQuerier.Equal(ipv4("192.0.2.1")))

	// A higher address than the one already adopted is not elected.
	s.OnQueryObserved(ipv4("192.0.2.200"), 2, 125, 10000, true)
	assert.True(t, s.CurrentQuerier.Equal(ipv4("192.0.2.1")))
}

func TestOnQueryObserved_ActiveYieldsToLowerAddress(t *testing.T) {
	s := New(ModeQuick, ipv4("192.0.2.9"), 4, 2, 125, 10000)
	s.Initial()
	require := assert.New(t)
	require.True(s.IsQuerier())

	act := s.OnQueryObserved(ipv4("192.0.2.1"), 2, 125, 10000, true)
	require.True(act.Yielded)
	require.False(s.IsQuerier())
	require.True(s.CurrentQuerier.Equal(ipv4("192.0.2.1")))
}

func TestOnQueryObserved_ActiveKeepsStateAgainstHigherAddress(t *testing.T) {
	s := New(ModeQuick, ipv4("192.0.2.1"), 4, 2, 125, 10000)
	s.Initial()

	act := s.OnQueryObserved(ipv4("192.0.2.200"), 7, 60, 4000, true)
	assert.False(t, act.Yielded)
	assert.True(t, act.Ignored)
	assert.True(t, s.IsQuerier())
	// Keeping the crown means the loser's parameters are not adopted.
	assert.Equal(t, 2, s.QRV)
	assert.Equal(t, 125, s.QueryIntervalSec)
	assert.Equal(t, 10000, s.MaxRespMs)
}

func TestOnQueryObserved_DeferModeAlwaysYields(t *testing.T) {
	s := New(ModeDefer, ipv4("192.0.2.1"), 4, 2, 125, 10000)
	s.becomeActive() // simulate having self-elected via other-querier timeout

	act := s.OnQueryObserved(ipv4("192.0.2.200"), 2, 125, 10000, true)
	assert.True(t, act.Yielded)
	assert.False(t, s.IsQuerier())
}

func TestOnQueryObserved_AdoptsParametersFromV3Query(t *testing.T) {
	s := New(ModeDelay, ipv4("192.0.2.9"), 4, 2, 125, 10000)
	s.Initial()
	s.OnQueryObserved(ipv4("192.0.2.1"), 5, 60, 4000, true)
	assert.Equal(t, 5, s.QRV)
	assert.Equal(t, 60, s.QueryIntervalSec)
	assert.Equal(t, 4000, s.MaxRespMs)
}

func TestOnQueryObserved_FallsBackToDefaultsForV1V2Query(t *testing.T) {
	s := New(ModeDelay, ipv4("192.0.2.9"), 4, 2, 125, 10000)
	s.Initial()
	s.OnQueryObserved(ipv4("192.0.2.1"), 0, 0, 0, false)
	assert.Equal(t, 2, s.QRV)
	assert.Equal(t, 125, s.QueryIntervalSec)
	assert.Equal(t, 10000, s.MaxRespMs)
}

func TestOnOtherQuerierTimeout_NonNeverBecomesActive(t *testing.T) {
	s := New(ModeDelay, ipv4("192.0.2.9"), 4, 2, 125, 10000)
	s.Initial()
	act := s.OnOtherQuerierTimeout()
	assert.True(t, act.StartQuickBurst)
	assert.True(t, s.IsQuerier())
}

func TestOnOtherQuerierTimeout_NeverResetsToSentinel(t *testing.T) {
	s := New(ModeNever, ipv4("192.0.2.9"), 4, 2, 125, 10000)
	s.Initial()
	s.OnQueryObserved(ipv4("192.0.2.1"), 2, 125, 10000, true)
	act := s.OnOtherQuerierTimeout()
	assert.False(t, act.StartQuickBurst)
	assert.False(t, s.IsQuerier())
	assert.True(t, s.CurrentQuerier.Equal(s.AllOnes))
}

func TestGroupSpecificQueryInterval_Formula(t *testing.T) {
	assert.Equal(t, 2*10000+GraceMillis, GroupSpecificQueryInterval(2, 10000))
}
