package grouptable

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcbridged/mcbridged/internal/logging"
)

func isIPv4LinkScope(addr net.IP) bool {
	ip4 := addr.To4()
	if ip4 == nil {
		return false
	}
	return ip4[0] == 224 && ip4[1] == 0 && ip4[2] == 0
}

type fakeHandle struct {
	active int
	idle   int
}

func (h *fakeHandle) Activate()   { h.active++ }
func (h *fakeHandle) Deactivate() { h.idle++ }

func TestFindOrInsert_RejectsLinkScope(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	g, ok := ifc.FindOrInsert(net.ParseIP("224.0.0.251"), isIPv4LinkScope)
	assert.False(t, ok)
	assert.Nil(t, g)
}

func TestFindOrInsert_MatchesFixedPrefixFirst(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	fixed := ifc.RegisterFixed(net.ParseIP("239.1.1.1"))

	g, ok := ifc.FindOrInsert(net.ParseIP("239.1.1.1"), isIPv4LinkScope)
	require.True(t, ok)
	assert.Same(t, fixed, g)
	assert.Empty(t, ifc.Dynamic())
}

func TestFindOrInsert_ExtendsDynamicSuffixUntilCapacity(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 2, logging.Discard{})

	g1, ok := ifc.FindOrInsert(net.ParseIP("239.1.1.1"), isIPv4LinkScope)
	require.True(t, ok)
	g1.MarkActive()

	g2, ok := ifc.FindOrInsert(net.ParseIP("239.1.1.2"), isIPv4LinkScope)
	require.True(t, ok)
	g2.MarkActive()

	_, ok = ifc.FindOrInsert(net.ParseIP("239.1.1.3"), isIPv4LinkScope)
	assert.False(t, ok, "table is full: both dynamic slots active")
	assert.Len(t, ifc.Dynamic(), 2)
}

func TestFindOrInsert_ReusesFirstInactiveSlot(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 2, logging.Discard{})

	g1, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.1"), isIPv4LinkScope)
	g1.MarkActive()
	g2, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.2"), isIPv4LinkScope)
	g2.MarkActive()
	g1.MarkInactive() // frees slot 0 (dynamic groups carry no subscribers)

	g3, ok := ifc.FindOrInsert(net.ParseIP("239.1.1.3"), isIPv4LinkScope)
	require.True(t, ok)
	assert.Same(t, g1, g3, "reused slot should be the same Group pointer")
	assert.True(t, g3.Addr.Equal(net.ParseIP("239.1.1.3")))
	assert.Len(t, ifc.Dynamic(), 2)
}

func TestFindOrInsert_MatchesActiveDynamicSlot(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	g1, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.1"), isIPv4LinkScope)
	g1.MarkActive()

	g2, ok := ifc.FindOrInsert(net.ParseIP("239.1.1.1"), isIPv4LinkScope)
	require.True(t, ok)
	assert.Same(t, g1, g2)
	assert.Len(t, ifc.Dynamic(), 1)
}

func TestTighten_PopsTrailingInactiveSuffix(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	g1, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.1"), isIPv4LinkScope)
	g1.MarkActive()
	g2, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.2"), isIPv4LinkScope)
	g2.MarkActive()
	g3, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.3"), isIPv4LinkScope)
	g3.MarkActive()

	g2.MarkInactive()
	g3.MarkInactive()
	assert.Len(t, ifc.Dynamic(), 1, "only the leading active slot remains")
	assert.True(t, ifc.Dynamic()[0].Addr.Equal(net.ParseIP("239.1.1.1")))
}

func TestTighten_DoesNotPopAnInactiveSlotFollowedByAnActiveOne(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	g1, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.1"), isIPv4LinkScope)
	g1.MarkActive()
	g2, _ := ifc.FindOrInsert(net.ParseIP("239.1.1.2"), isIPv4LinkScope)
	g2.MarkActive()

	g1.MarkInactive()
	assert.Len(t, ifc.Dynamic(), 2, "trailing slot is still active; nothing to pop")
}

func TestMarkActive_ActivatesSubscribersOnlyOnTransition(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	g := ifc.RegisterFixed(net.ParseIP("239.1.1.1"))
	h := &fakeHandle{}
	g.Subscribe(h)

	g.MarkActive()
	g.MarkActive()
	assert.Equal(t, 1, h.active, "activating an already-active group must not re-fire")
}

func TestMarkInactive_DeactivatesSubscribersForFixedGroup(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	g := ifc.RegisterFixed(net.ParseIP("239.1.1.1"))
	h := &fakeHandle{}
	g.Subscribe(h)

	g.MarkActive()
	g.MarkInactive()
	assert.Equal(t, 1, h.idle)
}

func TestRegisterFixed_IsIdempotent(t *testing.T) {
	ifc := New("eth0", 2, [6]byte{}, net.ParseIP("192.0.2.1"), 4, logging.Discard{})
	g1 := ifc.RegisterFixed(net.ParseIP("239.1.1.1"))
	g2 := ifc.RegisterFixed(net.ParseIP("239.1.1.1"))
	assert.Same(t, g1, g2)
	assert.Len(t, ifc.FixedGroups(), 1)
}
