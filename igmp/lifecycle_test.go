package igmp

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcbridged/mcbridged/internal/bridge"
	"github.com/mcbridged/mcbridged/internal/codec"
	"github.com/mcbridged/mcbridged/internal/eventloop"
	"github.com/mcbridged/mcbridged/internal/grouptable"
	"github.com/mcbridged/mcbridged/internal/logging"
	"github.com/mcbridged/mcbridged/internal/proto"
	"github.com/mcbridged/mcbridged/internal/querier"
)

// hostFrame assembles an inbound frame the way a reporting host on the
// link would build it: Ethernet, IPv4 with Router Alert, IGMP payload.
func hostFrame(src, dst net.IP, payload []byte) []byte {
	ipHdr := codec.BuildIPv4Header(len(payload), codec.IGMPProtocolNumber, src, dst)
	eth := codec.BuildEthernetHeader(codec.MulticastMACv4(dst), [6]byte{0x02, 0, 0, 0, 0, 0x55}, codec.EtherTypeIPv4)
	frame := append([]byte(nil), eth...)
	frame = append(frame, ipHdr...)
	return append(frame, payload...)
}

// v3ReportFrame hand-assembles an IGMPv3 report with one 8-byte record per
// (type, group) pair and no sources.
func v3ReportFrame(src net.IP, records []codec.GroupRecord) []byte {
	body := make([]byte, 8)
	body[0] = 0x22
	binary.BigEndian.PutUint16(body[6:8], uint16(len(records)))
	for _, r := range records {
		rec := make([]byte, 8)
		rec[0] = byte(r.Type)
		copy(rec[4:8], r.Group.To4())
		body = append(body, rec...)
	}
	cs := codec.Checksum(body)
	binary.BigEndian.PutUint16(body[2:4], cs)
	return hostFrame(src, net.ParseIP("224.0.0.22"), body)
}

type lifecycleEnv struct {
	sub   *proto.Subsystem
	loop  *eventloop.Loop
	table *grouptable.Interface
	sent  *[][]byte
	clock *time.Time
}

func newLifecycleEnv(t *testing.T, mode querier.Mode) *lifecycleEnv {
	t.Helper()
	loop := eventloop.New("igmp", 1, 64, logging.Discard{})
	base := time.Unix(0, 0)
	clock := base
	loop.SetClock(func() time.Time { return clock })

	sub := New(loop, logging.Discard{}, proto.WithRand(func() float64 { return 0 }))
	table := grouptable.New("eth0", 2, [6]byte{0x02, 0, 0, 0, 0, 1}, net.ParseIP("192.0.2.9"), 16, logging.Discard{})

	var sent [][]byte
	sub.AddInterface(table, mode, func(frame []byte) error {
		// The group-query template is patched in place between emissions,
		// so keep a copy of what actually went out on the wire.
		sent = append(sent, append([]byte(nil), frame...))
		return nil
	})
	sub.WireCapture("eth0", -1, func() ([]byte, error) { return nil, nil })

	env := &lifecycleEnv{sub: sub, loop: loop, table: table, sent: &sent, clock: &clock}
	return env
}

func (e *lifecycleEnv) advance(d time.Duration) {
	*e.clock = (*e.clock).Add(d)
	e.loop.Step()
}

// groupQueries picks the group-specific queries out of everything injected
// so far, in emission order.
func (e *lifecycleEnv) groupQueries(t *testing.T) []codec.Message {
	t.Helper()
	f := family{}
	var out []codec.Message
	for _, frame := range *e.sent {
		msg, _, err := f.ParseInbound(frame)
		if err != nil {
			continue
		}
		if msg.Kind == codec.KindQueryV3 && msg.Group != nil {
			out = append(out, msg)
		}
	}
	return out
}

func TestQuickLifecycle_SingleSubscriber(t *testing.T) {
	env := newLifecycleEnv(t, querier.ModeQuick)
	group := net.ParseIP("239.0.75.0")
	h := bridge.NewHandle("eth1")
	env.table.RegisterFixed(group).Subscribe(h)

	host := net.ParseIP("10.0.0.5")
	env.sub.HandleInbound("eth0", hostFrame(host, group, codec.BuildIGMPv2Report(group)))
	require.True(t, h.OutboundActive(), "first report activates the subscriber")

	env.sub.HandleInbound("eth0", hostFrame(host, group, codec.BuildIGMPv2Leave(group)))
	queries := env.groupQueries(t)
	require.Len(t, queries, 1, "the first last-member query goes out with the leave")
	assert.False(t, queries[0].SFlag)
	assert.True(t, group.Equal(queries[0].Group))

	// The second burst packet is due after one last-member interval.
	env.advance(1100 * time.Millisecond)
	queries = env.groupQueries(t)
	require.Len(t, queries, 2, "robustness=2 means exactly two group-specific queries")
	assert.True(t, queries[1].SFlag)

	// No report arrived: the shortened membership timer (2*1s + 10ms)
	// expires and the subscriber is deactivated.
	require.True(t, h.OutboundActive())
	env.advance(1000 * time.Millisecond)
	assert.False(t, h.OutboundActive())
}

func TestLifecycle_RepeatReportActivatesOnlyOnce(t *testing.T) {
	env := newLifecycleEnv(t, querier.ModeQuick)
	group := net.ParseIP("239.0.75.0")
	counting := &countingHandle{}
	env.table.RegisterFixed(group).Subscribe(counting)

	host := net.ParseIP("10.0.0.5")
	for i := 0; i < 3; i++ {
		env.sub.HandleInbound("eth0", hostFrame(host, group, codec.BuildIGMPv2Report(group)))
	}
	assert.Equal(t, 1, counting.activated, "repeat reports with no intervening expiry must not re-fire activation")
}

type countingHandle struct {
	activated   int
	deactivated int
}

func (h *countingHandle) Activate()   { h.activated++ }
func (h *countingHandle) Deactivate() { h.deactivated++ }

func TestLifecycle_OwnFramesAreDropped(t *testing.T) {
	env := newLifecycleEnv(t, querier.ModeQuick)
	group := net.ParseIP("239.0.75.0")

	env.sub.HandleInbound("eth0", hostFrame(net.ParseIP("192.0.2.9"), group, codec.BuildIGMPv2Report(group)))
	_, ok := env.table.Lookup(group)
	assert.False(t, ok, "a frame sourced from the local address must not create state")
}

func TestLifecycle_LinkScopeReportIsIgnored(t *testing.T) {
	env := newLifecycleEnv(t, querier.ModeQuick)
	group := net.ParseIP("224.0.0.251")

	env.sub.HandleInbound("eth0", hostFrame(net.ParseIP("10.0.0.5"), group, codec.BuildIGMPv2Report(group)))
	_, ok := env.table.Lookup(group)
	assert.False(t, ok)
	assert.Empty(t, env.table.Dynamic())
}

func TestLifecycle_TruncatedV3ReportAppliesCompleteRecordsOnly(t *testing.T) {
	env := newLifecycleEnv(t, querier.ModeQuick)
	g1 := net.ParseIP("239.0.0.1")
	g2 := net.ParseIP("239.0.0.2")

	// The header claims three records but the body carries two and a half:
	// the complete records are applied, the truncated tail is dropped.
	body := make([]byte, 8)
	body[0] = 0x22
	binary.BigEndian.PutUint16(body[6:8], 3)
	for _, g := range []net.IP{g1, g2} {
		rec := make([]byte, 8)
		rec[0] = byte(codec.ModeIsExclude)
		copy(rec[4:8], g.To4())
		body = append(body, rec...)
	}
	body = append(body, byte(codec.ModeIsExclude), 0, 0, 0) // half a record
	binary.BigEndian.PutUint16(body[2:4], codec.Checksum(body))

	env.sub.HandleInbound("eth0", hostFrame(net.ParseIP("10.0.0.5"), net.ParseIP("224.0.0.22"), body))

	got1, ok := env.table.Lookup(g1)
	require.True(t, ok)
	assert.True(t, got1.Active)
	got2, ok := env.table.Lookup(g2)
	require.True(t, ok)
	assert.True(t, got2.Active)
	assert.Len(t, env.table.Dynamic(), 2, "the truncated third record must not create state")
}

func TestLifecycle_V3RecordsDispatchInOrder(t *testing.T) {
	env := newLifecycleEnv(t, querier.ModeQuick)
	g1 := net.ParseIP("239.0.0.1")
	g2 := net.ParseIP("239.0.0.2")
	g3 := net.ParseIP("239.0.0.3")

	env.sub.HandleInbound("eth0", v3ReportFrame(net.ParseIP("10.0.0.5"), []codec.GroupRecord{
		{Type: codec.AllowNewSources, Group: g1},
		{Type: codec.ChangeToInclude, Group: g2}, // empty sources: a leave, a no-op while inactive
		{Type: codec.ModeIsExclude, Group: g3},
	}))

	got1, ok1 := env.table.Lookup(g1)
	require.True(t, ok1)
	assert.True(t, got1.Active)

	_, ok2 := env.table.Lookup(g2)
	assert.False(t, ok2, "a leave for a never-joined group creates no entry")

	got3, ok3 := env.table.Lookup(g3)
	require.True(t, ok3)
	assert.True(t, got3.Active)
}
