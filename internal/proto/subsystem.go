package proto

import (
	"math/rand"
	"net"

	"github.com/mcbridged/mcbridged/internal/codec"
	"github.com/mcbridged/mcbridged/internal/eventloop"
	"github.com/mcbridged/mcbridged/internal/grouptable"
	"github.com/mcbridged/mcbridged/internal/logging"
	"github.com/mcbridged/mcbridged/internal/membership"
	"github.com/mcbridged/mcbridged/internal/mrd"
	"github.com/mcbridged/mcbridged/internal/querier"
	"github.com/mcbridged/mcbridged/internal/stats"
)

// InjectFunc transmits a fully built frame out an interface's capture
// handle. Errors are logged and the scheduler proceeds.
type InjectFunc func(frame []byte) error

// ReadFunc reads the next captured frame from an interface's socket, for
// registration with the event loop's AddSocket. It must not block.
type ReadFunc func() ([]byte, error)

type ifaceState struct {
	name   string
	table  *grouptable.Interface
	qstate *querier.State
	mrdSch *mrd.Scheduler
	inject InjectFunc

	lastMemberMs            int
	startupQueriesRemaining int

	// Prebuilt packet templates, rebuilt only when the parameters baked
	// into them change and otherwise reused byte-for-byte across repeat
	// emissions.
	generalQuery          []byte
	generalQueryQRV       int
	generalQueryQQISec    int
	generalQueryMaxRespMs int

	groupQuery      []byte
	groupQueryGroup net.IP

	mrdAdvert       []byte
	mrdAdvertQQISec int
	mrdAdvertQRV    int
}

// Subsystem is the generic IGMP/MLD control-plane engine: one per event
// loop, driving any number of interfaces of the same family.
type Subsystem struct {
	fam   Family
	loop  *eventloop.Loop
	log   logging.Logger
	rand  func() float64
	stats *stats.Counters

	ifaces map[string]*ifaceState
}

// Stats returns a point-in-time snapshot of this subsystem's operational
// counters: query/report/
// leave volume, capacity drops, and malformed-packet counts.
func (s *Subsystem) Stats() stats.Snapshot {
	return s.stats.Snapshot()
}

// New builds a Subsystem for fam, driven by loop.
func New(fam Family, loop *eventloop.Loop, log logging.Logger, opts ...Option) *Subsystem {
	s := &Subsystem{
		fam:    fam,
		loop:   loop,
		log:    log,
		rand:   rand.Float64,
		stats:  &stats.Counters{},
		ifaces: make(map[string]*ifaceState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddInterface brings up one interface: arms the querier mode's startup
// action and the MRD advertisement schedule.
func (s *Subsystem) AddInterface(table *grouptable.Interface, mode querier.Mode, inject InjectFunc) {
	table.SetStats(s.stats)
	qs := querier.New(mode, table.LocalAddr, s.fam.AddrLen(), s.fam.DefaultQRV(), s.fam.DefaultQueryIntervalSec(), s.fam.DefaultMaxRespMs())
	ist := &ifaceState{
		name:         table.Name,
		table:        table,
		qstate:       qs,
		mrdSch:       mrd.New(),
		inject:       inject,
		lastMemberMs: s.fam.DefaultLastMemberMs(),
	}
	s.ifaces[table.Name] = ist

	s.sendMRDAdvert(ist)
	s.scheduleNextMRD(ist)

	init := qs.Initial()
	switch {
	case init.StartQuickBurst:
		s.startQuickBurst(ist)
	case init.ArmOtherQuerierTimer:
		s.loop.AddTimer(int64(init.OtherQuerierTimeout), s.onOtherQuerierTimeout, ist)
	}
}

// WireCapture registers fd with the event loop so that every readiness
// event reads one frame via read and dispatches it into HandleInbound.
func (s *Subsystem) WireCapture(ifaceName string, fd int, read ReadFunc) {
	s.loop.AddSocket(fd, func(int) {
		frame, err := read()
		if err != nil {
			s.log.Debugf(2, "%s/%s: read: %v", s.fam.Name(), ifaceName, err)
			return
		}
		s.HandleInbound(ifaceName, frame)
	})
}

func (s *Subsystem) inject(ist *ifaceState, frame []byte) {
	if ist.inject == nil {
		return
	}
	if err := ist.inject(frame); err != nil {
		s.log.Errorf("%s/%s: injection failed: %v", s.fam.Name(), ist.name, err)
	}
}

// --- querier startup / periodic general query ---

func (s *Subsystem) startQuickBurst(ist *ifaceState) {
	ist.startupQueriesRemaining = ist.qstate.QRV
	s.fireQuickBurst(ist)
}

func (s *Subsystem) fireQuickBurst(ist *ifaceState) {
	s.sendGeneralQuery(ist)
	ist.startupQueriesRemaining--
	if ist.startupQueriesRemaining > 0 {
		spacing := ist.qstate.QueryIntervalSec * 1000 / 4
		s.loop.AddTimer(int64(spacing), s.onQuickBurstTimer, ist)
		return
	}
	s.armPeriodicGeneralQuery(ist)
}

func (s *Subsystem) onQuickBurstTimer(ctx any) {
	s.fireQuickBurst(ctx.(*ifaceState))
}

func (s *Subsystem) armPeriodicGeneralQuery(ist *ifaceState) {
	s.loop.AddTimer(int64(ist.qstate.QueryIntervalSec*1000), s.onGeneralQueryPeriodic, ist)
}

func (s *Subsystem) onGeneralQueryPeriodic(ctx any) {
	ist := ctx.(*ifaceState)
	if !ist.qstate.IsQuerier() {
		return
	}
	s.sendGeneralQuery(ist)
	s.armPeriodicGeneralQuery(ist)
}

func (s *Subsystem) onOtherQuerierTimeout(ctx any) {
	ist := ctx.(*ifaceState)
	act := ist.qstate.OnOtherQuerierTimeout()
	if act.StartQuickBurst {
		s.startQuickBurst(ist)
	}
}

// sendGeneralQuery emits the interface's general-query template: the
// frame is rebuilt (and its checksums recomputed) only when
// the querier's adopted qrv/query-interval/max-response parameters have
// changed since the last build; an unchanged robustness burst or steady
// periodic query reuses the same bytes.
func (s *Subsystem) sendGeneralQuery(ist *ifaceState) {
	qrv, qqi, maxResp := ist.qstate.QRV, ist.qstate.QueryIntervalSec, ist.qstate.MaxRespMs
	if ist.generalQuery == nil || ist.generalQueryQRV != qrv || ist.generalQueryQQISec != qqi || ist.generalQueryMaxRespMs != maxResp {
		ist.generalQuery = s.fam.BuildGeneralQuery(ist.table, false, qrv, qqi, maxResp)
		ist.generalQueryQRV, ist.generalQueryQQISec, ist.generalQueryMaxRespMs = qrv, qqi, maxResp
	}
	s.inject(ist, ist.generalQuery)
}

// --- MRD ---

// sendMRDAdvert emits the interface's MRD advertisement template,
// rebuilding it only when the adopted qqi and qrv it carries have
// changed.
func (s *Subsystem) sendMRDAdvert(ist *ifaceState) {
	qqi, qrv := ist.qstate.QueryIntervalSec, ist.qstate.QRV
	if ist.mrdAdvert == nil || ist.mrdAdvertQQISec != qqi || ist.mrdAdvertQRV != qrv {
		ist.mrdAdvert = s.fam.BuildMRDAdvert(ist.table, mrd.SteadyIntervalMs/1000, qqi, qrv)
		ist.mrdAdvertQQISec, ist.mrdAdvertQRV = qqi, qrv
	}
	s.inject(ist, ist.mrdAdvert)
}

func (s *Subsystem) scheduleNextMRD(ist *ifaceState) {
	delay, _ := ist.mrdSch.Next(s.rand)
	s.loop.AddTimer(int64(delay), s.onMRDTimer, ist)
}

func (s *Subsystem) onMRDTimer(ctx any) {
	ist := ctx.(*ifaceState)
	s.sendMRDAdvert(ist)
	s.scheduleNextMRD(ist)
}

func (s *Subsystem) handleSolicit(ist *ifaceState) {
	s.loop.DelTimer(s.onMRDTimer, ist)
	s.sendMRDAdvert(ist)
	s.scheduleNextMRD(ist)
}

// --- inbound dispatch ---

// HandleInbound parses and dispatches one captured frame for ifaceName.
func (s *Subsystem) HandleInbound(ifaceName string, frame []byte) {
	ist, ok := s.ifaces[ifaceName]
	if !ok {
		return
	}
	msg, src, err := s.fam.ParseInbound(frame)
	if err != nil {
		s.log.Debugf(2, "%s/%s: %v", s.fam.Name(), ifaceName, err)
		s.stats.IncMalformed()
		// A v3/v2 report that overruns mid-record still carries every
		// group record successfully parsed before the overrun; those
		// are applied, and only the truncated tail is dropped.
		if msg.Kind != codec.KindReportV3 || len(msg.Records) == 0 {
			return
		}
	}
	if src != nil && src.Equal(ist.table.LocalAddr) {
		return
	}

	switch msg.Kind {
	case codec.KindQueryV1, codec.KindQueryV2, codec.KindQueryV3:
		s.stats.IncQuery()
		s.handleQuery(ist, src, msg)
	case codec.KindReportV1:
		s.stats.IncReport()
		s.handleV1Report(ist, msg.Group)
	case codec.KindReportV2:
		s.stats.IncReport()
		s.handleSimpleJoin(ist, msg.Group)
	case codec.KindReportV3:
		s.stats.IncReport()
		s.handleV3Report(ist, msg.Records)
	case codec.KindLeave:
		s.stats.IncLeave()
		s.handleLeave(ist, msg.Group)
	case codec.KindMRDSolicit:
		s.handleSolicit(ist)
	}
}

func (s *Subsystem) handleQuery(ist *ifaceState, src net.IP, msg codec.Message) {
	hasParams := msg.Kind == codec.KindQueryV3
	act := ist.qstate.OnQueryObserved(src, msg.QRV, msg.QQI, msg.MaxResp, hasParams)
	if act.Ignored {
		return
	}
	if act.Yielded {
		s.loop.DelTimer(s.onGeneralQueryPeriodic, ist)
		s.loop.DelTimer(s.onQuickBurstTimer, ist)
	}
	s.loop.DelTimer(s.onOtherQuerierTimeout, ist)
	s.loop.AddTimer(int64(act.OtherQuerierInterval), s.onOtherQuerierTimeout, ist)

	if msg.Group == nil || msg.SFlag {
		return
	}
	g, ok := ist.table.Lookup(msg.Group)
	if !ok || !g.Active {
		return
	}
	s.loop.DelTimer(s.onGroupMembershipTimeout, g)
	interval := querier.GroupSpecificQueryInterval(ist.qstate.QRV, ist.qstate.MaxRespMs)
	s.loop.AddTimer(int64(interval), s.onGroupMembershipTimeout, g)
}

func (s *Subsystem) handleV1Report(ist *ifaceState, group net.IP) {
	if !s.fam.HasV1HostCompat() {
		s.handleSimpleJoin(ist, group)
		return
	}
	g, ok := ist.table.FindOrInsert(group, s.fam.LinkScope)
	if !ok {
		return
	}
	s.doJoin(ist, g)
	g.V1HostPresent = true
	s.loop.DelTimer(s.onV1HostTimeout, g)
	act := membership.OnV1Report(ist.qstate.QRV, ist.qstate.QueryIntervalSec, ist.qstate.MaxRespMs)
	s.loop.AddTimer(int64(act.RearmTimerMs), s.onV1HostTimeout, g)
}

func (s *Subsystem) onV1HostTimeout(ctx any) {
	ctx.(*grouptable.Group).V1HostPresent = false
}

func (s *Subsystem) handleSimpleJoin(ist *ifaceState, group net.IP) {
	if group == nil {
		return
	}
	g, ok := ist.table.FindOrInsert(group, s.fam.LinkScope)
	if !ok {
		return
	}
	s.doJoin(ist, g)
}

func (s *Subsystem) doJoin(ist *ifaceState, g *grouptable.Group) {
	act := membership.Join(g.Active, ist.qstate.QRV, ist.qstate.QueryIntervalSec, ist.qstate.MaxRespMs, s.fam.JoinInterval)
	if act.JustActivated {
		g.MarkActive()
	} else {
		s.loop.DelTimer(s.onGroupMembershipTimeout, g)
	}
	s.loop.AddTimer(int64(act.RearmTimerMs), s.onGroupMembershipTimeout, g)
}

func (s *Subsystem) onGroupMembershipTimeout(ctx any) {
	ctx.(*grouptable.Group).MarkInactive()
}

func (s *Subsystem) handleV3Report(ist *ifaceState, records []codec.GroupRecord) {
	for _, r := range records {
		switch r.Type {
		case codec.ModeIsInclude, codec.ChangeToInclude:
			if r.NumSources > 0 {
				s.handleSimpleJoin(ist, r.Group)
			} else {
				s.handleLeave(ist, r.Group)
			}
		case codec.ModeIsExclude, codec.ChangeToExclude, codec.AllowNewSources:
			s.handleSimpleJoin(ist, r.Group)
		case codec.BlockOldSources:
			if r.NumSources == 0 {
				s.handleLeave(ist, r.Group)
			}
		}
	}
}

func (s *Subsystem) handleLeave(ist *ifaceState, group net.IP) {
	if group == nil {
		return
	}
	g, ok := ist.table.Lookup(group)
	if !ok {
		return
	}
	v1Present := s.fam.HasV1HostCompat() && g.V1HostPresent
	if !membership.LeaveEligible(ist.qstate.IsQuerier(), g.Active, v1Present, g.QueriesRemaining) {
		return
	}

	act := membership.Leave(ist.qstate.QRV, ist.lastMemberMs, querier.GraceMillis)
	g.QueriesRemaining = act.QueriesRemaining
	s.loop.DelTimer(s.onGroupMembershipTimeout, g)
	s.loop.AddTimer(int64(act.RearmTimerMs), s.onGroupMembershipTimeout, g)

	s.fireLastMemberQuery(ist, g)
}

// fireLastMemberQuery emits the next packet of a group-specific
// last-member query burst. The cached template is built with a full
// Build only when none exists yet or it was built for a different group;
// every other packet (the rest of a burst, and the first packet of a
// later burst for the same group) reuses it via Patch, which rewrites the
// destination and S flag and recomputes just the checksums that cover
// them. A patched template keeps the QRV, QQIC and maximum response
// values from its last Build. The S flag is derived from the count before
// it is decremented, and the decremented count is stored after emission.
func (s *Subsystem) fireLastMemberQuery(ist *ifaceState, g *grouptable.Group) {
	sFlag, remaining := membership.NextBurstQuery(g.QueriesRemaining, ist.qstate.QRV)

	if ist.groupQuery == nil || !ist.groupQueryGroup.Equal(g.Addr) {
		ist.groupQuery = s.fam.BuildGroupQuery(ist.table, g.Addr, sFlag, ist.qstate.QRV, ist.qstate.QueryIntervalSec, ist.qstate.MaxRespMs)
		ist.groupQueryGroup = append(net.IP(nil), g.Addr...)
	} else {
		s.fam.PatchGroupQuery(ist.table, ist.groupQuery, g.Addr, sFlag)
	}
	s.inject(ist, ist.groupQuery)
	g.QueriesRemaining = remaining

	if g.QueriesRemaining > 0 {
		s.loop.AddTimer(int64(ist.lastMemberMs), s.onLastMemberBurstTimer, g)
	}
}

func (s *Subsystem) onLastMemberBurstTimer(ctx any) {
	g := ctx.(*grouptable.Group)
	ist, ok := s.ifaces[g.Interface.Name]
	if !ok {
		return
	}
	s.fireLastMemberQuery(ist, g)
}
