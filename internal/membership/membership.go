// Package membership implements the per-group active/idle state machine
// shared by the IGMP and MLD subsystems: join/leave handling, the
// IGMP-only v1-host-compatibility timer, and the last-member query
// burst. Like package querier, it is pure: callers drive it with observed
// events and receive back the timers to arm/cancel and packets to send.
package membership

// JoinAction tells the caller what to do after a Join event.
type JoinAction struct {
	JustActivated bool // group transitioned inactive -> active
	RearmTimerMs  int  // always set: (re)arm the group-membership timer
}

// Join handles a received membership report for a group. wasActive is
// the group's active flag before this call; the caller applies JustActivated by
// invoking grouptable's MarkActive and (re)arms the membership timer for
// RearmTimerMs.
func Join(wasActive bool, qrv, queryIntervalSec, maxRespMs int, joinIntervalFn func(qrv, queryIntervalSec, maxRespMs int) int) JoinAction {
	return JoinAction{
		JustActivated: !wasActive,
		RearmTimerMs:  joinIntervalFn(qrv, queryIntervalSec, maxRespMs),
	}
}

// LeaveEligible is the guard on the Leave transition: a leave is
// accepted only if the local interface is the elected querier, the group
// is active, no v1 host is present (IGMP only; callers pass false for
// MLD), and no last-member burst is already underway.
func LeaveEligible(isQuerier, groupActive, v1HostPresent bool, queriesRemaining int) bool {
	return isQuerier && groupActive && !v1HostPresent && queriesRemaining == 0
}

// LeaveAction describes the last-member query burst to start.
type LeaveAction struct {
	RearmTimerMs     int
	QueriesRemaining int // set to qrv: the first burst packet's S flag is 0
}

// Leave handles an accepted leave: arm a shortened
// group-membership timer and start a qrv-packet last-member query burst.
func Leave(qrv, lastMemberIntervalMs, graceMs int) LeaveAction {
	return LeaveAction{
		RearmTimerMs:     qrv*lastMemberIntervalMs + graceMs,
		QueriesRemaining: qrv,
	}
}

// NextBurstQuery reports the S flag for the next last-member query packet
// and the decremented queriesRemaining, given the caller is about to send
// one (queriesRemaining > 0). The S flag is 0 exactly for the first packet
// of the burst.
func NextBurstQuery(queriesRemaining, qrv int) (sFlag bool, remaining int) {
	sFlag = queriesRemaining != qrv
	return sFlag, queriesRemaining - 1
}

// V1HostAction describes the v1-host-compatibility timer rearm triggered
// by any received v1 report (IGMP only).
type V1HostAction struct {
	RearmTimerMs int
}

// OnV1Report arms the v1-host-compatibility timer: qrv * query_interval
// + response_interval / 10 seconds, the same formula as the IGMP join
// timer, so it collapses to the identical millisecond form
// qrv*queryIntervalSec*1000 + maxRespMs (see IGMPJoinInterval's comment
// for the tenths-to-ms derivation).
func OnV1Report(qrv, queryIntervalSec, maxRespMs int) V1HostAction {
	return V1HostAction{RearmTimerMs: qrv*queryIntervalSec*1000 + maxRespMs}
}

// IGMPJoinInterval is the IGMP join-timer formula:
// qrv * query_interval_seconds + response_interval / 10, in
// milliseconds. response_interval/10 in seconds equals maxRespMs exactly
// (response_interval is in IGMP's native tenths-of-a-second units and
// maxRespMs = response_interval * 100), so the millisecond form collapses
// to qrv*queryIntervalSec*1000 + maxRespMs.
func IGMPJoinInterval(qrv, queryIntervalSec, maxRespMs int) int {
	return qrv*queryIntervalSec*1000 + maxRespMs
}

// MLDJoinInterval is the MLD join-timer formula:
// qrv * query_interval * 1000 + response_interval + GRACE_MS, all
// already in milliseconds.
func MLDJoinInterval(qrv, queryIntervalSec, maxRespMs int) int {
	return qrv*queryIntervalSec*1000 + maxRespMs + 10
}
