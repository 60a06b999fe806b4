package codec

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSrc = To16Array(net.ParseIP("fe80::1"))
	testDst = To16Array(net.ParseIP("ff02::1"))
)

func TestMLDQuery_BuildParseRoundTrip(t *testing.T) {
	group := net.ParseIP("ff1e::abcd")
	buf := BuildMLDQuery(testSrc, testDst, group, 10000, false, 2, 125)
	assert.Equal(t, uint16(0), ICMPv6PseudoChecksum(testSrc, testDst, buf))

	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	assert.Equal(t, KindQueryV3, msg.Kind)
	assert.True(t, group.Equal(msg.Group))
	assert.Equal(t, 2, msg.QRV)
	assert.Equal(t, 125, msg.QQI)
	assert.False(t, msg.SFlag)
}

func TestMLDQuery_GeneralQueryHasUnspecifiedGroup(t *testing.T) {
	buf := BuildMLDQuery(testSrc, testDst, nil, 10000, false, 2, 125)
	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	assert.Nil(t, msg.Group)
}

func TestMLDQuery_PatchGroupAndSRecomputesChecksum(t *testing.T) {
	buf := BuildMLDQuery(testSrc, testDst, nil, 10000, false, 2, 125)
	g := net.ParseIP("ff1e::abcd")
	PatchMLDQueryGroupAndS(buf, testSrc, testDst, g, true)
	assert.Equal(t, uint16(0), ICMPv6PseudoChecksum(testSrc, testDst, buf))

	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	assert.True(t, msg.SFlag)
	assert.True(t, g.Equal(msg.Group))
}

func TestMLDv1Report_RoundTrips(t *testing.T) {
	g := net.ParseIP("ff1e::1")
	buf := BuildMLDv1Report(testSrc, testDst, g)
	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	assert.Equal(t, KindReportV1, msg.Kind)
	assert.True(t, g.Equal(msg.Group))
}

func TestMLDv1Done_RoundTrips(t *testing.T) {
	g := net.ParseIP("ff1e::1")
	buf := BuildMLDv1Done(testSrc, testDst, g)
	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	assert.Equal(t, KindLeave, msg.Kind)
	assert.True(t, g.Equal(msg.Group))
}

func TestMLD_RejectsBadChecksum(t *testing.T) {
	buf := BuildMLDv1Report(testSrc, testDst, net.ParseIP("ff1e::1"))
	buf[2] ^= 0xff
	_, err := ParseMLD(testSrc, testDst, buf)
	assert.Error(t, err)
}

func TestMLD_RejectsShortHeader(t *testing.T) {
	_, err := ParseMLD(testSrc, testDst, []byte{130, 0})
	assert.Error(t, err)
}

func buildV2MLDReport(records []GroupRecord) []byte {
	body := make([]byte, 8)
	body[0] = mldReportV2
	for _, r := range records {
		rec := make([]byte, 20)
		rec[0] = byte(r.Type)
		copy(rec[4:20], r.Group.To16())
		body = append(body, rec...)
	}
	binary.BigEndian.PutUint16(body[6:8], uint16(len(records)))
	buf := append([]byte(nil), body...)
	buf[2], buf[3] = 0, 0
	cs := ICMPv6PseudoChecksum(testSrc, testDst, buf)
	binary.BigEndian.PutUint16(buf[2:4], cs)
	return buf
}

func TestMLDv2Report_MultipleRecordsInOrder(t *testing.T) {
	g1 := net.ParseIP("ff1e::1")
	g2 := net.ParseIP("ff1e::2")
	buf := buildV2MLDReport([]GroupRecord{
		{Type: ModeIsExclude, Group: g1},
		{Type: ChangeToInclude, Group: g2},
	})

	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	require.Len(t, msg.Records, 2)
	assert.Equal(t, ModeIsExclude, msg.Records[0].Type)
	assert.Equal(t, ChangeToInclude, msg.Records[1].Type)
	assert.True(t, g1.Equal(msg.Records[0].Group))
	assert.True(t, g2.Equal(msg.Records[1].Group))
}

func TestMLDv2Report_TruncationStopsProcessingButKeepsPriorRecords(t *testing.T) {
	full := buildV2MLDReport([]GroupRecord{
		{Type: ModeIsInclude, Group: net.ParseIP("ff1e::1")},
		{Type: ModeIsInclude, Group: net.ParseIP("ff1e::2")},
	})
	// The checksum covers the bytes actually sent.
	truncated := append([]byte(nil), full[:len(full)-8]...)
	binary.BigEndian.PutUint16(truncated[2:4], 0)
	binary.BigEndian.PutUint16(truncated[2:4], ICMPv6PseudoChecksum(testSrc, testDst, truncated))

	msg, err := ParseMLD(testSrc, testDst, truncated)
	assert.Error(t, err)
	require.Len(t, msg.Records, 1)
	assert.True(t, net.ParseIP("ff1e::1").Equal(msg.Records[0].Group))
}

func TestMLDv2Report_UnknownRecordTypeAborts(t *testing.T) {
	buf := buildV2MLDReport([]GroupRecord{
		{Type: ModeIsInclude, Group: net.ParseIP("ff1e::1")},
	})
	buf[8] = 0x09
	binary.BigEndian.PutUint16(buf[2:4], 0)
	cs := ICMPv6PseudoChecksum(testSrc, testDst, buf)
	binary.BigEndian.PutUint16(buf[2:4], cs)

	msg, err := ParseMLD(testSrc, testDst, buf)
	assert.Error(t, err)
	assert.Empty(t, msg.Records)
}

func TestMRDAdvertIPv6_BuildParseRoundTrip(t *testing.T) {
	buf := BuildMRDAdvertIPv6(testSrc, testDst, 20, 125, 2)
	assert.Equal(t, uint16(0), ICMPv6PseudoChecksum(testSrc, testDst, buf))

	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	assert.Equal(t, KindMRDAdvert, msg.Kind)
	assert.Equal(t, 20, msg.MRDAdvertInterval)
	assert.Equal(t, 125, msg.MRDQQI)
	assert.Equal(t, 2, msg.MRDQRV)
}

func TestMRDSolicitIPv6_BuildParseRoundTrip(t *testing.T) {
	buf := BuildMRDSolicitIPv6(testSrc, testDst)
	msg, err := ParseMLD(testSrc, testDst, buf)
	require.NoError(t, err)
	assert.Equal(t, KindMRDSolicit, msg.Kind)
}

func TestMulticastMACv6_LastThirtyTwoBits(t *testing.T) {
	mac := MulticastMACv6(net.ParseIP("ff1e::1:2:3:4"))
	assert.Equal(t, [6]byte{0x33, 0x33, 0x00, 0x03, 0x00, 0x04}, mac)
}
