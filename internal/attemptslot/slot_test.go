package attemptslot

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhauspie/streampool/internal/serviceendpoint"
	"github.com/lhauspie/streampool/internal/streamattempt"
)

type fakeAttempt struct {
	ep        serviceendpoint.IpEndpoint
	state     streamattempt.LoadState
	slow      bool
	cancelled bool
}

func (f *fakeAttempt) IpEndpoint() serviceendpoint.IpEndpoint   { return f.ep }
func (f *fakeAttempt) LoadState() streamattempt.LoadState       { return f.state }
func (f *fakeAttempt) IsSlow() bool                              { return f.slow }
func (f *fakeAttempt) Cancel()                                   { f.cancelled = true }

func v4Endpoint() serviceendpoint.IpEndpoint {
	return serviceendpoint.NewIpEndpoint(netip.MustParseAddr("1.2.3.4"), 443)
}

func v6Endpoint() serviceendpoint.IpEndpoint {
	return serviceendpoint.NewIpEndpoint(netip.MustParseAddr("::1"), 443)
}

func TestAllocate_SeparatesFamilies(t *testing.T) {
	s := New()
	v4 := &fakeAttempt{ep: v4Endpoint()}
	v6 := &fakeAttempt{ep: v6Endpoint()}

	require.NoError(t, s.Allocate(v4))
	require.NoError(t, s.Allocate(v6))

	assert.True(t, s.HasFamily(serviceendpoint.FamilyIPv4))
	assert.True(t, s.HasFamily(serviceendpoint.FamilyIPv6))
	assert.False(t, s.Empty())
}

func TestAllocate_RejectsOccupiedFamily(t *testing.T) {
	s := New()
	require.NoError(t, s.Allocate(&fakeAttempt{ep: v4Endpoint()}))

	err := s.Allocate(&fakeAttempt{ep: v4Endpoint()})
	assert.ErrorIs(t, err, ErrFamilyOccupied)
}

func TestAllocate_RejectsUnknownFamily(t *testing.T) {
	s := New()
	err := s.Allocate(&fakeAttempt{ep: serviceendpoint.IpEndpoint{}})
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestTake_RemovesOccupant(t *testing.T) {
	s := New()
	v4 := &fakeAttempt{ep: v4Endpoint()}
	require.NoError(t, s.Allocate(v4))

	taken := s.Take(v4)
	assert.Equal(t, v4, taken)
	assert.True(t, s.Empty())
}

func TestTake_UnknownAttemptReturnsNil(t *testing.T) {
	s := New()
	require.NoError(t, s.Allocate(&fakeAttempt{ep: v4Endpoint()}))

	assert.Nil(t, s.Take(&fakeAttempt{ep: v6Endpoint()}))
}

func TestLoadState_ReportsMostAdvanced(t *testing.T) {
	s := New()
	require.NoError(t, s.Allocate(&fakeAttempt{ep: v4Endpoint(), state: streamattempt.LoadStateConnecting}))
	require.NoError(t, s.Allocate(&fakeAttempt{ep: v6Endpoint(), state: streamattempt.LoadStateSslHandshake}))

	assert.Equal(t, streamattempt.LoadStateSslHandshake, s.LoadState())
}

func TestIsSlow_RequiresAllOccupantsSlow(t *testing.T) {
	s := New()
	v4 := &fakeAttempt{ep: v4Endpoint(), slow: true}
	v6 := &fakeAttempt{ep: v6Endpoint(), slow: false}
	require.NoError(t, s.Allocate(v4))
	require.NoError(t, s.Allocate(v6))
	assert.False(t, s.IsSlow())

	v6.slow = true
	s.Refresh()
	assert.True(t, s.IsSlow())
}

func TestIsSlow_EmptySlotIsNotSlow(t *testing.T) {
	s := New()
	assert.False(t, s.IsSlow())
}

func TestCancelAll_CancelsEveryOccupant(t *testing.T) {
	s := New()
	v4 := &fakeAttempt{ep: v4Endpoint()}
	v6 := &fakeAttempt{ep: v6Endpoint()}
	require.NoError(t, s.Allocate(v4))
	require.NoError(t, s.Allocate(v6))

	s.CancelAll()

	assert.True(t, v4.cancelled)
	assert.True(t, v6.cancelled)
}

func TestReset_ClearsOccupantsAndSlowFlag(t *testing.T) {
	s := New()
	v4 := &fakeAttempt{ep: v4Endpoint(), slow: true}
	v6 := &fakeAttempt{ep: v6Endpoint(), slow: true}
	require.NoError(t, s.Allocate(v4))
	require.NoError(t, s.Allocate(v6))
	require.True(t, s.IsSlow())

	s.Reset()

	assert.True(t, s.Empty())
	assert.False(t, s.IsSlow())
	assert.NoError(t, s.Allocate(&fakeAttempt{ep: v4Endpoint()}))
}

func TestCancelReason_String(t *testing.T) {
	cases := map[CancelReason]string{
		CancelReasonUnspecified:           "unspecified",
		CancelReasonSpdySessionCreated:    "spdy_session_created",
		CancelReasonQuicSessionCreated:    "quic_session_created",
		CancelReasonUsingExistingSession:  "using_existing_session",
		CancelReasonPoolClosed:            "pool_closed",
		CancelReasonNetworkChanged:        "network_changed",
	}
	for reason, want := range cases {
		assert.Equal(t, want, reason.String())
	}
}
