package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBareService(names ...string) *Service {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return &Service{names: set}
}

func TestReserve_ClaimsUnseenName(t *testing.T) {
	s := newBareService()
	assert.True(t, s.reserve("shroud"))
	_, exists := s.names["shroud"]
	assert.True(t, exists)
}

func TestReserve_RejectsAlreadyClaimedName(t *testing.T) {
	s := newBareService("shroud")
	assert.False(t, s.reserve("shroud"))
}

func TestTracked_ReportsMembership(t *testing.T) {
	s := newBareService("shroud")
	assert.True(t, s.tracked("shroud"))
	assert.False(t, s.tracked("pokimane"))
}

func TestRelease_RemovesClaimedName(t *testing.T) {
	s := newBareService("shroud")
	assert.True(t, s.release("shroud"))
	_, exists := s.names["shroud"]
	assert.False(t, exists)
}

func TestRelease_RejectsAbsentName(t *testing.T) {
	s := newBareService()
	assert.False(t, s.release("shroud"))
}

func TestReserveRelease_RoundTripAllowsReclaim(t *testing.T) {
	s := newBareService()
	require := assert.New(t)
	require.True(s.reserve("pokimane"))
	require.True(s.release("pokimane"))
	require.True(s.reserve("pokimane"))
}
