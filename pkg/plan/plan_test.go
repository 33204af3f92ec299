package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("midi")
	require.NoError(t, err)
	assert.Equal(t, Midi, p)

	p, err = Parse("  LTD_TEAM ")
	require.NoError(t, err)
	assert.Equal(t, LTDTeam, p)

	_, err = Parse("MEGA")
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestLifetimeAndRecurring(t *testing.T) {
	assert.True(t, LTDSolo.Lifetime())
	assert.True(t, LTDBusiness.Lifetime())
	assert.False(t, Midi.Lifetime())
	assert.False(t, Free.Lifetime())

	assert.True(t, Midi.Recurring())
	assert.True(t, Business.Recurring())
	assert.False(t, Free.Recurring())
	assert.False(t, LTDTeam.Recurring())
}

func TestRankOrdering(t *testing.T) {
	assert.Less(t, Free.Rank(), Midi.Rank())
	assert.Less(t, Midi.Rank(), Maxi.Rank())
	assert.Less(t, Maxi.Rank(), Business.Rank())
	assert.Less(t, LTDSolo.Rank(), LTDTeam.Rank())
	assert.Less(t, Business.Rank(), LTDBusiness.Rank())

	// Unknown plans compare as downgrades against everything.
	assert.Equal(t, -1, Plan("LEGACY").Rank())
	assert.Less(t, Plan("LEGACY").Rank(), Free.Rank())
}

func TestLimitsFor(t *testing.T) {
	free := LimitsFor(Free)
	assert.Equal(t, 2, free.Members)
	assert.Equal(t, 1, free.Projects)
	assert.False(t, free.LogoUpload)

	business := LimitsFor(Business)
	assert.Equal(t, Unlimited, business.Members)
	assert.Equal(t, Unlimited, business.Projects)
	assert.True(t, business.CustomBranding)

	// Unrecognized plan strings resolve to FREE limits instead of failing.
	legacy := LimitsFor(Plan("LEGACY_PRO"))
	assert.Equal(t, free, legacy)
}

func TestAllReturnsRankOrder(t *testing.T) {
	all := All()
	require.Len(t, all, 8)
	assert.Equal(t, Free, all[0])
	assert.Equal(t, LTDBusiness, all[len(all)-1])
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Rank(), all[i].Rank())
	}
}
