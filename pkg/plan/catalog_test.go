package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPrices() PriceIDs {
	return PriceIDs{
		Midi:        "price_midi",
		Maxi:        "price_maxi",
		Business:    "price_business",
		LTDSolo:     "price_ltd_solo",
		LTDTeam:     "price_ltd_team",
		LTDAgency:   "price_ltd_agency",
		LTDBusiness: "price_ltd_business",
	}
}

func TestBuildCatalog(t *testing.T) {
	c, err := BuildCatalog(validPrices())
	require.NoError(t, err)

	d, ok := c.Descriptor(Midi)
	require.True(t, ok)
	assert.Equal(t, "price_midi", d.PriceID)
	assert.False(t, d.Lifetime)
	assert.Equal(t, LimitsFor(Midi), d.Limits)

	d, ok = c.Descriptor(LTDTeam)
	require.True(t, ok)
	assert.True(t, d.Lifetime)

	d, ok = c.Descriptor(Free)
	require.True(t, ok)
	assert.Empty(t, d.PriceID)
}

func TestBuildCatalog_MissingPriceFailsFast(t *testing.T) {
	prices := validPrices()
	prices.Maxi = ""

	_, err := BuildCatalog(prices)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAXI")
}

func TestBuildCatalog_DuplicatePriceFailsFast(t *testing.T) {
	prices := validPrices()
	prices.Maxi = prices.Midi

	_, err := BuildCatalog(prices)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price_midi")
}

func TestPlanForPrice(t *testing.T) {
	c, err := BuildCatalog(validPrices())
	require.NoError(t, err)

	p, ok := c.PlanForPrice("price_business")
	require.True(t, ok)
	assert.Equal(t, Business, p)

	_, ok = c.PlanForPrice("price_unknown")
	assert.False(t, ok)

	_, ok = c.PlanForPrice("")
	assert.False(t, ok)
}

func TestDescriptorsRankOrder(t *testing.T) {
	c, err := BuildCatalog(validPrices())
	require.NoError(t, err)

	ds := c.Descriptors()
	require.Len(t, ds, 8)
	assert.Equal(t, Free, ds[0].Plan)
	for i := 1; i < len(ds); i++ {
		assert.Less(t, ds[i-1].Plan.Rank(), ds[i].Plan.Rank())
	}
}
