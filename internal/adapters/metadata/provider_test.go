package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga_friendliness/internal/adapters/sources"
	"ga_friendliness/internal/domain"
)

type fakeFacts struct {
	facts map[string]domain.AirportFacts
	err   error
}

func (f fakeFacts) AuthoritativeFacts(_ context.Context, id string) (domain.AirportFacts, error) {
	if f.err != nil {
		return domain.AirportFacts{}, f.err
	}
	v, ok := f.facts[id]
	if !ok {
		return domain.AirportFacts{}, domain.ErrNotFound
	}
	return v, nil
}

type fakeFees map[string]sources.FeeData

func (f fakeFees) FeeData(icao string) (sources.FeeData, bool) {
	v, ok := f[icao]
	return v, ok
}

func TestFactsMergesFees(t *testing.T) {
	m := 800.0
	p := New(fakeFacts{facts: map[string]domain.AirportFacts{"EGTF": {Name: "Fairoaks", LongestRunwayM: &m}}},
		zerolog.Nop(),
		fakeFees{},
		fakeFees{"EGTF": {Currency: "GBP", Bands: map[string]float64{"fee_band_750_1199kg": 25}}},
	)

	f, err := p.Facts(context.Background(), "EGTF")
	require.NoError(t, err)
	assert.Equal(t, "Fairoaks", f.Name)
	assert.Equal(t, "GBP", f.FeeCurrency)
	assert.Equal(t, 25.0, f.FeeBands["fee_band_750_1199kg"])
}

func TestUnknownAirportGivesZeroFacts(t *testing.T) {
	p := New(fakeFacts{}, zerolog.Nop())
	f, err := p.Facts(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, domain.AirportFacts{}, f)
}

func TestNilReaderUsesFeesOnly(t *testing.T) {
	p := New(nil, zerolog.Nop(), fakeFees{"LFAC": {Currency: "EUR", Bands: map[string]float64{"fee_band_0_749kg": 12}}})
	f, err := p.Facts(context.Background(), "LFAC")
	require.NoError(t, err)
	assert.Equal(t, "EUR", f.FeeCurrency)
	assert.Nil(t, f.LongestRunwayM)
}

func TestReaderFailureIsReturned(t *testing.T) {
	boom := errors.New("disk gone")
	p := New(fakeFacts{err: boom}, zerolog.Nop())
	_, err := p.Facts(context.Background(), "EGTF")
	assert.ErrorIs(t, err, boom)
}
