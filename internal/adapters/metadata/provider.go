package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ga_friendliness/internal/adapters/sources"
	"ga_friendliness/internal/domain"
)

// FactsReader reads structured facts from the authoritative database.
type FactsReader interface {
	AuthoritativeFacts(ctx context.Context, airportID string) (domain.AirportFacts, error)
}

// FeeSource supplies landing fees, e.g. sources.AirportDirSource.
type FeeSource interface {
	FeeData(icao string) (sources.FeeData, bool)
}

// Provider merges authoritative facts with landing fees from review
// sources. The first fee source that knows an airport wins.
type Provider struct {
	facts FactsReader
	fees  []FeeSource
	log   zerolog.Logger
}

func New(facts FactsReader, log zerolog.Logger, fees ...FeeSource) *Provider {
	return &Provider{facts: facts, fees: fees, log: log}
}

func (p *Provider) Facts(ctx context.Context, airportID string) (domain.AirportFacts, error) {
	var f domain.AirportFacts
	if p.facts != nil {
		got, err := p.facts.AuthoritativeFacts(ctx, airportID)
		switch {
		case err == nil:
			f = got
		case errors.Is(err, domain.ErrNotFound):
			p.log.Debug().Str("icao", airportID).Msg("airport not in authoritative db")
		default:
			return f, fmt.Errorf("authoritative facts %s: %w", airportID, err)
		}
	}
	for _, src := range p.fees {
		fd, ok := src.FeeData(airportID)
		if !ok || len(fd.Bands) == 0 {
			continue
		}
		f.FeeBands = make(map[string]float64, len(fd.Bands))
		for k, v := range fd.Bands {
			f.FeeBands[k] = v
		}
		f.FeeCurrency = fd.Currency
		break
	}
	return f, nil
}

var _ domain.MetadataProvider = (*Provider)(nil)
