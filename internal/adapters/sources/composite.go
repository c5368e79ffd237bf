package sources

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"ga_friendliness/internal/adapters/observability"
	"ga_friendliness/internal/domain"
)

// Composite merges member sources in order. Duplicate review ids resolve
// first-source-wins. A failing member is skipped while at least one other
// member succeeds.
type Composite struct {
	members []domain.ReviewSource
	log     zerolog.Logger
}

func NewComposite(log zerolog.Logger, members ...domain.ReviewSource) *Composite {
	return &Composite{members: members, log: log}
}

func (c *Composite) Kind() domain.SourceKind { return domain.SourceComposite }

func (c *Composite) Name() string {
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.Name())
	}
	return "composite(" + strings.Join(names, ", ") + ")"
}

func (c *Composite) Version(ctx context.Context) (string, error) {
	var (
		parts []string
		errs  []error
	)
	for _, m := range c.members {
		v, err := m.Version(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 && len(errs) > 0 {
		return "", &domain.SourceError{Source: c.Name(), Err: errors.Join(errs...)}
	}
	return strings.Join(parts, "|"), nil
}

func (c *Composite) Reviews(ctx context.Context) ([]domain.RawReview, error) {
	var (
		out  []domain.RawReview
		errs []error
		ok   int
	)
	seen := map[string]bool{}
	for _, m := range c.members {
		rs, err := m.Reviews(ctx)
		if err != nil {
			c.log.Warn().Err(err).Str("source", m.Name()).Msg("composite member failed; skipping")
			errs = append(errs, err)
			continue
		}
		ok++
		dups := 0
		for _, r := range rs {
			if seen[r.ReviewID] {
				dups++
				continue
			}
			seen[r.ReviewID] = true
			out = append(out, r)
		}
		observability.ObserveSourceReviews(m.Name(), len(rs)-dups)
		c.log.Debug().Str("source", m.Name()).Int("reviews", len(rs)).Int("duplicates", dups).Msg("composite member loaded")
	}
	if ok == 0 && len(errs) > 0 {
		return nil, &domain.SourceError{Source: c.Name(), Err: errors.Join(errs...)}
	}
	return out, nil
}
