// Package configstore loads and validates the ontology, persona and feature
// mapping documents, falling back to built-in defaults.
package configstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"ga_friendliness/internal/domain"
)

// Options selects the documents to load. Empty paths use the defaults.
type Options struct {
	OntologyPath       string
	PersonasPath       string
	FeatureMappingPath string
	Aggregation        AggregationSettings
}

// AggregationSettings configures the optional decay and smoothing steps.
// Zero values disable them.
type AggregationSettings struct {
	DecayHalfLifeDays float64 `json:"decay_half_life_days" validate:"gte=0"`
	SmoothingStrength float64 `json:"smoothing_strength" validate:"gte=0"`
	SmoothingPrior    float64 `json:"smoothing_prior" validate:"gte=0,lte=1"`
}

// Store is the validated, immutable configuration passed to every component.
type Store struct {
	ontology       domain.Ontology
	personas       map[string]domain.Persona
	defaultPersona string
	features       []string
	rules          []domain.MappingRule
	mappingVersion string
	aggregation    AggregationSettings
}

// Load reads all documents and validates them together. A failure returns a
// *domain.ConfigError carrying every problem found.
func Load(opts Options) (*Store, error) {
	v := validator.New()
	var problems []error

	var ont ontologyDoc
	if name, err := readDoc(opts.OntologyPath, "ontology.yaml", &ont); err != nil {
		problems = append(problems, err)
	} else {
		problems = append(problems, structProblems(v, name, ont)...)
	}

	var per personasDoc
	if name, err := readDoc(opts.PersonasPath, "personas.yaml", &per); err != nil {
		problems = append(problems, err)
	} else {
		problems = append(problems, structProblems(v, name, per)...)
	}

	var mp mappingDoc
	if name, err := readDoc(opts.FeatureMappingPath, "feature_mapping.yaml", &mp); err != nil {
		problems = append(problems, err)
	} else {
		problems = append(problems, structProblems(v, name, mp)...)
	}
	if len(mp.Features) == 0 {
		mp.Features = append([]string(nil), domain.DefaultFeatures...)
	}

	problems = append(problems, structProblems(v, "aggregation", opts.Aggregation)...)

	s := build(ont, per, mp, opts.Aggregation)
	problems = append(problems, s.check()...)
	if len(problems) > 0 {
		return nil, &domain.ConfigError{Problems: problems}
	}
	return s, nil
}

// Default returns the built-in configuration.
func Default() (*Store, error) { return Load(Options{}) }

func structProblems(v *validator.Validate, doc string, s any) []error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []error{fmt.Errorf("%s: %w", doc, err)}
	}
	out := make([]error, 0, len(ve))
	for _, fe := range ve {
		out = append(out, fmt.Errorf("%s: %s fails %q", doc, fe.Namespace(), fe.ActualTag()))
	}
	return out
}

func build(ont ontologyDoc, per personasDoc, mp mappingDoc, agg AggregationSettings) *Store {
	s := &Store{
		ontology:       domain.Ontology{Version: ont.Version, Aspects: ont.Aspects},
		personas:       make(map[string]domain.Persona, len(per.Personas)),
		defaultPersona: per.DefaultPersona,
		features:       mp.Features,
		mappingVersion: mp.Version,
		aggregation:    agg,
	}
	for id, p := range per.Personas {
		dp := domain.Persona{
			ID:                id,
			Label:             p.Label,
			Description:       p.Description,
			Weights:           p.Weights,
			SourcePreferences: map[string]domain.SourcePreference{},
			MissingBehaviors:  map[string]domain.MissingBehavior{},
		}
		for f, sp := range p.SourcePreferences {
			dp.SourcePreferences[f] = domain.SourcePreference(sp)
		}
		for f, mb := range p.MissingBehaviors {
			dp.MissingBehaviors[f] = domain.MissingBehavior(mb)
		}
		s.personas[id] = dp
	}
	for _, r := range mp.Rules {
		s.rules = append(s.rules, domain.MappingRule{Feature: r.Feature, Aspects: r.Aspects, LabelScores: r.LabelScores})
	}
	if s.defaultPersona == "" {
		if ids := s.PersonaIDs(); len(ids) > 0 {
			s.defaultPersona = ids[0]
		}
	}
	return s
}

func (s *Store) Ontology() domain.Ontology { return s.ontology }

func (s *Store) Features() []string { return append([]string(nil), s.features...) }

func (s *Store) Rules() []domain.MappingRule { return s.rules }

func (s *Store) Aggregation() AggregationSettings { return s.aggregation }

func (s *Store) DefaultPersona() string { return s.defaultPersona }

func (s *Store) Persona(id string) (domain.Persona, bool) {
	p, ok := s.personas[id]
	return p, ok
}

// PersonaIDs returns persona ids in sorted order.
func (s *Store) PersonaIDs() []string {
	ids := make([]string, 0, len(s.personas))
	for id := range s.personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Personas() []domain.Persona {
	out := make([]domain.Persona, 0, len(s.personas))
	for _, id := range s.PersonaIDs() {
		out = append(out, s.personas[id])
	}
	return out
}

func (s *Store) OntologyVersion() string { return s.ontology.Version }

// ScoringVersion changes whenever stored feature scores would change: the
// mapping document version plus a digest of the rules and aggregation knobs.
func (s *Store) ScoringVersion() string {
	b, _ := json.Marshal(struct {
		Features    []string             `json:"features"`
		Rules       []domain.MappingRule `json:"rules"`
		Aggregation AggregationSettings  `json:"aggregation"`
	}{s.features, s.rules, s.aggregation})
	sum := sha256.Sum256(b)
	return s.mappingVersion + "+" + hex.EncodeToString(sum[:])[:12]
}
