package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("not found")

// ConfigError lists every violation found while loading configuration.
type ConfigError struct {
	Problems []error
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("config invalid (%d problems): %s", len(e.Problems), strings.Join(msgs, "; "))
}

func (e *ConfigError) Unwrap() []error { return e.Problems }

// ScoringInconsistency flags a persona or mapping that points at a feature
// the configuration does not define.
type ScoringInconsistency struct {
	Owner   string
	Feature string
	Reason  string
}

func (e *ScoringInconsistency) Error() string {
	return fmt.Sprintf("%s: feature %q: %s", e.Owner, e.Feature, e.Reason)
}

// SourceError is returned when a review source cannot be read.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Source, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// ExtractionFailure describes a review whose extraction exhausted retries.
// It is recorded, never fatal to a build.
type ExtractionFailure struct {
	AirportID string
	ReviewID  string
	Attempts  int
	Err       error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extract %s/%s after %d attempts: %v", e.AirportID, e.ReviewID, e.Attempts, e.Err)
}
func (e *ExtractionFailure) Unwrap() error { return e.Err }
