package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"ga_friendliness/internal/domain"
)

// Loader yields the raw bytes of a bulk snapshot.
type Loader interface {
	Describe() string
	Load(ctx context.Context) ([]byte, error)
}

type FileLoader struct{ Path string }

func (f FileLoader) Describe() string { return f.Path }

func (f FileLoader) Load(ctx context.Context) ([]byte, error) { return os.ReadFile(f.Path) }

type ExportOptions struct {
	PreferredLanguage string
	IncludeSynthetic  bool
}

// ExportSource reads the airfield.directory bulk export:
//
//	{"pireps": {"LFSB": {"LFSB#abc": {"content": {"EN": "..."}, "rating": 4, ...}}}}
//
// The snapshot is loaded once per instance so Version and Reviews agree.
type ExportSource struct {
	loader Loader
	opts   ExportOptions

	mu   sync.Mutex
	data []byte
}

func NewExport(l Loader, opts ExportOptions) *ExportSource {
	if opts.PreferredLanguage == "" {
		opts.PreferredLanguage = "EN"
	}
	return &ExportSource{loader: l, opts: opts}
}

func (s *ExportSource) Name() string            { return "airfield.directory(" + s.loader.Describe() + ")" }
func (s *ExportSource) Kind() domain.SourceKind { return domain.SourceExport }

func (s *ExportSource) snapshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		return s.data, nil
	}
	b, err := s.loader.Load(ctx)
	if err != nil {
		return nil, &domain.SourceError{Source: s.Name(), Err: err}
	}
	s.data = b
	return b, nil
}

func (s *ExportSource) Version(ctx context.Context) (string, error) {
	b, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return contentVersion("airfield.directory", b), nil
}

func (s *ExportSource) Reviews(ctx context.Context) ([]domain.RawReview, error) {
	b, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Pireps map[string]map[string]map[string]any `json:"pireps"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, &domain.SourceError{Source: s.Name(), Err: fmt.Errorf("decode export: %w", err)}
	}

	icaos := make([]string, 0, len(doc.Pireps))
	for icao := range doc.Pireps {
		icaos = append(icaos, icao)
	}
	sort.Strings(icaos)

	po := pirepOptions{PreferredLanguage: s.opts.PreferredLanguage, IncludeSynthetic: s.opts.IncludeSynthetic, Source: "airfield.directory"}
	var out []domain.RawReview
	for _, icao := range icaos {
		byID := doc.Pireps[icao]
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if r, ok := mapPirep(strings.ToUpper(icao), id, byID[id], po); ok {
				out = append(out, r)
			}
		}
	}
	return out, nil
}
