package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"ga_friendliness/internal/domain"
)

// CSVColumns names the columns read from a tabular review file. Only Airport
// and Text are required to be present in the header.
type CSVColumns struct {
	Airport   string
	Text      string
	ReviewID  string
	Rating    string
	Timestamp string
	Language  string
}

func DefaultCSVColumns() CSVColumns {
	return CSVColumns{
		Airport:   "icao",
		Text:      "review_text",
		ReviewID:  "review_id",
		Rating:    "rating",
		Timestamp: "timestamp",
		Language:  "language",
	}
}

type CSVSource struct {
	path string
	cols CSVColumns
	name string
}

func NewCSV(path string, cols CSVColumns) *CSVSource {
	return &CSVSource{path: path, cols: cols, name: "csv"}
}

func (s *CSVSource) Name() string            { return s.name + "(" + s.path + ")" }
func (s *CSVSource) Kind() domain.SourceKind { return domain.SourceCSV }

func (s *CSVSource) Version(ctx context.Context) (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", &domain.SourceError{Source: s.Name(), Err: err}
	}
	return contentVersion("csv", b), nil
}

func (s *CSVSource) Reviews(ctx context.Context) ([]domain.RawReview, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &domain.SourceError{Source: s.Name(), Err: err}
	}
	out, err := s.parse(b)
	if err != nil {
		return nil, &domain.SourceError{Source: s.Name(), Err: err}
	}
	return out, nil
}

func (s *CSVSource) parse(b []byte) ([]domain.RawReview, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{s.cols.Airport, s.cols.Text} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || col == "" || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []domain.RawReview
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		icao := strings.ToUpper(field(row, s.cols.Airport))
		text := field(row, s.cols.Text)
		if icao == "" || text == "" {
			continue
		}
		rv := domain.RawReview{
			AirportID: icao,
			ReviewID:  field(row, s.cols.ReviewID),
			Text:      text,
			Rating:    clampRating(toFloat(field(row, s.cols.Rating))),
			Timestamp: parseTime(field(row, s.cols.Timestamp)),
			Language:  field(row, s.cols.Language),
			Source:    s.name,
		}
		if rv.ReviewID == "" {
			rv.ReviewID = synthesizeID(rv)
		}
		out = append(out, rv)
	}
	return out, nil
}
