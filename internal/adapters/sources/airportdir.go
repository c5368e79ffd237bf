package sources

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ga_friendliness/internal/domain"
)

// aircraftMTOW maps landing-fee aircraft keys to maximum take-off mass in kg.
var aircraftMTOW = map[string]int{
	"c152": 757, "c172": 1157, "pa28": 1111, "c182": 1406,
	"sr22": 1633, "c210": 1814, "a210": 1814, "m20": 1315, "pa32": 1542,
	"pa34": 2155, "be76": 1769, "da42": 1785,
	"tbm850": 3354, "tbm85": 3354, "tbm9": 3354, "pc12": 4740,
	"c510": 4536, "c525": 5670,
}

// FeeBands in ascending MTOW order.
var FeeBands = []struct {
	Name     string
	Min, Max int
}{
	{"fee_band_0_749kg", 0, 749},
	{"fee_band_750_1199kg", 750, 1199},
	{"fee_band_1200_1499kg", 1200, 1499},
	{"fee_band_1500_1999kg", 1500, 1999},
	{"fee_band_2000_3999kg", 2000, 3999},
	{"fee_band_4000_plus_kg", 4000, 1 << 30},
}

func feeBand(mtow int) string {
	for _, b := range FeeBands {
		if mtow >= b.Min && mtow <= b.Max {
			return b.Name
		}
	}
	return FeeBands[len(FeeBands)-1].Name
}

// FeeData is the averaged landing fee per band for one airport.
type FeeData struct {
	Currency    string
	LastChanged string
	Bands       map[string]float64
}

// AirportDirSource reads one JSON document per airport from a directory.
// Besides reviews it exposes landing-fee data for metadata scoring.
type AirportDirSource struct {
	dir  string
	opts ExportOptions
	log  zerolog.Logger

	once    sync.Once
	loadErr error
	reviews []domain.RawReview
	fees    map[string]FeeData
	version string
}

func NewAirportDir(dir string, opts ExportOptions, log zerolog.Logger) *AirportDirSource {
	if opts.PreferredLanguage == "" {
		opts.PreferredLanguage = "EN"
	}
	return &AirportDirSource{dir: dir, opts: opts, log: log}
}

func (s *AirportDirSource) Name() string            { return "airfield.directory.json(" + s.dir + ")" }
func (s *AirportDirSource) Kind() domain.SourceKind { return domain.SourceAirportDir }

func (s *AirportDirSource) Reviews(ctx context.Context) ([]domain.RawReview, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	return s.reviews, nil
}

func (s *AirportDirSource) Version(ctx context.Context) (string, error) {
	if err := s.load(); err != nil {
		return "", err
	}
	return s.version, nil
}

// FeeData returns averaged fees for icao, if the directory carried any.
func (s *AirportDirSource) FeeData(icao string) (FeeData, bool) {
	if s.load() != nil {
		return FeeData{}, false
	}
	fd, ok := s.fees[strings.ToUpper(icao)]
	return fd, ok
}

func (s *AirportDirSource) load() error {
	s.once.Do(func() { s.loadErr = s.read() })
	return s.loadErr
}

func (s *AirportDirSource) read() error {
	if _, err := os.Stat(s.dir); err != nil {
		return &domain.SourceError{Source: s.Name(), Err: err}
	}
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return &domain.SourceError{Source: s.Name(), Err: err}
	}
	sort.Strings(files)

	s.fees = map[string]FeeData{}
	h := sha1.New()
	po := pirepOptions{PreferredLanguage: s.opts.PreferredLanguage, IncludeSynthetic: s.opts.IncludeSynthetic, Source: "airfield.directory.json"}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			s.log.Warn().Err(err).Str("file", f).Msg("skip unreadable airport file")
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			s.log.Warn().Err(err).Str("file", f).Msg("skip malformed airport file")
			continue
		}
		icao := strings.ToUpper(lookupStr(doc, "airfield.data.icao"))
		if icao == "" {
			icao = strings.ToUpper(strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
			if len(icao) != 4 {
				continue
			}
		}
		fmt.Fprintf(h, "%s\x00", icao)
		h.Write(b)

		pireps, _ := lookupAny(doc, "pireps.data").([]any)
		for _, raw := range pireps {
			p, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if r, ok := mapPirep(icao, "", p, po); ok {
				s.reviews = append(s.reviews, r)
			}
		}
		if fd, ok := parseFees(lookupMap(doc, "aerops.data")); ok {
			s.fees[icao] = fd
		}
	}
	s.version = "airfield.directory.json:" + hex.EncodeToString(h.Sum(nil))[:16]
	return nil
}

// parseFees averages the first net price of each known aircraft per band.
func parseFees(aerops map[string]any) (FeeData, bool) {
	fees, _ := aerops["landing_fees"].(map[string]any)
	if len(fees) == 0 {
		return FeeData{}, false
	}
	sums := map[string][]float64{}
	for aircraft, v := range fees {
		mtow, ok := aircraftMTOW[strings.ToLower(aircraft)]
		if !ok {
			continue
		}
		entries, _ := v.([]any)
		if len(entries) == 0 {
			continue
		}
		first, _ := entries[0].(map[string]any)
		price := getFloatFlexible(first, "netPrice", "netprice")
		if price == nil {
			continue
		}
		band := feeBand(mtow)
		sums[band] = append(sums[band], *price)
	}
	if len(sums) == 0 {
		return FeeData{}, false
	}
	fd := FeeData{
		Currency:    lookupStr(aerops, "currency"),
		LastChanged: lookupStr(aerops, "fees_last_changed"),
		Bands:       make(map[string]float64, len(sums)),
	}
	if fd.Currency == "" {
		fd.Currency = "EUR"
	}
	for band, ps := range sums {
		total := 0.0
		for _, p := range ps {
			total += p
		}
		fd.Bands[band] = total / float64(len(ps))
	}
	return fd, true
}
