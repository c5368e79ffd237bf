package sources

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ga_friendliness/internal/domain"
)

/********** alias registries **********/

var pirepAliases = map[string][]string{
	"id":        {"id", "pirep_id", "review_id"},
	"language":  {"language", "lang", "locale"},
	"rating":    {"rating", "score", "rating.value"},
	"timestamp": {"created_at", "updated_at", "timestamp", "date"},
}

/********** tiny helpers **********/

// lookupAny: nested lookup with dot paths on decoded JSON maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if s, ok := lookupAny(m, path).(string); ok {
		return s
	}
	return ""
}

func lookupMap(m map[string]any, path string) map[string]any {
	if v, ok := lookupAny(m, path).(map[string]any); ok {
		return v
	}
	return nil
}

func firstNonEmpty(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "4,5").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		if f := toFloat(lookupAny(m, k)); f != nil {
			return f
		}
	}
	return nil
}

func toFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

// clampRating keeps ratings in 1..5 and drops anything else.
func clampRating(r *float64) *float64 {
	if r == nil || *r < 1 || *r > 5 {
		return nil
	}
	return r
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts the timestamp shapes seen in exports; zero if unknown.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// pickText selects preferred language, then EN, then the first language in
// sorted order. content may also be a plain string.
func pickText(content any, preferred string) (text, lang string) {
	switch c := content.(type) {
	case string:
		return strings.TrimSpace(c), ""
	case map[string]any:
		for _, l := range []string{preferred, "EN"} {
			if s, ok := c[l].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), l
			}
		}
		langs := make([]string, 0, len(c))
		for l := range c {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		for _, l := range langs {
			if s, ok := c[l].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), l
			}
		}
	}
	return "", ""
}

type pirepOptions struct {
	PreferredLanguage string
	IncludeSynthetic  bool
	Source            string
}

// mapPirep normalizes one airfield.directory report. ok=false means skip.
func mapPirep(icao, fallbackID string, p map[string]any, o pirepOptions) (domain.RawReview, bool) {
	synthetic, _ := p["ai_generated"].(bool)
	if synthetic && !o.IncludeSynthetic {
		return domain.RawReview{}, false
	}
	text, lang := pickText(p["content"], o.PreferredLanguage)
	if text == "" {
		return domain.RawReview{}, false
	}
	if l := firstNonEmpty(p, pirepAliases["language"]...); l != "" {
		lang = l
	}
	if lang == "" {
		lang = o.PreferredLanguage
	}
	id := firstNonEmpty(p, pirepAliases["id"]...)
	if id == "" {
		id = fallbackID
	}
	r := domain.RawReview{
		AirportID:   strings.ToUpper(strings.TrimSpace(icao)),
		ReviewID:    id,
		Text:        text,
		Rating:      clampRating(getFloatFlexible(p, pirepAliases["rating"]...)),
		Timestamp:   parseTime(firstNonEmpty(p, pirepAliases["timestamp"]...)),
		Language:    lang,
		IsSynthetic: synthetic,
		Source:      o.Source,
	}
	if r.ReviewID == "" {
		r.ReviewID = synthesizeID(r)
	}
	return r, true
}

// synthesizeID derives a stable id from content when a feed carries none.
func synthesizeID(r domain.RawReview) string {
	rating := ""
	if r.Rating != nil {
		rating = fmt.Sprintf("%.3f", *r.Rating)
	}
	sig := strings.Join([]string{r.Source, r.AirportID, r.Text, r.Language, rating, r.Timestamp.Format(time.RFC3339)}, "|")
	sum := sha1.Sum([]byte(sig))
	return r.Source + ":" + hex.EncodeToString(sum[:])
}

func contentVersion(prefix string, b []byte) string {
	sum := sha1.Sum(b)
	return prefix + ":" + hex.EncodeToString(sum[:])[:16]
}
