package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerWritesJSONToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "prod", "warn")
	l.Info().Msg("dropped")
	l.Warn().Str("icao", "EGTF").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["message"] != "kept" || rec["icao"] != "EGTF" || rec["level"] != "warn" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewLoggerConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "dev", "bogus")
	l.Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, "hello") || strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}
