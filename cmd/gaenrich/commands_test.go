package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga_friendliness/internal/app"
)

// runCLI executes the root command against a fresh SQLite store and returns
// what went to stdout and stderr.
func runCLI(t *testing.T, env map[string]string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "ga.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LOG_LEVEL", "error")
	for k, v := range env {
		t.Setenv(k, v)
	}

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidateWithBuiltinConfig(t *testing.T) {
	out, _, err := runCLI(t, nil, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: ontology")
}

func TestSummaryOnEmptyStore(t *testing.T) {
	out, _, err := runCLI(t, nil, "summary", "egtf")
	require.NoError(t, err)
	assert.Contains(t, out, `"has_data": false`)
	assert.Contains(t, out, "EGTF")
}

func TestScoreRejectsUnknownPersona(t *testing.T) {
	_, _, err := runCLI(t, nil, "score", "EGTF", "--persona", "glider_pilot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, app.ErrUnknownPersona))
}

func TestRebuildNeedsSource(t *testing.T) {
	_, _, err := runCLI(t, nil, "rebuild")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--source")
}

func TestRebuildReportIsCleanJSONOnStdout(t *testing.T) {
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{
				"content": `{"aspects":[{"aspect":"cost","label":"cheap","confidence":0.9}]}`,
			}}},
		})
	}))
	defer llmSrv.Close()

	csvPath := filepath.Join(t.TempDir(), "reviews.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("icao,review_id,review_text,rating,timestamp\nEGTF,r1,Cheap landing,5,2024-05-01T10:00:00Z\n"), 0o644))

	out, logs, err := runCLI(t, map[string]string{
		"LOG_LEVEL":    "info",
		"LLM_BASE_URL": llmSrv.URL,
		"LLM_API_KEY":  "test",
	}, "rebuild", "--source", "csv="+csvPath)
	require.NoError(t, err)

	var rep app.BuildReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep), "stdout must hold only the report: %q", out)
	assert.Equal(t, []string{"EGTF"}, rep.Rebuilt)
	assert.Equal(t, 1, rep.ReviewsExtracted)
	assert.Contains(t, logs, "build completed")
}
