package extract_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga_friendliness/internal/domain"
	"ga_friendliness/internal/extract"
)

// scripted replays responses in order; the last one repeats.
type scripted struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	lastReq domain.LLMRequest
}

func (s *scripted) Complete(ctx context.Context, req domain.LLMRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.lastReq = req
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.replies[i], err
}

var ontology = domain.Ontology{
	Version: "t1",
	Aspects: map[string][]string{
		"cost":      {"cheap", "reasonable", "expensive"},
		"transport": {"excellent", "good", "poor"},
		"staff":     {"positive", "negative"},
	},
}

func noWait(int) time.Duration { return 0 }

func retries(n int) *int { return &n }

func review() domain.RawReview {
	return domain.RawReview{
		AirportID: "EGTF", ReviewID: "r1", Text: "Cheap landing, taxi took ages",
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExtract_ValidatesAgainstOntology(t *testing.T) {
	llm := &scripted{replies: []string{`{"aspects":[
		{"aspect":"cost","label":"cheap","confidence":0.9,"evidence":"Cheap landing"},
		{"aspect":"cost","label":"cheap","confidence":0.95,"evidence":"again"},
		{"aspect":"transport","label":"super-duper","confidence":0.9,"evidence":"?"},
		{"aspect":"weather","label":"sunny","confidence":0.9,"evidence":"?"},
		{"aspect":"staff","label":"positive","confidence":0.3,"evidence":"?"},
		{"aspect":"transport","label":"poor","confidence":1.7,"evidence":"?"}
	]}`}}
	ex := extract.New(llm, ontology, extract.Options{Backoff: noWait}, zerolog.Nop())

	res := ex.Extract(context.Background(), review())
	require.Equal(t, extract.StateParsed, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Nil(t, res.Failure)

	require.Len(t, res.Tags, 1)
	assert.Equal(t, domain.ReviewTag{
		AirportID: "EGTF", ReviewID: "r1", Aspect: "cost", Label: "cheap", Confidence: 0.95,
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}, res.Tags[0])

	reasons := map[extract.RejectReason]string{}
	for _, rj := range res.Rejections {
		reasons[rj.Reason] = rj.Aspect + "/" + rj.Label
	}
	assert.Equal(t, map[extract.RejectReason]string{
		extract.RejectUnknownLabel:      "transport/super-duper",
		extract.RejectUnknownAspect:     "weather/sunny",
		extract.RejectLowConfidence:     "staff/positive",
		extract.RejectInvalidConfidence: "transport/poor",
	}, reasons)

	assert.Equal(t, "review_tags", llm.lastReq.SchemaName)
	assert.Contains(t, llm.lastReq.System, "cost: cheap, reasonable, expensive")
	assert.Contains(t, llm.lastReq.User, "EGTF")
}

func TestExtract_RetriesMalformedOutput(t *testing.T) {
	llm := &scripted{replies: []string{
		`not json`,
		`{"something":"else"}`,
		`{"aspects":[{"aspect":"staff","label":"negative","confidence":0.8,"evidence":"rude"}]}`,
	}}
	ex := extract.New(llm, ontology, extract.Options{MaxRetries: retries(2), Backoff: noWait}, zerolog.Nop())

	res := ex.Extract(context.Background(), review())
	require.Equal(t, extract.StateParsed, res.State)
	assert.Equal(t, 3, res.Attempts)
	require.Len(t, res.Tags, 1)
	assert.Equal(t, "negative", res.Tags[0].Label)
}

func TestExtract_FailsAfterRetriesWithoutError(t *testing.T) {
	llm := &scripted{replies: []string{`{"broken`}}
	ex := extract.New(llm, ontology, extract.Options{MaxRetries: retries(1), Backoff: noWait}, zerolog.Nop())

	res := ex.Extract(context.Background(), review())
	assert.Equal(t, extract.StateFailed, res.State)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, llm.calls)
	assert.Empty(t, res.Tags)
	require.NotNil(t, res.Failure)
	assert.Equal(t, "r1", res.Failure.ReviewID)
	assert.True(t, errors.Is(res.Failure, extract.ErrMalformed))
}

func TestExtract_TransportErrorsRetry(t *testing.T) {
	llm := &scripted{
		replies: []string{"", `{"aspects":[]}`},
		errs:    []error{errors.New("connection reset")},
	}
	ex := extract.New(llm, ontology, extract.Options{Backoff: noWait}, zerolog.Nop())

	res := ex.Extract(context.Background(), review())
	assert.Equal(t, extract.StateParsed, res.State)
	assert.Equal(t, 2, res.Attempts)
	assert.Empty(t, res.Tags)
}

func TestExtract_CancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &scripted{replies: []string{`nope`}}
	ex := extract.New(llm, ontology, extract.Options{MaxRetries: retries(5), Backoff: noWait}, zerolog.Nop())

	res := ex.Extract(ctx, review())
	assert.Equal(t, extract.StateFailed, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Failure, context.Canceled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", extract.StatePending.String())
	assert.Equal(t, "retrying", extract.StateRetrying.String())
	assert.Equal(t, "failed", extract.StateFailed.String())
}

func TestExtract_ExplicitZeroOptionsAreKept(t *testing.T) {
	reply := `{"aspects":[{"aspect":"staff","label":"positive","confidence":0.1,"evidence":"?"}]}`

	keepAll := 0.0
	ex := extract.New(&scripted{replies: []string{reply}}, ontology,
		extract.Options{MinConfidence: &keepAll, Backoff: noWait}, zerolog.Nop())
	res := ex.Extract(context.Background(), review())
	require.Equal(t, extract.StateParsed, res.State)
	require.Len(t, res.Tags, 1)
	assert.Empty(t, res.Rejections)

	// default threshold still rejects the same tag
	ex = extract.New(&scripted{replies: []string{reply}}, ontology, extract.Options{Backoff: noWait}, zerolog.Nop())
	res = ex.Extract(context.Background(), review())
	assert.Empty(t, res.Tags)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, extract.RejectLowConfidence, res.Rejections[0].Reason)

	llm := &scripted{replies: []string{`not json`}}
	ex = extract.New(llm, ontology, extract.Options{MaxRetries: retries(0), Backoff: noWait}, zerolog.Nop())
	res = ex.Extract(context.Background(), review())
	assert.Equal(t, extract.StateFailed, res.State)
	assert.Equal(t, 1, llm.calls)
}
