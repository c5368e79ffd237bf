package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga_friendliness/internal/adapters/httpclient"
	"ga_friendliness/internal/adapters/llm"
	"ga_friendliness/internal/domain"
)

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
}

func TestComplete_SendsSchemaAndReturnsContent(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		rf := body["response_format"].(map[string]any)
		assert.Equal(t, "json_schema", rf["type"])
		assert.Equal(t, "review_tags", rf["json_schema"].(map[string]any)["name"])

		reply(w, `{"aspects":[]}`)
	}))
	defer ts.Close()

	hc := httpclient.New("llm", 100, time.Second).WithBackoff(func(int) time.Duration { return 0 })
	c, err := llm.New(ts.URL+"/v1/", "k", "gpt-test", hc)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), domain.LLMRequest{
		System: "sys", User: "usr", SchemaName: "review_tags",
		Schema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"aspects":[]}`, out)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestComplete_EmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	c, err := llm.New(ts.URL, "k", "m", httpclient.New("llm", 100, time.Second))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.LLMRequest{})
	assert.True(t, errors.Is(err, llm.ErrEmptyResponse))
}

func TestNew_RequiresKeyAndModel(t *testing.T) {
	_, err := llm.New("http://x", "", "m", nil)
	assert.Error(t, err)
	_, err = llm.New("http://x", "k", "", nil)
	assert.Error(t, err)
}
