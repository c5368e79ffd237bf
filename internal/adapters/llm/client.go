// Package llm talks to an OpenAI-compatible chat completions endpoint using
// JSON-schema constrained responses.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ga_friendliness/internal/adapters/httpclient"
	"ga_friendliness/internal/domain"
)

var ErrEmptyResponse = errors.New("llm: empty response")

type Client struct {
	base  string
	key   string
	model string
	http  *httpclient.Client
}

func New(base, key, model string, hc *httpclient.Client) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("LLM model is required")
	}
	return &Client{base: strings.TrimRight(base, "/"), key: key, model: model, http: hc}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete returns the raw content of the first choice. Transport retries
// happen inside the HTTP client; parsing the content is the caller's job.
func (c *Client) Complete(ctx context.Context, req domain.LLMRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchema{Name: req.SchemaName, Schema: req.Schema, Strict: true},
		},
	})
	if err != nil {
		return "", err
	}

	raw, err := c.http.Do(ctx, "chat_completions", func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+c.key)
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json")
		return r, nil
	})
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	msg := out.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("llm: refused: %s", msg.Refusal)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyResponse
	}
	return msg.Content, nil
}
