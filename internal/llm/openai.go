package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OpenAI calls an OpenAI-compatible /v1/chat/completions endpoint.
type OpenAI struct {
	BaseURL string // e.g. https://api.openai.com
	APIKey  string // falls back to OPENAI_API_KEY
	System  string
	Client  *http.Client
}

// Name returns "openai".
func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// Generate sends prompt as a single user message and returns the first choice's content.
func (o *OpenAI) Generate(ctx context.Context, prompt, model string) (string, error) {
	key := o.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return "", errors.New("openai: api key is required")
	}
	base := o.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	messages := []map[string]any{}
	if o.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": o.System})
	}
	messages = append(messages, map[string]any{"role": "user", "content": prompt})
	body, err := json.Marshal(map[string]any{"model": model, "messages": messages})
	if err != nil {
		return "", err
	}
	url := strings.TrimSuffix(base, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	resp, err := o.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("openai decode: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return apiResp.Choices[0].Message.Content, nil
}
