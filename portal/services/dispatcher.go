package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DispatchClient forwards generation requests to the AI dispatch service.
type DispatchClient struct {
	endpoint string
	provider string
	model    string
	apiKey   string

	httpClient *http.Client
}

func NewDispatchClient(endpoint, provider, model, apiKey string) *DispatchClient {
	return &DispatchClient{
		endpoint:   endpoint,
		provider:   provider,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type dispatchRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	Key          string `json:"key,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
}

type dispatchResponse struct {
	Content string `json:"content"`
}

func (c *DispatchClient) Generate(ctx context.Context, args GenerationArgs) (string, error) {
	endpoint, err := url.JoinPath(c.endpoint, "dispatch/generate")
	if err != nil {
		return "", fmt.Errorf("error creating dispatch URL: %w", err)
	}

	payload, err := json.Marshal(dispatchRequest{
		Prompt:       args.Prompt,
		SystemPrompt: args.SystemPrompt,
		Provider:     c.provider,
		Model:        c.model,
		Key:          c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("error creating dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error calling dispatch service: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		content, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("dispatch service returned status %d: %v", res.StatusCode, string(content))
	}

	var response dispatchResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("error parsing dispatch response: %w", err)
	}

	return response.Content, nil
}
