package aidispatch

import (
	"net/http"
	"time"
)

// GenerateRequest is a single completion request.
type GenerateRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	Key          string `json:"key,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
}

// GenerateResponse is the non streaming response body.
type GenerateResponse struct {
	Content string `json:"content"`
}

// LLMConfig holds the connection settings for a provider.
type LLMConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

const defaultModel = "gpt-4o-mini"

func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
