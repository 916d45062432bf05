package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client delivers mail through an HTTP relay service.
type Client struct {
	endpoint string
	apiKey   string
	sender   string

	httpClient *http.Client
}

func NewClient(endpoint, apiKey, sender string) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		sender:     sender,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	if c.endpoint == "" {
		return fmt.Errorf("no mail relay endpoint configured")
	}

	payload, err := json.Marshal(message{From: c.sender, To: to, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("unable to serialize mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("unable to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to send mail request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		content, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mail relay returned status %d: %v", res.StatusCode, string(content))
	}

	return nil
}
