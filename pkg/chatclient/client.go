/**
 * @description
 * Client for the chat-app messaging provider. Guest addresses on this
 * channel carry the reserved "chat:" prefix; the provider API wants the
 * bare handle.
 */
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hoststack/upsell-service/internal/domain"
)

// Client is a client for the chat-app messaging API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new chat-app client.
func NewClient(baseURL, apiKey string) *Client {
	normalizedURL := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    normalizedURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type sendMessageRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// Send delivers a text message to a chat-app guest address.
func (c *Client) Send(ctx context.Context, address, text string) error {
	if c.baseURL == "" {
		return fmt.Errorf("chat API base URL is not configured")
	}

	payload := sendMessageRequest{
		Recipient: strings.TrimPrefix(address, domain.ChatAddressPrefix),
		Text:      text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("chat API returned error status %d", resp.StatusCode)
	}

	return nil
}
