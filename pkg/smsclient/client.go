/**
 * @description
 * Client for the SMS gateway. Guest addresses on this channel are raw phone
 * numbers.
 */
package smsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the SMS gateway API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new SMS gateway client.
func NewClient(baseURL, apiKey string) *Client {
	normalizedURL := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    normalizedURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type sendSMSRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send delivers a text message to a phone number via the gateway.
func (c *Client) Send(ctx context.Context, address, text string) error {
	if c.baseURL == "" {
		return fmt.Errorf("SMS gateway base URL is not configured")
	}

	payload := sendSMSRequest{
		To:      address,
		Message: text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	url := fmt.Sprintf("%s/sms/send", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to SMS gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("SMS gateway returned error status %d", resp.StatusCode)
	}

	return nil
}
