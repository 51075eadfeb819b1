// README: Expo push notification client used to notify riders and
// drivers when the clearing run assigns them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultExpoURL = "https://exp.host/--/api/v2/push/send"

// Message is a single push notification addressed to an Expo push token.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// ExpoClient sends push notifications through the Expo push API.
type ExpoClient struct {
	url    string
	client *http.Client
}

// NewExpoClient creates a client against the public Expo push endpoint.
func NewExpoClient() *ExpoClient {
	return &ExpoClient{
		url:    defaultExpoURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewExpoClientWithURL creates a client against a custom endpoint.
func NewExpoClientWithURL(url string) *ExpoClient {
	return &ExpoClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers msg. Messages without a recipient token are dropped
// silently so callers can pass through users who never registered one.
func (c *ExpoClient) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("expo push returned status %d", resp.StatusCode)
	}
	return nil
}
