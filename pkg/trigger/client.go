// Package trigger publishes events to the relay's trigger endpoint on
// behalf of backend handlers that hold no live sockets of their own.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 5 * time.Second

// Client posts events to a relay's /trigger endpoint. Delivery is
// best-effort: a non-2xx response or transport failure is reported to the
// caller, which is expected to log it and move on.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a trigger client. baseURL is the relay's root URL, e.g.
// "http://127.0.0.1:8737". A zero timeout falls back to a bounded default;
// the trigger call must never hang a lifecycle handler.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Publish pushes a named event into a channel. A channel with no current
// subscribers is not an error.
func (c *Client) Publish(ctx context.Context, channel, event string, data interface{}) error {
	payload := struct {
		Channel string      `json:"channel"`
		Event   string      `json:"event"`
		Data    interface{} `json:"data"`
	}{Channel: channel, Event: event, Data: data}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "Marshal trigger request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trigger", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "Create trigger request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "Post trigger request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("trigger relay returned status %d", resp.StatusCode)
	}
	return nil
}
