package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// AuthHeader carries the relay's shared secret.
	AuthHeader          = "X-Auth"
	defaultRelayTimeout = 8 * time.Second
)

// Relay receives a copy of every order sent through the bridge.
type Relay interface {
	Forward(ctx context.Context, p Payload) error
}

// RelayResponse is the relay's reply body.
type RelayResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RelayClient posts orders to the relay endpoint.
type RelayClient struct {
	url   string
	token string
	http  *http.Client
}

// NewRelayClient returns nil when url is empty, which disables the relay leg.
func NewRelayClient(url, token string) *RelayClient {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return &RelayClient{
		url:   url,
		token: token,
		http:  &http.Client{Timeout: defaultRelayTimeout},
	}
}

// Forward posts p. A non-2xx status or ok=false is an error.
func (c *RelayClient) Forward(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("relay: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(AuthHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay: post: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out RelayResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("relay: status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return fmt.Errorf("relay: decode response: %w", decodeErr)
	}
	if !out.OK {
		if out.Error == "" {
			return errors.New("relay: rejected")
		}
		return fmt.Errorf("relay: rejected: %s", out.Error)
	}
	return nil
}
