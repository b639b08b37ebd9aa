// Package signal performs the one-shot SDP offer/answer exchange against the
// realtime endpoint.
package signal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voicebridge/voicebridge/internal/domain"
)

// Client posts SDP offers to the realtime endpoint. The exchange is a single
// round trip: there is no renegotiation and no trickle-ICE channel beyond it.
type Client struct {
	http *http.Client
}

// NewClient creates a signaling client.
func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Exchange posts the offer and returns the remote session description
// verbatim. A non-2xx response is a NegotiationError and is never retried.
func (c *Client) Exchange(ctx context.Context, offer string, cred domain.Credential, endpoint, model string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse signaling endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("create signaling request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Secret)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("signaling request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.NegotiationError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
		}
	}

	return string(body), nil
}
