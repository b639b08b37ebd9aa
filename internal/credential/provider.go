// Package credential implements the three credential acquisition strategies.
// Exactly one strategy is selected per controller instance; strategies are
// never chained at runtime.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voicebridge/voicebridge/internal/domain"
)

// DefaultFallbackURL is the well-known endpoint the HTTP fallback strategy
// queries when no override is configured.
const DefaultFallbackURL = "http://127.0.0.1:8080/session"

// DefaultBusTimeout bounds the wait for a correlated bus reply.
const DefaultBusTimeout = 10 * time.Second

// PayloadFunc is an externally supplied credential source. Its payload is
// validated but otherwise returned unmodified.
type PayloadFunc func(ctx context.Context) (domain.CredentialPayload, error)

// Injected invokes a caller-supplied acquisition function.
type Injected struct {
	Fn PayloadFunc
}

func (p *Injected) Acquire(ctx context.Context) (domain.Credential, error) {
	if p.Fn == nil {
		return domain.Credential{}, &domain.CredentialError{
			Kind:   domain.CredentialStrategyMissing,
			Detail: "no credential function injected",
		}
	}
	payload, err := p.Fn(ctx)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("injected credential: %w", err)
	}
	return domain.ParsePayload(payload)
}

// HTTPFallback issues a GET to a well-known token endpoint.
type HTTPFallback struct {
	// URL defaults to DefaultFallbackURL.
	URL string
	// HTTP defaults to http.DefaultClient.
	HTTP *http.Client
}

func (p *HTTPFallback) Acquire(ctx context.Context) (domain.Credential, error) {
	url := p.URL
	if url == "" {
		url = DefaultFallbackURL
	}
	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("create token request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Credential{}, &domain.CredentialError{
			Kind:   domain.CredentialHTTPFailure,
			Status: resp.StatusCode,
		}
	}

	var payload domain.CredentialPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Credential{}, fmt.Errorf("decode credential payload: %w", err)
	}
	return domain.ParsePayload(payload)
}

const (
	msgTypeRequest = "REQUEST_EPHEMERAL_KEY"
	msgTypeReply   = "EPHEMERAL_KEY"
)

type busRequest struct {
	Type string `json:"type"`
}

type busReply struct {
	Type string                    `json:"type"`
	Key  *domain.CredentialPayload `json:"key"`
}

// Bus requests an ephemeral key from an embedding context over a message
// bus. Inbound traffic is filtered by the type discriminator; everything
// that is not an EPHEMERAL_KEY reply is ignored. The subscription is
// released on match, timeout, and cancellation.
type Bus struct {
	Messenger domain.Messenger
	// Timeout defaults to DefaultBusTimeout.
	Timeout time.Duration
}

func (p *Bus) Acquire(ctx context.Context) (domain.Credential, error) {
	if p.Messenger == nil {
		return domain.Credential{}, &domain.CredentialError{
			Kind:   domain.CredentialStrategyMissing,
			Detail: "no message bus configured",
		}
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = DefaultBusTimeout
	}

	msgs, cancel := p.Messenger.Subscribe()
	defer cancel()

	out, err := json.Marshal(busRequest{Type: msgTypeRequest})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("marshal key request: %w", err)
	}
	if err := p.Messenger.Publish(out); err != nil {
		return domain.Credential{}, fmt.Errorf("publish key request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case raw, ok := <-msgs:
			if !ok {
				return domain.Credential{}, fmt.Errorf("message bus closed while waiting for key")
			}
			var reply busReply
			if err := json.Unmarshal(raw, &reply); err != nil || reply.Type != msgTypeReply {
				continue
			}
			if reply.Key == nil {
				return domain.Credential{}, &domain.CredentialError{
					Kind:   domain.CredentialRejected,
					Detail: "reply missing key payload",
				}
			}
			return domain.ParsePayload(*reply.Key)
		case <-timer.C:
			return domain.Credential{}, &domain.CredentialError{
				Kind:   domain.CredentialTimeout,
				Detail: fmt.Sprintf("no %s reply within %s", msgTypeReply, timeout),
			}
		case <-ctx.Done():
			return domain.Credential{}, ctx.Err()
		}
	}
}
