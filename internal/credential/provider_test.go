package credential

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voicebridge/voicebridge/internal/domain"
)

func TestInjected_ReturnsPayloadSecret(t *testing.T) {
	p := &Injected{Fn: func(ctx context.Context) (domain.CredentialPayload, error) {
		return domain.CredentialPayload{
			ClientSecret: &domain.ClientSecret{Value: "ek_injected"},
		}, nil
	}}

	cred, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Secret != "ek_injected" {
		t.Errorf("expected 'ek_injected', got %q", cred.Secret)
	}
}

func TestInjected_NilFuncIsStrategyMissing(t *testing.T) {
	p := &Injected{}

	_, err := p.Acquire(context.Background())

	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) || credErr.Kind != domain.CredentialStrategyMissing {
		t.Fatalf("expected CredentialError{StrategyMissing}, got %v", err)
	}
}

func TestHTTPFallback_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte(`{"client_secret":{"value":"ek_http"}}`))
	}))
	defer srv.Close()

	p := &HTTPFallback{URL: srv.URL}
	cred, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Secret != "ek_http" {
		t.Errorf("expected 'ek_http', got %q", cred.Secret)
	}
}

func TestHTTPFallback_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := &HTTPFallback{URL: srv.URL}
	_, err := p.Acquire(context.Background())

	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if credErr.Kind != domain.CredentialHTTPFailure {
		t.Errorf("expected kind http_failure, got %s", credErr.Kind)
	}
	if credErr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", credErr.Status)
	}
}

func TestHTTPFallback_ErrorPayloadIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no seats left"}`))
	}))
	defer srv.Close()

	p := &HTTPFallback{URL: srv.URL}
	_, err := p.Acquire(context.Background())

	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) || credErr.Kind != domain.CredentialRejected {
		t.Fatalf("expected CredentialError{Rejected}, got %v", err)
	}
}

// fakeBus is an in-memory domain.Messenger.
type fakeBus struct {
	ch          chan []byte
	published   [][]byte
	unsubscribed bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{ch: make(chan []byte, 8)}
}

func (b *fakeBus) Publish(msg []byte) error {
	b.published = append(b.published, msg)
	return nil
}

func (b *fakeBus) Subscribe() (<-chan []byte, func()) {
	return b.ch, func() { b.unsubscribed = true }
}

func TestBus_FiltersUnrelatedTraffic(t *testing.T) {
	bus := newFakeBus()
	bus.ch <- []byte(`garbage`)
	bus.ch <- []byte(`{"type":"SOMETHING_ELSE"}`)
	bus.ch <- []byte(`{"type":"EPHEMERAL_KEY","key":{"client_secret":{"value":"ek_bus"}}}`)

	p := &Bus{Messenger: bus, Timeout: time.Second}
	cred, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Secret != "ek_bus" {
		t.Errorf("expected 'ek_bus', got %q", cred.Secret)
	}
	if len(bus.published) != 1 || string(bus.published[0]) != `{"type":"REQUEST_EPHEMERAL_KEY"}` {
		t.Errorf("expected one REQUEST_EPHEMERAL_KEY publish, got %q", bus.published)
	}
	if !bus.unsubscribed {
		t.Error("expected subscription released after match")
	}
}

func TestBus_TimesOut(t *testing.T) {
	bus := newFakeBus()

	p := &Bus{Messenger: bus, Timeout: 20 * time.Millisecond}
	_, err := p.Acquire(context.Background())

	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) || credErr.Kind != domain.CredentialTimeout {
		t.Fatalf("expected CredentialError{Timeout}, got %v", err)
	}
	if !bus.unsubscribed {
		t.Error("expected subscription released after timeout")
	}
}

func TestBus_CancelledContext(t *testing.T) {
	bus := newFakeBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Bus{Messenger: bus, Timeout: time.Second}
	_, err := p.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !bus.unsubscribed {
		t.Error("expected subscription released after cancellation")
	}
}

func TestBus_NoMessengerIsStrategyMissing(t *testing.T) {
	p := &Bus{}
	_, err := p.Acquire(context.Background())

	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) || credErr.Kind != domain.CredentialStrategyMissing {
		t.Fatalf("expected CredentialError{StrategyMissing}, got %v", err)
	}
}

func TestBus_RejectedKeyPayload(t *testing.T) {
	bus := newFakeBus()
	bus.ch <- []byte(`{"type":"EPHEMERAL_KEY","key":{"error":"denied"}}`)

	p := &Bus{Messenger: bus, Timeout: time.Second}
	_, err := p.Acquire(context.Background())

	var credErr *domain.CredentialError
	if !errors.As(err, &credErr) || credErr.Kind != domain.CredentialRejected {
		t.Fatalf("expected CredentialError{Rejected}, got %v", err)
	}
}
