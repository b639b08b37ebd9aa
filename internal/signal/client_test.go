package signal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicebridge/voicebridge/internal/domain"
)

const testOffer = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n"

func TestExchange_PostsOfferAndReturnsAnswer(t *testing.T) {
	const answer = "v=0\r\no=remote 1 1 IN IP4 0.0.0.0\r\ns=-\r\n"

	var (
		gotMethod      string
		gotModel       string
		gotAuth        string
		gotContentType string
		gotBody        string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotModel = r.URL.Query().Get("model")
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(answer))
	}))
	defer srv.Close()

	c := NewClient()
	got, err := c.Exchange(context.Background(), testOffer, domain.Credential{Secret: "ek_abc"}, srv.URL, "test-model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != answer {
		t.Errorf("expected answer returned verbatim, got %q", got)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotModel != "test-model" {
		t.Errorf("expected model query param, got %q", gotModel)
	}
	if gotAuth != "Bearer ek_abc" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotContentType != "application/sdp" {
		t.Errorf("expected application/sdp, got %q", gotContentType)
	}
	if gotBody != testOffer {
		t.Errorf("expected raw offer as body, got %q", gotBody)
	}
}

func TestExchange_ServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Exchange(context.Background(), testOffer, domain.Credential{Secret: "ek_abc"}, srv.URL, "test-model")

	var negErr *domain.NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("expected NegotiationError, got %v", err)
	}
	if negErr.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", negErr.Status)
	}
	if calls != 1 {
		t.Errorf("expected exactly one request, got %d", calls)
	}
}

func TestExchange_BadEndpoint(t *testing.T) {
	c := NewClient()
	_, err := c.Exchange(context.Background(), testOffer, domain.Credential{}, "://bad", "m")
	if err == nil {
		t.Fatal("expected error for unparsable endpoint")
	}
}
