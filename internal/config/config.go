package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

const (
	// DefaultEndpoint is the realtime signaling endpoint the SDP offer is
	// posted to.
	DefaultEndpoint = "https://api.openai.com/v1/realtime"

	// DefaultModel identifies the conversational model on the remote side.
	DefaultModel = "gpt-4o-realtime-preview-2024-12-17"
)

// Config holds the application configuration.
type Config struct {
	// Endpoint and Model are forwarded into the session controller.
	Endpoint string
	Model    string

	// APIKey enables the injected credential strategy: an ephemeral
	// credential is minted from the endpoint's session-mint API.
	APIKey string

	// TokenURL overrides the well-known URL of the HTTP fallback credential
	// strategy.
	TokenURL string

	// BusURL selects the cross-context credential strategy: a WebSocket
	// message bus queried for an ephemeral key.
	BusURL string

	LogLevel string
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		Endpoint: getenv("VOICEBRIDGE_ENDPOINT", DefaultEndpoint),
		Model:    getenv("VOICEBRIDGE_MODEL", DefaultModel),
		APIKey:   os.Getenv("OPENAI_API_KEY"),
		TokenURL: os.Getenv("VOICEBRIDGE_TOKEN_URL"),
		BusURL:   os.Getenv("VOICEBRIDGE_BUS_URL"),
		LogLevel: getenv("VOICEBRIDGE_LOG_LEVEL", "info"),
	}

	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid VOICEBRIDGE_ENDPOINT: %w", err)
	}
	if cfg.BusURL != "" {
		u, err := url.Parse(cfg.BusURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return nil, fmt.Errorf("VOICEBRIDGE_BUS_URL must be a ws:// or wss:// URL, got %q", cfg.BusURL)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
