package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicebridge/voicebridge/internal/capture"
	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/credential"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/messenger"
	"github.com/voicebridge/voicebridge/internal/playback"
	"github.com/voicebridge/voicebridge/internal/session"
	sigclient "github.com/voicebridge/voicebridge/internal/signal"
	"github.com/voicebridge/voicebridge/internal/webrtc"
)

const helpText = `voicebridge - talk to a realtime AI endpoint over WebRTC

Usage:
  voicebridge [options]

Reads commands from stdin:
  connect  start a session (microphone + credential, then offer/answer)
  mute     toggle the microphone
  cancel   tear the current session down
  quit     exit

Transcript fragments are written to stdout as they arrive; status goes to
stderr.

Environment Variables:
  VOICEBRIDGE_ENDPOINT   signaling endpoint (default OpenAI realtime)
  VOICEBRIDGE_MODEL      model identifier
  OPENAI_API_KEY         mint an ephemeral credential from the sessions API
  VOICEBRIDGE_TOKEN_URL  HTTP fallback credential endpoint
  VOICEBRIDGE_BUS_URL    ws:// message bus for the cross-context credential
  VOICEBRIDGE_LOG_LEVEL  debug|info|warn|error (default info)

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	provider, cleanup, err := buildProvider(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("credential setup failed")
	}
	defer cleanup()

	ctrl := session.New(
		session.Config{Endpoint: cfg.Endpoint, Model: cfg.Model},
		session.Deps{
			Credentials: provider,
			Media:       capture.New(logger),
			Signaler:    sigclient.NewClient(),
			NewTransport: func() (domain.Transport, error) {
				return webrtc.NewTransport(logger)
			},
			Playback: playback.NewSpeaker(logger).Play,
			Hooks: session.Hooks{
				OnTranscript: func(delta string) {
					fmt.Print(delta)
				},
				OnState: func(s session.State) {
					logger.Info().Stringer("state", s).Msg("session state")
				},
				OnError: func(err error) {
					logger.Error().Err(err).Msg("session error")
				},
			},
			Logger: logger,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Stringer("signal", sig).Msg("shutting down")
		ctrl.Cancel()
		cancel()
	}()

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Str("model", cfg.Model).
		Msg("ready; type 'connect' to start")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch scanner.Text() {
		case "connect":
			go func() {
				if err := ctrl.Connect(ctx); err != nil && !errors.Is(err, session.ErrCancelled) {
					logger.Error().Err(err).Msg("connect failed")
				}
			}()
		case "mute":
			if ctrl.Mute() {
				fmt.Fprintln(os.Stderr, "microphone on")
			} else {
				fmt.Fprintln(os.Stderr, "microphone off")
			}
		case "cancel":
			ctrl.Cancel()
		case "quit", "exit":
			ctrl.Cancel()
			return
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (connect|mute|cancel|quit)\n", scanner.Text())
		}
	}

	ctrl.Cancel()
}

// buildProvider selects exactly one credential strategy: an injected minting
// function when an API key is present, the message bus when one is
// configured, otherwise the HTTP fallback.
func buildProvider(cfg *config.Config, logger zerolog.Logger) (domain.CredentialProvider, func(), error) {
	switch {
	case cfg.APIKey != "":
		return &credential.Injected{Fn: mintSession(cfg)}, func() {}, nil
	case cfg.BusURL != "":
		bus, err := messenger.Dial(cfg.BusURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return &credential.Bus{Messenger: bus}, bus.Close, nil
	default:
		return &credential.HTTPFallback{URL: cfg.TokenURL}, func() {}, nil
	}
}

// mintSession exchanges the long-lived API key for an ephemeral credential
// via the endpoint's session-mint API.
func mintSession(cfg *config.Config) credential.PayloadFunc {
	mintURL := sessionMintURL(cfg.Endpoint)
	apiKey := cfg.APIKey
	model := cfg.Model

	return func(ctx context.Context) (domain.CredentialPayload, error) {
		body, err := json.Marshal(map[string]string{"model": model})
		if err != nil {
			return domain.CredentialPayload{}, fmt.Errorf("marshal mint request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, mintURL, bytes.NewReader(body))
		if err != nil {
			return domain.CredentialPayload{}, fmt.Errorf("create mint request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Content-Type", "application/json")

		client := &http.Client{Timeout: 15 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return domain.CredentialPayload{}, fmt.Errorf("mint request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.CredentialPayload{}, fmt.Errorf("read mint response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return domain.CredentialPayload{}, fmt.Errorf("mint session: http %d: %s", resp.StatusCode, string(respBody))
		}

		var payload domain.CredentialPayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return domain.CredentialPayload{}, fmt.Errorf("decode mint response: %w", err)
		}
		return payload, nil
	}
}

// sessionMintURL derives the sessions API from the signaling endpoint, e.g.
// https://api.openai.com/v1/realtime -> https://api.openai.com/v1/realtime/sessions
func sessionMintURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + "/sessions"
	}
	u.Path = u.Path + "/sessions"
	u.RawQuery = ""
	return u.String()
}
