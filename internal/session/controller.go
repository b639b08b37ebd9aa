// Package session drives the audio session lifecycle: concurrent resource
// acquisition, offer/answer negotiation, mute, and cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/events"
)

// State is the controller's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateNegotiating
	StateConnected
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned by Connect while an attempt is already in flight
	// or a session is connected. Cancel first.
	ErrBusy = errors.New("session busy")

	// ErrCancelled is returned by Connect when Cancel aborted the attempt.
	ErrCancelled = errors.New("connect cancelled")
)

// Config is the controller's signaling configuration.
type Config struct {
	Endpoint string
	Model    string
}

// Hooks are optional presentation-layer callbacks, invoked outside the
// controller lock. They must not block.
type Hooks struct {
	OnLog        func(line string)
	OnTranscript func(delta string)
	OnState      func(s State)
	OnError      func(err error)
}

// Deps are the controller's collaborators.
type Deps struct {
	Credentials  domain.CredentialProvider
	Media        domain.MediaCapture
	Signaler     domain.Signaler
	NewTransport domain.TransportFactory
	// Playback receives the remote audio track; nil when no playback sink
	// exists.
	Playback func(track *webrtc.TrackRemote)
	Hooks    Hooks
	Logger   zerolog.Logger
}

// Controller owns one session at a time. All aggregate state is guarded by
// mu; completion handlers from earlier attempts are fenced off by the
// attempt generation counter.
type Controller struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu         sync.Mutex
	attempt    uint64
	state      State
	stream     domain.AudioStream
	transport  domain.Transport
	transcript []string
	logLines   []string
	lastErr    error
	muted      bool
}

// New creates an idle controller.
func New(cfg Config, deps Deps) *Controller {
	return &Controller{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger,
	}
}

type mediaResult struct {
	stream domain.AudioStream
	err    error
}

type credResult struct {
	cred domain.Credential
	err  error
}

// Connect runs one full connection attempt and blocks until the session is
// established or the attempt fails. Media and credential acquisition run
// concurrently; no transport exists until both have succeeded. Every failure
// is terminal for the attempt — the caller retries by calling Connect again.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateErrored {
		c.mu.Unlock()
		return ErrBusy
	}
	c.attempt++
	gen := c.attempt
	// a transport failure leaves resources held in Errored; reclaim them
	// before the new attempt
	staleStream, staleTransport := c.stream, c.transport
	c.stream, c.transport = nil, nil
	c.state = StateAcquiring
	c.lastErr = nil
	c.transcript = nil
	c.logLines = nil
	c.mu.Unlock()

	if staleTransport != nil {
		staleTransport.Close()
	}
	if staleStream != nil {
		c.deps.Media.Release(staleStream)
	}

	id := uuid.NewString()[:8]
	c.emitState(StateAcquiring)
	c.logf("connect %s: acquiring microphone and credential", id)

	mediaCh := make(chan mediaResult, 1)
	credCh := make(chan credResult, 1)
	go func() {
		stream, err := c.deps.Media.Acquire(ctx)
		mediaCh <- mediaResult{stream, err}
	}()
	go func() {
		cred, err := c.deps.Credentials.Acquire(ctx)
		credCh <- credResult{cred, err}
	}()

	// both must land before any transport is created; completion order is
	// deliberately unconstrained
	mr := <-mediaCh
	cr := <-credCh

	if !c.current(gen) {
		// cancelled mid-acquisition: this attempt no longer owns the
		// session, so discard and release whatever it got
		if mr.stream != nil {
			c.deps.Media.Release(mr.stream)
		}
		return ErrCancelled
	}

	if mr.err != nil || cr.err != nil {
		// the surviving branch's stream is released as part of the
		// Errored transition
		if mr.stream != nil {
			c.deps.Media.Release(mr.stream)
		}
		err := mr.err
		if err == nil {
			err = cr.err
		}
		return c.fail(gen, err)
	}

	c.mu.Lock()
	if gen != c.attempt {
		c.mu.Unlock()
		c.deps.Media.Release(mr.stream)
		return ErrCancelled
	}
	c.stream = mr.stream
	c.muted = false
	c.mu.Unlock()

	c.logf("connect %s: resources acquired, negotiating", id)

	transport, err := c.deps.NewTransport()
	if err != nil {
		return c.fail(gen, fmt.Errorf("create transport: %w", err))
	}

	c.mu.Lock()
	if gen != c.attempt {
		c.mu.Unlock()
		transport.Close()
		c.deps.Media.Release(mr.stream)
		return ErrCancelled
	}
	c.transport = transport
	c.state = StateNegotiating
	c.mu.Unlock()
	c.emitState(StateNegotiating)

	transport.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		if !c.current(gen) {
			return
		}
		c.logf("remote audio track: %s", track.Codec().MimeType)
		if c.deps.Playback != nil {
			c.deps.Playback(track)
		}
	})
	transport.OnControlOpen(func() {
		if !c.current(gen) {
			return
		}
		c.logf("control channel open")
	})
	transport.OnControlMessage(func(raw []byte) {
		if !c.current(gen) {
			return
		}
		c.handleControlMessage(raw)
	})
	transport.OnFailure(func(err error) {
		c.mu.Lock()
		if gen != c.attempt || c.state != StateConnected {
			c.mu.Unlock()
			return
		}
		c.state = StateErrored
		c.lastErr = err
		c.mu.Unlock()
		c.emitState(StateErrored)
		c.emitError(err)
		c.logf("transport failed: %v", err)
	})

	if err := transport.AttachLocal(mr.stream); err != nil {
		return c.fail(gen, fmt.Errorf("attach local audio: %w", err))
	}

	// the offer is fully committed locally before it goes on the wire
	offer, err := transport.CreateOffer()
	if err != nil {
		return c.fail(gen, fmt.Errorf("create offer: %w", err))
	}

	answer, err := c.deps.Signaler.Exchange(ctx, offer, cr.cred, c.cfg.Endpoint, c.cfg.Model)
	if err != nil {
		return c.fail(gen, err)
	}

	if !c.current(gen) {
		// Cancel already tore the transport and stream down
		return ErrCancelled
	}

	if err := transport.ApplyAnswer(answer); err != nil {
		return c.fail(gen, fmt.Errorf("apply answer: %w", err))
	}

	c.mu.Lock()
	if gen != c.attempt {
		c.mu.Unlock()
		return ErrCancelled
	}
	c.state = StateConnected
	c.mu.Unlock()
	c.emitState(StateConnected)
	c.logf("connect %s: session established", id)
	return nil
}

// Mute toggles the microphone and reports the resulting enabled state
// (true = unmuted). It never changes the session state; without a captured
// stream it is a no-op.
func (c *Controller) Mute() bool {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return false
	}

	enabled := c.deps.Media.ToggleMute(stream)

	c.mu.Lock()
	c.muted = !enabled
	c.mu.Unlock()
	if enabled {
		c.logf("microphone unmuted")
	} else {
		c.logf("microphone muted")
	}
	return enabled
}

// Cancel tears down whatever the session holds and returns to Idle. It is
// idempotent and safe from any state, including mid-connect; acquisitions
// that resolve afterwards are discarded by the generation fence.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.attempt++
	stream, transport := c.stream, c.transport
	changed := c.state != StateIdle || stream != nil || transport != nil
	c.stream, c.transport = nil, nil
	c.muted = false
	c.state = StateIdle
	c.mu.Unlock()

	// stream and transport teardown are independent and each idempotent
	if transport != nil {
		transport.Close()
	}
	if stream != nil {
		c.deps.Media.Release(stream)
	}

	if changed {
		c.emitState(StateIdle)
		c.logf("session cancelled")
	}
}

// State reports the current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Muted reports the microphone mute flag; meaningless while no stream is
// held.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Err returns the most recent fatal error; a later successful Connect
// clears it.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns the concatenated transcript fragments of the current
// session, in arrival order.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.transcript, "")
}

// LogLines returns a copy of the session's append-only log.
func (c *Controller) LogLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.logLines))
	copy(out, c.logLines)
	return out
}

// current reports whether gen is still the live attempt.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.attempt
}

// fail moves the live attempt to Errored, releasing anything the session
// holds. Stale attempts report cancellation instead.
func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	if gen != c.attempt {
		c.mu.Unlock()
		return ErrCancelled
	}
	stream, transport := c.stream, c.transport
	c.stream, c.transport = nil, nil
	c.muted = false
	c.state = StateErrored
	c.lastErr = err
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if stream != nil {
		c.deps.Media.Release(stream)
	}

	c.emitState(StateErrored)
	c.emitError(err)
	c.logf("connect failed: %v", err)
	return err
}

func (c *Controller) handleControlMessage(raw []byte) {
	ev := events.Classify(raw)
	switch ev.Kind {
	case events.KindTranscript:
		c.mu.Lock()
		c.transcript = append(c.transcript, ev.Text)
		c.mu.Unlock()
		if c.deps.Hooks.OnTranscript != nil {
			c.deps.Hooks.OnTranscript(ev.Text)
		}
	default:
		c.logf("%s", ev.Text)
	}
}

// logf appends one line to the session log and mirrors it to the structured
// logger and the log hook.
func (c *Controller) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.logLines = append(c.logLines, line)
	c.mu.Unlock()
	c.log.Info().Msg(line)
	if c.deps.Hooks.OnLog != nil {
		c.deps.Hooks.OnLog(line)
	}
}

func (c *Controller) emitState(s State) {
	if c.deps.Hooks.OnState != nil {
		c.deps.Hooks.OnState(s)
	}
}

func (c *Controller) emitError(err error) {
	if c.deps.Hooks.OnError != nil {
		c.deps.Hooks.OnError(err)
	}
}
