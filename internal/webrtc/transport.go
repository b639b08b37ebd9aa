// Package webrtc wraps the pion peer connection and control channel behind
// the domain Transport port.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voicebridge/internal/domain"
)

// controlChannelLabel is the data channel the remote endpoint expects for
// structured events.
const controlChannelLabel = "oai-events"

// Transport wraps a pion PeerConnection and its control DataChannel.
type Transport struct {
	pc *pion.PeerConnection
	dc *pion.DataChannel

	mu            sync.Mutex
	onRemoteTrack func(*pion.TrackRemote)
	onOpen        func()
	onMessage     func([]byte)
	onFailure     func(error)

	closeOnce sync.Once
	log       zerolog.Logger
}

// NewTransport builds an audio-only peer connection. The control channel is
// created before the offer so it is negotiated in the initial exchange.
func NewTransport(log zerolog.Logger) (*Transport, error) {
	m := &pion.MediaEngine{}
	opusCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}
	if err := m.RegisterCodec(opusCodec, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}

	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(pion.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel(controlChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create control channel: %w", err)
	}

	t := &Transport{pc: pc, dc: dc, log: log}

	dc.OnOpen(func() {
		t.log.Debug().Str("label", controlChannelLabel).Msg("control channel open")
		t.mu.Lock()
		fn := t.onOpen
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		t.mu.Lock()
		fn := t.onMessage
		t.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})
	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		t.log.Debug().Str("codec", track.Codec().MimeType).Msg("remote track arrived")
		t.mu.Lock()
		fn := t.onRemoteTrack
		t.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		t.log.Debug().Stringer("state", state).Msg("peer connection state")
		if state == pion.PeerConnectionStateFailed {
			t.mu.Lock()
			fn := t.onFailure
			t.mu.Unlock()
			if fn != nil {
				fn(&domain.TransportError{Detail: "peer connection failed"})
			}
		}
	})

	return t, nil
}

// AttachLocal adds every track of the captured stream to the connection.
func (t *Transport) AttachLocal(s domain.AudioStream) error {
	for _, track := range s.Tracks() {
		if _, err := t.pc.AddTrack(track.Local()); err != nil {
			return fmt.Errorf("add local track: %w", err)
		}
	}
	return nil
}

func (t *Transport) OnRemoteTrack(fn func(track *pion.TrackRemote)) {
	t.mu.Lock()
	t.onRemoteTrack = fn
	t.mu.Unlock()
}

func (t *Transport) OnControlOpen(fn func()) {
	t.mu.Lock()
	t.onOpen = fn
	t.mu.Unlock()
}

func (t *Transport) OnControlMessage(fn func(raw []byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *Transport) OnFailure(fn func(err error)) {
	t.mu.Lock()
	t.onFailure = fn
	t.mu.Unlock()
}

// CreateOffer produces the local description and blocks until ICE gathering
// completes, so the single-shot exchange carries every candidate.
func (t *Transport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gathered := pion.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	<-gathered

	t.log.Debug().Msg("local offer committed")
	return t.pc.LocalDescription().SDP, nil
}

// ApplyAnswer sets the remote session description.
func (t *Transport) ApplyAnswer(sdp string) error {
	answer := pion.SessionDescription{
		Type: pion.SDPTypeAnswer,
		SDP:  sdp,
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	t.log.Debug().Msg("remote answer applied")
	return nil
}

// Close shuts down the control channel and peer connection.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		if t.dc != nil {
			t.dc.Close()
		}
		if t.pc != nil {
			t.pc.Close()
		}
	})
}
