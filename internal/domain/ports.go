package domain

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// CredentialProvider obtains the short-lived credential that authorizes the
// media transport. Implementations acquire at most once per call.
type CredentialProvider interface {
	Acquire(ctx context.Context) (Credential, error)
}

// AudioTrack is one local capture track with a mute flag.
type AudioTrack interface {
	Local() webrtc.TrackLocal
	Enabled() bool
	SetEnabled(enabled bool)
}

// AudioStream owns the local capture tracks for one session.
type AudioStream interface {
	Tracks() []AudioTrack
}

// MediaCapture acquires the microphone and manages its mute state.
type MediaCapture interface {
	Acquire(ctx context.Context) (AudioStream, error)
	ToggleMute(s AudioStream) bool
	Release(s AudioStream)
}

// Signaler exchanges a local SDP offer for the remote answer in a single
// HTTP round trip.
type Signaler interface {
	Exchange(ctx context.Context, offer string, cred Credential, endpoint, model string) (string, error)
}

// Transport is the peer connection plus its bidirectional control channel.
// Handlers must be registered before CreateOffer.
type Transport interface {
	AttachLocal(s AudioStream) error
	OnRemoteTrack(fn func(track *webrtc.TrackRemote))
	OnControlOpen(fn func())
	OnControlMessage(fn func(raw []byte))
	OnFailure(fn func(err error))
	CreateOffer() (string, error)
	ApplyAnswer(sdp string) error
	Close()
}

// TransportFactory builds a fresh Transport for one connection attempt.
type TransportFactory func() (Transport, error)

// Messenger is a publish/subscribe channel to an embedding context, used by
// the cross-context credential strategy. Subscribe returns a receive channel
// and a cancel function that releases the subscription.
type Messenger interface {
	Publish(msg []byte) error
	Subscribe() (msgs <-chan []byte, cancel func())
}
