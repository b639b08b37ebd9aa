// Package capture acquires the local microphone and feeds it to the peer
// transport as an Opus track.
package capture

import (
	"context"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/hraban/opus"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voicebridge/internal/domain"
)

// Capture acquires microphone streams through malgo.
type Capture struct {
	log zerolog.Logger
}

// New creates a Capture.
func New(log zerolog.Logger) *Capture {
	return &Capture{log: log}
}

// Acquire opens the default capture device at 48kHz mono PCM16 and returns a
// stream with one Opus local track. A missing audio backend surfaces as
// Unsupported; a device that cannot be opened or started as PermissionDenied.
func (c *Capture) Acquire(ctx context.Context) (domain.AudioStream, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		c.log.Debug().Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, &domain.MediaAccessError{
			Reason: domain.MediaUnsupported,
			Detail: "init audio context",
			Err:    err,
		}
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, &domain.MediaAccessError{
			Reason: domain.MediaUnsupported,
			Detail: "create opus encoder",
			Err:    err,
		}
	}

	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: sampleRate,
			Channels:  2,
		},
		"audio", "voicebridge-mic",
	)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, &domain.MediaAccessError{
			Reason: domain.MediaUnsupported,
			Detail: "create local track",
			Err:    err,
		}
	}

	s := newStream(mctx, enc, c.log)
	s.addTrack(local)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = sampleRate

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onFrames,
	})
	if err != nil {
		s.stop()
		return nil, &domain.MediaAccessError{
			Reason: domain.MediaPermissionDenied,
			Detail: "open capture device",
			Err:    err,
		}
	}
	s.device = device

	if err := device.Start(); err != nil {
		s.stop()
		return nil, &domain.MediaAccessError{
			Reason: domain.MediaPermissionDenied,
			Detail: "start capture device",
			Err:    err,
		}
	}

	c.log.Debug().Int("sample_rate", sampleRate).Msg("microphone capture started")
	return s, nil
}

// ToggleMute flips every track's enabled flag in lockstep and returns the
// resulting enabled state (true = unmuted). A nil or empty stream is a no-op.
func (c *Capture) ToggleMute(s domain.AudioStream) bool {
	if s == nil {
		return false
	}
	tracks := s.Tracks()
	if len(tracks) == 0 {
		return false
	}
	next := !tracks[0].Enabled()
	for _, t := range tracks {
		t.SetEnabled(next)
	}
	return next
}

// Release stops the device and frees the audio context. Safe to call on a
// nil or already-released stream.
func (c *Capture) Release(s domain.AudioStream) {
	if s == nil {
		return
	}
	if cs, ok := s.(*Stream); ok {
		cs.stop()
	}
}
