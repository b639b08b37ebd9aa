// Package playback plays the remote audio track through the default output
// device. It is a presentation collaborator: the session core hands the
// track over and never assumes a speaker exists.
package playback

import (
	"encoding/binary"

	"github.com/gen2brain/malgo"
	"github.com/hraban/opus"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	sampleRate = 48000
	channels   = 2
	// opus frames can be up to 120ms
	maxFrameSamples = sampleRate / 1000 * 120 * channels
)

// Speaker decodes a remote Opus track and writes PCM to a malgo playback
// device.
type Speaker struct {
	log zerolog.Logger
}

// NewSpeaker creates a Speaker.
func NewSpeaker(log zerolog.Logger) *Speaker {
	return &Speaker{log: log}
}

// Play consumes the track until it ends. It returns immediately; decoding
// and playback run on their own goroutine.
func (s *Speaker) Play(track *webrtc.TrackRemote) {
	go s.run(track)
}

func (s *Speaker) run(track *webrtc.TrackRemote) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("no audio backend for playback, draining track")
		drain(track)
		return
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		s.log.Warn().Err(err).Msg("opus decoder init failed, draining track")
		drain(track)
		return
	}

	pcmCh := make(chan []int16, 64)
	var pending []int16

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			need := int(frameCount) * channels
			for len(pending) < need {
				select {
				case chunk := <-pcmCh:
					pending = append(pending, chunk...)
				default:
					// underrun: pad the remainder with silence
					pending = append(pending, make([]int16, need-len(pending))...)
				}
			}
			for i := 0; i < need; i++ {
				binary.LittleEndian.PutUint16(output[2*i:], uint16(pending[i]))
			}
			pending = pending[need:]
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("playback device init failed, draining track")
		drain(track)
		return
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		s.log.Warn().Err(err).Msg("playback device start failed, draining track")
		drain(track)
		return
	}

	pcm := make([]int16, maxFrameSamples)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			s.log.Debug().Err(err).Msg("opus decode failed")
			continue
		}
		chunk := make([]int16, n*channels)
		copy(chunk, pcm[:n*channels])
		select {
		case pcmCh <- chunk:
		default:
			// playback lagging badly; drop rather than grow without bound
		}
	}
}

func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
