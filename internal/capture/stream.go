package capture

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/hraban/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voicebridge/internal/domain"
)

const (
	sampleRate    = 48000
	channels      = 1
	frameDuration = 20 * time.Millisecond
	// samples per 20ms frame at 48kHz mono
	frameSamples = sampleRate / 50
	// large enough for any single opus frame
	maxOpusFrame = 1275
)

// Track is one local capture track with an atomically flipped mute flag.
// A disabled track drops frames, producing silence on the wire.
type Track struct {
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func (t *Track) Local() webrtc.TrackLocal { return t.local }
func (t *Track) Enabled() bool            { return t.enabled.Load() }
func (t *Track) SetEnabled(v bool)        { t.enabled.Store(v) }

// Stream owns the capture device and its tracks. The malgo data callback is
// the only writer of the PCM accumulator.
type Stream struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	enc    *opus.Encoder
	tracks []*Track

	pcm     []int16
	opusBuf []byte

	stopOnce sync.Once
	log      zerolog.Logger
}

func newStream(mctx *malgo.AllocatedContext, enc *opus.Encoder, log zerolog.Logger) *Stream {
	return &Stream{
		mctx:    mctx,
		enc:     enc,
		opusBuf: make([]byte, maxOpusFrame),
		log:     log,
	}
}

func (s *Stream) addTrack(local *webrtc.TrackLocalStaticSample) {
	t := &Track{local: local}
	t.enabled.Store(true)
	s.tracks = append(s.tracks, t)
}

// Tracks returns the stream's tracks behind the domain port.
func (s *Stream) Tracks() []domain.AudioTrack {
	out := make([]domain.AudioTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// onFrames accumulates captured PCM into 20ms frames and writes each encoded
// frame to every enabled track.
func (s *Stream) onFrames(_, input []byte, _ uint32) {
	s.pcm = append(s.pcm, pcm16FromBytes(input)...)
	for len(s.pcm) >= frameSamples {
		s.writeFrame(s.pcm[:frameSamples])
		n := copy(s.pcm, s.pcm[frameSamples:])
		s.pcm = s.pcm[:n]
	}
}

func (s *Stream) writeFrame(frame []int16) {
	n, err := s.enc.Encode(frame, s.opusBuf)
	if err != nil {
		s.log.Warn().Err(err).Msg("opus encode failed")
		return
	}
	sample := media.Sample{Data: s.opusBuf[:n], Duration: frameDuration}
	for _, t := range s.tracks {
		if !t.Enabled() {
			continue
		}
		if err := t.local.WriteSample(sample); err != nil {
			s.log.Debug().Err(err).Msg("write sample failed")
		}
	}
}

// stop releases the device and context exactly once.
func (s *Stream) stop() {
	s.stopOnce.Do(func() {
		if s.device != nil {
			s.device.Uninit()
		}
		if s.mctx != nil {
			_ = s.mctx.Uninit()
			s.mctx.Free()
		}
	})
}

func pcm16FromBytes(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}
