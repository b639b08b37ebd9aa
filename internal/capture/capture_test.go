package capture

import (
	"testing"

	"github.com/rs/zerolog"
)

// deviceless stream: no malgo context, no encoder; exercises track and
// release bookkeeping only.
func testStream(trackCount int) *Stream {
	s := &Stream{log: zerolog.Nop()}
	for i := 0; i < trackCount; i++ {
		s.addTrack(nil)
	}
	return s
}

func TestToggleMute_FlipsAllTracksInLockstep(t *testing.T) {
	c := New(zerolog.Nop())
	s := testStream(2)

	if enabled := c.ToggleMute(s); enabled {
		t.Fatal("expected first toggle to mute (enabled=false)")
	}
	for i, tr := range s.Tracks() {
		if tr.Enabled() {
			t.Errorf("track %d still enabled after mute", i)
		}
	}

	if enabled := c.ToggleMute(s); !enabled {
		t.Fatal("expected second toggle to unmute (enabled=true)")
	}
	for i, tr := range s.Tracks() {
		if !tr.Enabled() {
			t.Errorf("track %d still disabled after unmute", i)
		}
	}

	if got := len(s.Tracks()); got != 2 {
		t.Errorf("track count changed across toggles: %d", got)
	}
}

func TestToggleMute_NilStreamIsNoOp(t *testing.T) {
	c := New(zerolog.Nop())
	if c.ToggleMute(nil) {
		t.Error("expected false for nil stream")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	c := New(zerolog.Nop())
	s := testStream(1)

	c.Release(s)
	c.Release(s) // second release must be safe
	c.Release(nil)
}

func TestPCM16FromBytes(t *testing.T) {
	// little-endian: 0x0100 = 256, 0xFFFF = -1
	got := pcm16FromBytes([]byte{0x00, 0x01, 0xFF, 0xFF})
	if len(got) != 2 || got[0] != 256 || got[1] != -1 {
		t.Errorf("unexpected conversion: %v", got)
	}
}
