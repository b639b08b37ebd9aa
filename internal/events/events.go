// Package events classifies inbound control-channel messages.
package events

import "encoding/json"

// Kind is the classification of one control-channel message.
type Kind int

const (
	// KindLog carries text destined for the session log. Undecodable
	// messages and unrecognized event types all land here.
	KindLog Kind = iota

	// KindTranscript carries one incremental transcript fragment.
	KindTranscript
)

// Event is one classified control-channel message.
type Event struct {
	Kind Kind
	// Type is the wire discriminator, empty when the message did not decode.
	Type string
	// Text is the transcript delta for KindTranscript, otherwise a
	// human-readable log line.
	Text string
}

// TypeTranscriptDelta is the only discriminator with defined behavior; every
// other type is recorded as a log line.
const TypeTranscriptDelta = "response.text.delta"

type envelope struct {
	Type  string  `json:"type"`
	Delta *string `json:"delta"`
}

// Classify decodes one raw control-channel message. Decoding never fails past
// this boundary: anything that is not a recognized JSON event becomes a log
// event carrying the raw text verbatim.
func Classify(raw []byte) Event {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return Event{Kind: KindLog, Text: string(raw)}
	}
	if env.Type == TypeTranscriptDelta && env.Delta != nil {
		return Event{Kind: KindTranscript, Type: env.Type, Text: *env.Delta}
	}
	return Event{Kind: KindLog, Type: env.Type, Text: string(raw)}
}
