package events

import "testing"

func TestClassify_TranscriptDelta(t *testing.T) {
	ev := Classify([]byte(`{"type":"response.text.delta","delta":"hello"}`))

	if ev.Kind != KindTranscript {
		t.Fatalf("expected transcript kind, got %d", ev.Kind)
	}
	if ev.Text != "hello" {
		t.Errorf("expected delta 'hello', got %q", ev.Text)
	}
}

func TestClassify_NonJSONIsVerbatimLog(t *testing.T) {
	raw := "this is not { json"
	ev := Classify([]byte(raw))

	if ev.Kind != KindLog {
		t.Fatalf("expected log kind, got %d", ev.Kind)
	}
	if ev.Text != raw {
		t.Errorf("expected raw text verbatim, got %q", ev.Text)
	}
	if ev.Type != "" {
		t.Errorf("expected empty type for undecodable message, got %q", ev.Type)
	}
}

func TestClassify_UnknownTypeIsLog(t *testing.T) {
	ev := Classify([]byte(`{"type":"response.done","status":"completed"}`))

	if ev.Kind != KindLog {
		t.Fatalf("expected log kind, got %d", ev.Kind)
	}
	if ev.Type != "response.done" {
		t.Errorf("expected type 'response.done', got %q", ev.Type)
	}
}

func TestClassify_DeltaTypeWithoutDeltaFieldIsLog(t *testing.T) {
	ev := Classify([]byte(`{"type":"response.text.delta"}`))

	if ev.Kind != KindLog {
		t.Fatalf("expected log kind when delta field is absent, got %d", ev.Kind)
	}
}

func TestClassify_MissingTypeIsLog(t *testing.T) {
	ev := Classify([]byte(`{"delta":"orphan"}`))

	if ev.Kind != KindLog {
		t.Fatalf("expected log kind when type is absent, got %d", ev.Kind)
	}
}

func TestClassify_EmptyDeltaIsStillTranscript(t *testing.T) {
	ev := Classify([]byte(`{"type":"response.text.delta","delta":""}`))

	if ev.Kind != KindTranscript {
		t.Fatalf("expected transcript kind for present-but-empty delta, got %d", ev.Kind)
	}
	if ev.Text != "" {
		t.Errorf("expected empty delta, got %q", ev.Text)
	}
}
