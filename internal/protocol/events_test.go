package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestParseServerEventResponseCreated(t *testing.T) {
	t.Parallel()

	payload := `{"type":"response.created","event_id":"evt_1","response":{"id":"resp_A","status":"in_progress"}}`
	event, err := ParseServerEvent([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Type != EventResponseCreated {
		t.Fatalf("unexpected type: %q", event.Type)
	}
	if event.ResponseID != "resp_A" {
		t.Fatalf("unexpected response id: %q", event.ResponseID)
	}
}

func TestParseServerEventTopLevelResponseIDWins(t *testing.T) {
	t.Parallel()

	payload := `{"type":"response.audio_transcript.done","response_id":"resp_B","item_id":"item_1","transcript":"done now"}`
	event, err := ParseServerEvent([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.ResponseID != "resp_B" {
		t.Fatalf("unexpected response id: %q", event.ResponseID)
	}
	if event.ItemID != "item_1" || event.Transcript != "done now" {
		t.Fatalf("unexpected fields: %+v", event)
	}
}

func TestParseServerEventAudioDeltaDecodesBase64(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	payload, _ := json.Marshal(map[string]string{
		"type":  EventAudioDelta,
		"delta": base64.StdEncoding.EncodeToString(pcm),
	})

	event, err := ParseServerEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if string(event.Audio) != string(pcm) {
		t.Fatalf("unexpected audio payload: %v", event.Audio)
	}
}

func TestParseServerEventRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		`not json`,
		`{"delta":"abc"}`,
		`{"type":"response.audio.delta","delta":"@@not-base64@@"}`,
	}
	for _, payload := range cases {
		if _, err := ParseServerEvent([]byte(payload)); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

func TestParseServerEventKeepsUnknownType(t *testing.T) {
	t.Parallel()

	event, err := ParseServerEvent([]byte(`{"type":"rate_limits.updated"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Type != "rate_limits.updated" {
		t.Fatalf("unexpected type: %q", event.Type)
	}
}

func TestIsBenignCancelRace(t *testing.T) {
	t.Parallel()

	benign := []*ServerError{
		{Code: "response_cancel_not_active"},
		{Code: "cancel-not-active"},
		{Message: "Cancellation failed: no active response found"},
	}
	for _, serverErr := range benign {
		if !IsBenignCancelRace(serverErr) {
			t.Fatalf("expected benign: %+v", serverErr)
		}
	}

	real := []*ServerError{
		nil,
		{Code: "invalid_request_error", Message: "missing model"},
		{Code: "server_error"},
	}
	for _, serverErr := range real {
		if IsBenignCancelRace(serverErr) {
			t.Fatalf("expected real error: %+v", serverErr)
		}
	}
}

func TestNewSessionUpdateShape(t *testing.T) {
	t.Parallel()

	update := NewSessionUpdate(SessionConfig{
		Modalities:   []string{"text", "audio"},
		Instructions: "be helpful",
		Voice:        "cedar",
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMS:   300,
			SilenceDurationMS: 500,
		},
	})

	if update.Type != "session.update" {
		t.Fatalf("unexpected type: %q", update.Type)
	}
	if update.EventID == "" {
		t.Fatalf("expected client event id")
	}

	raw, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	session, ok := decoded["session"].(map[string]any)
	if !ok {
		t.Fatalf("missing session payload")
	}
	turn, ok := session["turn_detection"].(map[string]any)
	if !ok {
		t.Fatalf("missing turn_detection payload")
	}
	if turn["type"] != "server_vad" {
		t.Fatalf("unexpected turn detection type: %v", turn["type"])
	}
}

func TestResolveVoice(t *testing.T) {
	t.Parallel()

	if voice, substituted := ResolveVoice("Marin"); voice != "marin" || substituted {
		t.Fatalf("expected allow-listed voice, got %q substituted=%t", voice, substituted)
	}
	if voice, substituted := ResolveVoice("gravel-baritone"); voice != DefaultVoice || !substituted {
		t.Fatalf("expected default substitution, got %q substituted=%t", voice, substituted)
	}
	if voice, substituted := ResolveVoice(""); voice != DefaultVoice || substituted {
		t.Fatalf("empty request should use default without substitution flag, got %q substituted=%t", voice, substituted)
	}
}
