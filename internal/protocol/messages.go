package protocol

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// TurnDetection mirrors the peer's server-side voice-activity detection knobs.
// The three numbers balance premature cutoff against added latency and are
// configuration, never computed.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// TranscriptionConfig selects the model transcribing user speech.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// SessionConfig is the payload of the one mandatory session.update message.
type SessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions"`
	Voice                   string               `json:"voice"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
}

// SessionUpdate declares modalities, persona instructions, voice, and
// turn-detection sensitivity. Sent exactly once per session.
type SessionUpdate struct {
	EventID string        `json:"event_id,omitempty"`
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// NewSessionUpdate builds a session.update with a fresh client event id.
func NewSessionUpdate(session SessionConfig) SessionUpdate {
	return SessionUpdate{
		EventID: clientEventID(),
		Type:    "session.update",
		Session: session,
	}
}

// ResponseCancel asks the peer to stop an in-progress response.
type ResponseCancel struct {
	EventID    string `json:"event_id,omitempty"`
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
}

// NewResponseCancel builds a response.cancel for the given response.
func NewResponseCancel(responseID string) ResponseCancel {
	return ResponseCancel{
		EventID:    clientEventID(),
		Type:       "response.cancel",
		ResponseID: responseID,
	}
}

// InputAudioAppend carries one outbound microphone frame on the fallback
// transport. The media-track transport never sends these.
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// NewInputAudioAppend wraps raw PCM into an input_audio_buffer.append message.
func NewInputAudioAppend(pcm []byte) InputAudioAppend {
	return InputAudioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}
}

func clientEventID() string {
	return "evt_" + uuid.NewString()
}
